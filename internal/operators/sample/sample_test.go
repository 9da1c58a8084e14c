package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
)

func newReg(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	Register(r)
	return r
}

func groupedBatch(groups ...string) record.Batch {
	out := make(record.Batch, len(groups))
	for i, g := range groups {
		out[i] = record.Record{Payload: "x", Metadata: record.Metadata{"label": g}}
	}
	return out
}

func TestRandomSampleRatioTargetsProportion(t *testing.T) {
	r := newReg(t)
	ratio := 0.5
	op, err := r.Instantiate("sample.random", map[string]any{"ratio": ratio, "seed": 1})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, groupedBatch("a", "a", "a", "a"))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRandomSampleIsDeterministicForSameSeed(t *testing.T) {
	r := newReg(t)
	ratio := 0.5
	op1, err := r.Instantiate("sample.random", map[string]any{"ratio": ratio, "seed": 42})
	require.NoError(t, err)
	op2, err := r.Instantiate("sample.random", map[string]any{"ratio": ratio, "seed": 42})
	require.NoError(t, err)

	batch := groupedBatch("a", "a", "a", "a")
	out1, err := registry.ApplyNamed(op1, batch)
	require.NoError(t, err)
	out2, err := registry.ApplyNamed(op2, batch)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
}

func TestRandomSampleRequiresRatioOrCount(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("sample.random", map[string]any{})
	assert.Error(t, err)
}

func TestTopKeepsHighestScoring(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("sample.top", map[string]any{"key": "score", "count": 2})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{
		{Payload: "a", Metadata: record.Metadata{"score": 0.1}},
		{Payload: "b", Metadata: record.Metadata{"score": 0.9}},
		{Payload: "c", Metadata: record.Metadata{"score": 0.5}},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Payload)
	assert.Equal(t, "c", out[1].Payload)
}

func TestBalancedUndersampleEqualizesToSmallestGroup(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("sample.balanced", map[string]any{"path": "metadata.label"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, groupedBatch("a", "a", "a", "b"))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestBalancedOversampleEqualizesToLargestGroup(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("sample.balanced", map[string]any{"path": "metadata.label", "strategy": "oversample"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, groupedBatch("a", "a", "a", "b"))
	require.NoError(t, err)
	assert.Len(t, out, 6)
}

func TestByDistributionAllocatesByShare(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("sample.by_distribution", map[string]any{
		"path":         "metadata.label",
		"total_count":  2,
		"distribution": map[string]any{"a": 1.0, "b": 1.0},
	})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, groupedBatch("a", "a", "b", "b"))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestByLengthFiltersOutOfRange(t *testing.T) {
	r := newReg(t)
	min, max := 3, 5
	op, err := r.Instantiate("sample.by_length", map[string]any{"path": "payload.text", "min": min, "max": max})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{
		{Payload: map[string]any{"text": "hi"}},
		{Payload: map[string]any{"text": "okay"}},
		{Payload: map[string]any{"text": "way too long a string"}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "okay", out[0].Payload.(map[string]any)["text"])
}

func TestStratifiedAllocatesProportionally(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("sample.stratified", map[string]any{"path": "metadata.label", "count": 2})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, groupedBatch("a", "a", "a", "b"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 2)
}
