package split

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

func seqBatch(n int) record.Batch {
	out := make(record.Batch, n)
	for i := range out {
		out[i] = record.Record{Payload: map[string]any{"i": i}}
	}
	return out
}

func TestRandomSplitTagsEveryRecord(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("split.random", map[string]any{
		"ratios": []any{0.8, 0.2}, "names": []any{"train", "test"}, "seed": 1,
	})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, seqBatch(10))
	require.NoError(t, err)
	counts := map[string]int{}
	for _, rec := range out {
		counts[rec.Metadata["split"].(string)]++
	}
	assert.Equal(t, 8, counts["train"])
	assert.Equal(t, 2, counts["test"])
}

func TestRatiosMustSumToOne(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("split.random", map[string]any{
		"ratios": []any{0.8, 0.5}, "names": []any{"train", "test"},
	})
	assert.Error(t, err)
}

func TestSequentialSplitPreservesOrderWithinGroups(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("split.sequential", map[string]any{
		"ratios": []any{0.5, 0.5}, "names": []any{"first", "second"},
	})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, seqBatch(4))
	require.NoError(t, err)
	assert.Equal(t, "first", out[0].Metadata["split"])
	assert.Equal(t, "first", out[1].Metadata["split"])
	assert.Equal(t, "second", out[2].Metadata["split"])
	assert.Equal(t, "second", out[3].Metadata["split"])
}

func TestStratifiedSplitPreservesPerGroupRatio(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("split.stratified", map[string]any{
		"path": "metadata.label", "ratios": []any{0.5, 0.5}, "names": []any{"a", "b"}, "seed": 1,
	})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{
		{Payload: "x", Metadata: record.Metadata{"label": "cat"}},
		{Payload: "x", Metadata: record.Metadata{"label": "cat"}},
		{Payload: "x", Metadata: record.Metadata{"label": "dog"}},
		{Payload: "x", Metadata: record.Metadata{"label": "dog"}},
	})
	require.NoError(t, err)
	assert.Len(t, out, 4)
}

func TestKFoldAssignsFoldsInRange(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("split.kfold", map[string]any{"k": 3})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, seqBatch(7))
	require.NoError(t, err)
	for _, rec := range out {
		fold := rec.Metadata["fold"].(int)
		assert.True(t, fold >= 0 && fold < 3)
	}
}

func TestKFoldRequiresPositiveK(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("split.kfold", map[string]any{"k": 0})
	assert.Error(t, err)
}

func TestChunkAnnotatesIndexAndTotal(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("split.chunk", map[string]any{"chunk_size": 3})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, seqBatch(7))
	require.NoError(t, err)
	assert.Equal(t, 0, out[0].Metadata["chunk"])
	assert.Equal(t, 2, out[6].Metadata["chunk"])
	assert.Equal(t, 3, out[0].Metadata["total_chunks"])
}
