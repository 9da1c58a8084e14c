package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
)

func batchOf(texts ...string) record.Batch {
	batch := make(record.Batch, len(texts))
	for i, t := range texts {
		batch[i] = record.Record{Payload: map[string]any{"text": t}}
	}
	return batch
}

func TestCountWritesDefaultTarget(t *testing.T) {
	r := registry.New()
	Register(r)
	op, err := r.Instantiate("token.count", map[string]any{"path": "payload.text"})
	require.NoError(t, err)

	out, err := op.Apply(batchOf("one two three"))
	require.NoError(t, err)
	assert.Equal(t, 3, out[0].Metadata["token_count"])
}

func TestFilterKeepsWithinRange(t *testing.T) {
	r := registry.New()
	Register(r)
	min := 2.0
	max := 3.0
	op, err := r.Instantiate("token.filter", map[string]any{
		"path": "payload.text", "min": min, "max": max,
	})
	require.NoError(t, err)

	out, err := op.Apply(batchOf("one", "one two", "one two three", "one two three four"))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestFilterRequiresBound(t *testing.T) {
	r := registry.New()
	Register(r)
	_, err := r.Instantiate("token.filter", map[string]any{"path": "payload.text"})
	assert.Error(t, err)
}

func TestStatsAttachesToFirstRecord(t *testing.T) {
	r := registry.New()
	Register(r)
	op, err := r.Instantiate("token.stats", map[string]any{"path": "payload.text"})
	require.NoError(t, err)

	out, err := op.Apply(batchOf("a", "a b", "a b c"))
	require.NoError(t, err)
	stats, ok := out[0].Metadata["token_stats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(6), stats["total"])
}

func TestHistogramBucketsCounts(t *testing.T) {
	r := registry.New()
	Register(r)
	op, err := r.Instantiate("token.histogram", map[string]any{"path": "payload.text", "bucket_size": 2})
	require.NoError(t, err)

	out, err := op.Apply(batchOf("a", "a b", "a b c d"))
	require.NoError(t, err)
	hist, ok := out[0].Metadata["token_histogram"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, hist["0"])
	assert.Equal(t, 1, hist["1"])
	assert.Equal(t, 1, hist["2"])
}
