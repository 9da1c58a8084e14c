package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
)

func textBatch(texts ...string) record.Batch {
	batch := make(record.Batch, len(texts))
	for i, t := range texts {
		batch[i] = record.Record{Payload: map[string]any{"text": t}}
	}
	return batch
}

func TestRegisterAddsAllFourEngines(t *testing.T) {
	r := registry.New()
	Register(r)
	names := r.Names()
	assert.Contains(t, names, "dedup.simhash")
	assert.Contains(t, names, "dedup.minhash")
	assert.Contains(t, names, "dedup.tfidf")
	assert.Contains(t, names, "dedup.semantic")
}

func TestSimhashDropsNearDuplicate(t *testing.T) {
	r := registry.New()
	Register(r)
	op, err := r.Instantiate("dedup.simhash", map[string]any{
		"path": "payload.text", "threshold": 0.9,
	})
	require.NoError(t, err)

	batch := textBatch(
		"the quick brown fox jumps over the lazy dog",
		"the quick brown fox jumps over the lazy dog",
		"completely unrelated content about something else entirely",
	)
	out, err := op.Apply(batch)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestMinhashRequiresPositiveKAndBands(t *testing.T) {
	r := registry.New()
	Register(r)

	_, err := r.Instantiate("dedup.minhash", map[string]any{"path": "payload.text", "k": 0, "bands": 4})
	assert.Error(t, err)

	_, err = r.Instantiate("dedup.minhash", map[string]any{"path": "payload.text", "k": 32, "bands": 0})
	assert.Error(t, err)
}

func TestMinhashDropsNearDuplicateViaLSH(t *testing.T) {
	r := registry.New()
	Register(r)
	op, err := r.Instantiate("dedup.minhash", map[string]any{
		"path": "payload.text", "threshold": 0.5, "k": 32, "bands": 8,
	})
	require.NoError(t, err)

	batch := textBatch(
		"alpha beta gamma delta epsilon zeta eta theta",
		"alpha beta gamma delta epsilon zeta eta theta",
		"completely different tokens appear in this one here",
	)
	out, err := op.Apply(batch)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestTFIDFDropsDuplicateAndAnnotatesDetails(t *testing.T) {
	r := registry.New()
	Register(r)
	op, err := r.Instantiate("dedup.tfidf", map[string]any{
		"path": "payload.text", "threshold": 0.9, "details_key": "dedup_info",
	})
	require.NoError(t, err)

	batch := textBatch(
		"alpha beta gamma delta",
		"alpha beta gamma delta",
		"totally unrelated words here now",
	)
	out, err := op.Apply(batch)
	require.NoError(t, err)
	require.Len(t, out, 2)

	info, ok := out[0].Metadata["dedup_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, info["duplicate"])
}

func TestTFIDFAttributesMatchToFirstClearedKeptRecord(t *testing.T) {
	r := registry.New()
	Register(r)
	op, err := r.Instantiate("dedup.tfidf", map[string]any{
		"path": "payload.text", "threshold": 0.9, "details_key": "dedup_info",
	})
	require.NoError(t, err)

	batch := textBatch(
		"alpha beta gamma delta",
		"totally unrelated words here now",
		"alpha beta gamma delta",
	)
	out, err := op.Apply(batch)
	require.NoError(t, err)
	require.Len(t, out, 2)

	info0, ok := out[0].Metadata["dedup_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, info0["duplicate"])

	_, ok = out[1].Metadata["dedup_info"].(map[string]any)
	if ok {
		assert.NotEqual(t, true, out[1].Metadata["dedup_info"].(map[string]any)["duplicate"])
	}
}

func TestTFIDFKeepsEmptyText(t *testing.T) {
	r := registry.New()
	Register(r)
	op, err := r.Instantiate("dedup.tfidf", map[string]any{
		"path": "payload.text", "threshold": 0.9,
	})
	require.NoError(t, err)

	batch := textBatch("", "")
	out, err := op.Apply(batch)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestSemanticFallsBackToTFIDFWithoutProvider(t *testing.T) {
	r := registry.New()
	Register(r)
	op, err := r.Instantiate("dedup.semantic", map[string]any{
		"path": "payload.text", "threshold": 0.9,
	})
	require.NoError(t, err)

	batch := textBatch(
		"alpha beta gamma delta",
		"alpha beta gamma delta",
	)
	out, err := op.Apply(batch)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestJaccard(t *testing.T) {
	a := tokenSet("alpha beta gamma")
	b := tokenSet("alpha beta delta")
	assert.InDelta(t, 0.5, jaccard(a, b), 0.001)
	assert.Equal(t, 0.0, jaccard(map[string]bool{}, map[string]bool{}))
}
