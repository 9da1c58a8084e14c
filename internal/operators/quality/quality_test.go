package quality

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

func textBatch(text string) record.Batch {
	return record.Batch{{Payload: map[string]any{"text": text}}}
}

func TestScoreWritesValueInUnitRange(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("quality.score", map[string]any{"path": "payload.text"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, textBatch("This is a reasonably well formed sentence. It has punctuation."))
	require.NoError(t, err)
	score := out[0].Metadata["quality_score"].(float64)
	assert.True(t, score >= 0 && score <= 1)
}

func TestScoreWritesDetailsWhenConfigured(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("quality.score", map[string]any{"path": "payload.text", "details_key": "quality_details"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, textBatch("Some text here."))
	require.NoError(t, err)
	_, ok := out[0].Metadata["quality_details"]
	assert.True(t, ok)
}

func TestFilterKeepsOnlyRecordsAtOrAboveMin(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("quality.filter", map[string]any{"key": "quality_score", "min": 0.5})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{
		{Payload: "a", Metadata: record.Metadata{"quality_score": 0.9}},
		{Payload: "b", Metadata: record.Metadata{"quality_score": 0.1}},
	})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestFilterRequiresKey(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("quality.filter", map[string]any{})
	assert.Error(t, err)
}

func TestToxicityScoresHigherForLexiconHits(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("quality.toxicity", map[string]any{"path": "payload.text"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, textBatch("you are so stupid and dumb"))
	require.NoError(t, err)
	clean, err := registry.ApplyNamed(op, textBatch("have a wonderful day"))
	require.NoError(t, err)

	toxic := out[0].Metadata["toxicity"].(float64)
	niceScore := clean[0].Metadata["toxicity"].(float64)
	assert.True(t, toxic > niceScore)
}

func TestToxicityNegationAttenuatesScore(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("quality.toxicity", map[string]any{"path": "payload.text"})
	require.NoError(t, err)

	direct, err := registry.ApplyNamed(op, textBatch("you are stupid"))
	require.NoError(t, err)
	negated, err := registry.ApplyNamed(op, textBatch("you are not stupid"))
	require.NoError(t, err)

	assert.True(t, negated[0].Metadata["toxicity"].(float64) < direct[0].Metadata["toxicity"].(float64))
}
