package augment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
)

func newReg() *registry.Registry {
	r := registry.New()
	Register(r)
	return r
}

func TestSynonymRequiresNonEmptyEntries(t *testing.T) {
	r := newReg()
	_, err := r.Instantiate("augment.synonym", map[string]any{"path": "payload.text", "synonyms": []any{}})
	assert.Error(t, err)
}

func TestSynonymIsDeterministicForSameSeed(t *testing.T) {
	r := newReg()
	cfg := map[string]any{
		"path": "payload.text",
		"synonyms": []any{
			map[string]any{"word": "fast", "replacements": []any{"quick", "rapid"}},
		},
		"seed": 42,
	}
	op1, err := r.Instantiate("augment.synonym", cfg)
	require.NoError(t, err)
	op2, err := r.Instantiate("augment.synonym", cfg)
	require.NoError(t, err)

	batch := record.Batch{{Payload: map[string]any{"text": "the fast fox runs fast"}}}
	out1, err := op1.Apply(batch)
	require.NoError(t, err)
	out2, err := op2.Apply(batch)
	require.NoError(t, err)

	assert.Equal(t, out1[0].Payload.(map[string]any)["text"], out2[0].Payload.(map[string]any)["text"])
}

func TestSynonymLeavesNonStringFieldsUntouched(t *testing.T) {
	r := newReg()
	op, err := r.Instantiate("augment.synonym", map[string]any{
		"path": "payload.text",
		"synonyms": []any{
			map[string]any{"word": "fast", "replacements": []any{"quick"}},
		},
	})
	require.NoError(t, err)

	batch := record.Batch{{Payload: map[string]any{"text": 123}}}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	assert.Equal(t, 123, out[0].Payload.(map[string]any)["text"])
}

func TestNoiseRequiresIntensityInRange(t *testing.T) {
	r := newReg()
	_, err := r.Instantiate("augment.noise", map[string]any{"path": "payload.text", "intensity": 1.5})
	assert.Error(t, err)
}

func TestNoiseAtZeroIntensityIsIdentity(t *testing.T) {
	r := newReg()
	op, err := r.Instantiate("augment.noise", map[string]any{"path": "payload.text", "intensity": 0.0})
	require.NoError(t, err)

	batch := record.Batch{{Payload: map[string]any{"text": "Hello World 123"}}}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	assert.Equal(t, "Hello World 123", out[0].Payload.(map[string]any)["text"])
}

func TestNoiseIsDeterministicForSameSeed(t *testing.T) {
	r := newReg()
	cfg := map[string]any{"path": "payload.text", "intensity": 0.8, "seed": 7}
	op1, err := r.Instantiate("augment.noise", cfg)
	require.NoError(t, err)
	op2, err := r.Instantiate("augment.noise", cfg)
	require.NoError(t, err)

	batch := record.Batch{{Payload: map[string]any{"text": "Hello World 123"}}}
	out1, err := op1.Apply(batch)
	require.NoError(t, err)
	out2, err := op2.Apply(batch)
	require.NoError(t, err)

	assert.Equal(t, out1[0].Payload.(map[string]any)["text"], out2[0].Payload.(map[string]any)["text"])
}
