package transform

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

func TestNormalizeTrimsCollapsesAndLowercases(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("transform.normalize", map[string]any{
		"path": "payload.text", "trim": true, "collapse_whitespace": true, "lowercase": true,
	})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{{Payload: map[string]any{"text": "  Hello   WORLD  "}}})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out[0].Payload.(map[string]any)["text"])
}

func TestNormalizeLeavesNonStringValuesUntouched(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("transform.normalize", map[string]any{"path": "payload.text", "trim": true})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{{Payload: map[string]any{"text": 42}}})
	require.NoError(t, err)
	assert.Equal(t, 42, out[0].Payload.(map[string]any)["text"])
}

func TestNormalizeRequiresPath(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("transform.normalize", map[string]any{})
	assert.Error(t, err)
}
