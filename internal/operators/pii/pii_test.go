package pii

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

func TestRedactPlaceholderReplacesEmail(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("pii.redact", map[string]any{"path": "payload.text"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, textBatch("contact me at jane@example.com please"))
	require.NoError(t, err)
	assert.Contains(t, out[0].Payload.(map[string]any)["text"], "[REDACTED]")
	assert.NotContains(t, out[0].Payload.(map[string]any)["text"], "jane@example.com")
}

func TestRedactMaskKeepsPrefixSuffix(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("pii.redact", map[string]any{
		"path": "payload.text", "strategy": "mask", "prefix_keep": 1, "suffix_keep": 1,
	})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, textBatch("jane@example.com"))
	require.NoError(t, err)
	text := out[0].Payload.(map[string]any)["text"].(string)
	assert.True(t, len(text) > 0)
	assert.NotEqual(t, "jane@example.com", text)
}

func TestRedactAllowlistSkipsMatch(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("pii.redact", map[string]any{
		"path": "payload.text", "allowlist": []any{"jane@example.com"},
	})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, textBatch("jane@example.com is fine"))
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com is fine", out[0].Payload.(map[string]any)["text"])
}

func TestRedactStoresMatchesWhenConfigured(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("pii.redact", map[string]any{"path": "payload.text", "store_key": "pii_matches"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, textBatch("email jane@example.com here"))
	require.NoError(t, err)
	matches, ok := out[0].Metadata["pii_matches"].([]any)
	require.True(t, ok)
	assert.Len(t, matches, 1)
}

func TestRedactRequiresPath(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("pii.redact", map[string]any{})
	assert.Error(t, err)
}

func TestRedactRejectsUnknownStrategy(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("pii.redact", map[string]any{"path": "payload.text", "strategy": "nonsense"})
	assert.Error(t, err)
}
