package lang

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

func TestDetectWritesEnglishForAsciiProse(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("lang.detect", map[string]any{"path": "payload.text"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, textBatch("the quick brown fox jumps over the lazy dog"))
	require.NoError(t, err)
	assert.Equal(t, "en", out[0].Metadata["language"])
}

func TestDetectWritesChineseForHanScript(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("lang.detect", map[string]any{"path": "payload.text"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, textBatch("这是一个测试句子"))
	require.NoError(t, err)
	assert.Equal(t, "zh", out[0].Metadata["language"])
}

func TestDetectUsesCustomTargetKey(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("lang.detect", map[string]any{"path": "payload.text", "target_key": "lang_code"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, textBatch("hello there"))
	require.NoError(t, err)
	_, ok := out[0].Metadata["lang_code"]
	assert.True(t, ok)
}

func TestDetectRequiresPath(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("lang.detect", map[string]any{})
	assert.Error(t, err)
}

func TestConfidenceIsHighForMonoscriptText(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("lang.confidence", map[string]any{"path": "payload.text"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, textBatch("only latin letters here"))
	require.NoError(t, err)
	conf := out[0].Metadata["language_confidence"].(float64)
	assert.Equal(t, 1.0, conf)
}

func TestConfidenceSkipsNonStringPayload(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("lang.confidence", map[string]any{"path": "payload.text"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{{Payload: map[string]any{"text": 42}}})
	require.NoError(t, err)
	assert.Nil(t, out[0].Metadata)
}
