package field

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

func payloadBatch(m map[string]any) record.Batch {
	return record.Batch{{Payload: m}}
}

func TestSelectKeepsOnlyNamedKeys(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("field.select", map[string]any{"keys": []any{"a"}})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, payloadBatch(map[string]any{"a": 1, "b": 2}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1}, out[0].Payload)
}

func TestSelectExcludeDropsNamedKeys(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("field.select", map[string]any{"keys": []any{"a"}, "exclude": true})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, payloadBatch(map[string]any{"a": 1, "b": 2}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": 2}, out[0].Payload)
}

func TestSelectRequiresNonEmptyKeys(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("field.select", map[string]any{"keys": []any{}})
	assert.Error(t, err)
}

func TestRenameMapsKeys(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("field.rename", map[string]any{"mapping": map[string]any{"a": "z"}})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, payloadBatch(map[string]any{"a": 1, "b": 2}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"z": 1, "b": 2}, out[0].Payload)
}

func TestDropRemovesNamedKeys(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("field.drop", map[string]any{"keys": []any{"a"}})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, payloadBatch(map[string]any{"a": 1, "b": 2}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": 2}, out[0].Payload)
}

func TestCopyLeavesSourceInPlace(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("field.copy", map[string]any{"source": "payload.a", "target": "payload.b"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, payloadBatch(map[string]any{"a": 1}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 1}, out[0].Payload)
}

func TestMoveClearsSource(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("field.move", map[string]any{"source": "payload.a", "target": "payload.b"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, payloadBatch(map[string]any{"a": 1}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": 1}, out[0].Payload)
}

func TestFlattenJoinsWithSeparator(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("field.flatten", map[string]any{"key": "nested"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, payloadBatch(map[string]any{
		"nested": map[string]any{"x": 1},
		"top":    "keep",
	}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"top": "keep", "nested_x": 1}, out[0].Payload)
}

func TestDefaultOnlyFillsWhenMissing(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("field.default", map[string]any{"path": "payload.a", "value": "fallback"})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, payloadBatch(map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, "fallback", out[0].Payload.(map[string]any)["a"])

	out, err = registry.ApplyNamed(op, payloadBatch(map[string]any{"a": "present"}))
	require.NoError(t, err)
	assert.Equal(t, "present", out[0].Payload.(map[string]any)["a"])
}

func TestRequireDropsRecordsMissingAnyPath(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("field.require", map[string]any{"paths": []any{"payload.a"}})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{
		{Payload: map[string]any{"a": 1}},
		{Payload: map[string]any{"b": 2}},
	})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
