package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
)

func strPtr(s string) *string { return &s }

func newSingleRegistry() *registry.Registry {
	r := registry.New()
	RegisterNoop(r)
	return r
}

func TestConcatLooseJustAppends(t *testing.T) {
	m := NewMultiRegistry()
	op, err := m.Instantiate("merge.concat", map[string]any{"alignment": "loose"})
	require.NoError(t, err)

	out, err := op.Merge([]record.Batch{
		{{Payload: map[string]any{"a": 1}}},
		{{Payload: map[string]any{"b": 2}}},
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestConcatStrictRejectsMismatchedKeys(t *testing.T) {
	m := NewMultiRegistry()
	op, err := m.Instantiate("merge.concat", map[string]any{"alignment": "strict"})
	require.NoError(t, err)

	_, err = op.Merge([]record.Batch{
		{{Payload: map[string]any{"a": 1}}},
		{{Payload: map[string]any{"b": 2}}},
	})
	assert.Error(t, err)
}

func TestConcatAlignFillsMissingKeysWithNil(t *testing.T) {
	m := NewMultiRegistry()
	op, err := m.Instantiate("merge.concat", map[string]any{"alignment": "align"})
	require.NoError(t, err)

	out, err := op.Merge([]record.Batch{
		{{Payload: map[string]any{"a": 1}}},
		{{Payload: map[string]any{"b": 2}}},
	})
	require.NoError(t, err)
	p0 := out[0].Payload.(map[string]any)
	assert.Equal(t, 1, p0["a"])
	assert.Nil(t, p0["b"])
}

func TestBatchMergesByIDWithLastWins(t *testing.T) {
	m := NewMultiRegistry()
	op, err := m.Instantiate("merge.batch", map[string]any{"conflict_strategy": "last"})
	require.NoError(t, err)

	out, err := op.Merge([]record.Batch{
		{{ID: strPtr("1"), Payload: map[string]any{"v": "first"}}},
		{{ID: strPtr("1"), Payload: map[string]any{"v": "second"}}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "second", out[0].Payload.(map[string]any)["v"])
}

func TestBatchErrorStrategyRejectsConflict(t *testing.T) {
	m := NewMultiRegistry()
	op, err := m.Instantiate("merge.batch", map[string]any{"conflict_strategy": "error"})
	require.NoError(t, err)

	_, err = op.Merge([]record.Batch{
		{{ID: strPtr("1"), Payload: map[string]any{"v": "first"}}},
		{{ID: strPtr("1"), Payload: map[string]any{"v": "second"}}},
	})
	assert.Error(t, err)
}

func TestUnionDeduplicatesAcrossBatches(t *testing.T) {
	m := NewMultiRegistry()
	op, err := m.Instantiate("merge.union", map[string]any{})
	require.NoError(t, err)

	out, err := op.Merge([]record.Batch{
		{{ID: strPtr("1"), Payload: "x"}},
		{{ID: strPtr("1"), Payload: "x"}, {ID: strPtr("2"), Payload: "y"}},
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestIntersectKeepsOnlySharedRecords(t *testing.T) {
	m := NewMultiRegistry()
	op, err := m.Instantiate("merge.intersect", map[string]any{})
	require.NoError(t, err)

	out, err := op.Merge([]record.Batch{
		{{ID: strPtr("1"), Payload: "x"}, {ID: strPtr("2"), Payload: "y"}},
		{{ID: strPtr("1"), Payload: "x"}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1", *out[0].ID)
}

func TestDifferenceExcludesOtherBatches(t *testing.T) {
	m := NewMultiRegistry()
	op, err := m.Instantiate("merge.difference", map[string]any{})
	require.NoError(t, err)

	out, err := op.Merge([]record.Batch{
		{{ID: strPtr("1"), Payload: "x"}, {ID: strPtr("2"), Payload: "y"}},
		{{ID: strPtr("1"), Payload: "x"}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "2", *out[0].ID)
}

func TestZipTransposesFieldsAcrossBatches(t *testing.T) {
	m := NewMultiRegistry()
	op, err := m.Instantiate("merge.zip", map[string]any{"fields": []any{"payload.text"}})
	require.NoError(t, err)

	out, err := op.Merge([]record.Batch{
		{{Payload: map[string]any{"text": "a"}}},
		{{Payload: map[string]any{"text": "b"}}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	arr := out[0].Payload.(map[string]any)["text"].([]any)
	assert.Equal(t, []any{"a", "b"}, arr)
}

func TestZipRequiresNonEmptyFields(t *testing.T) {
	m := NewMultiRegistry()
	_, err := m.Instantiate("merge.zip", map[string]any{})
	assert.Error(t, err)
}

func TestRegisterNoopResolvesMergeNamesAsPassthrough(t *testing.T) {
	r := newSingleRegistry()
	op, err := r.Instantiate("merge.concat", map[string]any{})
	require.NoError(t, err)

	out, err := op.Apply(record.Batch{{Payload: "x"}})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
