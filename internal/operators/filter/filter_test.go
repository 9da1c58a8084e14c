package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
)

func strp(s string) *string { return &s }

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	Register(r)
	return r
}

func TestFilterEquals(t *testing.T) {
	r := newRegistry(t)
	op, err := r.Instantiate("filter.equals", map[string]any{"path": "payload.lang", "value": "en"})
	require.NoError(t, err)

	batch := record.Batch{
		record.New(strp("1"), map[string]any{"lang": "en"}),
		record.New(strp("2"), map[string]any{"lang": "fr"}),
		record.New(strp("3"), map[string]any{}),
	}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1", *out[0].ID)
}

func TestFilterNotEqualsMissingPathKept(t *testing.T) {
	r := newRegistry(t)
	op, err := r.Instantiate("filter.not_equals", map[string]any{"path": "payload.lang", "value": "en"})
	require.NoError(t, err)

	batch := record.Batch{record.New(nil, map[string]any{})}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestFilterBetweenValidatesMinMax(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Instantiate("filter.between", map[string]any{"path": "payload.x", "min": 5, "max": 1})
	require.Error(t, err)
}

func TestFilterBetween(t *testing.T) {
	r := newRegistry(t)
	op, err := r.Instantiate("filter.between", map[string]any{"path": "payload.score", "min": 0.2, "max": 0.8})
	require.NoError(t, err)

	batch := record.Batch{
		record.New(nil, map[string]any{"score": 0.5}),
		record.New(nil, map[string]any{"score": 0.9}),
		record.New(nil, map[string]any{"score": "not a number"}),
	}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestFilterIsNull(t *testing.T) {
	r := newRegistry(t)
	op, err := r.Instantiate("filter.is_null", map[string]any{"path": "payload.x", "include_missing": true})
	require.NoError(t, err)

	batch := record.Batch{
		record.New(nil, map[string]any{"x": nil}),
		record.New(nil, map[string]any{}),
		record.New(nil, map[string]any{"x": "set"}),
	}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestFilterRegex(t *testing.T) {
	r := newRegistry(t)
	op, err := r.Instantiate("filter.regex", map[string]any{"path": "payload.text", "pattern": "^hello"})
	require.NoError(t, err)

	batch := record.Batch{
		record.New(nil, map[string]any{"text": "hello world"}),
		record.New(nil, map[string]any{"text": "goodbye"}),
	}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestFilterUnknownOperator(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Instantiate("filter.nope", nil)
	require.Error(t, err)
}
