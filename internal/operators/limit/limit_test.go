package limit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
)

func batchOf(n int) record.Batch {
	out := make(record.Batch, n)
	for i := range out {
		out[i] = record.Record{Payload: map[string]any{"i": i}}
	}
	return out
}

func TestLimitTruncatesToCount(t *testing.T) {
	r := registry.New()
	Register(r)
	op, err := r.Instantiate("limit", map[string]any{"count": 2})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, batchOf(5))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestLimitLeavesShorterBatchUntouched(t *testing.T) {
	r := registry.New()
	Register(r)
	op, err := r.Instantiate("limit", map[string]any{"count": 10})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, batchOf(3))
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestLimitRejectsNegativeCount(t *testing.T) {
	r := registry.New()
	Register(r)
	_, err := r.Instantiate("limit", map[string]any{"count": -1})
	assert.Error(t, err)
}
