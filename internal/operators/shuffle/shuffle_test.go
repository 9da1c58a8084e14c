package shuffle

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

func seqBatch(n int) record.Batch {
	out := make(record.Batch, n)
	for i := range out {
		out[i] = record.Record{Payload: map[string]any{"i": i}}
	}
	return out
}

func TestDeterministicShuffleRequiresSeed(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("shuffle.deterministic", map[string]any{})
	assert.Error(t, err)
}

func TestDeterministicShuffleSameSeedSameOrder(t *testing.T) {
	r := newReg(t)
	op1, err := r.Instantiate("shuffle.deterministic", map[string]any{"seed": 7})
	require.NoError(t, err)
	op2, err := r.Instantiate("shuffle.deterministic", map[string]any{"seed": 7})
	require.NoError(t, err)

	batch := seqBatch(10)
	out1, err := registry.ApplyNamed(op1, batch)
	require.NoError(t, err)
	out2, err := registry.ApplyNamed(op2, batch)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
}

func TestFisherYatesPreservesRecordCount(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("shuffle.fisher_yates", map[string]any{})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, seqBatch(20))
	require.NoError(t, err)
	assert.Len(t, out, 20)
}

func TestBlockShuffleRequiresPositiveBlockSize(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("shuffle.block", map[string]any{"block_size": 0})
	assert.Error(t, err)
}

func TestBlockShufflePreservesRecordCount(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("shuffle.block", map[string]any{"block_size": 3, "seed": 1})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, seqBatch(10))
	require.NoError(t, err)
	assert.Len(t, out, 10)
}

func TestReservoirShufflePreservesRecordCount(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("shuffle.reservoir", map[string]any{"seed": 1})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, seqBatch(15))
	require.NoError(t, err)
	assert.Len(t, out, 15)
}

func TestStratifiedShuffleInterleavesGroups(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("shuffle.stratified", map[string]any{"path": "metadata.label", "seed": 1})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, record.Batch{
		{Payload: "x", Metadata: record.Metadata{"label": "a"}},
		{Payload: "x", Metadata: record.Metadata{"label": "a"}},
		{Payload: "x", Metadata: record.Metadata{"label": "b"}},
	})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestWindowShuffleRequiresPositiveWidth(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("shuffle.window", map[string]any{"width": 0})
	assert.Error(t, err)
}

func TestWindowShufflePreservesRecordCount(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("shuffle.window", map[string]any{"width": 4, "seed": 1})
	require.NoError(t, err)

	out, err := registry.ApplyNamed(op, seqBatch(10))
	require.NoError(t, err)
	assert.Len(t, out, 10)
}
