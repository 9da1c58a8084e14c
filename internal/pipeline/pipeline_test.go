package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/version"
	"github.com/dunimd/zi/internal/zicache"
)

func textBatch(texts ...string) record.Batch {
	batch := make(record.Batch, len(texts))
	for i, t := range texts {
		batch[i] = record.Record{Payload: map[string]any{"text": t}}
	}
	return batch
}

func TestRunFlatSequenceFromConfig(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromConfig([]StepConfig{
		{Operator: "filter.exists", Config: map[string]any{"path": "payload.text"}},
		{Operator: "limit", Config: map[string]any{"count": 2}},
	})
	require.NoError(t, err)

	out, err := p.Run(textBatch("a", "b", "c"))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestBuildFromConfigUnknownOperator(t *testing.T) {
	b := WithDefaults()
	_, err := b.BuildFromConfig([]StepConfig{{Operator: "nonexistent.thing"}})
	assert.Error(t, err)
}

func TestBuildFromConfigMissingOperatorName(t *testing.T) {
	b := WithDefaults()
	_, err := b.BuildFromConfig([]StepConfig{{Config: map[string]any{}}})
	assert.Error(t, err)
}

func TestBuildFromJSON(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromJSON([]byte(`[{"operator":"limit","config":{"count":1}}]`))
	require.NoError(t, err)
	out, err := p.Run(textBatch("a", "b"))
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestConditionalBranchesOnPredicate(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromConfig([]StepConfig{
		{
			Type: "conditional",
			Predicate: &StepConfig{
				Operator: "filter.equals",
				Config:   map[string]any{"path": "payload.text", "value": "needle"},
			},
			Then: []StepConfig{{Operator: "limit", Config: map[string]any{"count": 1}}},
			Else: []StepConfig{{Operator: "filter.exists", Config: map[string]any{"path": "payload.missing"}}},
		},
	})
	require.NoError(t, err)

	hit, err := p.Run(textBatch("needle", "needle"))
	require.NoError(t, err)
	assert.Len(t, hit, 1)

	miss, err := p.Run(textBatch("other"))
	require.NoError(t, err)
	assert.Len(t, miss, 0)
}

func TestParallelConcatenatesBranchOutputs(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromConfig([]StepConfig{
		{
			Type: "parallel",
			Branches: [][]StepConfig{
				{{Operator: "limit", Config: map[string]any{"count": 1}}},
				{{Operator: "limit", Config: map[string]any{"count": 2}}},
			},
		},
	})
	require.NoError(t, err)

	out, err := p.Run(textBatch("a", "b", "c"))
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestMergeNodeConcatenatesBranches(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromConfig([]StepConfig{
		{
			Type:     "merge",
			Operator: "merge.concat",
			Config:   map[string]any{"alignment": "loose"},
			Branches: [][]StepConfig{
				{{Operator: "limit", Config: map[string]any{"count": 1}}},
				{{Operator: "limit", Config: map[string]any{"count": 1}}},
			},
		},
	})
	require.NoError(t, err)

	out, err := p.Run(textBatch("a", "b"))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestValidateRejectsEmptySequence(t *testing.T) {
	p := FromNode(&Node{Kind: KindSequence})
	assert.Error(t, p.Validate())
}

func TestValidateRejectsCycle(t *testing.T) {
	a := &Node{Kind: KindSequence}
	a.Sequence = []*Node{a}
	p := FromNode(a)
	assert.Error(t, p.Validate())
}

func TestRunChunkedPreservesOrder(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromConfig([]StepConfig{{Operator: "filter.exists", Config: map[string]any{"path": "payload.text"}}})
	require.NoError(t, err)

	out, err := p.RunChunked(textBatch("a", "b", "c", "d", "e"), 2)
	require.NoError(t, err)
	require.Len(t, out, 5)
	assert.Equal(t, "a", out[0].Payload.(map[string]any)["text"])
	assert.Equal(t, "e", out[4].Payload.(map[string]any)["text"])
}

func TestRunParallelReassemblesInOrder(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromConfig([]StepConfig{{Operator: "filter.exists", Config: map[string]any{"path": "payload.text"}}})
	require.NoError(t, err)

	out, err := p.RunParallel(context.Background(), textBatch("a", "b", "c", "d"), 2)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, "a", out[0].Payload.(map[string]any)["text"])
	assert.Equal(t, "d", out[3].Payload.(map[string]any)["text"])
}

func TestRunCachedReturnsCachedResultOnHit(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromConfig([]StepConfig{{Operator: "limit", Config: map[string]any{"count": 1}}})
	require.NoError(t, err)
	p.WithCache(zicache.NewMemoryBackend(0), 60)

	batch := textBatch("a", "b")
	first, err := p.RunCached(context.Background(), batch)
	require.NoError(t, err)
	second, err := p.RunCached(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestInstrumentationCollectsStageMetrics(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromConfig([]StepConfig{
		{Operator: "filter.exists", Config: map[string]any{"path": "payload.text"}},
		{Operator: "limit", Config: map[string]any{"count": 1}},
	})
	require.NoError(t, err)
	p.WithInstrumentation(true)

	_, err = p.Run(textBatch("a", "b"))
	require.NoError(t, err)
	stages := p.StageMetrics()
	require.Len(t, stages, 2)
	assert.Equal(t, "filter.exists", stages[0].StageName)
	assert.Equal(t, "limit", stages[1].StageName)
}

func TestRunWithVersionRecordsSnapshot(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromConfig([]StepConfig{{Operator: "limit", Config: map[string]any{"count": 1}}})
	require.NoError(t, err)

	store := version.NewStore()
	_, v, err := p.RunWithVersion(textBatch("a", "b"), store, nil, map[string]any{"note": "first run"})
	require.NoError(t, err)
	assert.Equal(t, "v0000000000000001", v.ID)
	assert.Equal(t, 1, v.Metrics.TotalRecords)

	_, ok := store.Get(v.ID)
	assert.True(t, ok)
}

func TestRunWithProgressReportsStages(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromConfig([]StepConfig{{Operator: "limit", Config: map[string]any{"count": 1}}})
	require.NoError(t, err)

	var seen []string
	_, err = p.RunWithProgress(textBatch("a", "b"), func(stage string, in, out int) {
		seen = append(seen, stage)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"limit"}, seen)
}

func TestWithCacheAcceptsMemoryBackendTTL(t *testing.T) {
	p := New(nil)
	p.WithCache(zicache.NewMemoryBackend(1), int64(time.Minute.Seconds()))
	assert.NotNil(t, p)
}

func TestRunWithMetricsPopulatesDuplicateCount(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromConfig([]StepConfig{
		{Operator: "dedup.tfidf", Config: map[string]any{"path": "payload.text", "threshold": 0.9}},
	})
	require.NoError(t, err)

	_, m, err := p.RunWithMetrics(textBatch("alpha beta gamma", "alpha beta gamma", "unrelated text"))
	require.NoError(t, err)
	assert.Equal(t, 1, m.DuplicateCount)
	assert.Equal(t, 0, m.ErrorCount)
}

func TestRunChunkedAccumulatesDuplicateCountAcrossChunks(t *testing.T) {
	b := WithDefaults()
	p, err := b.BuildFromConfig([]StepConfig{
		{Operator: "dedup.tfidf", Config: map[string]any{"path": "payload.text", "threshold": 0.9}},
	})
	require.NoError(t, err)

	_, err = p.RunChunked(textBatch("alpha beta gamma", "alpha beta gamma", "unrelated text", "unrelated text"), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, p.LastDuplicateCount())
}

type failOperator struct{}

func (failOperator) Name() string { return "test.fail" }
func (failOperator) Apply(batch record.Batch) (record.Batch, error) {
	return nil, assert.AnError
}

func TestRunWithProgressCountsToleratedFailures(t *testing.T) {
	b := WithDefaults()
	b.Register("test.fail", func(config any) (registry.Operator, error) {
		return failOperator{}, nil
	})
	p, err := b.BuildFromConfig([]StepConfig{
		{Operator: "test.fail"},
		{Operator: "limit", Config: map[string]any{"count": 1}},
	})
	require.NoError(t, err)

	out, err := p.RunWithProgress(textBatch("a", "b"), nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 1, p.LastErrorCount())
}

type panicOperator struct{}

func (panicOperator) Name() string { return "test.panic" }
func (panicOperator) Apply(batch record.Batch) (record.Batch, error) {
	panic("boom")
}

func TestRunParallelRecoversWorkerPanic(t *testing.T) {
	p := FromNode(&Node{
		Kind: KindParallel,
		Branches: []*Node{
			{Kind: KindOperator, Op: panicOperator{}},
			{Kind: KindOperator, Op: panicOperator{}},
		},
	})

	out, err := p.RunParallel(context.Background(), textBatch("a", "b", "c", "d"), 2)
	assert.Nil(t, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parallel execution worker panicked")
}

func TestNodeExecuteRecoversBranchPanic(t *testing.T) {
	n := &Node{
		Kind: KindParallel,
		Branches: []*Node{
			{Kind: KindOperator, Op: panicOperator{}},
			{Kind: KindOperator, Op: panicOperator{}},
		},
	}

	out, err := n.Execute(textBatch("a", "b"))
	assert.Nil(t, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parallel execution worker panicked")
}
