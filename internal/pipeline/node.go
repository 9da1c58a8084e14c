// Package pipeline implements spec.md §4.F/§4.G: the pipeline node tree
// (operator/sequence/conditional/parallel/merge topologies), its executor,
// and the config-driven builder, grounded on
// _examples/original_source/src/pipeline.rs's ZiCPipelineNode/ZiCPipeline.
package pipeline

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dunimd/zi/internal/operators/merge"
	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// Kind discriminates the variants of Node.
type Kind int

const (
	KindOperator Kind = iota
	KindSequence
	KindConditional
	KindParallel
	KindMerge
)

// Node is one stage of a pipeline topology. Exactly the fields relevant to
// Kind are populated; the rest are zero.
type Node struct {
	Kind Kind

	// KindOperator
	Op registry.Operator

	// KindSequence
	Sequence []*Node

	// KindConditional: predicate runs against a clone of the incoming
	// batch; if it returns any record, Then executes against the original
	// batch, otherwise Else does.
	Predicate registry.Operator
	Then      *Node
	Else      *Node

	// KindParallel: every branch executes against its own clone of the
	// incoming batch; results concatenate in branch order.
	Branches   []*Node
	NumWorkers int

	// KindMerge: every branch executes against its own clone of the
	// incoming batch, same as Parallel, but the branch outputs are folded
	// into one batch by MergeOp instead of concatenated.
	MergeOp       merge.MultiOperator
	MergeBranches []*Node
}

// StageMetric records one executed operator/predicate stage, mirroring
// ZiCPipelineStageMetrics.
type StageMetric struct {
	StageName     string
	InputRecords  int
	OutputRecords int
	Duration      time.Duration
}

// Recorder accumulates StageMetric entries under a mutex. A nil *Recorder is
// valid and a no-op, so instrumentation can be toggled without branching at
// every call site.
type Recorder struct {
	mu      sync.Mutex
	entries []StageMetric
}

func (r *Recorder) record(name string, before, after int, d time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, StageMetric{StageName: name, InputRecords: before, OutputRecords: after, Duration: d})
}

// Snapshot returns a copy of the accumulated stage metrics.
func (r *Recorder) Snapshot() []StageMetric {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StageMetric, len(r.entries))
	copy(out, r.entries)
	return out
}

// Reset clears accumulated stage metrics.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}

// Execute runs the node against batch without recording stage timings.
func (n *Node) Execute(batch record.Batch) (record.Batch, error) {
	var dup int64
	return n.execute(batch, nil, &dup, nil)
}

// ExecuteInstrumented runs the node, recording every Operator/predicate
// stage into rec.
func (n *Node) ExecuteInstrumented(batch record.Batch, rec *Recorder) (record.Batch, error) {
	var dup int64
	return n.execute(batch, rec, &dup, nil)
}

// ExecuteWithDuplicateCount runs the node like Execute, additionally
// returning the running duplicate_count total the executor derives by
// diffing every dedup.* operator's input/output batch length.
func (n *Node) ExecuteWithDuplicateCount(batch record.Batch, rec *Recorder) (record.Batch, int, error) {
	var dup int64
	out, err := n.execute(batch, rec, &dup, nil)
	return out, int(atomic.LoadInt64(&dup)), err
}

// ExecuteTolerant runs the node like ExecuteWithDuplicateCount, except an
// Operator or Conditional-predicate failure is recovered rather than
// aborting the run: the failing stage is counted and its input batch passed
// through unchanged to the next stage. Used only by RunWithProgress, per
// spec.md's run_with_progress tolerant-execution contract; Run/RunChunked/
// RunParallel/RunCached keep aborting on first error.
func (n *Node) ExecuteTolerant(batch record.Batch, rec *Recorder) (record.Batch, int, int, error) {
	var dup, errs int64
	out, err := n.execute(batch, rec, &dup, &errs)
	return out, int(atomic.LoadInt64(&dup)), int(atomic.LoadInt64(&errs)), err
}

func (n *Node) execute(batch record.Batch, rec *Recorder, dupTotal, errTotal *int64) (record.Batch, error) {
	switch n.Kind {
	case KindOperator:
		before := len(batch)
		start := time.Now()
		result, err := registry.ApplyNamed(n.Op, batch)
		if err != nil {
			if errTotal != nil {
				atomic.AddInt64(errTotal, 1)
				rec.record(n.Op.Name(), before, before, time.Since(start))
				return batch, nil
			}
			return nil, err
		}
		rec.record(n.Op.Name(), before, len(result), time.Since(start))
		if strings.HasPrefix(n.Op.Name(), "dedup.") && before > len(result) {
			atomic.AddInt64(dupTotal, int64(before-len(result)))
		}
		return result, nil

	case KindSequence:
		result := batch
		for _, child := range n.Sequence {
			var err error
			result, err = child.execute(result, rec, dupTotal, errTotal)
			if err != nil {
				return nil, err
			}
		}
		return result, nil

	case KindConditional:
		before := len(batch)
		start := time.Now()
		predResult, err := registry.ApplyNamed(n.Predicate, record.CloneBatch(batch))
		if err != nil {
			if errTotal != nil {
				atomic.AddInt64(errTotal, 1)
				rec.record(n.Predicate.Name(), before, 0, time.Since(start))
				return n.Else.execute(batch, rec, dupTotal, errTotal)
			}
			return nil, err
		}
		rec.record(n.Predicate.Name(), before, len(predResult), time.Since(start))
		if len(predResult) > 0 {
			return n.Then.execute(batch, rec, dupTotal, errTotal)
		}
		return n.Else.execute(batch, rec, dupTotal, errTotal)

	case KindParallel:
		if len(n.Branches) == 0 {
			return batch, nil
		}
		if len(n.Branches) == 1 {
			return n.Branches[0].execute(batch, rec, dupTotal, errTotal)
		}
		results := make([]record.Batch, len(n.Branches))
		if err := runBranches(n.Branches, batch, rec, dupTotal, errTotal, results); err != nil {
			return nil, err
		}
		var merged record.Batch
		for _, r := range results {
			merged = append(merged, r...)
		}
		return merged, nil

	case KindMerge:
		if len(n.MergeBranches) == 0 {
			return batch, nil
		}
		results := make([]record.Batch, len(n.MergeBranches))
		if err := runBranches(n.MergeBranches, batch, rec, dupTotal, errTotal, results); err != nil {
			return nil, err
		}
		return n.MergeOp.Merge(results)

	default:
		return nil, zierr.Internal("pipeline: unknown node kind %d", n.Kind)
	}
}

// runBranches executes every branch against its own clone of batch
// concurrently, writing branch i's output into results[i].
func runBranches(branches []*Node, batch record.Batch, rec *Recorder, dupTotal, errTotal *int64, results []record.Batch) error {
	var wg sync.WaitGroup
	errs := make([]error, len(branches))
	for i, branch := range branches {
		wg.Add(1)
		go func(i int, branch *Node) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					errs[i] = zierr.Internal("parallel execution worker panicked")
				}
			}()
			out, err := branch.execute(record.CloneBatch(batch), rec, dupTotal, errTotal)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = out
		}(i, branch)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
