package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dunimd/zi/internal/metrics"
	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/version"
	"github.com/dunimd/zi/internal/zicache"
	"github.com/dunimd/zi/internal/zierr"
)

// Pipeline wraps a root Node with execution modes: plain, chunked,
// goroutine-parallel, cached, progress-reporting, and versioned.
type Pipeline struct {
	root            *Node
	instrumentation bool
	recorder        *Recorder

	cache    zicache.Backend
	cacheTTL int64 // seconds; 0 uses the backend's own default handling

	lastDuplicateCount int
	lastErrorCount     int
}

// New builds a pipeline that runs stages as a plain sequence, the
// flat-list constructor ZiCPipeline::new mirrors.
func New(stages []registry.Operator) *Pipeline {
	nodes := make([]*Node, len(stages))
	for i, op := range stages {
		nodes[i] = &Node{Kind: KindOperator, Op: op}
	}
	return FromNode(&Node{Kind: KindSequence, Sequence: nodes})
}

// FromNode builds a pipeline from an arbitrary root node, enabling
// conditional/parallel/merge topologies beyond a flat sequence.
func FromNode(root *Node) *Pipeline {
	return &Pipeline{root: root}
}

// Root returns the pipeline's root node.
func (p *Pipeline) Root() *Node { return p.root }

// WithInstrumentation toggles per-stage timing collection.
func (p *Pipeline) WithInstrumentation(enabled bool) *Pipeline {
	p.instrumentation = enabled
	if enabled {
		p.recorder = &Recorder{}
	} else {
		p.recorder = nil
	}
	return p
}

// WithCache attaches a cache backend (and default TTL in seconds) for
// RunCached.
func (p *Pipeline) WithCache(backend zicache.Backend, ttlSeconds int64) *Pipeline {
	p.cache = backend
	p.cacheTTL = ttlSeconds
	return p
}

// StageMetrics returns the stage timings collected by the most recent Run*
// call, if instrumentation is enabled.
func (p *Pipeline) StageMetrics() []StageMetric {
	return p.recorder.Snapshot()
}

// LastDuplicateCount returns the running duplicate_count total the executor
// derived for dedup.* stages during the most recent Run/RunChunked/
// RunParallel/RunCached/RunWithProgress call.
func (p *Pipeline) LastDuplicateCount() int {
	return p.lastDuplicateCount
}

// LastErrorCount returns the count of per-stage failures tolerated during
// the most recent RunWithProgress call. It is always zero after Run and
// its strict variants, which abort on the first error instead.
func (p *Pipeline) LastErrorCount() int {
	return p.lastErrorCount
}

// Run executes the pipeline once over batch.
func (p *Pipeline) Run(batch record.Batch) (record.Batch, error) {
	out, _, err := p.runInternal(batch)
	return out, err
}

// runInternal runs the pipeline and additionally returns the duplicate_count
// total the executor derives by diffing every dedup.* operator's
// input/output batch length, for RunWithVersion to fold into QualityMetrics.
func (p *Pipeline) runInternal(batch record.Batch) (record.Batch, int, error) {
	if p.instrumentation {
		p.recorder.Reset()
	}
	out, dup, err := p.root.ExecuteWithDuplicateCount(batch, p.recorder)
	p.lastDuplicateCount = dup
	p.lastErrorCount = 0
	return out, dup, err
}

// RunChunked splits batch into chunkSize-sized pieces and runs each through
// the pipeline independently, concatenating results in order.
func (p *Pipeline) RunChunked(batch record.Batch, chunkSize int) (record.Batch, error) {
	if chunkSize <= 0 {
		return nil, zierr.Validation("run_chunked requires a positive chunk_size")
	}
	var out record.Batch
	var totalDup int
	for idx := 0; idx < len(batch); idx += chunkSize {
		end := idx + chunkSize
		if end > len(batch) {
			end = len(batch)
		}
		result, dup, err := p.runInternal(batch[idx:end])
		if err != nil {
			return nil, err
		}
		totalDup += dup
		out = append(out, result...)
	}
	p.lastDuplicateCount = totalDup
	return out, nil
}

// ProgressFunc reports a completed stage's input/output record counts.
type ProgressFunc func(stageName string, inputRecords, outputRecords int)

// RunWithProgress runs the pipeline with instrumentation forced on for the
// duration of the call, tolerating per-stage operator failures instead of
// aborting the whole run: a failing stage's input batch passes through to
// the next stage unchanged and the failure is counted into LastErrorCount,
// per spec.md's tolerant-execution contract for this entry point only.
// Plain Run and its chunked/parallel/cached variants keep aborting on the
// first error.
func (p *Pipeline) RunWithProgress(batch record.Batch, progress ProgressFunc) (record.Batch, error) {
	wasInstrumented := p.instrumentation
	if !wasInstrumented {
		p.WithInstrumentation(true)
		defer p.WithInstrumentation(false)
	} else {
		p.recorder.Reset()
	}

	result, dup, errs, err := p.root.ExecuteTolerant(batch, p.recorder)
	p.lastDuplicateCount = dup
	p.lastErrorCount = errs
	if err != nil {
		return nil, err
	}
	if progress != nil {
		for _, m := range p.StageMetrics() {
			progress(m.StageName, m.InputRecords, m.OutputRecords)
		}
	}
	return result, nil
}

// RunParallel splits batch into numWorkers roughly-equal contiguous chunks
// and runs each chunk through the pipeline's shared root node concurrently
// via an errgroup, reassembling results in input order.
func (p *Pipeline) RunParallel(ctx context.Context, batch record.Batch, numWorkers int) (record.Batch, error) {
	if numWorkers <= 0 {
		return nil, zierr.Validation("parallel execution requires at least one worker")
	}
	if len(batch) <= 1 || numWorkers == 1 {
		return p.Run(batch)
	}

	chunkSize := (len(batch) + numWorkers - 1) / numWorkers
	var chunks []record.Batch
	for idx := 0; idx < len(batch); idx += chunkSize {
		end := idx + chunkSize
		if end > len(batch) {
			end = len(batch)
		}
		chunks = append(chunks, batch[idx:end])
	}
	if len(chunks) == 1 {
		return p.Run(chunks[0])
	}

	results := make([]record.Batch, len(chunks))
	var totalDup int64
	g, _ := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = zierr.Internal("parallel execution worker panicked")
				}
			}()
			out, dup, err := p.root.ExecuteWithDuplicateCount(chunk, p.recorder)
			if err != nil {
				return err
			}
			atomic.AddInt64(&totalDup, int64(dup))
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.lastDuplicateCount = int(atomic.LoadInt64(&totalDup))
	p.lastErrorCount = 0

	var merged record.Batch
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

// RunCached hashes batch's canonical JSON and checks p's cache backend
// before executing; a miss runs the pipeline and stores the result keyed by
// that hash. A pipeline without WithCache configured just runs uncached.
func (p *Pipeline) RunCached(ctx context.Context, batch record.Batch) (record.Batch, error) {
	if p.cache == nil {
		return p.Run(batch)
	}

	key, err := cacheKey(batch)
	if err != nil {
		return nil, err
	}

	if cached, ok, err := p.cache.Get(ctx, key); err == nil && ok {
		var out record.Batch
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
	}

	out, err := p.Run(batch)
	if err != nil {
		return nil, err
	}

	buf, err := json.Marshal(out)
	if err == nil {
		_ = p.cache.Set(ctx, key, buf, time.Duration(p.cacheTTL)*time.Second)
	}
	return out, nil
}

// RunWithMetrics runs the pipeline and computes QualityMetrics over the
// result, with DuplicateCount folded in from the dedup.* stages the
// executor ran.
func (p *Pipeline) RunWithMetrics(batch record.Batch) (record.Batch, metrics.QualityMetrics, error) {
	processed, err := p.Run(batch)
	if err != nil {
		return nil, metrics.QualityMetrics{}, err
	}
	m := metrics.Compute(processed)
	m.DuplicateCount = p.lastDuplicateCount
	return processed, m, nil
}

// RunWithVersion runs the pipeline, computes quality metrics and a data
// hash over the result, and records a version snapshot in store. When
// instrumentation is enabled, per-stage timing is folded into the version's
// metadata under "stage_metrics"/"stage_timing_ms".
func (p *Pipeline) RunWithVersion(batch record.Batch, store *version.Store, parent *string, extraMetadata map[string]any) (record.Batch, version.Version, error) {
	meta := map[string]any{}
	for k, v := range extraMetadata {
		meta[k] = v
	}

	processed, err := p.Run(batch)
	if err != nil {
		return nil, version.Version{}, err
	}

	if p.instrumentation {
		stageMetrics := p.StageMetrics()
		stageValues := make([]any, len(stageMetrics))
		durations := make([]float64, len(stageMetrics))
		for i, m := range stageMetrics {
			stageValues[i] = map[string]any{
				"stage":          m.StageName,
				"input":          m.InputRecords,
				"output":         m.OutputRecords,
				"duration_millis": float64(m.Duration.Microseconds()) / 1000.0,
			}
			durations[i] = float64(m.Duration.Microseconds()) / 1000.0
		}
		meta["stage_metrics"] = stageValues
		meta["stage_timing_ms"] = metrics.FromSlice(durations)
	}

	m := metrics.Compute(processed)
	m.DuplicateCount = p.lastDuplicateCount
	dataHash, err := version.ComputeDataHash(processed)
	if err != nil {
		return nil, version.Version{}, err
	}

	if _, ok := meta["stages"]; !ok {
		meta["stages"] = operatorNames(p.root)
	}
	if _, ok := meta["record_count"]; !ok {
		meta["record_count"] = len(processed)
	}

	triple := version.TripleHash{
		Data: dataHash,
		Code: version.ComputeCodeHash(operatorNames(p.root)),
	}

	v, err := store.Create(parent, meta, m, triple)
	if err != nil {
		return nil, version.Version{}, err
	}
	return processed, v, nil
}

func operatorNames(n *Node) []string {
	var out []string
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case KindOperator:
			out = append(out, n.Op.Name())
		case KindSequence:
			for _, c := range n.Sequence {
				walk(c)
			}
		case KindConditional:
			out = append(out, n.Predicate.Name())
			walk(n.Then)
			walk(n.Else)
		case KindParallel:
			for _, c := range n.Branches {
				walk(c)
			}
		case KindMerge:
			out = append(out, n.MergeOp.Name())
			for _, c := range n.MergeBranches {
				walk(c)
			}
		}
	}
	walk(n)
	return out
}

// Validate walks the node tree checking structural invariants (non-empty
// sequences/branches, positive worker counts, well-formed operator names)
// and rejecting any cycle reachable through shared *Node pointers.
func (p *Pipeline) Validate() error {
	return validateNode(p.root, map[*Node]bool{})
}

func validateNode(n *Node, visited map[*Node]bool) error {
	if n == nil {
		return zierr.Validation("pipeline contains a nil node")
	}
	if visited[n] {
		return zierr.Validation("pipeline contains a cycle in its topology")
	}
	visited[n] = true
	defer delete(visited, n)

	switch n.Kind {
	case KindOperator:
		if err := validateOperatorName(n.Op.Name()); err != nil {
			return err
		}
	case KindSequence:
		if len(n.Sequence) == 0 {
			return zierr.Validation("sequence node must contain at least one child node")
		}
		for _, c := range n.Sequence {
			if err := validateNode(c, visited); err != nil {
				return err
			}
		}
	case KindConditional:
		if err := validateOperatorName(n.Predicate.Name()); err != nil {
			return err
		}
		if err := validateNode(n.Then, visited); err != nil {
			return err
		}
		if err := validateNode(n.Else, visited); err != nil {
			return err
		}
	case KindParallel:
		if len(n.Branches) == 0 {
			return zierr.Validation("parallel node must contain at least one branch")
		}
		if n.NumWorkers <= 0 {
			return zierr.Validation("parallel node must have at least one worker")
		}
		for _, c := range n.Branches {
			if err := validateNode(c, visited); err != nil {
				return err
			}
		}
	case KindMerge:
		if len(n.MergeBranches) == 0 {
			return zierr.Validation("merge node must contain at least one branch")
		}
		if err := validateOperatorName(n.MergeOp.Name()); err != nil {
			return err
		}
		for _, c := range n.MergeBranches {
			if err := validateNode(c, visited); err != nil {
				return err
			}
		}
	default:
		return zierr.Internal("pipeline: unknown node kind %d", n.Kind)
	}
	return nil
}

func validateOperatorName(name string) error {
	if name == "" {
		return zierr.Validation("operator must have a non-empty name")
	}
	for _, c := range name {
		ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '.' || c == '_' || c == '-'
		if !ok {
			return zierr.Validation("operator name %q contains invalid characters", name)
		}
	}
	return nil
}

func cacheKey(batch record.Batch) (string, error) {
	hash, err := version.ComputeDataHash(batch)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("pipeline:%s:cached", hash.Hex()), nil
}
