package pipeline

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/dunimd/zi/internal/operators/augment"
	"github.com/dunimd/zi/internal/operators/field"
	"github.com/dunimd/zi/internal/operators/filter"
	"github.com/dunimd/zi/internal/operators/lang"
	"github.com/dunimd/zi/internal/operators/limit"
	"github.com/dunimd/zi/internal/operators/llm"
	"github.com/dunimd/zi/internal/operators/merge"
	"github.com/dunimd/zi/internal/operators/metadata"
	"github.com/dunimd/zi/internal/operators/pii"
	"github.com/dunimd/zi/internal/operators/quality"
	"github.com/dunimd/zi/internal/operators/sample"
	"github.com/dunimd/zi/internal/operators/shuffle"
	"github.com/dunimd/zi/internal/operators/split"
	"github.com/dunimd/zi/internal/operators/token"
	"github.com/dunimd/zi/internal/operators/transform"

	"github.com/dunimd/zi/internal/dedup"
	"github.com/dunimd/zi/internal/registry"
	"github.com/dunimd/zi/internal/zierr"
)

// StepConfig is the JSON/YAML shape of one pipeline step. A step with no
// Type (or Type == "operator") is a single Operator node; the other Type
// values build the richer topologies Node supports.
type StepConfig struct {
	// Operator node (Type == "" or "operator"), also used for Merge's
	// merge-operator selection.
	Operator string `json:"operator,omitempty" yaml:"operator,omitempty"`
	Config   any    `json:"config,omitempty" yaml:"config,omitempty"`

	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Sequence
	Steps []StepConfig `json:"steps,omitempty" yaml:"steps,omitempty"`

	// Conditional
	Predicate *StepConfig  `json:"predicate,omitempty" yaml:"predicate,omitempty"`
	Then      []StepConfig `json:"then,omitempty" yaml:"then,omitempty"`
	Else      []StepConfig `json:"else,omitempty" yaml:"else,omitempty"`

	// Parallel / Merge
	Branches   [][]StepConfig `json:"branches,omitempty" yaml:"branches,omitempty"`
	NumWorkers int            `json:"num_workers,omitempty" yaml:"num_workers,omitempty"`
}

// Builder instantiates operators from configuration and assembles them into
// a Pipeline, the Go analog of ZiCPipelineBuilder.
type Builder struct {
	registry *registry.Registry
	merge    *merge.MultiRegistry
}

// NewBuilder returns an empty builder with no operators registered.
func NewBuilder() *Builder {
	return &Builder{registry: registry.New(), merge: merge.NewMultiRegistry()}
}

// WithDefaults returns a builder pre-loaded with every bundled Zi operator
// family.
func WithDefaults() *Builder {
	b := NewBuilder()
	b.registerDefaults()
	return b
}

func (b *Builder) registerDefaults() {
	filter.Register(b.registry)
	field.Register(b.registry)
	metadata.Register(b.registry)
	limit.Register(b.registry)
	lang.Register(b.registry)
	pii.Register(b.registry)
	dedup.Register(b.registry)
	quality.Register(b.registry)
	transform.Register(b.registry)
	augment.Register(b.registry)
	sample.Register(b.registry)
	shuffle.Register(b.registry)
	split.Register(b.registry)
	token.Register(b.registry)
	llm.Register(b.registry)
	merge.RegisterNoop(b.registry)
}

// Registry exposes the underlying single-batch operator registry, e.g. for
// registering plugin-provided operators.
func (b *Builder) Registry() *registry.Registry { return b.registry }

// MergeRegistry exposes the underlying multi-batch merge-operator registry.
func (b *Builder) MergeRegistry() *merge.MultiRegistry { return b.merge }

// Register adds or overwrites a single-batch operator factory.
func (b *Builder) Register(name string, factory registry.Factory) {
	b.registry.Register(name, factory)
}

// RegisterMerge adds or overwrites a multi-batch merge-operator factory.
func (b *Builder) RegisterMerge(name string, factory merge.MultiFactory) {
	b.merge.Register(name, factory)
}

// BuildFromConfig builds and validates a Pipeline from a parsed step list.
func (b *Builder) BuildFromConfig(steps []StepConfig) (*Pipeline, error) {
	root, err := b.buildSequence(steps)
	if err != nil {
		return nil, err
	}
	p := FromNode(root)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// BuildFromJSON parses data as a JSON array of steps and builds a Pipeline.
func (b *Builder) BuildFromJSON(data []byte) (*Pipeline, error) {
	var steps []StepConfig
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, zierr.Validation("invalid pipeline JSON: %s", err)
	}
	return b.BuildFromConfig(steps)
}

// BuildFromYAML parses data as a YAML sequence of steps and builds a
// Pipeline.
func (b *Builder) BuildFromYAML(data []byte) (*Pipeline, error) {
	var steps []StepConfig
	if err := yaml.Unmarshal(data, &steps); err != nil {
		return nil, zierr.Validation("invalid pipeline YAML: %s", err)
	}
	return b.BuildFromConfig(steps)
}

func (b *Builder) buildSequence(steps []StepConfig) (*Node, error) {
	if len(steps) == 0 {
		return nil, zierr.Validation("sequence node must contain at least one child node")
	}
	nodes := make([]*Node, 0, len(steps))
	for i, s := range steps {
		n, err := b.buildNode(s, i)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return &Node{Kind: KindSequence, Sequence: nodes}, nil
}

func (b *Builder) buildNode(s StepConfig, index int) (*Node, error) {
	switch s.Type {
	case "", "operator":
		if s.Operator == "" {
			return nil, zierr.Validation("pipeline step #%d missing string 'operator'", index)
		}
		op, err := b.registry.Instantiate(s.Operator, s.Config)
		if err != nil {
			return nil, zierr.Validation("pipeline step #%d (%s): %s", index, s.Operator, err)
		}
		return &Node{Kind: KindOperator, Op: op}, nil

	case "sequence":
		return b.buildSequence(s.Steps)

	case "conditional":
		if s.Predicate == nil {
			return nil, zierr.Validation("pipeline step #%d: conditional requires a 'predicate'", index)
		}
		if s.Predicate.Operator == "" {
			return nil, zierr.Validation("pipeline step #%d: conditional predicate must name an 'operator'", index)
		}
		predicate, err := b.registry.Instantiate(s.Predicate.Operator, s.Predicate.Config)
		if err != nil {
			return nil, zierr.Validation("pipeline step #%d predicate (%s): %s", index, s.Predicate.Operator, err)
		}
		thenNode, err := b.buildSequence(s.Then)
		if err != nil {
			return nil, err
		}
		elseNode, err := b.buildSequence(s.Else)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindConditional, Predicate: predicate, Then: thenNode, Else: elseNode}, nil

	case "parallel":
		if len(s.Branches) == 0 {
			return nil, zierr.Validation("pipeline step #%d: parallel node must contain at least one branch", index)
		}
		branches, err := b.buildBranches(s.Branches)
		if err != nil {
			return nil, err
		}
		numWorkers := s.NumWorkers
		if numWorkers <= 0 {
			numWorkers = len(branches)
		}
		return &Node{Kind: KindParallel, Branches: branches, NumWorkers: numWorkers}, nil

	case "merge":
		if s.Operator == "" {
			return nil, zierr.Validation("pipeline step #%d: merge node requires string 'operator'", index)
		}
		if len(s.Branches) == 0 {
			return nil, zierr.Validation("pipeline step #%d: merge node must contain at least one branch", index)
		}
		mergeOp, err := b.merge.Instantiate(s.Operator, s.Config)
		if err != nil {
			return nil, zierr.Validation("pipeline step #%d (%s): %s", index, s.Operator, err)
		}
		branches, err := b.buildBranches(s.Branches)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindMerge, MergeOp: mergeOp, MergeBranches: branches}, nil

	default:
		return nil, zierr.Validation("pipeline step #%d has unknown type %q", index, s.Type)
	}
}

func (b *Builder) buildBranches(branches [][]StepConfig) ([]*Node, error) {
	out := make([]*Node, 0, len(branches))
	for _, steps := range branches {
		n, err := b.buildSequence(steps)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
