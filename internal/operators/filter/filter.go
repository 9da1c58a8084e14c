// Package filter implements the filter.* operator family (spec.md §4.D):
// predicate operators that keep or drop records based on a field path's
// resolved value.
package filter

import (
	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
)

// Register adds every filter.* operator factory to r.
func Register(r *registry.Registry) {
	r.Register("filter.equals", newEqualsFactory(false))
	r.Register("filter.not_equals", newEqualsFactory(true))
	r.Register("filter.any", newAnyFactory())
	r.Register("filter.in", newInFactory(true))
	r.Register("filter.not_in", newInFactory(false))
	r.Register("filter.exists", newExistsFactory(true))
	r.Register("filter.not_exists", newExistsFactory(false))
	r.Register("filter.between", newBetweenFactory())
	r.Register("filter.less_than", newComparisonFactory(lessThan))
	r.Register("filter.greater_than", newComparisonFactory(greaterThan))
	r.Register("filter.range", newRangeFactory())
	r.Register("filter.is_null", newIsNullFactory())
	r.Register("filter.regex", newRegexFactory())
	r.Register("filter.starts_with", newStringMatchFactory(startsWith))
	r.Register("filter.ends_with", newStringMatchFactory(endsWith))
	r.Register("filter.contains", newStringMatchFactory(containsSubstr))
	r.Register("filter.contains_all", newContainsSetFactory(containsAll))
	r.Register("filter.contains_any", newContainsSetFactory(containsAny))
	r.Register("filter.contains_none", newContainsSetFactory(containsNone))
	r.Register("filter.array_contains", newArrayContainsFactory())
	r.Register("filter.length_range", newLengthRangeFactory())
	r.Register("filter.token_range", newTokenRangeFactory())
}

// predicateOperator applies a per-record boolean predicate, keeping
// matching records. It's the shared shape every filter.* operator uses.
type predicateOperator struct {
	name      string
	predicate func(record.Record) bool
}

func (o predicateOperator) Name() string { return o.name }

func (o predicateOperator) Apply(batch record.Batch) (record.Batch, error) {
	out := make(record.Batch, 0, len(batch))
	for _, r := range batch {
		if o.predicate(r) {
			out = append(out, r)
		}
	}
	return out, nil
}
