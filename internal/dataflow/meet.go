package dataflow

import "optopt/internal/cfg"

// ReachabilityGate is the gate used by dominators and available
// expressions: only merge incoming values from neighbors whose
// entry-reachability matches the current block's, so unreachable
// predecessors don't pollute analyses of reachable code (and vice
// versa).
func ReachabilityGate(b, neighbor *cfg.Block) bool {
	return neighbor.EntryReachable == b.EntryReachable
}

// UnionMeet builds the "union-over-power-set" (any-path) meet: the
// gate always passes (handled by the caller passing a nil Gate), and
// merge is set-union over every gated neighbor output.
// empty is the identity element (the empty set for the domain D).
func UnionMeet(empty Value, union func(a, b Value) Value) func([]Value) Value {
	return func(gated []Value) Value {
		acc := empty
		for _, v := range gated {
			acc = union(acc, v)
		}
		return acc
	}
}

// IntersectionMeet builds the "intersection-over-power-set" (all-paths)
// meet: merge by set-intersection over gated neighbors; when there are
// no gated neighbors, the result is noBoundary, the value the caller
// passes in (both current callers pass the empty set).
func IntersectionMeet(noBoundary Value, intersect func(a, b Value) Value) func([]Value) Value {
	return func(gated []Value) Value {
		if len(gated) == 0 {
			return noBoundary
		}
		acc := gated[0]
		for _, v := range gated[1:] {
			acc = intersect(acc, v)
		}
		return acc
	}
}
