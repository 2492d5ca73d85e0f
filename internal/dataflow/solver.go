// Package dataflow implements the generic iterative fixed-point solver:
// a driver parameterized by direction, domain, meet,
// transfer and initialization, reused by every analysis in
// internal/analysis.
package dataflow

import "optopt/internal/cfg"

// Value is a dataflow domain value. Implementations are expected to be
// immutable (transfer/meet return new values rather than mutating
// existing ones) so the solver can safely compare old vs. new output
// by Equal without aliasing surprises.
type Value interface {
	Equal(other Value) bool
}

// Problem bundles the callbacks that specialize the generic solver to
// one analysis.
type Problem struct {
	// Forward selects direction: true for forward analyses (reaching
	// defs, available expressions, dominators), false for backward
	// (live uses).
	Forward bool

	// Gate decides whether neighbor's outgoing value participates in
	// b's incoming meet (the reachability gate). nil means every
	// neighbor always participates.
	Gate func(b, neighbor *cfg.Block) bool

	// Meet combines the gated neighbor outputs into b's merged
	// incoming value.
	Meet func(gated []Value) Value

	// Transfer computes b's outgoing value from its merged incoming
	// value.
	Transfer func(b *cfg.Block, in Value) Value

	// Init seeds every block's initial outgoing value (boundary
	// conditions live here).
	Init func(g *cfg.CFG) map[*cfg.Block]Value

	// Finalize, if non-nil, runs once per block after the fixed point
	// is reached.
	Finalize func(b *cfg.Block, out Value)
}

// Result holds the solved IN/OUT maps for every block.
type Result struct {
	In  map[*cfg.Block]Value
	Out map[*cfg.Block]Value
}

// Solve runs p to a fixed point over g.
func Solve(g *cfg.CFG, p Problem) Result {
	all := g.AllBlocks()
	order := all
	if !p.Forward {
		order = reversed(all)
	}

	out := p.Init(g)
	in := make(map[*cfg.Block]Value, len(all))

	changed := true
	for changed {
		changed = false
		for _, b := range order {
			neighbors := neighborsOf(b, p.Forward)
			var gated []Value
			for _, nb := range neighbors {
				if p.Gate == nil || p.Gate(b, nb) {
					gated = append(gated, out[nb])
				}
			}
			merged := p.Meet(gated)
			in[b] = merged

			oldOut := out[b]
			newOut := p.Transfer(b, merged)
			if oldOut == nil || !oldOut.Equal(newOut) {
				changed = true
			}
			out[b] = newOut
		}
	}

	if p.Finalize != nil {
		for _, b := range all {
			p.Finalize(b, out[b])
		}
	}

	return Result{In: in, Out: out}
}

func neighborsOf(b *cfg.Block, forward bool) []*cfg.Block {
	if forward {
		return b.Preds
	}
	return b.Succs
}

func reversed(blocks []*cfg.Block) []*cfg.Block {
	out := make([]*cfg.Block, len(blocks))
	for i, b := range blocks {
		out[len(blocks)-1-i] = b
	}
	return out
}
