// Package analysis implements the dataflow-driven analyses:
// dominators, reaching definitions, live uses, UD/DU chains, available
// expressions, and natural loops with pre-header synthesis. Each
// analysis is a thin Problem built on top of internal/dataflow,
// following the generic solver's Problem shape.
package analysis

import (
	"optopt/internal/cfg"
	"optopt/internal/dataflow"
	"optopt/internal/set"
)

// blockBits is a dataflow.Value wrapping a set.Bits, keyed by block ID
// for Dominators (AvailableExpressions and LiveUses reuse it for
// expression and register IDs).
type blockBits struct{ bits *set.Bits }

func (v blockBits) Equal(other dataflow.Value) bool {
	o, ok := other.(blockBits)
	if !ok {
		return false
	}
	return v.bits.Equal(o.bits)
}

// Dominators maps every block to the set of blocks that dominate it,
// inclusive of itself.
type Dominators struct {
	byID map[uint64]*cfg.Block
	set  map[*cfg.Block]*set.Bits
}

// Dominates reports whether a dominates b (a == b counts).
func (d *Dominators) Dominates(a, b *cfg.Block) bool {
	s, ok := d.set[b]
	return ok && s.Has(uint(a.ID))
}

// Of returns the set of blocks dominating b, including b itself.
func (d *Dominators) Of(b *cfg.Block) []*cfg.Block {
	var out []*cfg.Block
	s, ok := d.set[b]
	if !ok {
		return nil
	}
	s.Each(func(id uint) {
		if blk, ok := d.byID[uint64(id)]; ok {
			out = append(out, blk)
		}
	})
	return out
}

// ImmediateDominator computes b's unique closest dominator: start
// with dom(b) minus b, repeatedly discard whichever of any pair
// dominates the other (it lies farther from b), until a singleton (or
// empty, for ENTRY/unreachable blocks) remains.
func (d *Dominators) ImmediateDominator(b *cfg.Block) (*cfg.Block, bool) {
	candidates := d.Of(b)
	var rest []*cfg.Block
	for _, c := range candidates {
		if c != b {
			rest = append(rest, c)
		}
	}
	for len(rest) > 1 {
		x, y := rest[0], rest[1]
		if d.Dominates(x, y) {
			rest = removeOne(rest, x)
		} else {
			rest = removeOne(rest, y)
		}
	}
	if len(rest) == 1 {
		return rest[0], true
	}
	return nil, false
}

func removeOne(blocks []*cfg.Block, target *cfg.Block) []*cfg.Block {
	out := make([]*cfg.Block, 0, len(blocks)-1)
	removed := false
	for _, b := range blocks {
		if !removed && b == target {
			removed = true
			continue
		}
		out = append(out, b)
	}
	return out
}

// BuildDominators runs the forward, intersection-meet dominator
// analysis.
func BuildDominators(g *cfg.CFG) *Dominators {
	all := g.AllBlocks()
	byID := make(map[uint64]*cfg.Block, len(all))
	universe := set.NewBits()
	for _, b := range all {
		byID[b.ID] = b
		universe.Add(uint(b.ID))
	}

	problem := dataflow.Problem{
		Forward: true,
		Gate:    dataflow.ReachabilityGate,
		Meet: dataflow.IntersectionMeet(blockBits{set.NewBits()}, func(a, b dataflow.Value) dataflow.Value {
			return blockBits{a.(blockBits).bits.Intersection(b.(blockBits).bits)}
		}),
		Transfer: func(b *cfg.Block, in dataflow.Value) dataflow.Value {
			if b.IsEntry() {
				return blockBits{set.NewBits().Add(uint(b.ID))}
			}
			merged := in.(blockBits).bits.Clone()
			merged.Add(uint(b.ID))
			return blockBits{merged}
		},
		Init: func(g *cfg.CFG) map[*cfg.Block]dataflow.Value {
			out := make(map[*cfg.Block]dataflow.Value, len(all))
			for _, b := range all {
				if b.IsEntry() {
					out[b] = blockBits{set.NewBits().Add(uint(b.ID))}
				} else {
					out[b] = blockBits{universe.Clone()}
				}
			}
			return out
		},
	}

	result := dataflow.Solve(g, problem)
	dom := &Dominators{byID: byID, set: make(map[*cfg.Block]*set.Bits, len(all))}
	for _, b := range all {
		dom.set[b] = result.Out[b].(blockBits).bits
	}
	return dom
}
