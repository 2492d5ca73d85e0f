package analysis

import (
	"optopt/internal/cfg"
	"optopt/internal/dataflow"
	"optopt/internal/ir"
	"optopt/internal/set"
)

// LiveUses is the classic backward, union-meet live-variable
// analysis: a register is live at a point if some path from that point
// reaches a use of it without an intervening redefinition. The pass
// manager exposes it as VarUse; dead-code elimination
// (internal/optimize/dce.go) does not consult it and works from the
// UD chains instead.
type LiveUses struct {
	byID    map[int]*ir.Register
	in, out map[*cfg.Block]*set.Bits
}

// LiveIn returns the registers live on entry to b.
func (lu *LiveUses) LiveIn(b *cfg.Block) []*ir.Register { return lu.materialize(lu.in[b]) }

// LiveOut returns the registers live on exit from b.
func (lu *LiveUses) LiveOut(b *cfg.Block) []*ir.Register { return lu.materialize(lu.out[b]) }

// IsLiveAfter reports whether reg is live immediately after instr
// executes, walking b backward from its live-out set.
func (lu *LiveUses) IsLiveAfter(b *cfg.Block, instr *ir.Instruction, reg *ir.Register) bool {
	working := lu.out[b].Clone()
	instrs := b.Instructions()
	for idx := len(instrs) - 1; idx >= 0; idx-- {
		cur := instrs[idx]
		if cur == instr {
			return working.Has(uint(reg.ID))
		}
		applyBackwardStep(working, cur)
	}
	return working.Has(uint(reg.ID))
}

func (lu *LiveUses) materialize(s *set.Bits) []*ir.Register {
	var out []*ir.Register
	s.Each(func(id uint) {
		if r, ok := lu.byID[int(id)]; ok {
			out = append(out, r)
		}
	})
	return out
}

// applyBackwardStep mutates working (a live-after set) into a
// live-before set across one instruction: drop its definition, then
// add its uses.
func applyBackwardStep(working *set.Bits, instr *ir.Instruction) {
	if def := instr.DefinedRegister(); def != nil {
		working.Remove(uint(def.ID))
	}
	for _, use := range instr.UsedRegisters() {
		working.Add(uint(use.ID))
	}
}

type bitsValueGeneric = blockBits // reuse blockBits' Equal shape for any uint-id domain

// BuildLiveUses runs the backward union-meet liveness analysis.
func BuildLiveUses(g *cfg.CFG) *LiveUses {
	byID := map[int]*ir.Register{}
	for _, b := range g.Blocks {
		for _, instr := range b.Instructions() {
			for _, r := range instr.AllRegisters() {
				if r != nil {
					byID[r.ID] = r
				}
			}
		}
	}

	problem := dataflow.Problem{
		Forward: false,
		Gate:    nil,
		Meet: dataflow.UnionMeet(bitsValueGeneric{set.NewBits()}, func(a, b dataflow.Value) dataflow.Value {
			return bitsValueGeneric{a.(bitsValueGeneric).bits.Union(b.(bitsValueGeneric).bits)}
		}),
		Transfer: func(b *cfg.Block, in dataflow.Value) dataflow.Value {
			working := in.(bitsValueGeneric).bits.Clone()
			instrs := b.Instructions()
			for idx := len(instrs) - 1; idx >= 0; idx-- {
				applyBackwardStep(working, instrs[idx])
			}
			return bitsValueGeneric{working}
		},
		Init: func(g *cfg.CFG) map[*cfg.Block]dataflow.Value {
			out := make(map[*cfg.Block]dataflow.Value)
			for _, b := range g.AllBlocks() {
				out[b] = bitsValueGeneric{set.NewBits()}
			}
			return out
		},
	}

	// Solve drives neighbors via b.Preds/b.Succs depending on Forward;
	// for a backward problem the "out" map produced by Solve is keyed
	// the same way but represents each block's IN value (what a forward
	// reader would call "out" is, for a backward analysis, the value
	// flowing into the block from its successors). Solve's In/Out map
	// names stay literal: p.Forward=false means neighborsOf walks Succs,
	// and the computed "out[b]" is the live-before (LiveIn) value.
	result := dataflow.Solve(g, problem)

	lu := &LiveUses{byID: byID, in: map[*cfg.Block]*set.Bits{}, out: map[*cfg.Block]*set.Bits{}}
	for _, b := range g.AllBlocks() {
		lu.in[b] = result.Out[b].(bitsValueGeneric).bits
		lu.out[b] = result.In[b].(bitsValueGeneric).bits
	}
	return lu
}
