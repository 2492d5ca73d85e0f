package optimize

import (
	"optopt/internal/analysis"
	"optopt/internal/cfg"
	"optopt/internal/ir"
	"optopt/internal/passmgr"
)

// RunCommonSubexpressionElimination is the CSE pass. Every expression
// found already available is rewritten into a CPY from a fresh shared
// PSEUDO T, and T is fed by a CPY inserted after every other
// instruction computing the same form — at a merge point the value may
// arrive along any predecessor path, so every instance must feed T,
// not just the first one discovered.
func RunCommonSubexpressionElimination(m *passmgr.Manager) {
	g := m.CFG()
	ae := m.AvailableExpressions()

	for _, b := range g.Blocks {
		if !b.EntryReachable {
			continue
		}
		working := ae.In[b].Clone()
		for _, instr := range b.Instructions() {
			if instr.Op == ir.NOP {
				continue
			}
			if instr.IsExpression() {
				id := ae.IDFor(instr)
				if working.Has(uint(id)) {
					if rewriteRedundant(g, m, ae, b, instr, id) {
						m.ChangedDef()
					}
				} else {
					working.Add(uint(id))
				}
			}

			if def := instr.DefinedRegister(); def != nil {
				var toRemove []uint
				working.Each(func(id uint) {
					if ae.Registry.KilledBy(int(id), def) {
						toRemove = append(toRemove, id)
					}
				})
				for _, id := range toRemove {
					working.Remove(id)
				}
			}
		}
	}
}

// rewriteRedundant turns instr (a redundant computation of id) into a
// CPY from a fresh shared PSEUDO, inserting a feeding CPY after each
// other occurrence of the form. T is allocated per redundant
// instruction; copy propagation and DCE coalesce the leftovers.
func rewriteRedundant(g *cfg.CFG, m *passmgr.Manager, ae *analysis.AvailableExpressions, b *cfg.Block, instr *ir.Instruction, id int) bool {
	var feeders []analysis.Occurrence
	for _, occ := range ae.Registry.Occurrences(id) {
		if occ.Instr != instr {
			feeders = append(feeders, occ)
		}
	}
	if len(feeders) == 0 {
		return false
	}

	var t *ir.Register
	for _, occ := range feeders {
		occDst := promoteTempDest(m, occ.Block, occ.Instr)
		if t == nil {
			t = m.Registers.New(ir.PSEUDO, occDst.Type, "")
		}
		feed := ir.Cpy(t, occDst)
		g.List().InsertAfter(occ.Instr, feed)
		if occ.Block.Last == occ.Instr {
			occ.Block.Last = feed
		}
	}

	dst := promoteTempDest(m, b, instr)

	instr.Op = ir.CPY
	instr.Dst = dst
	instr.Src1 = t
	instr.Src2 = nil
	instr.Args = nil
	instr.Callee = ""
	return true
}

// promoteTempDest promotes instr's destination to a fresh PSEUDO if it
// is currently a TEMP, since a TEMP may not outlive its defining block
// and the shared value now must, rewriting the definition and every subsequent
// use within b. Non-TEMP destinations are returned unchanged.
func promoteTempDest(m *passmgr.Manager, b *cfg.Block, instr *ir.Instruction) *ir.Register {
	old := instr.Dst
	if old == nil || old.Kind != ir.TEMP {
		return old
	}
	fresh := m.Registers.New(ir.PSEUDO, old.Type, old.Var)
	instr.Dst = fresh
	remapInBlockAfter(b, instr, old, fresh)
	return fresh
}

// remapInBlockAfter rewrites every use of oldReg to newReg in b's
// instructions strictly after from (TEMP liveness never crosses a
// block boundary, so nothing beyond b's end can reference oldReg).
func remapInBlockAfter(b *cfg.Block, from *ir.Instruction, oldReg, newReg *ir.Register) {
	started := false
	for _, cur := range b.Instructions() {
		if cur == from {
			started = true
			continue
		}
		if !started {
			continue
		}
		cur.ForEachVarUse(func(r *ir.Register, slot **ir.Register) {
			if r == oldReg {
				*slot = newReg
			}
		})
	}
}
