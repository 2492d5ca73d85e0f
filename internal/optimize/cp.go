package optimize

import (
	"optopt/internal/ir"
	"optopt/internal/passmgr"
)

// RunCopyPropagation is the CP pass: every use of a PSEUDO
// register is replaced by that register's copy source when every
// definition reaching the use is a CPY from the same source register.
func RunCopyPropagation(m *passmgr.Manager) {
	g := m.CFG()
	chains := m.Chains()

	type rewrite struct {
		slot **ir.Register
		to   *ir.Register
	}
	var rewrites []rewrite

	for _, b := range g.Blocks {
		for _, instr := range b.Instructions() {
			instr.ForEachVarUse(func(reg *ir.Register, slot **ir.Register) {
				if reg == nil || reg.Kind != ir.PSEUDO {
					return
				}
				defs := chains.UsesOf(instr, slot)
				if len(defs) == 0 {
					return
				}
				var src *ir.Register
				for _, d := range defs {
					if d.Instr.Op != ir.CPY || d.Instr.Src1 == nil {
						return
					}
					if src == nil {
						src = d.Instr.Src1
					} else if src != d.Instr.Src1 {
						return
					}
				}
				if src == nil || src == reg || src.Kind != ir.PSEUDO {
					return
				}
				rewrites = append(rewrites, rewrite{slot: slot, to: src})
			})
		}
	}

	for _, rw := range rewrites {
		*rw.slot = rw.to
		m.ChangedUse()
	}
}
