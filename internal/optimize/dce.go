package optimize

import (
	"optopt/internal/analysis"
	"optopt/internal/cfg"
	"optopt/internal/ir"
	"optopt/internal/passmgr"
)

// RunDeadCodeElimination is the DCE pass.
func RunDeadCodeElimination(m *passmgr.Manager) {
	g := m.CFG()

	if nopUnreachableBlocks(g) {
		m.ChangedBlock()
		g = m.CFG() // pick up the generation bump before computing chains
	}

	essential := computeEssentialClosure(g, m.Chains())

	for _, b := range g.Blocks {
		for _, instr := range b.Instructions() {
			if instr.Op != ir.NOP && !essential[instr] {
				clearToNop(instr)
			}
		}
	}

	if collapseRedundantJumps(g) {
		m.ChangedBlock()
	}

	g.List().RemoveNops()
	m.RemovedNop()
}

// nopUnreachableBlocks clears dead blocks: every instruction
// (including the leading label) in an entry-unreachable block becomes
// a NOP, and RemoveNops later unlinks them from the list. The block
// itself stays in g.Blocks: Relink rewires edges but does not re-form
// blocks.
func nopUnreachableBlocks(g *cfg.CFG) bool {
	changed := false
	for _, b := range g.Blocks {
		if b.EntryReachable {
			continue
		}
		for _, instr := range b.Instructions() {
			if instr.Op != ir.NOP {
				clearToNop(instr)
				changed = true
			}
		}
	}
	return changed
}

func clearToNop(instr *ir.Instruction) {
	instr.Op = ir.NOP
	instr.Dst = nil
	instr.Src1 = nil
	instr.Src2 = nil
	instr.Args = nil
	instr.Callee = ""
	instr.ImmInt = 0
	instr.ImmFloat = 0
	instr.ImmIsFloat = false
	instr.Label = ""
	instr.Target = ""
	instr.MBRDefault = ""
	instr.MBRTargets = nil
}

func isBlockTerminatorKind(op ir.Opcode) bool {
	switch op {
	case ir.MBR, ir.BTRUE, ir.BFALSE, ir.JMP:
		return true
	}
	return false
}

// computeEssentialClosure seeds the essential set with RET/CALL/STR/
// MCPY/LOAD/LABEL, then transitively pull in every reaching definition
// of every used register, widening to the control dependencies of
// whichever blocks house essential instructions.
func computeEssentialClosure(g *cfg.CFG, chains *analysis.Chains) map[*ir.Instruction]bool {
	essential := map[*ir.Instruction]bool{}
	var worklist []*ir.Instruction
	blockOf := map[*ir.Instruction]*cfg.Block{}

	mark := func(instr *ir.Instruction) bool {
		if instr == nil || instr.Op == ir.NOP || essential[instr] {
			return false
		}
		essential[instr] = true
		worklist = append(worklist, instr)
		return true
	}

	for _, b := range g.Blocks {
		for _, instr := range b.Instructions() {
			blockOf[instr] = b
			switch instr.Op {
			case ir.RET, ir.CALL, ir.STR, ir.MCPY, ir.LOAD, ir.LABEL:
				mark(instr)
			}
		}
	}

	controlDependent := map[*cfg.Block]bool{}
	swept := map[*cfg.Block]bool{}

	for {
		progressed := false

		for len(worklist) > 0 {
			instr := worklist[0]
			worklist = worklist[1:]
			b := blockOf[instr]
			for _, p := range b.Preds {
				if !controlDependent[p] {
					controlDependent[p] = true
					progressed = true
				}
			}
			instr.ForEachVarUse(func(_ *ir.Register, slot **ir.Register) {
				for _, d := range chains.UsesOf(instr, slot) {
					if mark(d.Instr) {
						progressed = true
					}
				}
			})
		}

		for b := range controlDependent {
			if swept[b] {
				continue
			}
			swept[b] = true
			progressed = true
			last := b.Last
			if last != nil && isBlockTerminatorKind(last.Op) {
				mark(last)
			} else {
				for _, p := range b.Preds {
					if !controlDependent[p] {
						controlDependent[p] = true
					}
				}
			}
		}

		if !progressed {
			break
		}
	}

	return essential
}

// collapseRedundantJumps: a JMP whose target label immediately
// follows it in the instruction stream is a no-op.
func collapseRedundantJumps(g *cfg.CFG) bool {
	changed := false
	list := g.List()
	for i := list.First(); i != nil; i = i.Next {
		if i.Op != ir.JMP {
			continue
		}
		next := i.Next
		if next != nil && next.Op == ir.LABEL && next.Label == i.Target {
			clearToNop(i)
			changed = true
		}
	}
	return changed
}
