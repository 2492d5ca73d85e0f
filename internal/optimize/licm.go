package optimize

import (
	"sort"

	"optopt/internal/analysis"
	"optopt/internal/cfg"
	"optopt/internal/ir"
	"optopt/internal/passmgr"
)

// RunLoopInvariantCodeMotion is the LICM pass. Loops are
// processed innermost-out (by body size, ties broken by header ID) so
// an outer loop only ever sees what an inner loop left behind.
func RunLoopInvariantCodeMotion(m *passmgr.Manager) {
	loops := append([]*analysis.Loop(nil), m.Loops()...)
	sort.Slice(loops, func(i, j int) bool {
		if len(loops[i].Body) != len(loops[j].Body) {
			return len(loops[i].Body) < len(loops[j].Body)
		}
		return loops[i].Header.ID < loops[j].Header.ID
	})

	for _, l := range loops {
		hoistLoop(m, l)
	}
}

func hoistLoop(m *passmgr.Manager, l *analysis.Loop) {
	g := m.CFG()
	dom := m.Dominators()

	blockOf := map[*ir.Instruction]*cfg.Block{}
	order := map[*ir.Instruction]int{}
	var bodyInstrs []*ir.Instruction
	for b := range l.Body {
		for idx, instr := range b.Instructions() {
			blockOf[instr] = b
			order[instr] = idx
			bodyInstrs = append(bodyInstrs, instr)
		}
	}

	defCount := map[*ir.Register]int{}
	for _, instr := range bodyInstrs {
		if def := instr.DefinedRegister(); def != nil {
			defCount[def]++
		}
	}

	invariantReg := map[*ir.Register]bool{}
	referenced := map[*ir.Register]bool{}
	for _, instr := range bodyInstrs {
		for _, r := range instr.AllRegisters() {
			referenced[r] = true
		}
	}
	for r := range referenced {
		if defCount[r] == 0 {
			invariantReg[r] = true
		}
	}

	// Step 4: grow the invariant set to a fixed point.
	candidates := map[*ir.Instruction]bool{}
	for {
		progressed := false
		for _, instr := range bodyInstrs {
			if candidates[instr] {
				continue
			}
			def := instr.DefinedRegister()
			if def == nil || defCount[def] != 1 || instr.Op == ir.CALL || instr.Op == ir.LOAD {
				continue
			}
			allInvariant := true
			for _, u := range instr.UsedRegisters() {
				if !invariantReg[u] {
					allInvariant = false
					break
				}
			}
			if !allInvariant {
				continue
			}
			candidates[instr] = true
			invariantReg[def] = true
			progressed = true
		}
		if !progressed {
			break
		}
	}
	if len(candidates) == 0 {
		return
	}

	exits := loopExits(l)

	// Step 5: must dominate every exit.
	for instr := range candidates {
		b := blockOf[instr]
		for _, exit := range exits {
			if !dom.Dominates(b, exit) {
				delete(candidates, instr)
				break
			}
		}
	}

	// Step 6: must dominate every in-loop use (same-block uses must
	// merely precede the use in program order).
	for instr := range candidates {
		def := instr.DefinedRegister()
		db := blockOf[instr]
		dpos := order[instr]
		ok := true
		for _, use := range bodyInstrs {
			uses := false
			use.ForEachVarUse(func(r *ir.Register, _ **ir.Register) {
				if r == def {
					uses = true
				}
			})
			if !uses {
				continue
			}
			ub := blockOf[use]
			if ub == db {
				if order[use] < dpos {
					ok = false
				}
			} else if !dom.Dominates(db, ub) {
				ok = false
			}
			if !ok {
				break
			}
		}
		if !ok {
			delete(candidates, instr)
		}
	}

	// Step 7: if we can't prove the loop runs at least once, every
	// survivor's block must also dominate the CFG exit.
	if !loopExecutesAtLeastOnce(m, l) {
		for instr := range candidates {
			if !dom.Dominates(blockOf[instr], g.Exit) {
				delete(candidates, instr)
			}
		}
	}

	// Step 8: re-tighten until every survivor's used registers are
	// themselves either free (never defined in the loop) or defined by
	// a surviving survivor.
	for {
		liveInvariant := map[*ir.Register]bool{}
		for r := range invariantReg {
			if defCount[r] == 0 {
				liveInvariant[r] = true
			}
		}
		for instr := range candidates {
			if def := instr.DefinedRegister(); def != nil {
				liveInvariant[def] = true
			}
		}
		progressed := false
		for instr := range candidates {
			for _, u := range instr.UsedRegisters() {
				if !liveInvariant[u] {
					delete(candidates, instr)
					progressed = true
					break
				}
			}
		}
		if !progressed {
			break
		}
	}
	if len(candidates) == 0 {
		return
	}

	survivors := topoOrder(candidates, blockOf, order)
	ph := m.EnsurePreheader(l)
	for _, instr := range survivors {
		hoistOne(m, ph, instr)
	}
}

// loopExits returns every block outside l's body that some body block
// branches to directly.
func loopExits(l *analysis.Loop) []*cfg.Block {
	seen := map[*cfg.Block]bool{}
	var out []*cfg.Block
	for b := range l.Body {
		for _, s := range b.Succs {
			if !l.Body[s] && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// topoOrder sorts candidates into a dependency-respecting sequence
// (definitions before their in-set uses) via post-order DFS: the
// pre-header is the single point every hoisted instruction will be appended to, so
// the sequence assembled there must itself be a valid program order.
func topoOrder(candidates map[*ir.Instruction]bool, blockOf map[*ir.Instruction]*cfg.Block, order map[*ir.Instruction]int) []*ir.Instruction {
	definedBy := map[*ir.Register]*ir.Instruction{}
	for instr := range candidates {
		if def := instr.DefinedRegister(); def != nil {
			definedBy[def] = instr
		}
	}

	visited := map[*ir.Instruction]bool{}
	var out []*ir.Instruction
	var visit func(instr *ir.Instruction)
	visit = func(instr *ir.Instruction) {
		if visited[instr] {
			return
		}
		visited[instr] = true
		for _, u := range instr.UsedRegisters() {
			if dep, ok := definedBy[u]; ok {
				visit(dep)
			}
		}
		out = append(out, instr)
	}

	ordered := make([]*ir.Instruction, 0, len(candidates))
	for instr := range candidates {
		ordered = append(ordered, instr)
	}
	sort.Slice(ordered, func(i, j int) bool {
		bi, bj := blockOf[ordered[i]], blockOf[ordered[j]]
		if bi != bj {
			return bi.ID < bj.ID
		}
		return order[ordered[i]] < order[ordered[j]]
	})
	for _, instr := range ordered {
		visit(instr)
	}
	return out
}

// hoistOne moves instr into the pre-header by appending
// a clone there and clearing the original to a NOP in place — the same
// convention DCE uses (internal/optimize/dce.go's clearToNop) to avoid
// ever invalidating a block's First/Last pointer by unlinking a live
// instruction mid-pass. A TEMP destination is promoted to a fresh
// register (TEMP again if the original op was LDC, else PSEUDO, since
// the pre-header now holds the only definition and every in-loop use
// must be remapped to it); a non-TEMP destination moves unchanged.
func hoistOne(m *passmgr.Manager, ph *cfg.Block, instr *ir.Instruction) {
	g := m.CFG()
	clone := cloneInstr(instr)

	if clone.Dst != nil && clone.Dst.Kind == ir.TEMP {
		kind := ir.PSEUDO
		if clone.Op == ir.LDC {
			kind = ir.TEMP
		}
		oldDst := clone.Dst
		fresh := m.Registers.New(kind, oldDst.Type, oldDst.Var)
		clone.Dst = fresh
		remapRegisterInLoop(g, oldDst, fresh)
	}

	g.AppendToBlock(ph, clone)
	clearToNop(instr)

	m.ChangedBlock()
	m.ChangedDef()
	m.ChangedUse()
}

// cloneInstr copies every opcode-relevant field of orig into a fresh
// instruction with its own identity, for relocating a definition
// without disturbing the original list node (see hoistOne).
func cloneInstr(orig *ir.Instruction) *ir.Instruction {
	c := ir.NewInstruction(orig.Op)
	c.Result = orig.Result
	c.Dst = orig.Dst
	c.Src1 = orig.Src1
	c.Src2 = orig.Src2
	c.Args = append([]*ir.Register(nil), orig.Args...)
	c.Callee = orig.Callee
	c.ImmInt = orig.ImmInt
	c.ImmFloat = orig.ImmFloat
	c.ImmIsFloat = orig.ImmIsFloat
	return c
}

// remapRegisterInLoop rewrites every reference to from into to,
// anywhere in the procedure's current instruction list. Safe to scan
// the whole list (rather than just the loop body) since from, being a
// TEMP, cannot be referenced outside the block it was hoisted from.
func remapRegisterInLoop(g *cfg.CFG, from, to *ir.Register) {
	for i := g.List().First(); i != nil; i = i.Next {
		i.ForEachVarUse(func(r *ir.Register, slot **ir.Register) {
			if r == from {
				*slot = to
			}
		})
	}
}

// loopExecutesAtLeastOnce tries to prove the loop body runs at least
// once: find the first branching block reachable from the
// header by following single in-loop successors,
// set a breakpoint at the in-loop successor, and run the abstract
// evaluator from the procedure entry. Reaching the breakpoint proves
// the loop body runs; anything else (including a halt on a symbolic
// branch) leaves it unproved.
func loopExecutesAtLeastOnce(m *passmgr.Manager, l *analysis.Loop) bool {
	g := m.CFG()
	branch := l.Header
	visited := map[*cfg.Block]bool{branch: true}
	for len(branch.Succs) < 2 {
		if len(branch.Succs) != 1 {
			return false
		}
		next := branch.Succs[0]
		if !l.Contains(next) || visited[next] {
			return false
		}
		visited[next] = true
		branch = next
	}

	var breakpoint *ir.Instruction
	for _, s := range branch.Succs {
		if l.Contains(s) {
			breakpoint = s.First
			break
		}
	}
	if breakpoint == nil {
		return false
	}

	if len(g.Entry.Succs) != 1 {
		return false
	}
	start := g.Entry.Succs[0]
	if start.Empty() {
		return false
	}

	return RunToBreakpoint(g, start.First, breakpoint) == ReachedBreakpoint
}
