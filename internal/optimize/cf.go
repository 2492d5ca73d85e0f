// Package optimize implements the classical optimizations driven by
// the pass manager: constant folding, copy propagation, dead-code
// elimination, common-subexpression elimination, loop-invariant code
// motion, and the abstract evaluator. Every pass is a
// passmgr.PassFunc: it mutates m.CFG()'s instruction list in place and
// reports what changed via m.ChangedDef/ChangedUse/ChangedBlock.
package optimize

import (
	"optopt/internal/cfg"
	"optopt/internal/diag"
	"optopt/internal/ir"
	"optopt/internal/opsem"
	"optopt/internal/passmgr"
)

// ldcKey groups LDC instructions for combining: two LDCs combine only
// if they load the identical bit pattern at the identical type.
type ldcKey struct {
	typ     ir.Type
	intVal  int64
	fltVal  float64
	isFloat bool
}

func keyOf(instr *ir.Instruction) ldcKey {
	return ldcKey{typ: instr.Result, intVal: instr.ImmInt, fltVal: instr.ImmFloat, isFloat: instr.ImmIsFloat}
}

// RunConstantFolding is the CF pass: LDC combining, then
// repeated constant propagation and per-opcode folding.
func RunConstantFolding(m *passmgr.Manager) {
	g := m.CFG()
	if combineLDCs(g, m) {
		m.ChangedDef()
	}
	foldBlocks(g, m)
}

// combineLDCs runs phase 1 per block: groups LDCs by (type, value),
// and for every group of 2+ keeps the first (retargeted to a fresh
// PSEUDO), restores its original destination via an inserted CPY, NOPs
// the rest, and remaps their uses to the fresh PSEUDO.
func combineLDCs(g *cfg.CFG, m *passmgr.Manager) bool {
	changed := false
	list := g.List()

	for _, b := range g.Blocks {
		groups := map[ldcKey][]*ir.Instruction{}
		for _, instr := range b.Instructions() {
			if instr.Op == ir.LDC {
				k := keyOf(instr)
				groups[k] = append(groups[k], instr)
			}
		}
		for _, group := range groups {
			if len(group) < 2 {
				continue
			}
			changed = true
			first := group[0]
			original := first.Dst
			fresh := m.Registers.New(ir.PSEUDO, original.Type, original.Var)
			first.Dst = fresh

			restore := ir.Cpy(original, fresh)
			list.InsertAfter(first, restore)

			for _, dup := range group[1:] {
				stale := dup.Dst
				dup.Op = ir.NOP
				dup.Dst = nil
				remapRegister(list, stale, fresh)
			}
		}
	}
	return changed
}

// remapRegister rewrites every use of from (procedure-wide) to to.
func remapRegister(list *ir.List, from, to *ir.Register) {
	for i := list.First(); i != nil; i = i.Next {
		i.ForEachVarUse(func(r *ir.Register, slot **ir.Register) {
			if r == from {
				*slot = to
			}
		})
	}
}

// foldBlocks runs phase 2: propagate known TEMP constants to a fixed
// point, then walk each block folding with a position-sensitive
// overlay for non-TEMP constants.
func foldBlocks(g *cfg.CFG, m *passmgr.Manager) {
	knownTemp := propagateTempConstants(g.List())

	blockChanged := false
	for _, b := range g.Blocks {
		peephole := map[*ir.Register]opsem.Concrete{}
		lookup := func(r *ir.Register) (opsem.Concrete, bool) {
			if r == nil {
				return opsem.Concrete{}, false
			}
			if r.Kind == ir.TEMP {
				v, ok := knownTemp[r]
				return v, ok
			}
			v, ok := peephole[r]
			return v, ok
		}

		for _, instr := range b.Instructions() {
			folded, result, controlEdit := tryFold(instr, lookup, m.Sink, m.ProcName)
			if controlEdit {
				blockChanged = true
			} else if folded {
				emitFoldResult(g.List(), m, instr, result)
				m.ChangedDef()
			}
			updatePeephole(peephole, instr)
		}
	}
	if blockChanged {
		m.ChangedBlock()
	}
}

func propagateTempConstants(list *ir.List) map[*ir.Register]opsem.Concrete {
	known := map[*ir.Register]opsem.Concrete{}
	changed := true
	for changed {
		changed = false
		for i := list.First(); i != nil; i = i.Next {
			switch i.Op {
			case ir.LDC:
				if i.Dst != nil && i.Dst.Kind == ir.TEMP {
					if _, ok := known[i.Dst]; !ok {
						if i.ImmIsFloat {
							known[i.Dst] = opsem.FloatConcrete(i.Result, i.ImmFloat)
						} else {
							known[i.Dst] = opsem.IntConcrete(i.Result, i.ImmInt)
						}
						changed = true
					}
				}
			case ir.CPY:
				if i.Dst != nil && i.Dst.Kind == ir.TEMP && i.Src1 != nil && i.Src1.Kind == ir.TEMP {
					if _, already := known[i.Dst]; !already {
						if v, ok := known[i.Src1]; ok {
							known[i.Dst] = v
							changed = true
						}
					}
				}
			}
		}
	}
	return known
}

func updatePeephole(peephole map[*ir.Register]opsem.Concrete, instr *ir.Instruction) {
	switch instr.Op {
	case ir.LDC:
		if instr.Dst != nil && instr.Dst.Kind != ir.TEMP {
			if instr.ImmIsFloat {
				peephole[instr.Dst] = opsem.FloatConcrete(instr.Result, instr.ImmFloat)
			} else {
				peephole[instr.Dst] = opsem.IntConcrete(instr.Result, instr.ImmInt)
			}
		}
	case ir.CPY:
		if instr.Dst != nil && instr.Dst.Kind != ir.TEMP {
			if v, ok := peephole[instr.Src1]; instr.Src1 != nil && instr.Src1.Kind != ir.TEMP && ok {
				peephole[instr.Dst] = v
			} else if instr.Src1 != nil && instr.Src1.Kind == ir.TEMP {
				delete(peephole, instr.Dst)
			} else {
				delete(peephole, instr.Dst)
			}
		}
	default:
		if def := instr.DefinedRegister(); def != nil && def.Kind != ir.TEMP {
			delete(peephole, def)
		}
	}
}

// tryFold attempts to fold instr. controlEdit reports whether instr
// was rewritten as a branch-to-JMP/NOP or MBR-to-JMP collapse (which
// changes block structure and must be reported via ChangedBlock
// instead of ChangedDef).
func tryFold(instr *ir.Instruction, lookup func(*ir.Register) (opsem.Concrete, bool), sink *diag.Sink, procName string) (folded bool, result opsem.Concrete, controlEdit bool) {
	switch instr.Op {
	case ir.NEG, ir.NOT, ir.CVT:
		v, ok := lookup(instr.Src1)
		if !ok {
			return false, opsem.Concrete{}, false
		}
		r, ok := opsem.FoldUnary(instr.Op, v, instr.Result)
		return ok, r, false

	case ir.BTRUE, ir.BFALSE:
		v, ok := lookup(instr.Src1)
		if !ok {
			return false, opsem.Concrete{}, false
		}
		taken := v.Int != 0
		if instr.Op == ir.BFALSE {
			taken = !taken
		}
		if taken {
			target := instr.Target
			instr.Op = ir.JMP
			instr.Src1 = nil
			instr.Target = target
		} else {
			instr.Op = ir.NOP
			instr.Src1 = nil
			instr.Target = ""
		}
		return false, opsem.Concrete{}, true

	case ir.MBR:
		v, ok := lookup(instr.Src1)
		if !ok {
			return false, opsem.Concrete{}, false
		}
		target := opsem.ResolveMBR(v, instr.MBRTargets, instr.MBRDefault)
		instr.Op = ir.JMP
		instr.Src1 = nil
		instr.MBRDefault = ""
		instr.MBRTargets = nil
		instr.Target = target
		return false, opsem.Concrete{}, true

	default:
		if !instr.Op.IsBinary() {
			return false, opsem.Concrete{}, false
		}
		l, lok := lookup(instr.Src1)
		r, rok := lookup(instr.Src2)
		if !lok || !rok {
			return false, opsem.Concrete{}, false
		}
		res, ok, err := opsem.FoldBinary(instr.Op, l, r, instr.Result)
		if err != nil {
			sink.Warning(diag.CodeDivisionByZero, procName, 0, "%s: %v", instr, err)
			return false, opsem.Concrete{}, false
		}
		return ok, res, false
	}
}

// emitFoldResult materializes a folded value: a TEMP destination
// rewrites in place to LDC; a PSEUDO/MACHINE destination gets a fresh
// LDC-to-TEMP inserted before it and becomes a CPY from that TEMP.
func emitFoldResult(list *ir.List, m *passmgr.Manager, instr *ir.Instruction, v opsem.Concrete) {
	if instr.Dst.Kind == ir.TEMP {
		instr.Op = ir.LDC
		instr.Src1 = nil
		instr.Src2 = nil
		instr.Result = v.Type
		instr.ImmIsFloat = v.IsFloat
		instr.ImmInt = v.Int
		instr.ImmFloat = v.Float
		return
	}

	fresh := m.Registers.New(ir.TEMP, v.Type, "")
	var ldc *ir.Instruction
	if v.IsFloat {
		ldc = ir.LdcFloat(fresh, v.Float)
	} else {
		ldc = ir.Ldc(fresh, v.Int)
	}
	list.InsertBefore(instr, ldc)

	instr.Op = ir.CPY
	instr.Src1 = fresh
	instr.Src2 = nil
}
