package optimize

import (
	"optopt/internal/cfg"
	"optopt/internal/ir"
	"optopt/internal/opsem"
	"optopt/internal/passmgr"
)

// maxExprDepth bounds expression-DAG depth so a loop that
// cannot be proven to terminate doesn't unroll forever inside the
// evaluator.
const maxExprDepth = 300

// Value is one node of the abstract evaluator's lattice:
// a known concrete bit pattern, a register whose entry value is
// unknown (symbolic), or an expression referencing up to two child
// values. Refs counts how many times this exact *Value is bound to a
// register, and drives emission's "materialize shared sub-expressions
// once" rule (see emitValue).
type Value struct {
	Concrete bool
	C        opsem.Concrete

	Symbolic bool
	SymReg   *ir.Register

	Node *ExprNode

	Refs int
}

// ExprNode is one operator application over up to two child values,
// holding its transitive symbolic-register dependency set and depth
//.
type ExprNode struct {
	Op         ir.Opcode
	Left       *Value
	Right      *Value
	ResultType ir.Type
	Deps       map[*ir.Register]bool
	Depth      int
}

func concreteValue(c opsem.Concrete) *Value { return &Value{Concrete: true, C: c} }

func depsOf(v *Value) map[*ir.Register]bool {
	if v == nil {
		return nil
	}
	if v.Node != nil {
		return v.Node.Deps
	}
	if v.Symbolic {
		return map[*ir.Register]bool{v.SymReg: true}
	}
	return nil
}

func depthOf(v *Value) int {
	if v == nil || v.Node == nil {
		return 0
	}
	return v.Node.Depth
}

func mergeDeps(into, from map[*ir.Register]bool) {
	for r := range from {
		into[r] = true
	}
}

// evalKind threads the evaluator's outcome explicitly through the
// interpreter loop; there is no non-local exit to catch.
type evalKind int

const (
	kindReturned evalKind = iota
	kindBreakpoint
	kindHalted
)

// Evaluator holds one run's register bindings over the value lattice.
type Evaluator struct {
	g              *cfg.CFG
	regs           map[*ir.Register]*Value
	breakpointMode bool
}

func newEvaluator(g *cfg.CFG, breakpointMode bool) *Evaluator {
	return &Evaluator{g: g, regs: map[*ir.Register]*Value{}, breakpointMode: breakpointMode}
}

func (ev *Evaluator) lookup(reg *ir.Register) *Value {
	if reg == nil {
		return nil
	}
	if v, ok := ev.regs[reg]; ok {
		return v
	}
	v := &Value{Symbolic: true, SymReg: reg}
	ev.regs[reg] = v
	return v
}

// bind assigns v to reg, bumping v's refcount, and returns kindHalted
// if doing so would close a cycle (reg already among v's transitive
// dependencies), as happens for r = op r, x while r still holds its
// symbolic entry value.
func (ev *Evaluator) bind(reg *ir.Register, v *Value) evalKind {
	if reg == nil {
		return kindReturned // no destination to bind; caller ignores this path
	}
	if v != nil && depsOf(v)[reg] {
		return kindHalted
	}
	if v != nil {
		v.Refs++
	}
	ev.regs[reg] = v
	return kindReturned
}

func (ev *Evaluator) unOp(op ir.Opcode, v *Value, resultType ir.Type) (*Value, evalKind) {
	if v.Concrete {
		res, ok := opsem.FoldUnary(op, v.C, resultType)
		if !ok {
			return v, kindReturned // no-op producer
		}
		return concreteValue(res), kindReturned
	}
	depth := 1 + depthOf(v)
	if depth > maxExprDepth {
		return nil, kindHalted
	}
	deps := map[*ir.Register]bool{}
	mergeDeps(deps, depsOf(v))
	return &Value{Node: &ExprNode{Op: op, Left: v, ResultType: resultType, Deps: deps, Depth: depth}}, kindReturned
}

func (ev *Evaluator) binOp(op ir.Opcode, l, r *Value, resultType ir.Type) (*Value, evalKind) {
	if l.Concrete && r.Concrete {
		res, ok, err := opsem.FoldBinary(op, l.C, r.C, resultType)
		if err != nil {
			return nil, kindHalted
		}
		if !ok {
			return l, kindReturned // no-op producer
		}
		return concreteValue(res), kindReturned
	}
	return ev.buildExpr(op, l, r, resultType)
}

// buildExpr constructs an expression node, applying one
// constant-pooling simplification: a + (C1 + e)
// flattens to (a + C1) + e when the outer op is ADD, keeping concrete
// constants pooled near the leaves instead of buried behind symbolic
// operands.
func (ev *Evaluator) buildExpr(op ir.Opcode, l, r *Value, resultType ir.Type) (*Value, evalKind) {
	if op == ir.ADD && r != nil && r.Node != nil && r.Node.Op == ir.ADD &&
		r.Node.Left != nil && r.Node.Left.Concrete && r.Node.Right != nil && !r.Node.Right.Concrete {
		inner, kind := ev.binOp(ir.ADD, l, r.Node.Left, resultType)
		if kind != kindReturned {
			return nil, kind
		}
		return ev.binOp(ir.ADD, inner, r.Node.Right, resultType)
	}

	newDepth := 1 + max(depthOf(l), depthOf(r))
	if newDepth > maxExprDepth {
		return nil, kindHalted
	}
	deps := map[*ir.Register]bool{}
	mergeDeps(deps, depsOf(l))
	mergeDeps(deps, depsOf(r))
	return &Value{Node: &ExprNode{Op: op, Left: l, Right: r, ResultType: resultType, Deps: deps, Depth: newDepth}}, kindReturned
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (ev *Evaluator) blockEntry(label string) (*ir.Instruction, bool) {
	b, ok := ev.g.BlockFor(label)
	if !ok {
		return nil, false
	}
	return b.First, true
}

// run interprets starting at cur until RET, an optional breakpoint
// instruction, or a halt condition. It never panics; every branch
// returns one of the evalKind values explicitly.
func (ev *Evaluator) run(cur, breakpoint *ir.Instruction) (evalKind, *Value) {
	for cur != nil {
		if breakpoint != nil && cur == breakpoint {
			return kindBreakpoint, nil
		}

		switch cur.Op {
		case ir.NOP, ir.LABEL:
			cur = cur.Next

		case ir.LDC:
			var v *Value
			if cur.ImmIsFloat {
				v = concreteValue(opsem.FloatConcrete(cur.Result, cur.ImmFloat))
			} else {
				v = concreteValue(opsem.IntConcrete(cur.Result, cur.ImmInt))
			}
			if cur.Result.Tag == ir.ADDRESS {
				return kindHalted, nil
			}
			if k := ev.bind(cur.Dst, v); k == kindHalted {
				return kindHalted, nil
			}
			cur = cur.Next

		case ir.CPY:
			v := ev.lookup(cur.Src1)
			if k := ev.bind(cur.Dst, v); k == kindHalted {
				return kindHalted, nil
			}
			cur = cur.Next

		case ir.CVT, ir.NEG, ir.NOT:
			v := ev.lookup(cur.Src1)
			res, kind := ev.unOp(cur.Op, v, cur.Result)
			if kind != kindReturned {
				return kindHalted, nil
			}
			if k := ev.bind(cur.Dst, res); k == kindHalted {
				return kindHalted, nil
			}
			cur = cur.Next

		case ir.CALL:
			if !ev.breakpointMode {
				return kindHalted, nil
			}
			if cur.Dst != nil {
				ev.bind(cur.Dst, &Value{Symbolic: true, SymReg: cur.Dst})
			}
			cur = cur.Next

		case ir.LOAD:
			if !ev.breakpointMode {
				return kindHalted, nil
			}
			ev.bind(cur.Dst, &Value{Symbolic: true, SymReg: cur.Dst})
			cur = cur.Next

		case ir.STR, ir.MCPY:
			if !ev.breakpointMode {
				return kindHalted, nil
			}
			cur = cur.Next

		case ir.JMP:
			target, ok := ev.blockEntry(cur.Target)
			if !ok {
				return kindHalted, nil
			}
			cur = target

		case ir.BTRUE, ir.BFALSE:
			v := ev.lookup(cur.Src1)
			if !v.Concrete {
				return kindHalted, nil
			}
			taken := v.C.Int != 0
			if cur.Op == ir.BFALSE {
				taken = !taken
			}
			if taken {
				target, ok := ev.blockEntry(cur.Target)
				if !ok {
					return kindHalted, nil
				}
				cur = target
			} else {
				cur = cur.Next
			}

		case ir.MBR:
			v := ev.lookup(cur.Src1)
			if !v.Concrete {
				return kindHalted, nil
			}
			lbl := opsem.ResolveMBR(v.C, cur.MBRTargets, cur.MBRDefault)
			target, ok := ev.blockEntry(lbl)
			if !ok {
				return kindHalted, nil
			}
			cur = target

		case ir.RET:
			var v *Value
			if cur.Src1 != nil {
				v = ev.lookup(cur.Src1)
			}
			return kindReturned, v

		default:
			if !cur.Op.IsBinary() {
				return kindHalted, nil
			}
			l := ev.lookup(cur.Src1)
			r := ev.lookup(cur.Src2)
			res, kind := ev.binOp(cur.Op, l, r, cur.Result)
			if kind != kindReturned {
				return kindHalted, nil
			}
			if k := ev.bind(cur.Dst, res); k == kindHalted {
				return kindHalted, nil
			}
			cur = cur.Next
		}
	}
	return kindHalted, nil
}

// hasUnevaluableOp reports whether whole-procedure evaluation is ruled
// out up front: any reachable CALL/LOAD/STR/MCPY, or an LDC of an
// address (a symbol reference rather than a pure literal).
func hasUnevaluableOp(g *cfg.CFG) bool {
	for _, b := range g.Blocks {
		if !b.EntryReachable {
			continue
		}
		for _, instr := range b.Instructions() {
			switch instr.Op {
			case ir.CALL, ir.LOAD, ir.STR, ir.MCPY:
				return true
			case ir.LDC:
				if instr.Result.Tag == ir.ADDRESS {
					return true
				}
			}
		}
	}
	return false
}

// RunFullEvaluation attempts whole-procedure abstract interpretation
// starting at the CFG's sole real entry block. On success, the procedure collapses to the
// minimal instruction sequence emitted from the returned value's
// expression DAG followed by RET.
func RunFullEvaluation(m *passmgr.Manager) {
	g := m.CFG()
	if hasUnevaluableOp(g) {
		return
	}
	if len(g.Entry.Succs) != 1 {
		return
	}
	start := g.Entry.Succs[0]
	if start.Empty() {
		return
	}

	ev := newEvaluator(g, false)
	kind, result := ev.run(start.First, nil)
	if kind != kindReturned {
		return
	}

	rewriteToReturnValue(m, result)
}

// rewriteToReturnValue replaces the entire procedure body with the
// minimal sequence emitted from result's expression DAG (or a bare RET
// for a void return).
func rewriteToReturnValue(m *passmgr.Manager, result *Value) {
	list := m.List
	for i := list.First(); i != nil; {
		next := i.Next
		list.Unlink(i)
		i = next
	}

	var retReg *ir.Register
	if result != nil {
		retReg = emitValue(list, m, result, map[*Value]*ir.Register{})
	}
	list.Append(ir.Ret(retReg))

	m.ChangedBlock()
	m.ChangedDef()
	m.ChangedUse()
}

// emitValue walks v's DAG post-order, emitting the minimal instruction
// sequence that reconstructs it.
// A concrete value emits an LDC to a fresh TEMP; a symbolic value
// reuses its register directly; an expression recurses into its
// children first, then emits the corresponding opcode. Whenever a
// value's refcount exceeds one (it's bound to more than one register
// in the final state), a trailing CPY into a fresh PSEUDO materializes
// it exactly once for every subsequent reference, via the emitted
// cache keyed by *Value identity.
func emitValue(list *ir.List, m *passmgr.Manager, v *Value, emitted map[*Value]*ir.Register) *ir.Register {
	if r, ok := emitted[v]; ok {
		return r
	}

	if v.Symbolic {
		emitted[v] = v.SymReg
		return v.SymReg
	}

	var dst *ir.Register
	if v.Concrete {
		fresh := m.Registers.New(ir.TEMP, v.C.Type, "")
		var instr *ir.Instruction
		if v.C.IsFloat {
			instr = ir.LdcFloat(fresh, v.C.Float)
		} else {
			instr = ir.Ldc(fresh, v.C.Int)
		}
		list.Append(instr)
		dst = fresh
	} else {
		var left, right *ir.Register
		if v.Node.Left != nil {
			left = emitValue(list, m, v.Node.Left, emitted)
		}
		if v.Node.Right != nil {
			right = emitValue(list, m, v.Node.Right, emitted)
		}
		fresh := m.Registers.New(ir.PSEUDO, v.Node.ResultType, "")
		var instr *ir.Instruction
		if v.Node.Op.IsUnary() {
			instr = ir.Unary(v.Node.Op, fresh, left)
		} else {
			instr = ir.Binary(v.Node.Op, fresh, left, right)
		}
		list.Append(instr)
		dst = fresh
	}

	result := dst
	if v.Refs > 1 {
		shared := m.Registers.New(ir.PSEUDO, dst.Type, "")
		list.Append(ir.Cpy(shared, dst))
		result = shared
	}
	emitted[v] = result
	return result
}

// RunToBreakpoint is the evaluator's breakpoint-mode entry point,
// used by LICM's "loop executes at least once" proof: interprets from
// start and reports which of {Returned, ReachedBreakpoint, Unknown} it
// hit first, never reaching breakpoint itself or never concluding
// mapping to Unknown.
type BreakpointOutcome int

const (
	Returned BreakpointOutcome = iota
	ReachedBreakpoint
	Unknown
)

func RunToBreakpoint(g *cfg.CFG, start, breakpoint *ir.Instruction) BreakpointOutcome {
	ev := newEvaluator(g, true)
	kind, _ := ev.run(start, breakpoint)
	switch kind {
	case kindReturned:
		return Returned
	case kindBreakpoint:
		return ReachedBreakpoint
	default:
		return Unknown
	}
}
