package analysis

import (
	"optopt/internal/cfg"
	"optopt/internal/dataflow"
	"optopt/internal/ir"
	"optopt/internal/set"
)

// operand is one canonicalized slot of an expression key. At
// most one of reg/typ/instrID is meaningful per slot, selected by which
// opcode produced it.
type operand struct {
	reg      *ir.Register
	hasType  bool
	typ      ir.Type
	hasInstr bool
	instrID  int
}

func regOperand(r *ir.Register) operand { return operand{reg: r} }

// ExprKey is the canonical form of an expression-producing instruction:
// two instructions with equal keys compute the same value whenever
// their operand registers still hold the values they held at
// definition time (see canonicalize).
type ExprKey struct {
	Op          ir.Opcode
	Left, Right operand
}

// canonicalize derives instr's ExprKey. Only called for
// instr.IsExpression() instructions.
func canonicalize(instr *ir.Instruction) ExprKey {
	switch instr.Op {
	case ir.ADD, ir.MUL:
		if instr.Result.IsFloat() {
			// Float add/mul are not associative-commutative for our
			// purposes: preserve operand order.
			return ExprKey{Op: instr.Op, Left: regOperand(instr.Src1), Right: regOperand(instr.Src2)}
		}
		l, r := instr.Src1, instr.Src2
		if r.ID < l.ID {
			l, r = r, l
		}
		return ExprKey{Op: instr.Op, Left: regOperand(l), Right: regOperand(r)}
	case ir.AND, ir.IOR, ir.XOR:
		l, r := instr.Src1, instr.Src2
		if r.ID < l.ID {
			l, r = r, l
		}
		return ExprKey{Op: instr.Op, Left: regOperand(l), Right: regOperand(r)}
	case ir.NEG, ir.NOT:
		return ExprKey{Op: instr.Op, Left: regOperand(instr.Src1)}
	case ir.CVT:
		return ExprKey{Op: instr.Op, Left: operand{hasType: true, typ: instr.Result}, Right: regOperand(instr.Src1)}
	case ir.CALL:
		// CALL is never IsExpression(), so never reaches here; kept for
		// completeness of the canonicalization rule (a call result is
		// incomparable to anything but a repeat of the identical call
		// instruction).
		return ExprKey{Op: instr.Op, Left: operand{hasInstr: true, instrID: instr.ID()}}
	default:
		return ExprKey{Op: instr.Op, Left: regOperand(instr.Src1), Right: regOperand(instr.Src2)}
	}
}

func killedBy(key ExprKey, def *ir.Register) bool {
	return key.Left.reg == def || key.Right.reg == def
}

// Occurrence records one instruction realizing a given expression id.
type Occurrence struct {
	Instr *ir.Instruction
	Block *cfg.Block
}

// ExprRegistry assigns monotonically increasing ids to distinct
// canonical forms and tracks every instruction that computes each one
// (CSE needs every defining instance, not just one).
type ExprRegistry struct {
	ids         map[ExprKey]int
	keys        []ExprKey
	occurrences map[int][]Occurrence
	seen        map[[2]int]bool
}

func newExprRegistry() *ExprRegistry {
	return &ExprRegistry{ids: map[ExprKey]int{}, occurrences: map[int][]Occurrence{}, seen: map[[2]int]bool{}}
}

func (r *ExprRegistry) idFor(key ExprKey) int {
	if id, ok := r.ids[key]; ok {
		return id
	}
	id := len(r.keys)
	r.ids[key] = id
	r.keys = append(r.keys, key)
	return id
}

func (r *ExprRegistry) keyByID(id int) ExprKey { return r.keys[id] }

// KilledBy reports whether a definition of def invalidates the
// canonical expression identified by id: any expression whose
// generating instruction mentions def as an operand. Exported for CSE (internal/optimize/cse.go), which walks
// its own working copy of the available-expression bitset alongside
// the procedure-wide registry.
func (r *ExprRegistry) KilledBy(id int, def *ir.Register) bool {
	return killedBy(r.keyByID(id), def)
}

func (r *ExprRegistry) record(id int, instr *ir.Instruction, b *cfg.Block) {
	k := [2]int{id, instr.ID()}
	if r.seen[k] {
		return
	}
	r.seen[k] = true
	r.occurrences[id] = append(r.occurrences[id], Occurrence{Instr: instr, Block: b})
}

// Occurrences returns every instruction that computes the expression
// identified by id, in discovery order.
func (r *ExprRegistry) Occurrences(id int) []Occurrence { return r.occurrences[id] }

// Count returns the number of distinct canonical forms discovered.
func (r *ExprRegistry) Count() int { return len(r.keys) }

// AvailableExpressions is the forward, intersection-meet,
// reachability-gated available-expressions analysis.
type AvailableExpressions struct {
	Registry *ExprRegistry
	In, Out  map[*cfg.Block]*set.Bits
}

// IDFor returns the expression id for instr's canonical form, assigning
// one if this is the first time this key was asked for (instr must be
// IsExpression()).
func (ae *AvailableExpressions) IDFor(instr *ir.Instruction) int {
	return ae.Registry.idFor(canonicalize(instr))
}

// IsAvailable reports whether the expression computed by instr is
// available on entry to b.
func (ae *AvailableExpressions) IsAvailable(b *cfg.Block, instr *ir.Instruction) bool {
	return ae.In[b].Has(uint(ae.IDFor(instr)))
}

// BuildAvailableExpressions runs the analysis over g.
func BuildAvailableExpressions(g *cfg.CFG) *AvailableExpressions {
	registry := newExprRegistry()
	for _, b := range g.Blocks {
		for _, instr := range b.Instructions() {
			if instr.IsExpression() {
				registry.idFor(canonicalize(instr))
			}
		}
	}
	universe := set.UniverseUpTo(uint(registry.Count()))

	problem := dataflow.Problem{
		Forward: true,
		Gate:    dataflow.ReachabilityGate,
		Meet: dataflow.IntersectionMeet(blockBits{set.NewBits()}, func(a, b dataflow.Value) dataflow.Value {
			return blockBits{a.(blockBits).bits.Intersection(b.(blockBits).bits)}
		}),
		Transfer: func(b *cfg.Block, in dataflow.Value) dataflow.Value {
			working := in.(blockBits).bits.Clone()
			for _, instr := range b.Instructions() {
				if def := instr.DefinedRegister(); def != nil {
					var toRemove []uint
					working.Each(func(id uint) {
						if killedBy(registry.keyByID(int(id)), def) {
							toRemove = append(toRemove, id)
						}
					})
					for _, id := range toRemove {
						working.Remove(id)
					}
				}
				if instr.IsExpression() {
					key := canonicalize(instr)
					id := registry.idFor(key)
					registry.record(id, instr, b)
					working.Add(uint(id))
				}
			}
			return blockBits{working}
		},
		Init: func(g *cfg.CFG) map[*cfg.Block]dataflow.Value {
			out := make(map[*cfg.Block]dataflow.Value)
			for _, b := range g.AllBlocks() {
				if b.EntryReachable {
					out[b] = blockBits{set.NewBits()}
				} else {
					out[b] = blockBits{universe.Clone()}
				}
			}
			return out
		},
	}

	result := dataflow.Solve(g, problem)
	ae := &AvailableExpressions{Registry: registry, In: map[*cfg.Block]*set.Bits{}, Out: map[*cfg.Block]*set.Bits{}}
	for _, b := range g.AllBlocks() {
		ae.In[b] = result.In[b].(blockBits).bits
		ae.Out[b] = result.Out[b].(blockBits).bits
	}
	return ae
}
