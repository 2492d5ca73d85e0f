package analysis

import (
	"optopt/internal/cfg"
	"optopt/internal/dataflow"
	"optopt/internal/ir"
	"optopt/internal/set"
)

// Def identifies one definition of a register: the instruction that
// assigns it. Ordered primarily by register identity, tiebroken by
// instruction identity.
type Def struct {
	Reg   *ir.Register
	Instr *ir.Instruction
}

func lessDef(a, b Def) bool {
	if a.Reg != b.Reg {
		return a.Reg.ID < b.Reg.ID
	}
	return a.Instr.ID() < b.Instr.ID()
}

// defSet is the dataflow.Value wrapper around *set.List[Def].
type defSet struct{ l *set.List[Def] }

func (v defSet) Equal(other dataflow.Value) bool {
	return v.l.Equal(other.(defSet).l)
}

// ReachingDefinitions maps every block to the set of definitions live
// on entry/exit: forward, union-meet, no reachability gate (so the
// definitions of an entry-unreachable predecessor are merged in like
// any other predecessor's).
type ReachingDefinitions struct {
	In, Out map[*cfg.Block]*set.List[Def]
}

// BuildReachingDefinitions runs the forward union-meet analysis:
// per-block transfer erases every prior definition of an assigned
// register and inserts the new one.
func BuildReachingDefinitions(g *cfg.CFG) *ReachingDefinitions {
	problem := dataflow.Problem{
		Forward: true,
		Gate:    nil,
		Meet: dataflow.UnionMeet(defSet{set.NewList(lessDef)}, func(a, b dataflow.Value) dataflow.Value {
			return defSet{a.(defSet).l.Union(b.(defSet).l)}
		}),
		Transfer: func(b *cfg.Block, in dataflow.Value) dataflow.Value {
			working := in.(defSet).l.Clone()
			for _, instr := range b.Instructions() {
				if def := instr.DefinedRegister(); def != nil {
					working.Remove(func(d Def) bool { return d.Reg == def })
					working.Insert(Def{Reg: def, Instr: instr})
				}
			}
			return defSet{working}
		},
		Init: func(g *cfg.CFG) map[*cfg.Block]dataflow.Value {
			out := make(map[*cfg.Block]dataflow.Value)
			for _, b := range g.AllBlocks() {
				out[b] = defSet{set.NewList(lessDef)}
			}
			return out
		},
	}

	result := dataflow.Solve(g, problem)
	rd := &ReachingDefinitions{In: map[*cfg.Block]*set.List[Def]{}, Out: map[*cfg.Block]*set.List[Def]{}}
	for _, b := range g.AllBlocks() {
		rd.In[b] = result.In[b].(defSet).l
		rd.Out[b] = result.Out[b].(defSet).l
	}
	return rd
}

// AtEntry returns the definitions reaching the start of instr's
// position within block b: b's IN set, walked forward through b's
// instructions up to (but not including) instr's own redefinition
// effect.
func (rd *ReachingDefinitions) AtEntry(b *cfg.Block, instr *ir.Instruction) *set.List[Def] {
	working := rd.In[b].Clone()
	for _, cur := range b.Instructions() {
		if cur == instr {
			break
		}
		if def := cur.DefinedRegister(); def != nil {
			working.Remove(func(d Def) bool { return d.Reg == def })
			working.Insert(Def{Reg: def, Instr: cur})
		}
	}
	return working
}
