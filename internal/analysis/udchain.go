package analysis

import (
	"optopt/internal/cfg"
	"optopt/internal/ir"
)

// Use identifies one use of a register: the instruction that reads it
// and the mutable slot within that instruction holding the register
// pointer (so a rewrite — copy propagation retargeting a use, say —
// can be applied in place without re-deriving the chain).
type Use struct {
	Instr *ir.Instruction
	Slot  **ir.Register
}

// Chains holds the UD (use -> reaching defs) and DU (def -> reached
// uses) chains for a procedure, built from the already-solved
// ReachingDefinitions.
type Chains struct {
	ud map[*ir.Instruction]map[**ir.Register][]Def
	du map[*ir.Instruction][]Use
}

// UsesOf returns the definitions that can reach the register read at
// (instr, slot).
func (c *Chains) UsesOf(instr *ir.Instruction, slot **ir.Register) []Def {
	return c.ud[instr][slot]
}

// ReachedUses returns every use that defInstr's definition can reach.
func (c *Chains) ReachedUses(defInstr *ir.Instruction) []Use {
	return c.du[defInstr]
}

// BuildChains walks every block once from rd.In, pairing each use
// against the definitions reaching that point to build UD and
// recording the same pairs, inverted, as DU.
func BuildChains(g *cfg.CFG, rd *ReachingDefinitions) *Chains {
	c := &Chains{
		ud: map[*ir.Instruction]map[**ir.Register][]Def{},
		du: map[*ir.Instruction][]Use{},
	}

	for _, b := range g.Blocks {
		reaching := rd.In[b].Clone()
		for _, instr := range b.Instructions() {
			instr.ForEachVarUse(func(reg *ir.Register, slot **ir.Register) {
				var defs []Def
				for _, d := range reaching.Items() {
					if d.Reg == reg {
						defs = append(defs, d)
					}
				}
				if c.ud[instr] == nil {
					c.ud[instr] = map[**ir.Register][]Def{}
				}
				c.ud[instr][slot] = defs
				for _, d := range defs {
					c.du[d.Instr] = append(c.du[d.Instr], Use{Instr: instr, Slot: slot})
				}
			})
			if def := instr.DefinedRegister(); def != nil {
				reaching.Remove(func(d Def) bool { return d.Reg == def })
				reaching.Insert(Def{Reg: def, Instr: instr})
			}
		}
	}
	return c
}
