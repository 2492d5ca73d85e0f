package ir

import "fmt"

var nextInstrID int

func freshInstrID() int {
	nextInstrID++
	return nextInstrID
}

// Instruction is a single tagged record in the three-address IR.
// Rather than one Go type per opcode, a single struct carries every
// field any opcode might need; which fields are meaningful is
// determined by Op. A per-opcode interface hierarchy would fight the
// optimizer at every turn: a tagged record keeps in-place rewriting (CF folding an ADD into an LDC, CSE turning
// an ADD into a CPY) a matter of mutating Op and a handful of fields
// rather than replacing the node's type.
//
// Instruction identity is the pointer value itself and is stable across
// edits; only removal from the list (Unlink) retires it. Analyses key
// maps by *Instruction for this reason.
type Instruction struct {
	id int

	Op     Opcode
	Result Type // result type, meaningless when Dst == nil

	Dst  *Register // destination register, nil if this op defines nothing
	Src1 *Register // first source register (condition, address, left operand, ...)
	Src2 *Register // second source register (stored value, right operand, ...)

	Args []*Register // CALL argument registers, in order
	Callee string    // CALL target symbol name

	ImmInt     int64   // LDC integer/address immediate
	ImmFloat   float64 // LDC float immediate
	ImmIsFloat bool

	Label      string   // this instruction's own label, for Op == LABEL
	Target     string   // branch/jump target label, for JMP/BTRUE/BFALSE
	MBRDefault string   // MBR default target label
	MBRTargets []string // MBR indexed target labels

	Next, Prev *Instruction
}

// NewInstruction allocates an instruction with a fresh, stable identity.
func NewInstruction(op Opcode) *Instruction {
	return &Instruction{id: freshInstrID(), Op: op}
}

// ID returns the instruction's stable identity number.
func (i *Instruction) ID() int { return i.id }

// AllRegisters returns every register slot the instruction mentions
// (defined or used), including nils removed, for bookkeeping purposes
// such as RegisterFactory seeding.
func (i *Instruction) AllRegisters() []*Register {
	var out []*Register
	if i.Dst != nil {
		out = append(out, i.Dst)
	}
	if i.Src1 != nil {
		out = append(out, i.Src1)
	}
	if i.Src2 != nil {
		out = append(out, i.Src2)
	}
	out = append(out, i.Args...)
	return out
}

// IsExpression reports whether the instruction computes a pure,
// operand-based value eligible for available-expression tracking:
// excludes CPY, LOAD, CALL and LDC (no operands to be "available" about).
func (i *Instruction) IsExpression() bool {
	switch i.Op {
	case CPY, LOAD, CALL, LDC, NOP, LABEL, JMP, BTRUE, BFALSE, MBR, RET, STR, MCPY:
		return false
	}
	return i.Op.IsUnary() || i.Op.IsBinary()
}

func (i *Instruction) String() string {
	switch i.Op {
	case NOP:
		return "nop"
	case LABEL:
		return fmt.Sprintf("%s:", i.Label)
	case JMP:
		return fmt.Sprintf("jmp %s", i.Target)
	case BTRUE:
		return fmt.Sprintf("btrue %s, %s", i.Src1, i.Target)
	case BFALSE:
		return fmt.Sprintf("bfalse %s, %s", i.Src1, i.Target)
	case MBR:
		return fmt.Sprintf("mbr %s, default=%s, targets=%v", i.Src1, i.MBRDefault, i.MBRTargets)
	case RET:
		if i.Src1 != nil {
			return fmt.Sprintf("ret %s", i.Src1)
		}
		return "ret"
	case CALL:
		if i.Dst != nil {
			return fmt.Sprintf("%s = call %s%v", i.Dst, i.Callee, i.Args)
		}
		return fmt.Sprintf("call %s%v", i.Callee, i.Args)
	case LDC:
		if i.ImmIsFloat {
			return fmt.Sprintf("%s = ldc %v", i.Dst, i.ImmFloat)
		}
		return fmt.Sprintf("%s = ldc %d", i.Dst, i.ImmInt)
	case LOAD:
		return fmt.Sprintf("%s = load [%s]", i.Dst, i.Src1)
	case STR:
		return fmt.Sprintf("str [%s], %s", i.Src1, i.Src2)
	case MCPY:
		return fmt.Sprintf("mcpy [%s], [%s]", i.Src1, i.Src2)
	case CPY:
		return fmt.Sprintf("%s = %s", i.Dst, i.Src1)
	case CVT:
		return fmt.Sprintf("%s = cvt.%s %s", i.Dst, i.Result, i.Src1)
	case NEG, NOT:
		return fmt.Sprintf("%s = %s %s", i.Dst, i.Op, i.Src1)
	default:
		return fmt.Sprintf("%s = %s %s, %s", i.Dst, i.Op, i.Src1, i.Src2)
	}
}

// ForEachVarDef enumerates (register, mutable-slot-pointer) pairs for
// the instruction's defined register, if any. Present only for
// opcodes that assign: CPY, CVT, NEG, NOT, LOAD, all binary ops, LDC,
// and CALL-with-destination.
func (i *Instruction) ForEachVarDef(fn func(r *Register, slot **Register)) {
	switch i.Op {
	case CPY, CVT, NEG, NOT, LOAD, LDC:
		if i.Dst != nil {
			fn(i.Dst, &i.Dst)
		}
	case CALL:
		if i.Dst != nil {
			fn(i.Dst, &i.Dst)
		}
	default:
		if i.Op.IsBinary() && i.Dst != nil {
			fn(i.Dst, &i.Dst)
		}
	}
}

// DefinedRegister is a convenience wrapper over ForEachVarDef for the
// (common) case of at most one definition.
func (i *Instruction) DefinedRegister() *Register {
	var r *Register
	i.ForEachVarDef(func(reg *Register, _ **Register) { r = reg })
	return r
}

// ForEachVarUse enumerates (register, mutable-slot-pointer) pairs for
// every register the instruction uses: source operand(s) of
// base-form ops, the stored value and address of STR, the two
// addresses of MCPY, the branch/MBR discriminant, the callee's argument
// registers, and the returned value of RET.
func (i *Instruction) ForEachVarUse(fn func(r *Register, slot **Register)) {
	switch i.Op {
	case CPY:
		if i.Src1 != nil {
			fn(i.Src1, &i.Src1)
		}
	case CVT, NEG, NOT:
		if i.Src1 != nil {
			fn(i.Src1, &i.Src1)
		}
	case LOAD:
		if i.Src1 != nil {
			fn(i.Src1, &i.Src1)
		}
	case STR:
		if i.Src1 != nil {
			fn(i.Src1, &i.Src1)
		}
		if i.Src2 != nil {
			fn(i.Src2, &i.Src2)
		}
	case MCPY:
		if i.Src1 != nil {
			fn(i.Src1, &i.Src1)
		}
		if i.Src2 != nil {
			fn(i.Src2, &i.Src2)
		}
	case BTRUE, BFALSE, MBR:
		if i.Src1 != nil {
			fn(i.Src1, &i.Src1)
		}
	case RET:
		if i.Src1 != nil {
			fn(i.Src1, &i.Src1)
		}
	case CALL:
		for idx := range i.Args {
			fn(i.Args[idx], &i.Args[idx])
		}
	default:
		if i.Op.IsBinary() {
			if i.Src1 != nil {
				fn(i.Src1, &i.Src1)
			}
			if i.Src2 != nil {
				fn(i.Src2, &i.Src2)
			}
		}
	}
}

// UsedRegisters returns every register the instruction uses, in order.
func (i *Instruction) UsedRegisters() []*Register {
	var out []*Register
	i.ForEachVarUse(func(r *Register, _ **Register) { out = append(out, r) })
	return out
}
