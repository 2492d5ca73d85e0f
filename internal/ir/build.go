package ir

// Convenience constructors used by the textual assembler (internal/asm)
// and by tests that build procedures directly.

func Label(name string) *Instruction {
	i := NewInstruction(LABEL)
	i.Label = name
	return i
}

func Jmp(target string) *Instruction {
	i := NewInstruction(JMP)
	i.Target = target
	return i
}

func Branch(op Opcode, cond *Register, target string) *Instruction {
	i := NewInstruction(op)
	i.Src1 = cond
	i.Target = target
	return i
}

func Mbr(discriminant *Register, deflab string, targets []string) *Instruction {
	i := NewInstruction(MBR)
	i.Src1 = discriminant
	i.MBRDefault = deflab
	i.MBRTargets = targets
	return i
}

func Ret(val *Register) *Instruction {
	i := NewInstruction(RET)
	i.Src1 = val
	return i
}

func Call(dst *Register, callee string, args []*Register) *Instruction {
	i := NewInstruction(CALL)
	i.Dst = dst
	i.Callee = callee
	i.Args = args
	if dst != nil {
		i.Result = dst.Type
	}
	return i
}

func Ldc(dst *Register, imm int64) *Instruction {
	i := NewInstruction(LDC)
	i.Dst = dst
	i.ImmInt = imm
	i.Result = dst.Type
	return i
}

func LdcFloat(dst *Register, imm float64) *Instruction {
	i := NewInstruction(LDC)
	i.Dst = dst
	i.ImmFloat = imm
	i.ImmIsFloat = true
	i.Result = dst.Type
	return i
}

func Load(dst *Register, addr *Register) *Instruction {
	i := NewInstruction(LOAD)
	i.Dst = dst
	i.Src1 = addr
	i.Result = dst.Type
	return i
}

func Str(addr, val *Register) *Instruction {
	i := NewInstruction(STR)
	i.Src1 = addr
	i.Src2 = val
	return i
}

func Mcpy(dstAddr, srcAddr *Register) *Instruction {
	i := NewInstruction(MCPY)
	i.Src1 = dstAddr
	i.Src2 = srcAddr
	return i
}

func Cpy(dst, src *Register) *Instruction {
	i := NewInstruction(CPY)
	i.Dst = dst
	i.Src1 = src
	i.Result = dst.Type
	return i
}

func Cvt(dst *Register, destType Type, src *Register) *Instruction {
	i := NewInstruction(CVT)
	i.Dst = dst
	i.Src1 = src
	i.Result = destType
	return i
}

func Unary(op Opcode, dst, src *Register) *Instruction {
	i := NewInstruction(op)
	i.Dst = dst
	i.Src1 = src
	i.Result = dst.Type
	return i
}

func Binary(op Opcode, dst, left, right *Register) *Instruction {
	i := NewInstruction(op)
	i.Dst = dst
	i.Src1 = left
	i.Src2 = right
	i.Result = dst.Type
	return i
}

func Nop() *Instruction { return NewInstruction(NOP) }
