package ir

import "testing"

func TestForEachVarDefBinary(t *testing.T) {
	r1 := &Register{ID: 1, Kind: TEMP, Type: Type{Tag: SIGNED, Bits: 32}}
	r2 := &Register{ID: 2, Kind: TEMP, Type: Type{Tag: SIGNED, Bits: 32}}
	r3 := &Register{ID: 3, Kind: TEMP, Type: Type{Tag: SIGNED, Bits: 32}}
	add := Binary(ADD, r3, r1, r2)

	var defs []*Register
	add.ForEachVarDef(func(r *Register, _ **Register) { defs = append(defs, r) })
	if len(defs) != 1 || defs[0] != r3 {
		t.Fatalf("expected single def r3, got %v", defs)
	}

	var uses []*Register
	add.ForEachVarUse(func(r *Register, _ **Register) { uses = append(uses, r) })
	if len(uses) != 2 || uses[0] != r1 || uses[1] != r2 {
		t.Fatalf("expected uses [r1 r2], got %v", uses)
	}
}

func TestForEachVarUseStr(t *testing.T) {
	addr := &Register{ID: 1, Kind: PSEUDO, Type: Type{Tag: ADDRESS, Bits: 64}}
	val := &Register{ID: 2, Kind: PSEUDO, Type: Type{Tag: SIGNED, Bits: 32}}
	str := Str(addr, val)

	if d := str.DefinedRegister(); d != nil {
		t.Fatalf("STR must not define a register, got %v", d)
	}
	uses := str.UsedRegisters()
	if len(uses) != 2 || uses[0] != addr || uses[1] != val {
		t.Fatalf("expected uses [addr val], got %v", uses)
	}
}

func TestForEachVarUseCall(t *testing.T) {
	a1 := &Register{ID: 1, Kind: PSEUDO}
	a2 := &Register{ID: 2, Kind: PSEUDO}
	dst := &Register{ID: 3, Kind: PSEUDO}
	call := Call(dst, "foo", []*Register{a1, a2})

	if call.DefinedRegister() != dst {
		t.Fatalf("expected call to define dst")
	}
	uses := call.UsedRegisters()
	if len(uses) != 2 || uses[0] != a1 || uses[1] != a2 {
		t.Fatalf("expected uses [a1 a2], got %v", uses)
	}
}

func TestIsExpressionExcludesLdcLoadCallCpy(t *testing.T) {
	dst := &Register{ID: 1, Kind: TEMP}
	cases := []*Instruction{
		Ldc(dst, 3),
		Load(dst, dst),
		Call(dst, "f", nil),
		Cpy(dst, dst),
	}
	for _, inst := range cases {
		if inst.IsExpression() {
			t.Errorf("%s should not be eligible as an available expression", inst.Op)
		}
	}
	if add := Binary(ADD, dst, dst, dst); !add.IsExpression() {
		t.Error("ADD should be eligible as an available expression")
	}
}

func TestInstructionIdentityIsStable(t *testing.T) {
	a := Nop()
	b := Nop()
	if a.ID() == b.ID() {
		t.Fatal("distinct instructions must have distinct identities")
	}
	if a.ID() != a.ID() {
		t.Fatal("identity must be stable across repeated reads")
	}
}
