package opsem

import (
	"testing"

	"optopt/internal/ir"
)

func TestModIsEuclidean(t *testing.T) {
	cases := []struct{ a, b, want int64 }{
		{7, 3, 1},
		{-7, 3, 2},
		{7, -3, 1},
		{-7, -3, 2},
	}
	for _, c := range cases {
		if got := Mod(c.a, c.b); got != c.want {
			t.Errorf("Mod(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestLogicalShiftCollapsesAtWidth(t *testing.T) {
	if got := LogicalShiftRight(0xFF, 8, 8); got != 0 {
		t.Errorf("shift >= width must collapse to 0, got %d", got)
	}
	if got := LogicalShiftRight(0x80, 4, 8); got != 0x08 {
		t.Errorf("expected 0x08, got %#x", got)
	}
}

func TestArithmeticShiftRightSignFills(t *testing.T) {
	neg := int64(int8(-128)) // 0x80 as an 8-bit signed value
	if got := ArithmeticShiftRight(neg&0xFF, 4, 8); got != -8 {
		t.Errorf("expected -8, got %d", got)
	}
	if got := ArithmeticShiftRight(neg&0xFF, 8, 8); got != -1 {
		t.Errorf("shift >= width on negative value must collapse to -1, got %d", got)
	}
	if got := ArithmeticShiftRight(0x40, 8, 8); got != 0 {
		t.Errorf("shift >= width on non-negative value must collapse to 0, got %d", got)
	}
}

func TestRotate(t *testing.T) {
	if got := Rotate(0x01, 1, 8); got != 0x02 {
		t.Errorf("rotate left by 1: got %#x", got)
	}
	if got := Rotate(0x01, -1, 8); got != 0x80 {
		t.Errorf("rotate right by 1: got %#x", got)
	}
	if got := Rotate(0x55, 0, 8); got != 0x55 {
		t.Errorf("rotate by 0 must be identity, got %#x", got)
	}
}

func TestFoldBinaryDivisionByZero(t *testing.T) {
	i32 := ir.Type{Tag: ir.SIGNED, Bits: 32}
	l := IntConcrete(i32, 10)
	r := IntConcrete(i32, 0)
	if _, ok, err := FoldBinary(ir.DIV, l, r, i32); ok || err != ErrDivisionByZero {
		t.Fatalf("expected division-by-zero error, got ok=%v err=%v", ok, err)
	}
}

func TestFoldBinaryUnsignedDivideAndCompare(t *testing.T) {
	u8 := ir.Type{Tag: ir.UNSIGNED, Bits: 8}
	l := IntConcrete(u8, -1) // all-ones, i.e. 255 unsigned
	r := IntConcrete(u8, 2)
	res, ok, err := FoldBinary(ir.DIV, l, r, u8)
	if !ok || err != nil {
		t.Fatalf("unexpected failure: ok=%v err=%v", ok, err)
	}
	if res.Int != 127 {
		t.Errorf("255/2 unsigned should be 127, got %d", res.Int)
	}
}

func TestFoldBinaryBitwiseOnFloatIsIllegal(t *testing.T) {
	f64 := ir.Type{Tag: ir.FLOAT, Bits: 64}
	l := FloatConcrete(f64, 1.5)
	r := FloatConcrete(f64, 2.5)
	if _, ok, _ := FoldBinary(ir.AND, l, r, f64); ok {
		t.Fatal("bitwise AND on floats must be illegal")
	}
}

func TestResolveMBRSignedOutOfRangeUsesDefault(t *testing.T) {
	i32 := ir.Type{Tag: ir.SIGNED, Bits: 32}
	disc := IntConcrete(i32, -1)
	targets := []string{"L0", "L1"}
	if got := ResolveMBR(disc, targets, "DEF"); got != "DEF" {
		t.Errorf("negative signed discriminant must hit default, got %q", got)
	}
}

func TestResolveMBRUnsignedInRange(t *testing.T) {
	u32 := ir.Type{Tag: ir.UNSIGNED, Bits: 32}
	disc := IntConcrete(u32, 1)
	targets := []string{"L0", "L1"}
	if got := ResolveMBR(disc, targets, "DEF"); got != "L1" {
		t.Errorf("expected L1, got %q", got)
	}
}
