package optimize

import (
	"testing"

	"optopt/internal/ir"
)

// CPY r2 <- r1; ADD r3 <- r2, r2 propagates to ADD r3 <- r1, r1.
func TestPropagateThroughCopy(t *testing.T) {
	r1, r2, r3 := pseudo(1), pseudo(2), pseudo(3)

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Cpy(r2, r1))
	add := ir.Binary(ir.ADD, r3, r2, r2)
	list.Append(add)
	list.Append(ir.Ret(r3))

	m, _ := manager(t, list)
	RunCopyPropagation(m)

	if add.Src1 != r1 || add.Src2 != r1 {
		t.Fatalf("uses of r2 should be rewritten to r1, got %v", add)
	}
}

// A use reached by two CPYs from different sources must not propagate.
func TestNoPropagationAcrossConflictingDefs(t *testing.T) {
	r1, r2, r3, r4, cond := pseudo(1), pseudo(2), pseudo(3), pseudo(4), pseudo(5)

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Branch(ir.BTRUE, cond, "other"))
	list.Append(ir.Label("one"))
	list.Append(ir.Cpy(r3, r1))
	list.Append(ir.Jmp("join"))
	list.Append(ir.Label("other"))
	list.Append(ir.Cpy(r3, r2))
	list.Append(ir.Label("join"))
	add := ir.Binary(ir.ADD, r4, r3, r3)
	list.Append(add)
	list.Append(ir.Ret(r4))

	m, _ := manager(t, list)
	RunCopyPropagation(m)

	if add.Src1 != r3 || add.Src2 != r3 {
		t.Fatalf("conflicting copy sources must not propagate, got %v", add)
	}
}

// TEMP copy sources are ineligible (only PSEUDO-to-PSEUDO propagates).
func TestNoPropagationFromTemp(t *testing.T) {
	t1 := temp(1)
	r2, r3 := pseudo(2), pseudo(3)

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Ldc(t1, 5))
	list.Append(ir.Cpy(r2, t1))
	add := ir.Binary(ir.ADD, r3, r2, r2)
	list.Append(add)
	list.Append(ir.Ret(r3))

	m, _ := manager(t, list)
	RunCopyPropagation(m)

	if add.Src1 != r2 || add.Src2 != r2 {
		t.Fatalf("a TEMP copy source must not propagate, got %v", add)
	}
}
