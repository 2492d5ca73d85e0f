package optimize

import (
	"testing"

	"optopt/internal/diag"
	"optopt/internal/ir"
)

// Two constant TEMPs feeding an ADD into a PSEUDO fold to a single
// materialization of 7 (LDC to a fresh TEMP, CPY into the PSEUDO).
func TestFoldBinaryIntoPseudo(t *testing.T) {
	t1, t2 := temp(1), temp(2)
	p1 := pseudo(3)

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Ldc(t1, 3))
	list.Append(ir.Ldc(t2, 4))
	add := ir.Binary(ir.ADD, p1, t1, t2)
	list.Append(add)
	list.Append(ir.Ret(p1))

	m, sink := manager(t, list)
	RunConstantFolding(m)

	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %v", sink.Messages())
	}
	if add.Op != ir.CPY {
		t.Fatalf("folded ADD should become CPY, got %v", add.Op)
	}
	ldc := add.Prev
	if ldc.Op != ir.LDC || ldc.ImmInt != 7 {
		t.Fatalf("expected LDC 7 before the CPY, got %v", ldc)
	}
	if ldc.Dst.Kind != ir.TEMP || add.Src1 != ldc.Dst {
		t.Errorf("CPY should read the fresh TEMP holding 7")
	}
}

// A TEMP destination folds in place: the ADD itself becomes LDC 7.
func TestFoldBinaryIntoTempInPlace(t *testing.T) {
	t1, t2, t3 := temp(1), temp(2), temp(3)
	p1 := pseudo(4)

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Ldc(t1, 3))
	list.Append(ir.Ldc(t2, 4))
	add := ir.Binary(ir.ADD, t3, t1, t2)
	list.Append(add)
	list.Append(ir.Cpy(p1, t3))
	list.Append(ir.Ret(p1))

	m, _ := manager(t, list)
	RunConstantFolding(m)

	if add.Op != ir.LDC || add.ImmInt != 7 || add.Dst != t3 {
		t.Fatalf("ADD into TEMP should rewrite in place to LDC 7, got %v", add)
	}
}

// Division by a known zero emits a warning and leaves the DIV alone.
func TestDivisionByZeroWarns(t *testing.T) {
	t1, t2 := temp(1), temp(2)
	p1 := pseudo(3)

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Ldc(t1, 10))
	list.Append(ir.Ldc(t2, 0))
	div := ir.Binary(ir.DIV, p1, t1, t2)
	list.Append(div)
	list.Append(ir.Ret(p1))

	m, sink := manager(t, list)
	RunConstantFolding(m)

	if div.Op != ir.DIV {
		t.Fatalf("DIV by zero must stay unchanged, got %v", div.Op)
	}
	warned := false
	for _, msg := range sink.Messages() {
		if msg.Severity == diag.SeverityWarning {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected a division-by-zero warning")
	}
}

// Duplicate LDCs of the same constant in one block combine: the first
// survives (retargeted through a fresh PSEUDO), the rest become NOPs
// and their uses are remapped.
func TestLDCCombining(t *testing.T) {
	t1, t2 := temp(1), temp(2)
	p1 := pseudo(3)

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	first := ir.Ldc(t1, 5)
	second := ir.Ldc(t2, 5)
	list.Append(first)
	list.Append(second)
	add := ir.Binary(ir.ADD, p1, t1, t2)
	list.Append(add)
	list.Append(ir.Ret(p1))

	m, _ := manager(t, list)
	RunConstantFolding(m)

	if second.Op != ir.NOP {
		t.Fatalf("duplicate LDC should be NOPed, got %v", second.Op)
	}
	if first.Op != ir.LDC || first.Dst.Kind != ir.PSEUDO {
		t.Fatalf("surviving LDC should target a fresh PSEUDO, got %v", first)
	}
	restore := first.Next
	if restore.Op != ir.CPY || restore.Dst != t1 || restore.Src1 != first.Dst {
		t.Fatalf("expected CPY restoring the original destination, got %v", restore)
	}
	if add.Src2 != first.Dst {
		t.Errorf("use of the NOPed LDC's destination not remapped: %v", add)
	}
}

// BTRUE with a known-true condition becomes JMP; known-false becomes NOP.
func TestBranchFolding(t *testing.T) {
	t1, t2 := temp(1), temp(2)
	p1 := pseudo(3)

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Ldc(t1, 1))
	taken := ir.Branch(ir.BTRUE, t1, "target")
	list.Append(taken)
	list.Append(ir.Label("mid"))
	list.Append(ir.Ldc(t2, 0))
	notTaken := ir.Branch(ir.BTRUE, t2, "target")
	list.Append(notTaken)
	list.Append(ir.Label("target"))
	list.Append(ir.Ret(p1))

	m, _ := manager(t, list)
	RunConstantFolding(m)

	if taken.Op != ir.JMP || taken.Target != "target" {
		t.Errorf("known-true BTRUE should fold to JMP, got %v", taken)
	}
	if notTaken.Op != ir.NOP {
		t.Errorf("known-false BTRUE should fold to NOP, got %v", notTaken)
	}
}

// MBR with a known discriminant folds to a JMP at the indexed target;
// out-of-range picks the default.
func TestMBRFolding(t *testing.T) {
	t1 := temp(1)
	p1 := pseudo(2)

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Ldc(t1, 1))
	mbr := ir.Mbr(t1, "deflab", []string{"a", "b"})
	list.Append(mbr)
	list.Append(ir.Label("a"))
	list.Append(ir.Jmp("deflab"))
	list.Append(ir.Label("b"))
	list.Append(ir.Jmp("deflab"))
	list.Append(ir.Label("deflab"))
	list.Append(ir.Ret(p1))

	m, _ := manager(t, list)
	RunConstantFolding(m)

	if mbr.Op != ir.JMP || mbr.Target != "b" {
		t.Fatalf("MBR with discriminant 1 should fold to JMP b, got %v -> %q", mbr.Op, mbr.Target)
	}
}
