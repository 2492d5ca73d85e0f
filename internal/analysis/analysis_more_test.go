package analysis

import (
	"testing"

	"optopt/internal/cfg"
	"optopt/internal/diag"
	"optopt/internal/ir"
)

func i32() ir.Type { return ir.Type{Tag: ir.SIGNED, Bits: 32} }

func buildStraightLine(t *testing.T) (*cfg.CFG, *ir.Register, *ir.Register, *ir.Register) {
	t.Helper()
	r1 := &ir.Register{ID: 1, Kind: ir.PSEUDO, Type: i32()}
	r2 := &ir.Register{ID: 2, Kind: ir.PSEUDO, Type: i32()}
	r3 := &ir.Register{ID: 3, Kind: ir.PSEUDO, Type: i32()}

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Ldc(r1, 1))
	list.Append(ir.Ldc(r2, 2))
	list.Append(ir.Binary(ir.ADD, r3, r1, r2))
	list.Append(ir.Ret(r3))

	sink := diag.NewSink()
	g := cfg.Build(list, sink, "straight")
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %v", sink.Messages())
	}
	return g, r1, r2, r3
}

func TestReachingDefinitionsAtEntry(t *testing.T) {
	g, r1, r2, r3 := buildStraightLine(t)
	rd := BuildReachingDefinitions(g)

	b, _ := g.BlockFor("L0")
	ret := b.Last
	defs := rd.AtEntry(b, ret)
	if defs.Len() != 3 {
		t.Fatalf("expected 3 defs reaching ret, got %d", defs.Len())
	}
	var sawR1, sawR2, sawR3 bool
	for _, d := range defs.Items() {
		if d.Reg == r1 {
			sawR1 = true
		}
		if d.Reg == r2 {
			sawR2 = true
		}
		if d.Reg == r3 {
			sawR3 = true
		}
	}
	if !sawR1 || !sawR2 || !sawR3 {
		t.Fatalf("expected defs of r1, r2 and r3, got %v", defs.Items())
	}
}

func TestLiveUsesWithinBlock(t *testing.T) {
	g, r1, r2, _ := buildStraightLine(t)
	lu := BuildLiveUses(g)
	b, _ := g.BlockFor("L0")

	ldcR1 := b.First.Next // Ldc r1 (after LABEL)
	if !lu.IsLiveAfter(b, ldcR1, r1) {
		t.Error("r1 must be live immediately after its own definition (used by ADD)")
	}
	ldcR2 := ldcR1.Next
	if !lu.IsLiveAfter(b, ldcR2, r2) {
		t.Error("r2 must be live immediately after its own definition (used by ADD)")
	}
	if out := lu.LiveOut(b); len(out) != 0 {
		t.Errorf("nothing should be live past RET, got %v", out)
	}
}

func TestAvailableExpressionsCanonicalizesCommutativeOperands(t *testing.T) {
	r1 := &ir.Register{ID: 1, Kind: ir.PSEUDO, Type: i32()}
	r2 := &ir.Register{ID: 2, Kind: ir.PSEUDO, Type: i32()}
	r3 := &ir.Register{ID: 3, Kind: ir.PSEUDO, Type: i32()}
	r4 := &ir.Register{ID: 4, Kind: ir.PSEUDO, Type: i32()}

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	add1 := ir.Binary(ir.ADD, r3, r1, r2)
	add2 := ir.Binary(ir.ADD, r4, r2, r1) // same value, swapped operands
	list.Append(add1)
	list.Append(add2)
	list.Append(ir.Ret(r4))

	sink := diag.NewSink()
	g := cfg.Build(list, sink, "commute")
	ae := BuildAvailableExpressions(g)

	if ae.Registry.Count() != 1 {
		t.Fatalf("expected exactly one canonical expression id, got %d", ae.Registry.Count())
	}
	id := ae.IDFor(add1)
	if ae.IDFor(add2) != id {
		t.Error("ADD r1,r2 and ADD r2,r1 must canonicalize to the same id")
	}
	if len(ae.Registry.Occurrences(id)) != 2 {
		t.Errorf("expected 2 occurrences, got %d", len(ae.Registry.Occurrences(id)))
	}
}

func TestAvailableExpressionsKilledByRedefinition(t *testing.T) {
	r1 := &ir.Register{ID: 1, Kind: ir.PSEUDO, Type: i32()}
	r2 := &ir.Register{ID: 2, Kind: ir.PSEUDO, Type: i32()}
	r3 := &ir.Register{ID: 3, Kind: ir.PSEUDO, Type: i32()}

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	add := ir.Binary(ir.ADD, r3, r1, r2)
	list.Append(add)
	list.Append(ir.Ldc(r1, 99)) // redefines r1, kills the ADD
	list.Append(ir.Ret(r3))

	sink := diag.NewSink()
	g := cfg.Build(list, sink, "killed")
	ae := BuildAvailableExpressions(g)
	b, _ := g.BlockFor("L0")

	id := ae.IDFor(add)
	if ae.Out[b].Has(uint(id)) {
		t.Error("redefining r1 must remove the ADD from the available set")
	}
}

func buildLoopNeedingPreheader(t *testing.T) (*cfg.CFG, *diag.Sink) {
	t.Helper()
	r1 := &ir.Register{ID: 1, Kind: ir.PSEUDO, Type: i32()}

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Branch(ir.BTRUE, r1, "L1"))
	list.Append(ir.Label("LELSE"))
	list.Append(ir.Ret(nil))
	list.Append(ir.Label("L1"))
	list.Append(ir.Branch(ir.BTRUE, r1, "L3"))
	list.Append(ir.Label("L2"))
	list.Append(ir.Jmp("L1"))
	list.Append(ir.Label("L3"))
	list.Append(ir.Ret(nil))

	sink := diag.NewSink()
	g := cfg.Build(list, sink, "loopy")
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %v", sink.Messages())
	}
	return g, sink
}

func TestFindNaturalLoopsAndPreheaderSynthesis(t *testing.T) {
	g, sink := buildLoopNeedingPreheader(t)
	dom := BuildDominators(g)
	loops := FindNaturalLoops(g, dom)

	if len(loops) != 1 {
		t.Fatalf("expected exactly one natural loop, got %d", len(loops))
	}
	l1, _ := g.BlockFor("L1")
	l2, _ := g.BlockFor("L2")
	loop := loops[0]
	if loop.Header != l1 {
		t.Fatalf("expected header L1, got block %d", loop.Header.ID)
	}
	if !loop.Contains(l1) || !loop.Contains(l2) {
		t.Fatal("loop body must contain header and latch")
	}
	l0, _ := g.BlockFor("L0")
	if loop.Contains(l0) {
		t.Fatal("L0 is outside the loop and must not be in the body")
	}

	ph := EnsurePreheader(g, sink, "loopy", loop)
	if ph == l0 {
		t.Fatal("L0 has two successors so it cannot double as the pre-header; synthesis was required")
	}
	if len(ph.Succs) != 1 || ph.Succs[0] != l1 {
		t.Fatalf("pre-header must fall through to the header, got succs %v", ph.Succs)
	}
	foundRedirected := false
	for _, s := range l0.Succs {
		if s == ph {
			foundRedirected = true
		}
		if s == l1 {
			t.Fatal("L0 must no longer point directly at the header after preheader synthesis")
		}
	}
	if !foundRedirected {
		t.Fatal("L0 must now point at the synthesized pre-header")
	}

	backEdgeIntact := false
	for _, s := range l2.Succs {
		if s == l1 {
			backEdgeIntact = true
		}
	}
	if !backEdgeIntact {
		t.Fatal("the latch's back edge to the header must be left untouched")
	}
}
