package analysis

import (
	"testing"

	"optopt/internal/cfg"
	"optopt/internal/diag"
	"optopt/internal/ir"
)

// buildDiamond builds:
//
//	L0: btrue r1, L2
//	L1: jmp L3
//	L2: jmp L3
//	L3: ret
func buildDiamond(t *testing.T) *cfg.CFG {
	t.Helper()
	r1 := &ir.Register{ID: 1, Kind: ir.PSEUDO, Type: ir.Type{Tag: ir.SIGNED, Bits: 32}}
	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Branch(ir.BTRUE, r1, "L2"))
	list.Append(ir.Label("L1"))
	list.Append(ir.Jmp("L3"))
	list.Append(ir.Label("L2"))
	list.Append(ir.Jmp("L3"))
	list.Append(ir.Label("L3"))
	list.Append(ir.Ret(nil))

	sink := diag.NewSink()
	g := cfg.Build(list, sink, "diamond")
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %v", sink.Messages())
	}
	return g
}

func TestDominatorsDiamond(t *testing.T) {
	g := buildDiamond(t)
	dom := BuildDominators(g)

	l3, ok := g.BlockFor("L3")
	if !ok {
		t.Fatal("missing L3")
	}
	if !dom.Dominates(g.Entry, l3) {
		t.Error("ENTRY must dominate every reachable block")
	}
	l0, _ := g.BlockFor("L0")
	if !dom.Dominates(l0, l3) {
		t.Error("L0 must dominate L3 (every path passes through it)")
	}
	l1, _ := g.BlockFor("L1")
	if dom.Dominates(l1, l3) {
		t.Error("L1 must not dominate L3 (L2's path bypasses it)")
	}

	idom, ok := dom.ImmediateDominator(l3)
	if !ok || idom != l0 {
		t.Errorf("expected idom(L3) = L0, got %v (ok=%v)", idom, ok)
	}
}

func TestDominatorsUnreachableBlockDominatesItself(t *testing.T) {
	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Ret(nil))
	list.Append(ir.Label("DEAD"))
	list.Append(ir.Ret(nil))

	sink := diag.NewSink()
	g := cfg.Build(list, sink, "deadcode")
	dom := BuildDominators(g)

	dead, ok := g.BlockFor("DEAD")
	if !ok {
		t.Fatal("missing DEAD block")
	}
	if dead.EntryReachable {
		t.Fatal("DEAD should not be entry-reachable")
	}
	if !dom.Dominates(dead, dead) {
		t.Error("an unreachable block must still dominate itself")
	}
}
