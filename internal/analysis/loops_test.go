package analysis

import (
	"testing"

	"optopt/internal/cfg"
	"optopt/internal/diag"
	"optopt/internal/ir"
)

// buildFallthroughTailLoop builds a loop whose tail sits immediately
// before the header and enters it by default fall-through, with two
// external predecessors so pre-header synthesis is forced:
//
//	L0:    btrue p9, L1    (falls through to the jmp block)
//	       jmp head
//	L1:    jmp head
//	tail:  p2 = add p3, p4 (falls through into head)
//	head:  btrue p1, tail
//	out:   ret
func buildFallthroughTailLoop(t *testing.T) (*cfg.CFG, *diag.Sink) {
	t.Helper()
	p9 := &ir.Register{ID: 9, Kind: ir.PSEUDO, Type: i32()}
	p1 := &ir.Register{ID: 1, Kind: ir.PSEUDO, Type: i32()}
	p2 := &ir.Register{ID: 2, Kind: ir.PSEUDO, Type: i32()}
	p3 := &ir.Register{ID: 3, Kind: ir.PSEUDO, Type: i32()}
	p4 := &ir.Register{ID: 4, Kind: ir.PSEUDO, Type: i32()}

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Branch(ir.BTRUE, p9, "L1"))
	list.Append(ir.Jmp("head"))
	list.Append(ir.Label("L1"))
	list.Append(ir.Jmp("head"))
	list.Append(ir.Label("tail"))
	list.Append(ir.Binary(ir.ADD, p2, p3, p4))
	list.Append(ir.Label("head"))
	list.Append(ir.Branch(ir.BTRUE, p1, "tail"))
	list.Append(ir.Label("out"))
	list.Append(ir.Ret(nil))

	sink := diag.NewSink()
	g := cfg.Build(list, sink, "falltail")
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %v", sink.Messages())
	}
	return g, sink
}

func hasSucc(b, s *cfg.Block) bool {
	for _, x := range b.Succs {
		if x == s {
			return true
		}
	}
	return false
}

func TestPreheaderStaysOffFallthroughBackEdge(t *testing.T) {
	g, sink := buildFallthroughTailLoop(t)
	dom := BuildDominators(g)
	loops := FindNaturalLoops(g, dom)
	if len(loops) != 1 {
		t.Fatalf("expected one loop, got %d", len(loops))
	}
	loop := loops[0]
	head, _ := g.BlockFor("head")
	tail, _ := g.BlockFor("tail")
	if loop.Header != head || !loop.Contains(tail) {
		t.Fatalf("loop shape wrong: header=%v", loop.Header.Label())
	}

	ph := EnsurePreheader(g, sink, "falltail", loop)

	// The tail now reaches the header through an explicit jump; the
	// pre-header is not on the back edge.
	if tail.Last.Op != ir.JMP || tail.Last.Target != "head" {
		t.Fatalf("tail should end in an explicit JMP to the header, got %v", tail.Last)
	}
	if hasSucc(tail, ph) {
		t.Fatal("tail must not enter the pre-header")
	}
	if !hasSucc(tail, head) {
		t.Fatal("tail lost its back edge to the header")
	}
	if len(ph.Succs) != 1 || ph.Succs[0] != head {
		t.Fatalf("pre-header must fall through to the header, got %v", ph.Succs)
	}

	// Both external predecessors were rerouted through the pre-header.
	for _, p := range head.Preds {
		if p != ph && !loop.Contains(p) {
			t.Fatalf("non-loop predecessor %q still enters the header directly", p.Label())
		}
	}
}

// A tail ending in a conditional branch can't just grow a trailing
// JMP; a fresh jump-only block must carry the rerouted fall-through.
func TestPreheaderWithConditionalFallthroughTail(t *testing.T) {
	p9 := &ir.Register{ID: 9, Kind: ir.PSEUDO, Type: i32()}
	p1 := &ir.Register{ID: 1, Kind: ir.PSEUDO, Type: i32()}
	p2 := &ir.Register{ID: 2, Kind: ir.PSEUDO, Type: i32()}

	list := ir.NewList(nil)
	list.Append(ir.Label("L0"))
	list.Append(ir.Branch(ir.BTRUE, p9, "L1"))
	list.Append(ir.Jmp("head"))
	list.Append(ir.Label("L1"))
	list.Append(ir.Jmp("head"))
	list.Append(ir.Label("tail"))
	cond := ir.Branch(ir.BTRUE, p1, "out")
	list.Append(cond)
	list.Append(ir.Label("head"))
	list.Append(ir.Branch(ir.BTRUE, p2, "tail"))
	list.Append(ir.Label("out"))
	list.Append(ir.Ret(nil))

	sink := diag.NewSink()
	g := cfg.Build(list, sink, "condtail")
	if sink.HasErrors() {
		t.Fatalf("unexpected errors: %v", sink.Messages())
	}
	dom := BuildDominators(g)
	loops := FindNaturalLoops(g, dom)
	if len(loops) != 1 {
		t.Fatalf("expected one loop, got %d", len(loops))
	}
	loop := loops[0]

	ph := EnsurePreheader(g, sink, "condtail", loop)

	head, _ := g.BlockFor("head")
	tail, _ := g.BlockFor("tail")
	out, _ := g.BlockFor("out")

	// The conditional stays the tail's last instruction; its
	// fall-through lands on a jump-only block that carries the back
	// edge around the pre-header.
	if tail.Last != cond {
		t.Fatalf("tail's conditional must stay in place, got %v", tail.Last)
	}
	var bridge *cfg.Block
	for _, s := range tail.Succs {
		if s != out {
			bridge = s
		}
	}
	if bridge == nil || bridge == ph || bridge == head {
		t.Fatalf("tail's fall-through should land on a jump-only bridge block, got %v", tail.Succs)
	}
	if bridge.Last.Op != ir.JMP || bridge.Last.Target != "head" {
		t.Fatalf("bridge block must JMP to the header, got %v", bridge.Last)
	}
	if len(ph.Succs) != 1 || ph.Succs[0] != head {
		t.Fatalf("pre-header must fall through to the header, got %v", ph.Succs)
	}
	if hasSucc(tail, ph) {
		t.Fatal("tail must not enter the pre-header")
	}
}
