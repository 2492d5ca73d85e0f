package analysis

import (
	"optopt/internal/cfg"
	"optopt/internal/diag"
	"optopt/internal/ir"
)

// Loop is one natural loop: a header that dominates every
// latch (the tail of a back edge into it), and a body computed as the
// set of blocks that can reach a latch without passing through the
// header. Loops sharing a header are merged into one (multiple
// back edges into the same header are common with "continue"-style
// control flow).
type Loop struct {
	Header    *cfg.Block
	Latches   []*cfg.Block
	Body      map[*cfg.Block]bool // includes Header
	Preheader *cfg.Block          // nil until EnsurePreheader runs
}

// Contains reports whether b is part of the loop body (including the
// header).
func (l *Loop) Contains(b *cfg.Block) bool { return l.Body[b] }

// FindNaturalLoops walks every CFG edge looking for back edges (n -> h
// where h dominates n) and reconstructs each one's natural loop body
//.
func FindNaturalLoops(g *cfg.CFG, dom *Dominators) []*Loop {
	byHeader := map[*cfg.Block]*Loop{}
	var order []*cfg.Block

	for _, n := range g.AllBlocks() {
		for _, h := range n.Succs {
			if !dom.Dominates(h, n) {
				continue
			}
			l, ok := byHeader[h]
			if !ok {
				l = &Loop{Header: h, Body: map[*cfg.Block]bool{h: true}}
				byHeader[h] = l
				order = append(order, h)
			}
			l.Latches = append(l.Latches, n)
			growBody(l, n)
		}
	}

	out := make([]*Loop, 0, len(order))
	for _, h := range order {
		out = append(out, byHeader[h])
	}
	return out
}

// growBody extends l.Body backward from latch, stopping at blocks
// already in the body (including the header itself).
func growBody(l *Loop, latch *cfg.Block) {
	if l.Body[latch] {
		return
	}
	worklist := []*cfg.Block{latch}
	l.Body[latch] = true
	for len(worklist) > 0 {
		m := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, p := range m.Preds {
			if !l.Body[p] {
				l.Body[p] = true
				worklist = append(worklist, p)
			}
		}
	}
}

// EnsurePreheader synthesizes (or returns the existing) pre-header for
// l: a block placed immediately before the header, receiving every
// edge into the header that originates outside the loop body, so
// loop-invariant code can be hoisted to a point that executes exactly
// once per loop entry.
func EnsurePreheader(g *cfg.CFG, sink *diag.Sink, procName string, l *Loop) *cfg.Block {
	if l.Preheader != nil {
		return l.Preheader
	}

	external := externalPreds(l)
	if len(external) == 1 && isSingletonFallthroughCandidate(g, external[0], l.Header) {
		// A single external predecessor whose only successor is the
		// header is already a valid pre-header; no synthesis needed.
		l.Preheader = external[0]
		return l.Preheader
	}

	// A loop tail sitting immediately before the header reaches it by
	// default fall-through; splicing the pre-header in between would put
	// the pre-header on the back edge, executed every iteration. Give
	// such a tail an explicit route to the header first.
	if tail := fallthroughTail(g, l); tail != nil {
		patchLoopTail(g, l, tail)
	}

	ph := g.UnsafeInsertBlock(nil, l.Header, nil, nil)
	g.AppendToBlock(ph, ir.Nop())
	phLabel := ph.Label()

	for _, p := range external {
		retargetEdge(p, l.Header.Label(), phLabel)
	}

	g.Relink(sink, procName)
	l.Preheader = ph
	return ph
}

// fallthroughTail returns the loop-body block that sits immediately
// before the header in block order and can enter it by fall-through
// (its last instruction is neither JMP, MBR nor RET), or nil if no
// such block exists.
func fallthroughTail(g *cfg.CFG, l *Loop) *cfg.Block {
	var prev *cfg.Block
	for _, b := range g.Blocks {
		if b == l.Header {
			break
		}
		prev = b
	}
	if prev == nil || !l.Body[prev] || prev.Empty() {
		return nil
	}
	switch prev.Last.Op {
	case ir.JMP, ir.MBR, ir.RET:
		return nil
	}
	return prev
}

// patchLoopTail reroutes tail's fall-through into the header through
// an explicit jump, so the pre-header about to be spliced between them
// stays off the back edge. A tail ending in a conditional branch gets
// a fresh JMP-only block between itself and the header (the branch
// must stay the block's last instruction); any other tail gets the JMP
// appended in place.
func patchLoopTail(g *cfg.CFG, l *Loop, tail *cfg.Block) {
	jmp := ir.Jmp(l.Header.Label())
	switch tail.Last.Op {
	case ir.BTRUE, ir.BFALSE:
		nb := g.UnsafeInsertBlock(tail, l.Header, nil, nil)
		g.AppendToBlock(nb, jmp)
		l.Body[nb] = true
	default:
		g.AppendToBlock(tail, jmp)
	}
}

func externalPreds(l *Loop) []*cfg.Block {
	var out []*cfg.Block
	for _, p := range l.Header.Preds {
		if !l.Body[p] {
			out = append(out, p)
		}
	}
	return out
}

func isSingletonFallthroughCandidate(g *cfg.CFG, cand, header *cfg.Block) bool {
	return len(cand.Succs) == 1 && cand.Succs[0] == header && !cand.IsEntry()
}

// retargetEdge rewrites p's single edge into oldLabel (the header) to
// point at newLabel (the pre-header) instead, by editing whichever
// branch/jump/MBR field named oldLabel. g.Relink re-derives the actual
// CFG edges from these labels afterward.
func retargetEdge(p *cfg.Block, oldLabel, newLabel string) {
	last := p.Last
	if last == nil {
		return
	}
	switch last.Op {
	case ir.JMP, ir.BTRUE, ir.BFALSE:
		if last.Target == oldLabel {
			last.Target = newLabel
		}
	case ir.MBR:
		if last.MBRDefault == oldLabel {
			last.MBRDefault = newLabel
		}
		for i, t := range last.MBRTargets {
			if t == oldLabel {
				last.MBRTargets[i] = newLabel
			}
		}
	}
}
