package cfg

import (
	"fmt"

	"optopt/internal/diag"
	"optopt/internal/ir"
)

// CFG is the control flow graph for one procedure: ENTRY precedes
// every real block, EXIT follows every real block.
type CFG struct {
	Entry  *Block
	Exit   *Block
	Blocks []*Block // real blocks only, in program order

	list   *ir.List
	labels map[string]*Block
}

// List returns the instruction list this CFG was built from. Blocks
// reference instructions owned by it; mutating the list (e.g. via a
// pass) requires a subsequent Relink to keep edges consistent.
func (g *CFG) List() *ir.List { return g.list }

// AllBlocks returns ENTRY, every real block in order, then EXIT.
func (g *CFG) AllBlocks() []*Block {
	out := make([]*Block, 0, len(g.Blocks)+2)
	out = append(out, g.Entry)
	out = append(out, g.Blocks...)
	out = append(out, g.Exit)
	return out
}

// BlockFor resolves a label to the block whose leading LABEL matches it.
func (g *CFG) BlockFor(label string) (*Block, bool) {
	b, ok := g.labels[label]
	return b, ok
}

var syntheticLabelCounter int

func freshSyntheticLabel() string {
	syntheticLabelCounter++
	return fmt.Sprintf(".BB%d", syntheticLabelCounter)
}

// Build splits list into normalized basic blocks and wires the CFG
//. list may be empty (nil head).
func Build(list *ir.List, sink *diag.Sink, procName string) *CFG {
	g := &CFG{list: list, labels: map[string]*Block{}}
	g.Entry = newBlock()
	g.Entry.isEntry = true
	g.Exit = newBlock()
	g.Exit.isExit = true

	g.Blocks = formBlocks(list)
	for _, b := range g.Blocks {
		if lbl := b.Label(); lbl != "" {
			g.labels[lbl] = b
		}
	}

	wireEdges(g, sink, procName)
	computeReachability(g)
	return g
}

// formBlocks partitions list into normalized blocks,
// synthesizing and splicing a fresh leading LABEL for any block that
// doesn't already start with one.
func formBlocks(list *ir.List) []*Block {
	instrs := list.Slice()
	if len(instrs) == 0 {
		return nil
	}

	leader := make([]bool, len(instrs))
	leader[0] = true
	for idx, in := range instrs {
		if in.Op == ir.LABEL {
			leader[idx] = true
		}
		if idx > 0 {
			prev := instrs[idx-1]
			if prev.Op.IsControlTransfer() || prev.Op == ir.RET {
				leader[idx] = true
			}
		}
	}

	var blocks []*Block
	start := 0
	for idx := 1; idx <= len(instrs); idx++ {
		if idx == len(instrs) || leader[idx] {
			blocks = append(blocks, makeBlock(list, instrs[start:idx]))
			start = idx
		}
	}
	return blocks
}

func makeBlock(list *ir.List, instrs []*ir.Instruction) *Block {
	b := newBlock()
	if instrs[0].Op != ir.LABEL {
		label := ir.Label(freshSyntheticLabel())
		list.InsertBefore(instrs[0], label)
		b.First = label
	} else {
		b.First = instrs[0]
	}
	b.Last = instrs[len(instrs)-1]
	return b
}

// wireEdges adds ENTRY/EXIT/fall-through/branch/MBR edges in block
// order.
func wireEdges(g *CFG, sink *diag.Sink, procName string) {
	if len(g.Blocks) == 0 {
		AddEdge(g.Entry, g.Exit)
		return
	}
	AddEdge(g.Entry, g.Blocks[0])

	resolve := func(label string) (*Block, bool) {
		b, ok := g.labels[label]
		return b, ok
	}

	for idx, b := range g.Blocks {
		var next *Block
		if idx+1 < len(g.Blocks) {
			next = g.Blocks[idx+1]
		} else {
			next = g.Exit
		}

		last := b.Last
		switch last.Op {
		case ir.JMP:
			if t, ok := resolve(last.Target); ok {
				AddEdge(b, t)
			} else {
				sink.Error(diag.CodeUndefinedLabel, procName, 0, "jump to undefined label %q", last.Target)
			}
		case ir.BTRUE, ir.BFALSE:
			if t, ok := resolve(last.Target); ok {
				AddEdge(b, t)
			} else {
				sink.Error(diag.CodeUndefinedLabel, procName, 0, "branch to undefined label %q", last.Target)
			}
			AddEdge(b, next)
		case ir.MBR:
			if t, ok := resolve(last.MBRDefault); ok {
				AddEdge(b, t)
			} else {
				sink.Error(diag.CodeUndefinedLabel, procName, 0, "mbr default to undefined label %q", last.MBRDefault)
			}
			for _, tl := range last.MBRTargets {
				if t, ok := resolve(tl); ok {
					AddEdge(b, t)
				} else {
					sink.Error(diag.CodeUndefinedLabel, procName, 0, "mbr target to undefined label %q", tl)
				}
			}
		case ir.RET:
			AddEdge(b, g.Exit)
		default:
			AddEdge(b, next)
		}
	}
}

// computeReachability runs the forward fixed-point entry-reachability
// closure: a block is entry-reachable iff it is ENTRY or
// any predecessor is entry-reachable.
func computeReachability(g *CFG) {
	all := g.AllBlocks()
	g.Entry.EntryReachable = true
	changed := true
	for changed {
		changed = false
		for _, b := range all {
			if b.EntryReachable {
				continue
			}
			for _, p := range b.Preds {
				if p.EntryReachable {
					b.EntryReachable = true
					changed = true
					break
				}
			}
		}
	}
}

// UnsafeInsertBlock splices a new block (with a normalized leading
// label) between prev and next in block order, stitching instruction
// list linkage but leaving successor/predecessor sets untouched — the
// caller must call Relink afterward. first/last may be the same
// instruction for a single-instruction block, or nil/nil for an empty
// block (LICM pre-headers start empty).
func (g *CFG) UnsafeInsertBlock(prev, next *Block, first, last *ir.Instruction) *Block {
	nb := newBlock()
	if first != nil && first.Op != ir.LABEL {
		label := ir.Label(freshSyntheticLabel())
		g.list.InsertBefore(first, label)
		first = label
	}
	nb.First = first
	nb.Last = last

	idx := len(g.Blocks)
	for i, b := range g.Blocks {
		if b == next {
			idx = i
			break
		}
	}
	newBlocks := make([]*Block, 0, len(g.Blocks)+1)
	newBlocks = append(newBlocks, g.Blocks[:idx]...)
	newBlocks = append(newBlocks, nb)
	newBlocks = append(newBlocks, g.Blocks[idx:]...)
	g.Blocks = newBlocks

	if lbl := nb.Label(); lbl != "" {
		g.labels[lbl] = nb
	}
	_ = prev
	return nb
}

// AppendToBlock appends instr as the new last instruction of b,
// synthesizing and splicing a leading LABEL first if b was empty. Used
// by pre-header synthesis to populate a block created via
// UnsafeInsertBlock(prev, next, nil, nil); the instruction list
// position is derived from b's position among g.Blocks (immediately
// before the following block's first instruction, or at the list tail
// if b is currently last).
func (g *CFG) AppendToBlock(b *Block, instr *ir.Instruction) {
	if !b.Empty() {
		g.list.InsertAfter(b.Last, instr)
		b.Last = instr
		return
	}

	var anchor *ir.Instruction
	for i, blk := range g.Blocks {
		if blk == b {
			for j := i + 1; j < len(g.Blocks); j++ {
				if !g.Blocks[j].Empty() {
					anchor = g.Blocks[j].First
					break
				}
			}
			break
		}
	}

	label := ir.Label(freshSyntheticLabel())
	if anchor != nil {
		g.list.InsertBefore(anchor, label)
		g.list.InsertBefore(anchor, instr)
	} else {
		g.list.Append(label)
		g.list.Append(instr)
	}
	b.First = label
	b.Last = instr
	g.labels[label.Label] = b
}

// Relink rebuilds successor/predecessor sets from the current
// instruction list and recomputes reachability.
func (g *CFG) Relink(sink *diag.Sink, procName string) {
	for _, b := range g.AllBlocks() {
		b.Preds = nil
		b.Succs = nil
		b.EntryReachable = false
		b.ExitReachable = false
	}
	g.labels = map[string]*Block{}
	for _, b := range g.Blocks {
		if lbl := b.Label(); lbl != "" {
			g.labels[lbl] = b
		}
	}
	wireEdges(g, sink, procName)
	computeReachability(g)
}
