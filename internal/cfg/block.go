// Package cfg builds the control flow graph from a linear instruction
// list: basic-block formation, successor/predecessor edges, and
// entry-reachability.
package cfg

import "optopt/internal/ir"

var nextBlockID uint64

func freshBlockID() uint64 {
	id := nextBlockID
	nextBlockID++
	return id
}

// Block is a basic block: a maximal straight-line run of instructions
// with one entry (a leading LABEL) and one exit (a control transfer,
// RET, or fall-through). ENTRY and EXIT are themselves Blocks with a
// nil First/Last (both nil iff the block is empty).
type Block struct {
	ID    uint64
	First *ir.Instruction
	Last  *ir.Instruction

	Preds []*Block
	Succs []*Block

	EntryReachable bool
	ExitReachable  bool

	isEntry, isExit bool
}

func newBlock() *Block {
	return &Block{ID: freshBlockID()}
}

// Empty reports whether the block holds no instructions.
func (b *Block) Empty() bool { return b.First == nil }

// IsEntry reports whether b is the CFG's distinguished ENTRY sentinel.
func (b *Block) IsEntry() bool { return b.isEntry }

// IsExit reports whether b is the CFG's distinguished EXIT sentinel.
func (b *Block) IsExit() bool { return b.isExit }

// Instructions returns the block's instructions in order. Empty blocks
// (including ENTRY/EXIT) return nil.
func (b *Block) Instructions() []*ir.Instruction {
	if b.Empty() {
		return nil
	}
	var out []*ir.Instruction
	for i := b.First; ; i = i.Next {
		out = append(out, i)
		if i == b.Last {
			break
		}
	}
	return out
}

// Label returns the block's leading label name, or "" for an empty
// block. Every non-empty block is normalized to begin with a
// LABEL, so this is always meaningful for non-empty blocks.
func (b *Block) Label() string {
	if b.Empty() || b.First.Op != ir.LABEL {
		return ""
	}
	return b.First.Label
}

// AddEdge wires b -> s as a CFG edge, maintaining both sides.
func AddEdge(b, s *Block) {
	for _, existing := range b.Succs {
		if existing == s {
			return
		}
	}
	b.Succs = append(b.Succs, s)
	s.Preds = append(s.Preds, b)
}

// RemoveEdge removes the b -> s CFG edge, if present.
func RemoveEdge(b, s *Block) {
	b.Succs = removeBlock(b.Succs, s)
	s.Preds = removeBlock(s.Preds, b)
}

func removeBlock(list []*Block, target *Block) []*Block {
	out := list[:0]
	for _, b := range list {
		if b != target {
			out = append(out, b)
		}
	}
	return out
}
