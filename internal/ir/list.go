package ir

// List is the single-owner intrusive instruction list (Design Notes:
// "in-place linked-list instruction rewriting with no unique owner" is
// re-expressed as a single owner, here the List itself; the pass
// manager holds exactly one List per procedure and hands out
// non-owning *Instruction references to blocks and analyses).
type List struct {
	head, tail *Instruction
}

// NewList builds a List from an existing chain of instructions linked
// via Next/Prev (head may be nil for an empty procedure).
func NewList(head *Instruction) *List {
	l := &List{}
	if head == nil {
		return l
	}
	l.head = head
	cur := head
	cur.Prev = nil
	for cur.Next != nil {
		cur = cur.Next
	}
	l.tail = cur
	return l
}

func (l *List) First() *Instruction { return l.head }
func (l *List) Last() *Instruction  { return l.tail }
func (l *List) Empty() bool         { return l.head == nil }

// Append adds instr at the end of the list.
func (l *List) Append(instr *Instruction) {
	instr.Prev = l.tail
	instr.Next = nil
	if l.tail != nil {
		l.tail.Next = instr
	} else {
		l.head = instr
	}
	l.tail = instr
}

// InsertBefore splices instr immediately before mark. mark == nil
// appends at the end.
func (l *List) InsertBefore(mark, instr *Instruction) {
	if mark == nil {
		l.Append(instr)
		return
	}
	instr.Prev = mark.Prev
	instr.Next = mark
	if mark.Prev != nil {
		mark.Prev.Next = instr
	} else {
		l.head = instr
	}
	mark.Prev = instr
}

// InsertAfter splices instr immediately after mark.
func (l *List) InsertAfter(mark, instr *Instruction) {
	if mark == nil {
		l.Append(instr)
		return
	}
	instr.Next = mark.Next
	instr.Prev = mark
	if mark.Next != nil {
		mark.Next.Prev = instr
	} else {
		l.tail = instr
	}
	mark.Next = instr
}

// Unlink removes instr from the list. The node's own Next/Prev are left
// untouched so a transient worklist holding instr can still tell what
// used to neighbor it, but instr is no longer reachable by walking the
// list; per Design Notes, such worklists must be discarded at pass
// boundaries rather than reused after further edits.
func (l *List) Unlink(instr *Instruction) {
	if instr.Prev != nil {
		instr.Prev.Next = instr.Next
	} else {
		l.head = instr.Next
	}
	if instr.Next != nil {
		instr.Next.Prev = instr.Prev
	} else {
		l.tail = instr.Prev
	}
}

// Slice materializes the list into a slice for convenient iteration.
// Callers must not mutate list linkage while holding the slice.
func (l *List) Slice() []*Instruction {
	var out []*Instruction
	for i := l.head; i != nil; i = i.Next {
		out = append(out, i)
	}
	return out
}

// RemoveNops unlinks every NOP instruction from the list.
func (l *List) RemoveNops() {
	for i := l.head; i != nil; {
		next := i.Next
		if i.Op == NOP {
			l.Unlink(i)
		}
		i = next
	}
}
