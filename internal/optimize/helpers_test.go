package optimize

import (
	"testing"

	"optopt/internal/diag"
	"optopt/internal/ir"
	"optopt/internal/passmgr"
)

func i32() ir.Type { return ir.Type{Tag: ir.SIGNED, Bits: 32} }

func temp(id int) *ir.Register   { return &ir.Register{ID: id, Kind: ir.TEMP, Type: i32()} }
func pseudo(id int) *ir.Register { return &ir.Register{ID: id, Kind: ir.PSEUDO, Type: i32()} }

func manager(t *testing.T, list *ir.List) (*passmgr.Manager, *diag.Sink) {
	t.Helper()
	sink := diag.NewSink()
	m := passmgr.NewManager(list, t.Name(), sink)
	return m, sink
}

func ops(list *ir.List) []ir.Opcode {
	var out []ir.Opcode
	for i := list.First(); i != nil; i = i.Next {
		out = append(out, i.Op)
	}
	return out
}

func find(list *ir.List, op ir.Opcode) []*ir.Instruction {
	var out []*ir.Instruction
	for i := list.First(); i != nil; i = i.Next {
		if i.Op == op {
			out = append(out, i)
		}
	}
	return out
}
