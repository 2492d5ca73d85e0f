// Package asm parses a textual three-address dialect into ir.List
// values, for tests and the demo CLI. The production entry point
// (driver.DoProcedure) receives instruction lists from an outer
// driver and never touches this package.
package asm

import (
	"fmt"

	"github.com/alecthomas/participle/v2"

	"optopt/internal/ir"
)

var parser = participle.MustBuild[Program](
	participle.Lexer(IRLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(3),
)

// ParseString parses source into its textual AST.
func ParseString(filename, source string) (*Program, error) {
	return parser.ParseString(filename, source)
}

// Assemble lowers one parsed procedure into an instruction list.
// Register names resolve to one ir.Register per distinct base name;
// the first mention's type suffix (e.g. t1.u16) fixes the type, later
// mentions may omit it. Untyped registers default to signed 32-bit.
func Assemble(p *Procedure) (*ir.List, error) {
	a := &assembler{regs: map[string]*ir.Register{}, nextID: 1}
	list := ir.NewList(nil)

	for _, line := range p.Lines {
		instr, err := a.lower(line)
		if err != nil {
			return nil, fmt.Errorf("proc %s: %w", p.Name, err)
		}
		if instr != nil {
			list.Append(instr)
		}
	}
	return list, nil
}

// AssembleAll parses source and assembles every procedure in it,
// returning name/list pairs in declaration order.
func AssembleAll(filename, source string) ([]AssembledProc, error) {
	prog, err := ParseString(filename, source)
	if err != nil {
		return nil, err
	}
	var out []AssembledProc
	for _, p := range prog.Procedures {
		list, err := Assemble(p)
		if err != nil {
			return nil, err
		}
		out = append(out, AssembledProc{Name: p.Name, List: list})
	}
	return out, nil
}

type AssembledProc struct {
	Name string
	List *ir.List
}

type assembler struct {
	regs   map[string]*ir.Register
	nextID int
}

func (a *assembler) reg(name string) (*ir.Register, error) {
	base := name
	suffix := ""
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			base, suffix = name[:i], name[i+1:]
			break
		}
	}
	if r, ok := a.regs[base]; ok {
		return r, nil
	}

	var kind ir.RegKind
	switch base[0] {
	case 't':
		kind = ir.TEMP
	case 'p':
		kind = ir.PSEUDO
	case 'm':
		kind = ir.MACHINE
	default:
		return nil, fmt.Errorf("bad register %q", name)
	}

	typ := ir.Type{Tag: ir.SIGNED, Bits: 32}
	if suffix != "" {
		t, err := parseType(suffix)
		if err != nil {
			return nil, fmt.Errorf("register %q: %w", name, err)
		}
		typ = t
	}

	r := &ir.Register{ID: a.nextID, Kind: kind, Type: typ}
	a.nextID++
	a.regs[base] = r
	return r, nil
}

func parseType(s string) (ir.Type, error) {
	if len(s) < 2 {
		return ir.Type{}, fmt.Errorf("bad type %q", s)
	}
	var tag ir.Tag
	switch s[0] {
	case 's':
		tag = ir.SIGNED
	case 'u':
		tag = ir.UNSIGNED
	case 'f':
		tag = ir.FLOAT
	case 'a':
		tag = ir.ADDRESS
	default:
		return ir.Type{}, fmt.Errorf("bad type %q", s)
	}
	bits := 0
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return ir.Type{}, fmt.Errorf("bad type %q", s)
		}
		bits = bits*10 + int(s[i]-'0')
	}
	return ir.Type{Tag: tag, Bits: bits}, nil
}

func (a *assembler) regList(names []string) ([]*ir.Register, error) {
	var out []*ir.Register
	for _, n := range names {
		r, err := a.reg(n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (a *assembler) lower(line *Line) (*ir.Instruction, error) {
	switch {
	case line.Label != nil:
		return ir.Label(line.Label.Name), nil

	case line.Jmp != nil:
		return ir.Jmp(line.Jmp.Target), nil

	case line.Br != nil:
		cond, err := a.reg(line.Br.Cond)
		if err != nil {
			return nil, err
		}
		op := ir.BTRUE
		if line.Br.Op == "bfalse" {
			op = ir.BFALSE
		}
		return ir.Branch(op, cond, line.Br.Target), nil

	case line.Mbr != nil:
		disc, err := a.reg(line.Mbr.Disc)
		if err != nil {
			return nil, err
		}
		return ir.Mbr(disc, line.Mbr.Default, line.Mbr.Targets), nil

	case line.Ret != nil:
		if line.Ret.Value == nil {
			return ir.Ret(nil), nil
		}
		val, err := a.reg(*line.Ret.Value)
		if err != nil {
			return nil, err
		}
		return ir.Ret(val), nil

	case line.Str != nil:
		addr, err := a.reg(line.Str.Addr)
		if err != nil {
			return nil, err
		}
		val, err := a.reg(line.Str.Val)
		if err != nil {
			return nil, err
		}
		return ir.Str(addr, val), nil

	case line.Mcpy != nil:
		dst, err := a.reg(line.Mcpy.Dst)
		if err != nil {
			return nil, err
		}
		src, err := a.reg(line.Mcpy.Src)
		if err != nil {
			return nil, err
		}
		return ir.Mcpy(dst, src), nil

	case line.Call != nil:
		args, err := a.regList(line.Call.Args)
		if err != nil {
			return nil, err
		}
		return ir.Call(nil, line.Call.Callee, args), nil

	case line.Nop != nil:
		return ir.Nop(), nil

	case line.Def != nil:
		return a.lowerDef(line.Def)
	}
	return nil, fmt.Errorf("empty line")
}

func (a *assembler) lowerDef(def *DefInstr) (*ir.Instruction, error) {
	dst, err := a.reg(def.Dst)
	if err != nil {
		return nil, err
	}
	rhs := def.Rhs

	switch {
	case rhs.Ldc != nil:
		if rhs.Ldc.Float != nil {
			v := *rhs.Ldc.Float
			if rhs.Ldc.Neg {
				v = -v
			}
			return ir.LdcFloat(dst, v), nil
		}
		v := *rhs.Ldc.Int
		if rhs.Ldc.Neg {
			v = -v
		}
		return ir.Ldc(dst, v), nil

	case rhs.Load != nil:
		addr, err := a.reg(rhs.Load.Addr)
		if err != nil {
			return nil, err
		}
		return ir.Load(dst, addr), nil

	case rhs.Call != nil:
		args, err := a.regList(rhs.Call.Args)
		if err != nil {
			return nil, err
		}
		return ir.Call(dst, rhs.Call.Callee, args), nil

	case rhs.Cvt != nil:
		typ, err := parseType(rhs.Cvt.Type)
		if err != nil {
			return nil, err
		}
		src, err := a.reg(rhs.Cvt.Src)
		if err != nil {
			return nil, err
		}
		return ir.Cvt(dst, typ, src), nil

	case rhs.Un != nil:
		src, err := a.reg(rhs.Un.Src)
		if err != nil {
			return nil, err
		}
		op := ir.NEG
		if rhs.Un.Op == "not" {
			op = ir.NOT
		}
		return ir.Unary(op, dst, src), nil

	case rhs.Bin != nil:
		l, err := a.reg(rhs.Bin.L)
		if err != nil {
			return nil, err
		}
		r, err := a.reg(rhs.Bin.R)
		if err != nil {
			return nil, err
		}
		op, ok := binOps[rhs.Bin.Op]
		if !ok {
			return nil, fmt.Errorf("bad binary op %q", rhs.Bin.Op)
		}
		return ir.Binary(op, dst, l, r), nil

	case rhs.Copy != nil:
		src, err := a.reg(rhs.Copy.Src)
		if err != nil {
			return nil, err
		}
		return ir.Cpy(dst, src), nil
	}
	return nil, fmt.Errorf("empty right-hand side for %s", def.Dst)
}

var binOps = map[string]ir.Opcode{
	"add": ir.ADD, "sub": ir.SUB, "mul": ir.MUL, "div": ir.DIV,
	"rem": ir.REM, "mod": ir.MOD, "and": ir.AND, "ior": ir.IOR,
	"xor": ir.XOR, "asr": ir.ASR, "lsl": ir.LSL, "lsr": ir.LSR,
	"rot": ir.ROT, "seq": ir.SEQ, "sne": ir.SNE, "sl": ir.SL,
	"sle": ir.SLE,
}

// Format renders a list back into the dialect's general shape, one
// instruction per line, for before/after dumps in cmd/optopt.
func Format(list *ir.List) string {
	out := ""
	for i := list.First(); i != nil; i = i.Next {
		if i.Op == ir.LABEL {
			out += i.String() + "\n"
		} else {
			out += "    " + i.String() + "\n"
		}
	}
	return out
}
