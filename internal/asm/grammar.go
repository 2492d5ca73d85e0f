package asm

// Participle grammar for the textual three-address dialect used by
// tests and cmd/optopt to load fixture procedures. The core itself
// never parses text (IR file I/O is an explicit non-goal); this is
// tooling around it.

type Program struct {
	Procedures []*Procedure `@@*`
}

type Procedure struct {
	Name  string  `"proc" @Ident "{"`
	Lines []*Line `@@* "}"`
}

type Line struct {
	Label *LabelDef  `  @@`
	Def   *DefInstr  `| @@`
	Jmp   *JmpInstr  `| @@`
	Br    *BrInstr   `| @@`
	Mbr   *MbrInstr  `| @@`
	Ret   *RetInstr  `| @@`
	Str   *StrInstr  `| @@`
	Mcpy  *McpyInstr `| @@`
	Call  *CallStmt  `| @@`
	Nop   *NopInstr  `| @@`
}

type LabelDef struct {
	Name string `@Ident ":"`
}

// DefInstr is any instruction of the form "dst = <rhs>".
type DefInstr struct {
	Dst string `@Register "="`
	Rhs *Rhs   `@@`
}

type Rhs struct {
	Ldc  *LdcRhs  `  @@`
	Load *LoadRhs `| @@`
	Call *CallRhs `| @@`
	Cvt  *CvtRhs  `| @@`
	Un   *UnRhs   `| @@`
	Bin  *BinRhs  `| @@`
	Copy *CopyRhs `| @@`
}

type LdcRhs struct {
	Neg   bool     `"ldc" @"-"?`
	Float *float64 `( @Float`
	Int   *int64   `| @Integer )`
}

type LoadRhs struct {
	Addr string `"load" "[" @Register "]"`
}

type CallRhs struct {
	Callee string   `"call" @Ident "("`
	Args   []string `( @Register ( "," @Register )* )? ")"`
}

// CvtRhs converts a register to the named type, e.g. "t2 = cvt u16, t1".
type CvtRhs struct {
	Type string `"cvt" @Ident ","`
	Src  string `@Register`
}

type UnRhs struct {
	Op  string `@("neg" | "not")`
	Src string `@Register`
}

type BinRhs struct {
	Op string `@("add" | "sub" | "mul" | "div" | "rem" | "mod" | "and" | "ior" | "xor" | "asr" | "lsl" | "lsr" | "rot" | "seq" | "sne" | "sle" | "sl")`
	L  string `@Register ","`
	R  string `@Register`
}

type CopyRhs struct {
	Src string `@Register`
}

// CallStmt is a call in statement position (no destination register).
type CallStmt struct {
	Callee string   `"call" @Ident "("`
	Args   []string `( @Register ( "," @Register )* )? ")"`
}

type JmpInstr struct {
	Target string `"jmp" @Ident`
}

type BrInstr struct {
	Op     string `@("btrue" | "bfalse")`
	Cond   string `@Register ","`
	Target string `@Ident`
}

type MbrInstr struct {
	Disc    string   `"mbr" @Register ","`
	Default string   `@Ident ","`
	Targets []string `"[" ( @Ident ( "," @Ident )* )? "]"`
}

type RetInstr struct {
	Value *string `"ret" @Register?`
}

type StrInstr struct {
	Addr string `"str" "[" @Register "]" ","`
	Val  string `@Register`
}

type McpyInstr struct {
	Dst string `"mcpy" "[" @Register "]" ","`
	Src string `"[" @Register "]"`
}

type NopInstr struct {
	Kw string `@"nop"`
}
