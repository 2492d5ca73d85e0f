package asm

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// IRLexer tokenizes the textual dialect. Registers are their own token
// class (a storage-class prefix letter followed by a number, with an
// optional type suffix such as t1.f64) so the grammar can tell a
// register operand from a label without backtracking.
var IRLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `//[^\n]*`, nil},

		// Registers (must precede Ident: t1, p12, m0, optionally typed t1.u16)
		{"Register", `[tpm][0-9]+(\.[a-z][0-9]+)?`, nil},

		// Keywords, labels, type names
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// Numeric literals (Float before Integer; order matters)
		{"Float", `[0-9]+\.[0-9]+`, nil},
		{"Integer", `0x[0-9a-fA-F]+|[0-9]+`, nil},

		// Punctuation
		{"Punctuation", `[{}[\]:,()=\-]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
