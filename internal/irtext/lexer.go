// Package irtext implements the textual assembly form of the whole-program
// IR: a participle struct-tag grammar that parses it into internal/ir.Module
// and a printer (internal/ir.Printer) that renders it back out. This is the
// stand-in for "a linked IR module" named as the core's input in the
// external interfaces contract — there is no source-language front end in
// this module, so hardening runs directly against this textual form.
package irtext

import "github.com/alecthomas/participle/v2/lexer"

// Lexer is grounded on the teacher's grammar.KansoLexer: a stateful rule
// table lexing comments, identifiers, literals, and punctuation, extended
// with the two reference sigils this IR's text format needs — "%name" for
// SSA values and block labels, "@name" for globals and functions.
var Lexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"DocComment", `///[^\n]*`, nil},
		{"Comment", `//[^\n]*`, nil},
		{"ValueRef", `%[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"GlobalRef", `@[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Arrow", `->`, nil},
		{"Float", `[0-9]+\.[0-9]+`, nil},
		{"Integer", `0x[0-9a-fA-F]+|-?[0-9]+`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_.]*`, nil},
		{"Punctuation", `[{}()\[\]:;,="]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
