package irtext

import (
	"fmt"

	"github.com/alecthomas/participle/v2"

	"eddiharden/internal/ir"
)

// parser is built once at package init, mirroring the teacher's package-
// level `var parser = buildParser()` in internal/parser/parser.go.
var parser = buildParser()

func buildParser() *participle.Parser[File] {
	p, err := participle.Build[File](
		participle.Lexer(Lexer),
		participle.Elide("Whitespace", "Comment", "DocComment"),
		participle.UseLookahead(3),
	)
	if err != nil {
		panic(fmt.Errorf("failed to build IR text parser: %w", err))
	}
	return p
}

// ParseModule parses source into an *ir.Module in one call: lex + parse
// the grammar, then build() the grammar tree into the real IR types.
func ParseModule(sourceName, source string) (*ir.Module, error) {
	tree, err := parser.ParseString(sourceName, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", sourceName, err)
	}
	return Build(tree)
}

// Render prints m back to its textual form.
func Render(m *ir.Module) string {
	return ir.NewPrinter().Print(m)
}
