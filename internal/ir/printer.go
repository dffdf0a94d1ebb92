package ir

import (
	"fmt"
	"strings"
)

// Printer renders a Module as the textual IR assembly internal/irtext
// parses back in — the pretty-printer half of that round trip. Grounded
// on the teacher's indent-and-strings.Builder Printer, generalized from
// printing a single EVM contract to printing a whole-program module of
// arbitrary functions and globals. Section names that are not plain
// identifiers (such as the default duplicate section ".dup") and named
// struct types, printed as "%Name", do not parse back.
type Printer struct {
	sb     strings.Builder
	indent int
}

func NewPrinter() *Printer { return &Printer{} }

func (p *Printer) writeIndent() {
	p.sb.WriteString(strings.Repeat("  ", p.indent))
}

func (p *Printer) line(format string, args ...interface{}) {
	p.writeIndent()
	p.sb.WriteString(fmt.Sprintf(format, args...))
	p.sb.WriteString("\n")
}

// Print renders the full module: annotations, aliases, globals, vtables,
// constructor table, then every function body.
func (p *Printer) Print(m *Module) string {
	p.line("module %s", m.Name)
	p.sb.WriteString("\n")

	for _, a := range m.Annotations {
		if len(a.Args) > 0 {
			p.line("annotation %s %s (%s)", a.Target, a.Marker, strings.Join(a.Args, ", "))
		} else {
			p.line("annotation %s %s", a.Target, a.Marker)
		}
	}
	if len(m.Annotations) > 0 {
		p.sb.WriteString("\n")
	}

	for _, a := range m.Aliases {
		p.line("alias %s = %s", a.Name, a.Target)
	}

	for _, g := range m.Globals {
		p.printGlobal(g)
	}
	if len(m.Globals) > 0 {
		p.sb.WriteString("\n")
	}

	for _, v := range m.VTables {
		p.printVTable(v)
	}

	for _, c := range m.Ctors {
		name := "<nil>"
		if c.Func != nil {
			name = c.Func.Name
		}
		p.line("ctor %d %s;", c.Priority, name)
	}
	if len(m.Ctors) > 0 {
		p.sb.WriteString("\n")
	}

	for _, f := range m.Functions {
		p.printFunction(f)
		p.sb.WriteString("\n")
	}

	return p.sb.String()
}

func (p *Printer) printGlobal(g *Global) {
	dup := ""
	if g.IsDuplicate {
		dup = " dup"
	}
	volatile := ""
	if g.Volatile {
		volatile = " volatile"
	}
	section := ""
	if g.Section != "" {
		section = " section " + g.Section
	}
	init := ""
	if g.Init != nil {
		init = " = " + g.Init.String()
	}
	p.line("global @%s: %s%s%s%s%s", g.Name, g.ElemType, dup, volatile, section, init)
}

func (p *Printer) printVTable(v *VTable) {
	p.line("vtable @%s {", v.Global.Name)
	p.indent++
	for i, slot := range v.Slots {
		name := "nil"
		if slot != nil {
			name = slot.Name
		}
		p.line("%d: %s;", i, name)
	}
	p.indent--
	p.line("}")
}

func (p *Printer) printFunction(f *Function) {
	params := make([]string, len(f.Params))
	for i, pr := range f.Params {
		params[i] = pr.Val.Name + ": " + pr.Val.Type.String()
	}
	sig := fmt.Sprintf("(%s) -> %s", strings.Join(params, ", "), f.Sig.Return)

	if f.IsDeclaration {
		p.line("declare %s %s;", f.Name, sig)
		return
	}

	p.line("func %s %s {", f.Name, sig)
	p.indent++
	for _, b := range f.Blocks {
		p.printBlock(b)
	}
	p.indent--
	p.line("}")
}

func (p *Printer) printBlock(b *BasicBlock) {
	p.indent--
	p.line("%s:", b.Label)
	p.indent++
	for _, inst := range b.Instrs {
		p.line("%s;", inst)
	}
	if b.Term != nil {
		p.line("%s;", b.Term)
	}
}
