// Package diag carries the hardening pipeline's error taxonomy and the
// logging it drives. Adapted from the teacher's internal/errors package:
// same level/code/message/notes/help shape, retargeted at IR instructions
// and values — an instruction's "position" here is its function name,
// block label, and index within the block, since there is no source text
// to point into once the core is operating on a linked IR module.
package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"eddiharden/internal/ir"
)

type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
	Debug   Level = "debug"
)

// Code identifies a recurring diagnostic kind, grouped by the taxonomy
// the pipeline's external interfaces contract defines: malformed input,
// annotation conflicts, and verification failures.
type Code string

const (
	CodeMalformedAnnotation   Code = "H0001" // annotated value not found / wrong kind
	CodeAnnotationConflict    Code = "H0002" // >1 annotation on one value; first wins
	CodeMissingVTableInit     Code = "H0003" // vtable global has no constant initializer
	CodeUnresolvedIndirect    Code = "H0004" // indirect call target could not be classified
	CodeClosureDivergence     Code = "H0005" // protection closure inconsistent with call graph
	CodeDuplicateMapAsymmetry Code = "H0006" // DuplicateMap failed its symmetry invariant
	CodeVTableNotTracked      Code = "H0007" // ctor names a vtable global this module never recorded as one
	CodeVTableSlotNotDuplicated Code = "H0008" // vtable slot's function has no _dup twin; original kept
)

// Position locates a diagnostic inside the module: a function, the block
// within it, and the instruction's index within that block. Zero values
// mean "module-level" / "function-level" as appropriate.
type Position struct {
	Function string
	Block    string
	Index    int
}

func (p Position) String() string {
	if p.Function == "" {
		return "<module>"
	}
	if p.Block == "" {
		return p.Function
	}
	return fmt.Sprintf("%s:%s:%d", p.Function, p.Block, p.Index)
}

// PositionOf locates an instruction for diagnostic purposes.
func PositionOf(inst ir.Instruction) Position {
	b := inst.GetBlock()
	if b == nil {
		return Position{}
	}
	idx := -1
	for i, in := range b.Instrs {
		if in == inst {
			idx = i
			break
		}
	}
	if idx == -1 && b.Term == inst {
		idx = len(b.Instrs)
	}
	fn := ""
	if b.Func != nil {
		fn = b.Func.Name
	}
	return Position{Function: fn, Block: b.Label, Index: idx}
}

// Diagnostic is one reported condition.
type Diagnostic struct {
	Level    Level
	Code     Code
	Message  string
	Position Position
	Notes    []string
	HelpText string
}

// Reporter accumulates diagnostics and formats them Rust-style, the way
// the teacher's ErrorReporter formats source-positioned CompilerErrors —
// here formatted against IR positions instead of source spans.
type Reporter struct {
	diags []Diagnostic
}

func NewReporter() *Reporter { return &Reporter{} }

func (r *Reporter) Report(d Diagnostic) { r.diags = append(r.diags, d) }

func (r *Reporter) HasErrors() bool {
	for _, d := range r.diags {
		if d.Level == Error {
			return true
		}
	}
	return false
}

func (r *Reporter) Diagnostics() []Diagnostic { return r.diags }

// Format renders all accumulated diagnostics, most severe styling per
// level, same palette the teacher's reporter uses (red/yellow/blue/green).
func (r *Reporter) Format() string {
	var sb strings.Builder
	for _, d := range r.diags {
		sb.WriteString(r.formatOne(d))
	}
	return sb.String()
}

func (r *Reporter) formatOne(d Diagnostic) string {
	var sb strings.Builder
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	levelColor := r.levelColor(d.Level)

	if d.Code != "" {
		sb.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor(string(d.Level)), d.Code, d.Message))
	} else {
		sb.WriteString(fmt.Sprintf("%s: %s\n", levelColor(string(d.Level)), d.Message))
	}
	sb.WriteString(fmt.Sprintf("  %s %s\n", dim("-->"), d.Position))

	for _, n := range d.Notes {
		sb.WriteString(fmt.Sprintf("  %s %s\n", color.New(color.FgBlue).Sprint("note:"), n))
	}
	if d.HelpText != "" {
		sb.WriteString(fmt.Sprintf("  %s %s\n", color.New(color.FgGreen).Sprint("help:"), d.HelpText))
	}
	sb.WriteString("\n")
	return bold("") + sb.String()
}

func (r *Reporter) levelColor(l Level) func(...interface{}) string {
	switch l {
	case Error:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Debug:
		return color.New(color.FgMagenta).SprintFunc()
	default:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	}
}
