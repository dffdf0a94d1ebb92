// Package annotate implements the first pipeline stage: reading the
// module's front-end-produced annotation table and turning it into the
// resolved Value -> AnnotationKind map the rest of the pipeline consumes.
package annotate

import (
	"strings"

	"eddiharden/internal/diag"
	"eddiharden/internal/ir"
)

var markerKinds = map[string]ir.AnnotationKind{
	"harden":       ir.AnnoHarden,
	"duplicate":    ir.AnnoDuplicate,
	"exclude":      ir.AnnoExclude,
	"runtime_sig":  ir.AnnoRuntimeSig,
	"run_adj_sig":  ir.AnnoRunAdjSig,
}

// Collect runs C1: resolves every annotation-table entry's target through
// the module's alias chain, keeps at most one annotation per resolved
// name (first wins, later entries are reported as conflicts at debug
// level and discarded), and forces exclude on any global that is
// volatile or placed in a metadata section (spec §4.1).
func Collect(m *ir.Module, rep *diag.Reporter) *ir.Annotations {
	out := ir.NewAnnotations()

	for _, entry := range m.Annotations {
		name := m.ResolveAlias(entry.Target)
		kind, ok := markerKinds[entry.Marker]
		if !ok {
			rep.Report(diag.Diagnostic{
				Level:   diag.Warning,
				Code:    diag.CodeMalformedAnnotation,
				Message: "unrecognized annotation marker " + entry.Marker + " on " + name,
			})
			continue
		}

		if fn := m.FindFunction(name); fn != nil {
			assignFunc(out, rep, name, kind)
			continue
		}
		if g := m.FindGlobal(name); g != nil {
			assignGlobal(out, rep, name, kind)
			continue
		}
		rep.Report(diag.Diagnostic{
			Level:   diag.Warning,
			Code:    diag.CodeMalformedAnnotation,
			Message: "annotation target " + name + " resolves to neither a function nor a global",
		})
	}

	for _, g := range m.Globals {
		if g.Volatile || isMetadataSection(g.Section) {
			out.Globals[g.Name] = ir.AnnoExclude
		}
	}

	return out
}

// isMetadataSection reports whether section is the linker's reserved
// metadata section (".metadata") or one of its sub-sections
// (".metadata.foo"), per spec §4.1. An ordinary, unrelated section name
// (e.g. ".data.cold") carries no forced-exclude meaning.
func isMetadataSection(section string) bool {
	return section == ".metadata" || strings.HasPrefix(section, ".metadata.")
}

func assignFunc(out *ir.Annotations, rep *diag.Reporter, name string, kind ir.AnnotationKind) {
	if existing, ok := out.Funcs[name]; ok {
		rep.Report(diag.Diagnostic{
			Level:    diag.Debug,
			Code:     diag.CodeAnnotationConflict,
			Message:  "function " + name + " already annotated " + existing.String() + "; discarding " + kind.String(),
			Position: diag.Position{Function: name},
		})
		return
	}
	out.Funcs[name] = kind
}

func assignGlobal(out *ir.Annotations, rep *diag.Reporter, name string, kind ir.AnnotationKind) {
	if existing, ok := out.Globals[name]; ok {
		rep.Report(diag.Diagnostic{
			Level:   diag.Debug,
			Code:    diag.CodeAnnotationConflict,
			Message: "global " + name + " already annotated " + existing.String() + "; discarding " + kind.String(),
		})
		return
	}
	out.Globals[name] = kind
}
