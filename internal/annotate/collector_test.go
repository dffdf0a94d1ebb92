package annotate

import (
	"testing"

	"eddiharden/internal/diag"
	"eddiharden/internal/ir"
)

// ============================================================================
// Alias resolution and basic classification
// ============================================================================

func TestCollectResolvesAliasTarget(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "real_fn", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	m.Aliases = append(m.Aliases, &ir.Alias{Name: "alias_fn", Target: "real_fn"})
	m.Annotations = append(m.Annotations, &ir.AnnotationEntry{Target: "alias_fn", Marker: "harden"})

	rep := diag.NewReporter()
	annos := Collect(m, rep)

	if got := annos.Func("real_fn"); got != ir.AnnoHarden {
		t.Errorf("expected real_fn to_harden, got %s", got)
	}
	if rep.HasErrors() {
		t.Errorf("unexpected errors: %s", rep.Format())
	}
}

func TestCollectFirstAnnotationWins(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	m.Annotations = append(m.Annotations,
		&ir.AnnotationEntry{Target: "f", Marker: "harden"},
		&ir.AnnotationEntry{Target: "f", Marker: "exclude"},
	)

	rep := diag.NewReporter()
	annos := Collect(m, rep)

	if got := annos.Func("f"); got != ir.AnnoHarden {
		t.Errorf("expected first annotation (to_harden) to win, got %s", got)
	}

	found := false
	for _, d := range rep.Diagnostics() {
		if d.Code == diag.CodeAnnotationConflict {
			found = true
		}
	}
	if !found {
		t.Error("expected a conflict diagnostic for the discarded second annotation")
	}
}

func TestCollectForcesExcludeOnVolatileGlobal(t *testing.T) {
	m := ir.NewModule("t")
	m.AddGlobal(&ir.Global{Name: "g", ElemType: &ir.IntType{Bits: 32}, Volatile: true})

	rep := diag.NewReporter()
	annos := Collect(m, rep)

	if got := annos.Global("g"); got != ir.AnnoExclude {
		t.Errorf("expected volatile global forced to exclude, got %s", got)
	}
}

func TestCollectForcesExcludeOnMetadataSection(t *testing.T) {
	m := ir.NewModule("t")
	m.AddGlobal(&ir.Global{Name: "g", ElemType: &ir.IntType{Bits: 32}, Section: ".metadata"})

	rep := diag.NewReporter()
	annos := Collect(m, rep)

	if got := annos.Global("g"); got != ir.AnnoExclude {
		t.Errorf("expected metadata-section global forced to exclude, got %s", got)
	}
}

func TestCollectUnknownTargetReportsWarning(t *testing.T) {
	m := ir.NewModule("t")
	m.Annotations = append(m.Annotations, &ir.AnnotationEntry{Target: "nowhere", Marker: "harden"})

	rep := diag.NewReporter()
	Collect(m, rep)

	found := false
	for _, d := range rep.Diagnostics() {
		if d.Code == diag.CodeMalformedAnnotation {
			found = true
		}
	}
	if !found {
		t.Error("expected a malformed-annotation diagnostic for an unresolved target")
	}
}
