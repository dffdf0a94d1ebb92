package harden

import (
	"eddiharden/internal/diag"
	"eddiharden/internal/ir"
	"testing"
)

func newHarnessState(m *ir.Module, cfg *Config) *State {
	s := newState(m, cfg, diag.NewReporter())
	s.Annotations = ir.NewAnnotations()
	s.Sets = ir.NewProtectionSets()
	return s
}

// ============================================================================
// DuplicateGlobals qualification
// ============================================================================

func TestDuplicateGlobalsSkipsConstants(t *testing.T) {
	m := ir.NewModule("t")
	g := &ir.Global{Name: "g", ElemType: &ir.IntType{Bits: 32}, IsConst: true}
	m.AddGlobal(g)
	s := newHarnessState(m, NewConfig())
	s.Sets.AddVar(g.Ref)

	DuplicateGlobals(s)
	if m.FindGlobal("g_dup") != nil {
		t.Error("expected no duplicate created for a constant global")
	}
}

func TestDuplicateGlobalsSkipsExcluded(t *testing.T) {
	m := ir.NewModule("t")
	g := &ir.Global{Name: "g", ElemType: &ir.IntType{Bits: 32}}
	m.AddGlobal(g)
	s := newHarnessState(m, NewConfig())
	s.Sets.AddVar(g.Ref)
	s.Annotations.Globals["g"] = ir.AnnoExclude

	DuplicateGlobals(s)
	if m.FindGlobal("g_dup") != nil {
		t.Error("expected an excluded global to never gain a duplicate")
	}
}

func TestDuplicateGlobalsSkipsUnharden(t *testing.T) {
	m := ir.NewModule("t")
	g := &ir.Global{Name: "g", ElemType: &ir.IntType{Bits: 32}}
	m.AddGlobal(g)
	s := newHarnessState(m, NewConfig())

	DuplicateGlobals(s)
	if m.FindGlobal("g_dup") != nil {
		t.Error("expected a global outside every protection set to stay unduplicated")
	}
}

func TestDuplicateGlobalsCreatesTwinAndRegistersInMap(t *testing.T) {
	m := ir.NewModule("t")
	g := &ir.Global{Name: "g", ElemType: &ir.IntType{Bits: 32}}
	m.AddGlobal(g)
	s := newHarnessState(m, NewConfig())
	s.Sets.AddVar(g.Ref)

	DuplicateGlobals(s)
	dup := m.FindGlobal("g_dup")
	if dup == nil {
		t.Fatal("expected g_dup to be created")
	}
	if !dup.IsDuplicate {
		t.Error("expected the twin to be marked IsDuplicate")
	}
	if s.Dup.Get(g.Ref) != dup.Ref {
		t.Error("expected the DuplicateMap to pair g with its twin")
	}
	if s.Dup.Get(dup.Ref) != g.Ref {
		t.Error("expected the DuplicateMap pairing to be symmetric")
	}
}

func TestDuplicateGlobalsPlacesSectionlessUninitializedInConfiguredSection(t *testing.T) {
	m := ir.NewModule("t")
	g := &ir.Global{Name: "g", ElemType: &ir.IntType{Bits: 32}}
	m.AddGlobal(g)
	cfg := NewConfig()
	cfg.DuplicateSection = ".myshadow"
	s := newHarnessState(m, cfg)
	s.Sets.AddVar(g.Ref)

	DuplicateGlobals(s)
	dup := m.FindGlobal("g_dup")
	if dup.Section != ".myshadow" {
		t.Errorf("expected duplicate placed in configured section, got %q", dup.Section)
	}
}

func TestDuplicateGlobalsDoesNotOverrideExistingSectionOrInit(t *testing.T) {
	m := ir.NewModule("t")
	init := &ir.Value{Kind: ir.ValConst, Const: int64(7), Type: &ir.IntType{Bits: 32}}
	g := &ir.Global{Name: "g", ElemType: &ir.IntType{Bits: 32}, Init: init, Section: ".rodata"}
	m.AddGlobal(g)
	s := newHarnessState(m, NewConfig())
	s.Sets.AddVar(g.Ref)

	DuplicateGlobals(s)
	dup := m.FindGlobal("g_dup")
	if dup.Section != ".rodata" {
		t.Errorf("expected original section preserved, got %q", dup.Section)
	}
	if dup.Init != init {
		t.Error("expected initializer copied onto the twin")
	}
}

// ============================================================================
// Interleaved layout
// ============================================================================

func TestDuplicateGlobalsInterleavesWhenAlternateMemmapOn(t *testing.T) {
	m := ir.NewModule("t")
	g1 := &ir.Global{Name: "g1", ElemType: &ir.IntType{Bits: 32}}
	g2 := &ir.Global{Name: "g2", ElemType: &ir.IntType{Bits: 32}}
	m.AddGlobal(g1)
	m.AddGlobal(g2)
	cfg := NewConfig()
	cfg.AlternateMemmap = true
	s := newHarnessState(m, cfg)
	s.Sets.AddVar(g1.Ref)
	s.Sets.AddVar(g2.Ref)

	DuplicateGlobals(s)
	var order []string
	for _, g := range m.Globals {
		order = append(order, g.Name)
	}
	want := []string{"g1", "g1_dup", "g2", "g2_dup"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}
