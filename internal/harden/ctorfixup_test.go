package harden

import (
	"eddiharden/internal/ir"
	"testing"
)

// ============================================================================
// FixupCtors
// ============================================================================

func TestFixupCtorsRedirectsToDupTwinWhenOneExists(t *testing.T) {
	m := ir.NewModule("t")
	ctor := &ir.Function{Name: "init_fn", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(ctor)
	ctorDup := &ir.Function{Name: "init_fn_dup", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(ctorDup)
	m.Ctors = append(m.Ctors, &ir.GlobalCtorEntry{Priority: 65535, Func: ctor})

	s := newHarnessState(m, NewConfig())
	s.DupFuncs["init_fn"] = ctorDup
	if err := s.advance("init_fn", StateSignaturesRewritten); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.advance("init_fn", StateBodyDuplicated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.advance("init_fn", StateConstructorsFixed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := FixupCtors(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Ctors[0].Func != ctorDup {
		t.Errorf("expected ctor entry redirected to the _dup twin, got %v", m.Ctors[0].Func)
	}
	if s.stateOf("init_fn") != StateCtorsFixed {
		t.Errorf("expected state ctors-fixed, got %v", s.stateOf("init_fn"))
	}
}

func TestFixupCtorsLeavesUnhardenedEntryUntouched(t *testing.T) {
	m := ir.NewModule("t")
	ctor := &ir.Function{Name: "init_fn", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(ctor)
	m.Ctors = append(m.Ctors, &ir.GlobalCtorEntry{Priority: 0, Func: ctor})
	s := newHarnessState(m, NewConfig())

	if err := FixupCtors(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Ctors[0].Func != ctor {
		t.Error("expected an unrelated ctor entry to stay pointed at the original function")
	}
}

func TestFixupCtorsDoesNotAdvanceStateBelowConstructorsFixed(t *testing.T) {
	m := ir.NewModule("t")
	ctor := &ir.Function{Name: "plain_fn", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(ctor)
	m.Ctors = append(m.Ctors, &ir.GlobalCtorEntry{Priority: 0, Func: ctor})
	s := newHarnessState(m, NewConfig())
	if err := s.advance("plain_fn", StateSignaturesRewritten); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.advance("plain_fn", StateBodyDuplicated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := FixupCtors(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.stateOf("plain_fn") != StateBodyDuplicated {
		t.Errorf("expected state left at body-duplicated (never reached constructors-fixed), got %v", s.stateOf("plain_fn"))
	}
}

func TestFixupCtorsSkipsNilFuncEntries(t *testing.T) {
	m := ir.NewModule("t")
	m.Ctors = append(m.Ctors, &ir.GlobalCtorEntry{Priority: 0, Func: nil})
	s := newHarnessState(m, NewConfig())

	if err := FixupCtors(s); err != nil {
		t.Fatalf("unexpected error for a nil-func ctor entry: %v", err)
	}
}
