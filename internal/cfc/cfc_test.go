package cfc

import (
	"testing"

	"eddiharden/internal/ir"
)

// ============================================================================
// Signature assignment
// ============================================================================

func TestAssignSignaturesGivesEveryBlockADistinctValue(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	entry := &ir.BasicBlock{Label: "entry", Func: fn}
	other := &ir.BasicBlock{Label: "other", Func: fn}
	entry.SetTerm(&ir.JumpInst{ID: fn.NewInstrID(), Target: other})
	other.SetTerm(&ir.ReturnInst{ID: fn.NewInstrID()})
	fn.Blocks = append(fn.Blocks, entry, other)

	sig := AssignSignatures(m)
	if sig.Of(entry) == 0 || sig.Of(other) == 0 {
		t.Fatal("expected every block to receive a non-zero signature")
	}
	if sig.Of(entry) == sig.Of(other) {
		t.Fatal("expected distinct signatures for distinct blocks")
	}
}

func TestAssignSignaturesSkipsDeclarations(t *testing.T) {
	m := ir.NewModule("t")
	decl := &ir.Function{Name: "extern_fn", IsDeclaration: true, Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(decl)
	sig := AssignSignatures(m)
	if len(sig.byBlock) != 0 {
		t.Fatalf("expected no signatures from a declaration-only module, got %d", len(sig.byBlock))
	}
}

// ============================================================================
// InsertChecks structural properties
// ============================================================================

func buildTwoBlockFunction(m *ir.Module) (*ir.Function, *ir.BasicBlock, *ir.BasicBlock) {
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	entry := &ir.BasicBlock{Label: "entry", Func: fn}
	tail := &ir.BasicBlock{Label: "tail", Func: fn}
	entry.SetTerm(&ir.JumpInst{ID: fn.NewInstrID(), Target: tail})
	tail.SetTerm(&ir.ReturnInst{ID: fn.NewInstrID()})
	fn.Blocks = append(fn.Blocks, entry, tail)
	return fn, entry, tail
}

func TestInsertChecksSynthesizesSignatureGlobalsWhenAbsent(t *testing.T) {
	m := ir.NewModule("t")
	buildTwoBlockFunction(m)
	annos := ir.NewAnnotations()
	sig := AssignSignatures(m)

	if err := InsertChecks(m, annos, sig, CFCSS); err != nil {
		t.Fatalf("InsertChecks: %v", err)
	}
	if m.FindGlobal("__cfc_runtime_sig") == nil || m.FindGlobal("__cfc_run_adj_sig") == nil {
		t.Fatal("expected InsertChecks to synthesize both signature globals")
	}
}

func TestInsertChecksAddsControlFlowHandlerDeclaration(t *testing.T) {
	m := ir.NewModule("t")
	buildTwoBlockFunction(m)
	annos := ir.NewAnnotations()
	sig := AssignSignatures(m)

	if err := InsertChecks(m, annos, sig, CFCSS); err != nil {
		t.Fatalf("InsertChecks: %v", err)
	}
	handler := m.FindFunction(controlFlowHandler)
	if handler == nil || !handler.IsDeclaration {
		t.Fatal("expected a declared control-flow error handler after InsertChecks")
	}
}

func TestInsertChecksPreservesSingleFunctionEntrypoint(t *testing.T) {
	m := ir.NewModule("t")
	fn, entry, _ := buildTwoBlockFunction(m)
	annos := ir.NewAnnotations()
	sig := AssignSignatures(m)

	if err := InsertChecks(m, annos, sig, CFCSS); err != nil {
		t.Fatalf("InsertChecks: %v", err)
	}
	found := false
	for _, b := range fn.Blocks {
		if b == entry {
			found = true
		}
	}
	if !found {
		t.Fatal("expected entry block's identity to survive instrumentation")
	}
	if len(entry.Instrs) == 0 {
		t.Fatal("expected entry block to gain a signature-seeding store")
	}
}

// ============================================================================
// DefaultInterRASMSignature
// ============================================================================

func TestDefaultInterRASMSignatureIsReservedNegative(t *testing.T) {
	if DefaultInterRASMSignature != -0xDEAD {
		t.Fatalf("expected -0xDEAD, got %#x", DefaultInterRASMSignature)
	}
}
