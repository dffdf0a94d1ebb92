package harden

import (
	"eddiharden/internal/ir"
	"testing"
)

// ============================================================================
// FinalizeErrorBlocks clones once per incoming edge, deletes the template
// ============================================================================

func TestFinalizeErrorBlocksClonesOncePerEdgeAndDeletesTemplate(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	s := newHarnessState(m, NewConfig())

	template := errorBlockFor(s, fn)

	v1 := &ir.BasicBlock{Label: "v1", Func: fn}
	cond1 := &ir.Value{Kind: ir.ValConst, Const: true, Type: &ir.BoolType{}}
	v1.SetTerm(&ir.BranchInst{ID: fn.NewInstrID(), Cond: cond1, TrueBlock: template, FalseBlock: template})
	fn.Blocks = append(fn.Blocks, v1)

	v2 := &ir.BasicBlock{Label: "v2", Func: fn}
	cond2 := &ir.Value{Kind: ir.ValConst, Const: true, Type: &ir.BoolType{}}
	other := &ir.BasicBlock{Label: "other", Func: fn}
	other.SetTerm(&ir.ReturnInst{ID: fn.NewInstrID()})
	v2.SetTerm(&ir.BranchInst{ID: fn.NewInstrID(), Cond: cond2, TrueBlock: template, FalseBlock: other})
	fn.Blocks = append(fn.Blocks, v2, other)

	FinalizeErrorBlocks(s)

	for _, b := range fn.Blocks {
		if b == template {
			t.Fatal("expected the template error block removed from the function")
		}
	}
	// v1's branch had both edges pointing at template -> both redirected to
	// the SAME first clone (ReplaceSuccessor replaces every edge matching
	// the old target in one call).
	br1 := v1.Term.(*ir.BranchInst)
	if br1.TrueBlock == template || br1.FalseBlock == template {
		t.Fatal("expected v1's edges redirected away from the template")
	}
	if br1.TrueBlock != br1.FalseBlock {
		t.Error("expected both of v1's edges (which shared one terminator) to land on the same clone")
	}
	br2 := v2.Term.(*ir.BranchInst)
	if br2.TrueBlock == template {
		t.Fatal("expected v2's edge redirected away from the template")
	}
	if br2.TrueBlock == br1.TrueBlock {
		t.Error("expected v1 and v2 to be given distinct clones, one per edge")
	}
}

func TestFinalizeErrorBlocksClearsCacheAfterRunning(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	s := newHarnessState(m, NewConfig())
	errorBlockFor(s, fn)

	FinalizeErrorBlocks(s)
	if len(s.errBlocks) != 0 {
		t.Error("expected the per-function error-block cache cleared after finalize")
	}
}

func TestCloneErrorBlockCopiesInstructionsAndTerminator(t *testing.T) {
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	handler := &ir.Function{Name: "h", IsDeclaration: true, Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	template := &ir.BasicBlock{Label: "sep_error.1", Func: fn}
	template.Append(&ir.CallInst{ID: fn.NewInstrID(), Callee: handler})
	template.SetTerm(&ir.UnreachableInst{ID: fn.NewInstrID()})

	clone := cloneErrorBlock(fn, template, 3)
	if clone.Label != "sep_error.1.3" {
		t.Errorf("expected label sep_error.1.3, got %q", clone.Label)
	}
	if len(clone.Instrs) != 1 {
		t.Fatalf("expected 1 instruction copied, got %d", len(clone.Instrs))
	}
	if _, ok := clone.Term.(*ir.UnreachableInst); !ok {
		t.Errorf("expected cloned terminator to be unreachable, got %T", clone.Term)
	}
	if clone.Instrs[0] == template.Instrs[0] {
		t.Error("expected a distinct cloned instruction, not the same pointer")
	}
}
