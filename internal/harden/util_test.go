package harden

import (
	"eddiharden/internal/ir"
	"testing"
)

// ============================================================================
// remapValue / remapInstruction
// ============================================================================

func TestRemapValueReturnsMappedValueWhenPresent(t *testing.T) {
	a := &ir.Value{Name: "a"}
	b := &ir.Value{Name: "b"}
	m := map[*ir.Value]*ir.Value{a: b}
	if got := remapValue(a, m); got != b {
		t.Errorf("expected mapped value, got %v", got)
	}
}

func TestRemapValuePassesThroughUnmappedOrNil(t *testing.T) {
	a := &ir.Value{Name: "a"}
	m := map[*ir.Value]*ir.Value{}
	if got := remapValue(a, m); got != a {
		t.Error("expected unmapped value returned unchanged")
	}
	if got := remapValue(nil, m); got != nil {
		t.Error("expected nil to remap to nil")
	}
}

func TestRemapInstructionRewritesOperands(t *testing.T) {
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	a := &ir.Value{ID: fn.NewValueID(), Name: "a", Type: &ir.IntType{Bits: 32}, Kind: ir.ValParam}
	aDup := &ir.Value{ID: fn.NewValueID(), Name: "a_dup", Type: &ir.IntType{Bits: 32}, Kind: ir.ValParam}
	res := &ir.Value{ID: fn.NewValueID(), Name: "r", Type: &ir.IntType{Bits: 32}, Kind: ir.ValInstr}

	inst := &ir.UnaryInst{ID: fn.NewInstrID(), Result: res, Op: "neg", Operand: a}
	valueMap := map[*ir.Value]*ir.Value{a: aDup}
	remapInstruction(inst, valueMap, nil)
	if inst.Operand != aDup {
		t.Errorf("expected operand remapped to duplicate, got %v", inst.Operand)
	}
}

func TestRemapInstructionRewritesTerminatorSuccessors(t *testing.T) {
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	oldTarget := &ir.BasicBlock{Label: "old", Func: fn}
	newTarget := &ir.BasicBlock{Label: "new", Func: fn}
	term := &ir.JumpInst{ID: fn.NewInstrID(), Target: oldTarget}
	blockMap := map[*ir.BasicBlock]*ir.BasicBlock{oldTarget: newTarget}
	remapInstruction(term, nil, blockMap)
	if term.Target != newTarget {
		t.Errorf("expected terminator successor remapped, got %v", term.Target)
	}
}

func TestRemapInstructionRewritesPhiIncomingBlocks(t *testing.T) {
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	oldBlock := &ir.BasicBlock{Label: "old", Func: fn}
	newBlock := &ir.BasicBlock{Label: "new", Func: fn}
	v := &ir.Value{ID: fn.NewValueID(), Name: "v", Type: &ir.IntType{Bits: 32}, Kind: ir.ValConst, Const: int64(1)}
	phi := &ir.PhiInst{ID: fn.NewInstrID(), Incoming: []ir.PhiIncoming{{Block: oldBlock, Value: v}}}
	blockMap := map[*ir.BasicBlock]*ir.BasicBlock{oldBlock: newBlock}
	remapInstruction(phi, nil, blockMap)
	if phi.Incoming[0].Block != newBlock {
		t.Errorf("expected phi incoming block remapped, got %v", phi.Incoming[0].Block)
	}
}

// ============================================================================
// setResult
// ============================================================================

func TestSetResultInstallsResultAndBackReference(t *testing.T) {
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	inst := &ir.BinaryInst{ID: fn.NewInstrID(), Op: "add"}
	v := &ir.Value{ID: fn.NewValueID(), Name: "r"}
	setResult(inst, v)
	if inst.Result != v {
		t.Error("expected inst.Result set")
	}
	if v.Def != inst {
		t.Error("expected v.Def back-reference set to inst")
	}
}

func TestSetResultSetsCmpXchgPrimaryResult(t *testing.T) {
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	inst := &ir.CmpXchgInst{ID: fn.NewInstrID()}
	v := &ir.Value{ID: fn.NewValueID(), Name: "ok"}
	setResult(inst, v)
	if inst.ResultVal != v {
		t.Errorf("expected CmpXchgInst.ResultVal set via setResult, got %v", inst.ResultVal)
	}
}
