package harden

import (
	"eddiharden/internal/ir"
	"testing"
)

// buildStoreCheckFixture builds a HardenFn with a single protected scalar
// store: `store %dst, %val` where both %dst and %val already have
// registered duplicates, ending in a plain return.
func buildStoreCheckFixture(m *ir.Module) (*ir.Function, *ir.StoreInst, *State) {
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	entry := &ir.BasicBlock{Label: "entry", Func: fn}
	fn.Blocks = append(fn.Blocks, entry)

	dst := &ir.Value{ID: fn.NewValueID(), Name: "dst", Type: &ir.PointerType{}, Kind: ir.ValParam}
	dstDup := &ir.Value{ID: fn.NewValueID(), Name: "dst_dup", Type: &ir.PointerType{}, Kind: ir.ValParam}
	val := &ir.Value{ID: fn.NewValueID(), Name: "val", Type: &ir.IntType{Bits: 32}, Kind: ir.ValParam}
	valDup := &ir.Value{ID: fn.NewValueID(), Name: "val_dup", Type: &ir.IntType{Bits: 32}, Kind: ir.ValParam}

	store := &ir.StoreInst{ID: fn.NewInstrID(), Address: dst, Val: val}
	entry.Append(store)
	entry.SetTerm(&ir.ReturnInst{ID: fn.NewInstrID()})

	s := newHarnessState(m, NewConfig())
	s.Sets.AddFunc("f")
	s.Dup.Put(dst, dstDup)
	s.Dup.Put(val, valDup)
	if err := s.advance("f", StateBodyDuplicated); err != nil {
		panic(err)
	}
	return fn, store, s
}

// ============================================================================
// Candidate selection gating
// ============================================================================

func TestInsertChecksSkipsFunctionsNotYetBodyDuplicated(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	entry := &ir.BasicBlock{Label: "entry", Func: fn}
	fn.Blocks = append(fn.Blocks, entry)
	entry.SetTerm(&ir.ReturnInst{ID: fn.NewInstrID()})
	s := newHarnessState(m, NewConfig())
	s.Sets.AddFunc("f")

	if err := InsertChecks(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fn.Blocks) != 1 {
		t.Error("expected no verification blocks inserted before body duplication")
	}
}

func TestIsSyncCandidateGatesOnConfig(t *testing.T) {
	cfg := NewConfig()
	s := &State{Cfg: cfg}
	store := &ir.StoreInst{}
	if !isSyncCandidate(s, store) {
		t.Error("expected store to be a sync candidate under default eddi config")
	}
	call := &ir.CallInst{}
	if isSyncCandidate(s, call) {
		t.Error("expected call to NOT be a sync candidate under default eddi config (checks at calls off)")
	}
}

func TestIsSyncCandidateFDSCRestrictsToJoinBlocks(t *testing.T) {
	cfg := NewConfig()
	cfg.SetDuplicationMode(ModeFDSC)
	s := &State{Cfg: cfg}

	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	single := &ir.BasicBlock{Label: "single", Func: fn}
	join := &ir.BasicBlock{Label: "join", Func: fn}
	pred1 := &ir.BasicBlock{Label: "p1", Func: fn}
	pred2 := &ir.BasicBlock{Label: "p2", Func: fn}
	pred1.SetTerm(&ir.JumpInst{Target: join})
	pred2.SetTerm(&ir.JumpInst{Target: join})
	single.SetTerm(&ir.ReturnInst{})
	fn.Blocks = []*ir.BasicBlock{single, join, pred1, pred2}

	storeSingle := &ir.StoreInst{Block: single}
	storeJoin := &ir.StoreInst{Block: join}
	if isSyncCandidate(s, storeSingle) {
		t.Error("expected fdsc to skip a single-predecessor block's store")
	}
	if !isSyncCandidate(s, storeJoin) {
		t.Error("expected fdsc to check a multi-predecessor (join) block's store")
	}
}

// ============================================================================
// insertCheck structural effects
// ============================================================================

func TestInsertCheckSplitsBlockAndInsertsVerifyBlock(t *testing.T) {
	m := ir.NewModule("t")
	fn, store, s := buildStoreCheckFixture(m)
	startBlocks := len(fn.Blocks)

	insertCheck(s, fn, store)

	if len(fn.Blocks) <= startBlocks {
		t.Fatal("expected new blocks created by insertCheck")
	}
	entry := fn.Blocks[0]
	if _, ok := entry.Term.(*ir.JumpInst); !ok {
		t.Fatalf("expected entry to end in a jump to the verify block, got %T", entry.Term)
	}
}

func TestInsertCheckEndsVerifyBlockWithConditionalBranch(t *testing.T) {
	m := ir.NewModule("t")
	fn, store, s := buildStoreCheckFixture(m)
	insertCheck(s, fn, store)

	var verify *ir.BasicBlock
	for _, b := range fn.Blocks {
		if b.Label != "entry" {
			if _, ok := b.Term.(*ir.BranchInst); ok {
				verify = b
			}
		}
	}
	if verify == nil {
		t.Fatal("expected a verify block ending in a conditional branch")
	}
	br := verify.Term.(*ir.BranchInst)
	if br.TrueBlock == nil || br.FalseBlock == nil {
		t.Error("expected both branch targets populated")
	}
}

func TestInsertCheckWithNoComparableOperandsJumpsStraightThrough(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	entry := &ir.BasicBlock{Label: "entry", Func: fn}
	fn.Blocks = append(fn.Blocks, entry)
	dst := &ir.Value{ID: fn.NewValueID(), Name: "dst", Type: &ir.PointerType{}, Kind: ir.ValParam}
	val := &ir.Value{ID: fn.NewValueID(), Name: "val", Type: &ir.IntType{Bits: 32}, Kind: ir.ValParam}
	store := &ir.StoreInst{ID: fn.NewInstrID(), Address: dst, Val: val}
	entry.Append(store)
	entry.SetTerm(&ir.ReturnInst{ID: fn.NewInstrID()})
	s := newHarnessState(m, NewConfig())
	// No duplicates registered for dst/val: nothing to compare.

	insertCheck(s, fn, store)
	var verify *ir.BasicBlock
	for _, b := range fn.Blocks {
		if b != entry {
			verify = b
		}
	}
	// The verify block should exist but jump straight to the sync tail,
	// never branching to an error block, since there was nothing to check.
	found := false
	for _, b := range fn.Blocks {
		if _, ok := b.Term.(*ir.JumpInst); ok && b != entry {
			found = true
		}
	}
	if verify == nil || !found {
		t.Error("expected the verify block to jump straight through with no comparisons to make")
	}
}

// ============================================================================
// emitComparison per-type dispatch
// ============================================================================

func TestEmitComparisonReturnsNilWhenOperandHasNoDuplicate(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	v := &ir.BasicBlock{Label: "v", Func: fn}
	op := &ir.Value{ID: fn.NewValueID(), Name: "op", Type: &ir.IntType{Bits: 32}, Kind: ir.ValParam}
	s := newHarnessState(m, NewConfig())

	if got := emitComparison(s, fn, v, op, nil); got != nil {
		t.Error("expected nil comparison for an operand with no registered duplicate")
	}
}

func TestEmitComparisonEmitsEqCmpForIntScalar(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	v := &ir.BasicBlock{Label: "v", Func: fn}
	op := &ir.Value{ID: fn.NewValueID(), Name: "op", Type: &ir.IntType{Bits: 32}, Kind: ir.ValParam}
	dup := &ir.Value{ID: fn.NewValueID(), Name: "op_dup", Type: &ir.IntType{Bits: 32}, Kind: ir.ValParam}
	s := newHarnessState(m, NewConfig())
	s.Dup.Put(op, dup)

	res := emitComparison(s, fn, v, op, nil)
	if res == nil {
		t.Fatal("expected a comparison value")
	}
	if len(v.Instrs) != 1 {
		t.Fatalf("expected exactly one cmp instruction emitted, got %d", len(v.Instrs))
	}
	cmp, ok := v.Instrs[0].(*ir.CmpInst)
	if !ok {
		t.Fatalf("expected *ir.CmpInst, got %T", v.Instrs[0])
	}
	if cmp.Pred != "eq" || cmp.Float {
		t.Errorf("expected integer eq comparison, got pred=%q float=%v", cmp.Pred, cmp.Float)
	}
}

func TestEmitComparisonUsesUnorderedEqForFloats(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	v := &ir.BasicBlock{Label: "v", Func: fn}
	op := &ir.Value{ID: fn.NewValueID(), Name: "op", Type: &ir.FloatType{Bits: 64}, Kind: ir.ValParam}
	dup := &ir.Value{ID: fn.NewValueID(), Name: "op_dup", Type: &ir.FloatType{Bits: 64}, Kind: ir.ValParam}
	s := newHarnessState(m, NewConfig())
	s.Dup.Put(op, dup)

	emitComparison(s, fn, v, op, nil)
	cmp := v.Instrs[0].(*ir.CmpInst)
	if cmp.Pred != "ueq" || !cmp.Float {
		t.Errorf("expected float ueq comparison, got pred=%q float=%v", cmp.Pred, cmp.Float)
	}
}

func TestEmitComparisonSkipsPointerNeverStoredThrough(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	from := &ir.BasicBlock{Label: "from", Func: fn}
	from.SetTerm(&ir.ReturnInst{ID: fn.NewInstrID()})
	fn.Blocks = append(fn.Blocks, from)
	v := &ir.BasicBlock{Label: "v", Func: fn}
	ptr := &ir.Value{ID: fn.NewValueID(), Name: "p", Type: &ir.PointerType{}, Kind: ir.ValParam}
	dup := &ir.Value{ID: fn.NewValueID(), Name: "p_dup", Type: &ir.PointerType{}, Kind: ir.ValParam}
	s := newHarnessState(m, NewConfig())
	s.Dup.Put(ptr, dup)

	if got := emitComparison(s, fn, v, ptr, from); got != nil {
		t.Error("expected no comparison for a pointer never reachably stored through")
	}
}

// ============================================================================
// splitBefore identity preservation
// ============================================================================

func TestSplitBeforePreservesOrigBlockIdentity(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	orig := &ir.BasicBlock{Label: "entry", Func: fn}
	fn.Blocks = append(fn.Blocks, orig)

	v1 := &ir.Value{ID: fn.NewValueID(), Name: "v1", Type: &ir.IntType{Bits: 32}, Kind: ir.ValParam}
	first := &ir.UnaryInst{ID: fn.NewInstrID(), Result: &ir.Value{ID: fn.NewValueID()}, Op: "neg", Operand: v1}
	orig.Append(first)
	second := &ir.UnaryInst{ID: fn.NewInstrID(), Result: &ir.Value{ID: fn.NewValueID()}, Op: "neg", Operand: v1}
	orig.Append(second)
	origTerm := &ir.ReturnInst{ID: fn.NewInstrID()}
	orig.SetTerm(origTerm)

	tail := splitBefore(nil, fn, orig, second)
	if orig.Label != "entry" {
		t.Fatal("expected orig's identity (pointer and label) preserved")
	}
	if len(orig.Instrs) != 1 || orig.Instrs[0] != first {
		t.Errorf("expected orig to retain only the prefix instruction, got %v", orig.Instrs)
	}
	if len(tail.Instrs) != 1 || tail.Instrs[0] != second {
		t.Errorf("expected tail to hold the split-off instruction, got %v", tail.Instrs)
	}
	if tail.Term != origTerm {
		t.Error("expected the original terminator moved onto the tail block")
	}
}

// ============================================================================
// Error block + handler declaration
// ============================================================================

func TestErrorBlockForIsMemoizedPerFunction(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	s := newHarnessState(m, NewConfig())

	b1 := errorBlockFor(s, fn)
	b2 := errorBlockFor(s, fn)
	if b1 != b2 {
		t.Error("expected the same canonical error block returned on repeated calls")
	}
	if m.FindFunction(dataCorruptionHandler) == nil {
		t.Error("expected the data-corruption handler declared on the module")
	}
}
