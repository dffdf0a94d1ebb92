package harden

import "eddiharden/internal/ir"

// DuplicateInstructions is C5, the InstructionDuplicator. Per function in
// HardenFns, every instruction not already present in the DuplicateMap is
// visited via duplicate(I); pure and memory instructions gain a sibling
// clone wired to duplicated operands, terminators are left uncloned
// (control flow is not duplicated — §4.5), and calls/invokes are left for
// CallRewriter (C7).
func DuplicateInstructions(s *State) error {
	for name := range copyBoolMap(s.Sets.HardenFns) {
		original := s.Module.FindFunction(name)
		if original == nil || original.IsDeclaration {
			continue
		}
		// Every HardenFn was left untouched by C3, which instead built a
		// "_dup" twin with the doubled parameter list (§8 S1/S3) — that
		// twin's body is what gets duplicated, original f stays callable
		// by code outside the sphere of replication.
		target := s.bodyTarget(name)
		if err := s.advance(name, StateBodyDuplicated); err != nil {
			return err
		}
		duplicateFunctionBody(s, target)
		s.DuplicatedFunctions = append(s.DuplicatedFunctions, name)
	}
	return nil
}

func duplicateFunctionBody(s *State, fn *ir.Function) {
	for _, b := range fn.Blocks {
		// Snapshot before duplicating: duplicateInstruction appends clones
		// into b.Instrs as it runs, and those clones must not themselves
		// be visited by this same top-level walk.
		original := append([]ir.Instruction(nil), b.Instrs...)
		for _, inst := range original {
			duplicateInstruction(s, fn, b, inst)
		}
		// b.Term lives outside Instrs; it still needs its operands walked
		// so a branch condition or return value gets its twin created.
		if b.Term != nil {
			duplicateInstruction(s, fn, b, b.Term)
		}
	}
}

// duplicateInstruction is duplicate(I): dispatches on opcode class and
// returns the duplicated result value, or nil if I has no result or
// wasn't duplicated (terminators, trivial stores, calls).
func duplicateInstruction(s *State, fn *ir.Function, b *ir.BasicBlock, inst ir.Instruction) *ir.Value {
	if res := inst.GetResult(); res != nil {
		if existing := s.Dup.Get(res); existing != nil {
			return existing
		}
	}

	switch in := inst.(type) {
	case *ir.AllocaInst:
		return duplicateAlloca(s, fn, b, in)
	case *ir.LoadInst, *ir.GEPInst, *ir.CmpInst, *ir.BinaryInst, *ir.UnaryInst, *ir.SelectInst, *ir.CastInst, *ir.PhiInst:
		return duplicatePure(s, fn, b, inst)
	case *ir.StoreInst:
		return duplicateStore(s, fn, b, in)
	case *ir.AtomicRMWInst:
		return duplicateAtomicRMW(s, fn, b, in)
	case *ir.CmpXchgInst:
		return duplicateCmpXchg(s, fn, b, in)
	case *ir.BranchInst, *ir.SwitchInst, *ir.ReturnInst, *ir.JumpInst:
		// Control flow is a shared resource: not cloned. Still walk
		// operands so any value they reference that needs duplicating
		// (for CheckInserter's later comparison) gets its twin created.
		for _, op := range inst.GetOperands() {
			duplicateValue(s, fn, op)
		}
		return nil
	default:
		// Call / Invoke / Intrinsic: C7's responsibility.
		return nil
	}
}

func duplicateAlloca(s *State, fn *ir.Function, b *ir.BasicBlock, in *ir.AllocaInst) *ir.Value {
	if in.IsLandingPad {
		return nil // never cloned (§4.5)
	}
	clone := in.Clone(fn.NewInstrID()).(*ir.AllocaInst)
	nv := freshResultLike(fn, in.Result)
	clone.Result = nv
	insertAlloca(s, b, in, clone)
	s.Dup.Put(in.Result, nv)
	return nv
}

// insertAlloca places the clone at the end of the entry-block alloca
// prefix when alternate-memmap is off (grouping all allocas together),
// or immediately after the original when it's on.
func insertAlloca(s *State, b *ir.BasicBlock, orig, clone *ir.AllocaInst) {
	if s.Cfg.AlternateMemmap {
		insertAfter(b, orig, clone)
		return
	}
	idx := 0
	for idx < len(b.Instrs) {
		if _, ok := b.Instrs[idx].(*ir.AllocaInst); !ok {
			break
		}
		idx++
	}
	clone.SetBlock(b)
	b.Instrs = append(b.Instrs[:idx], append([]ir.Instruction{clone}, b.Instrs[idx:]...)...)
}

func duplicatePure(s *State, fn *ir.Function, b *ir.BasicBlock, inst ir.Instruction) *ir.Value {
	origRes := inst.GetResult()
	clone := inst.Clone(fn.NewInstrID())
	var nv *ir.Value
	if origRes != nil {
		nv = freshResultLike(fn, origRes)
		setResult(clone, nv)
	}

	// PHIs retain their original predecessor-block identity (§4.5): only
	// incoming values are rewritten, never Incoming[].Block.
	for _, old := range inst.GetOperands() {
		if nd := duplicateValue(s, fn, old); nd != nil {
			clone.ReplaceOperand(old, nd)
		}
	}

	insertAfter(b, inst, clone)
	if origRes != nil {
		s.Dup.Put(origRes, nv)
	}
	return nv
}

func duplicateStore(s *State, fn *ir.Function, b *ir.BasicBlock, in *ir.StoreInst) *ir.Value {
	clone := in.Clone(fn.NewInstrID()).(*ir.StoreInst)
	if nd := duplicateValue(s, fn, in.Address); nd != nil {
		clone.Address = nd
	}
	if nd := duplicateValue(s, fn, in.Val); nd != nil {
		clone.Val = nd
	}
	if clone.Identical(in) {
		return nil // trivial duplication (§4.5, §8 S6): no clone kept
	}
	insertAfter(b, in, clone)
	return nil
}

func duplicateAtomicRMW(s *State, fn *ir.Function, b *ir.BasicBlock, in *ir.AtomicRMWInst) *ir.Value {
	clone := in.Clone(fn.NewInstrID()).(*ir.AtomicRMWInst)
	addrD := duplicateValue(s, fn, in.Address)
	valD := duplicateValue(s, fn, in.Val)
	if addrD == nil && valD == nil {
		return nil // no protected operand: trivial
	}
	if addrD != nil {
		clone.Address = addrD
	}
	if valD != nil {
		clone.Val = valD
	}
	nv := freshResultLike(fn, in.Result)
	clone.Result = nv
	insertAfter(b, in, clone)
	s.Dup.Put(in.Result, nv)
	return nv
}

func duplicateCmpXchg(s *State, fn *ir.Function, b *ir.BasicBlock, in *ir.CmpXchgInst) *ir.Value {
	clone := in.Clone(fn.NewInstrID()).(*ir.CmpXchgInst)
	addrD := duplicateValue(s, fn, in.Address)
	expD := duplicateValue(s, fn, in.Expected)
	newD := duplicateValue(s, fn, in.New)
	if addrD == nil && expD == nil && newD == nil {
		return nil
	}
	if addrD != nil {
		clone.Address = addrD
	}
	if expD != nil {
		clone.Expected = expD
	}
	if newD != nil {
		clone.New = newD
	}
	clone.ResultVal = freshResultLike(fn, in.ResultVal)
	clone.ResultOK = freshResultLike(fn, in.ResultOK)
	insertAfter(b, in, clone)
	s.Dup.Put(in.ResultVal, clone.ResultVal)
	s.Dup.Put(in.ResultOK, clone.ResultOK)
	return clone.ResultVal
}

// duplicateValue returns v's duplicate, creating it on demand by
// recursively duplicating its defining instruction, or nil if v is a
// constant, an undeclared parameter, or a global/param with no existing
// duplicate — all of which are "unduplicated" operands the original
// value is reused for (§4.5's operand-rewriting rule).
func duplicateValue(s *State, fn *ir.Function, v *ir.Value) *ir.Value {
	if v == nil {
		return nil
	}
	if existing := s.Dup.Get(v); existing != nil {
		return existing
	}
	if v.Kind != ir.ValInstr || v.Def == nil {
		return nil
	}
	// v.Block is only populated by code paths that stamp it at
	// construction time (builder.go); the instruction's own Block field,
	// set by BasicBlock.Append/SetTerm, is authoritative everywhere else.
	owner := v.Def.GetBlock()
	if owner == nil || owner.Func != fn {
		return nil
	}
	return duplicateInstruction(s, fn, owner, v.Def)
}

func freshResultLike(fn *ir.Function, orig *ir.Value) *ir.Value {
	name := "v"
	if orig != nil {
		name = orig.Name + "_dup"
	}
	var t ir.Type
	if orig != nil {
		t = orig.Type
	}
	return &ir.Value{ID: fn.NewValueID(), Name: name, Type: t, Kind: ir.ValInstr}
}

// insertAfter splices clone into b.Instrs immediately following after.
func insertAfter(b *ir.BasicBlock, after, clone ir.Instruction) {
	idx := -1
	for i, in := range b.Instrs {
		if in == after {
			idx = i
			break
		}
	}
	clone.SetBlock(b)
	if idx < 0 {
		b.Instrs = append(b.Instrs, clone)
		return
	}
	b.Instrs = append(b.Instrs[:idx+1], append([]ir.Instruction{clone}, b.Instrs[idx+1:]...)...)
}
