package harden

import (
	"fmt"

	"eddiharden/internal/ir"
)

const dataCorruptionHandler = "DataCorruption_Handler"

// InsertChecks is C6. For every HardenFn already body-duplicated, every
// instruction matching the configured synchronization gates
// (CheckAtStores/CheckAtCalls/CheckAtBranches, further narrowed by
// FDSCOnly to multi-predecessor blocks) gets a verification block spliced
// in front of it comparing each operand against its duplicate.
func InsertChecks(s *State) error {
	for name := range copyBoolMap(s.Sets.HardenFns) {
		fn := s.bodyTarget(name)
		if fn == nil || fn.IsDeclaration {
			continue
		}
		if s.stateOf(name) < StateBodyDuplicated {
			continue
		}
		for _, target := range candidateSyncInstructions(s, fn) {
			insertCheck(s, fn, target)
		}
	}
	return nil
}

func candidateSyncInstructions(s *State, fn *ir.Function) []ir.Instruction {
	var out []ir.Instruction
	for _, b := range append([]*ir.BasicBlock(nil), fn.Blocks...) {
		for _, inst := range append([]ir.Instruction(nil), b.Instrs...) {
			if isSyncCandidate(s, inst) {
				out = append(out, inst)
			}
		}
		if b.Term != nil && isSyncCandidate(s, b.Term) {
			out = append(out, b.Term)
		}
	}
	return out
}

func isSyncCandidate(s *State, inst ir.Instruction) bool {
	var gate bool
	switch inst.(type) {
	case *ir.StoreInst, *ir.AtomicRMWInst, *ir.CmpXchgInst:
		gate = s.Cfg.CheckAtStores
	case *ir.CallInst, *ir.InvokeInst:
		gate = s.Cfg.CheckAtCalls
	case *ir.BranchInst, *ir.SwitchInst:
		gate = s.Cfg.CheckAtBranches
	default:
		return false
	}
	if !gate {
		return false
	}
	if s.Cfg.FDSCOnly {
		b := inst.GetBlock()
		if b == nil || len(b.Preds()) < 2 {
			return false
		}
	}
	return true
}

// insertCheck implements the five-step protocol of §4.6 for a single
// synchronization instruction I.
func insertCheck(s *State, fn *ir.Function, instr ir.Instruction) {
	orig := instr.GetBlock()
	if orig == nil {
		return
	}
	iBlock := splitBefore(s, fn, orig, instr)

	v := &ir.BasicBlock{Label: freshLabel(fn, orig.Label+".verify"), Func: fn}
	fn.Blocks = append(fn.Blocks, v)
	orig.SetTerm(&ir.JumpInst{ID: fn.NewInstrID(), Target: v})

	var conds []*ir.Value
	for _, op := range instr.GetOperands() {
		if c := emitComparison(s, fn, v, op, iBlock); c != nil {
			conds = append(conds, c)
		}
	}

	if len(conds) == 0 {
		v.SetTerm(&ir.JumpInst{ID: fn.NewInstrID(), Target: iBlock})
		return
	}
	and := conds[0]
	for _, c := range conds[1:] {
		and = emitAnd(fn, v, and, c)
	}
	errBlock := errorBlockFor(s, fn)
	v.SetTerm(&ir.BranchInst{ID: fn.NewInstrID(), Cond: and, TrueBlock: iBlock, FalseBlock: errBlock})
}

// splitBefore moves everything from instr onward (including the original
// terminator) into a freshly created block, leaving orig — identity
// preserved, so every existing edge into it still lands at the top of the
// unchanged prefix — holding only the instructions that precede instr.
func splitBefore(s *State, fn *ir.Function, orig *ir.BasicBlock, instr ir.Instruction) *ir.BasicBlock {
	idx := len(orig.Instrs)
	if instr != orig.Term {
		for i, in := range orig.Instrs {
			if in == instr {
				idx = i
				break
			}
		}
	}
	tail := &ir.BasicBlock{Label: freshLabel(fn, orig.Label+".sync"), Func: fn}
	tail.Instrs = append([]ir.Instruction(nil), orig.Instrs[idx:]...)
	for _, in := range tail.Instrs {
		in.SetBlock(tail)
	}
	origTerm := orig.Term
	tail.SetTerm(origTerm)
	orig.Instrs = orig.Instrs[:idx]
	fn.Blocks = append(fn.Blocks, tail)
	return tail
}

func freshLabel(fn *ir.Function, base string) string {
	return fmt.Sprintf("%s.%d", base, fn.NewInstrID())
}

// emitComparison emits the appropriate comparison for op against its
// duplicate, appending instructions to v, or nil if op has no duplicate
// or is a pointer not worth checking (§4.6 step 3).
func emitComparison(s *State, fn *ir.Function, v *ir.BasicBlock, op *ir.Value, from *ir.BasicBlock) *ir.Value {
	dup := s.Dup.Get(op)
	if dup == nil || op == nil {
		return nil
	}
	switch t := op.Type.(type) {
	case *ir.IntType, *ir.BoolType:
		return emitScalarCmp(fn, v, "eq", false, op, dup)
	case *ir.FloatType:
		return emitScalarCmp(fn, v, "ueq", true, op, dup)
	case *ir.PointerType:
		if !pointerUsedByReachableStore(op, from) {
			return nil
		}
		return emitPointerCmp(fn, v, op, dup)
	case *ir.ArrayType:
		if isAggregate(t.Elem) {
			return nil
		}
		return emitArrayCmp(s, fn, v, op, dup, t)
	default:
		return nil
	}
}

func emitScalarCmp(fn *ir.Function, v *ir.BasicBlock, pred string, float bool, a, b *ir.Value) *ir.Value {
	r := &ir.Value{ID: fn.NewValueID(), Name: "chk", Type: &ir.BoolType{}, Kind: ir.ValInstr}
	inst := &ir.CmpInst{ID: fn.NewInstrID(), Result: r, Pred: pred, Float: float, LHS: a, RHS: b}
	v.Append(inst)
	r.Def = inst
	return r
}

func emitAnd(fn *ir.Function, v *ir.BasicBlock, a, b *ir.Value) *ir.Value {
	r := &ir.Value{ID: fn.NewValueID(), Name: "chk_and", Type: &ir.BoolType{}, Kind: ir.ValInstr}
	inst := &ir.BinaryInst{ID: fn.NewInstrID(), Result: r, Op: "and", LHS: a, RHS: b}
	v.Append(inst)
	r.Def = inst
	return r
}

// emitPointerCmp loads the pointed-to scalar from both copies and
// compares. The opaque pointer representation carries no element-type
// metadata of its own, so the load uses a 64-bit integer view — a
// pragmatic default, not a claim about the pointee's real type.
func emitPointerCmp(fn *ir.Function, v *ir.BasicBlock, ptr, dupPtr *ir.Value) *ir.Value {
	scalar := &ir.IntType{Bits: 64}
	l1 := &ir.Value{ID: fn.NewValueID(), Name: "ptrval", Type: scalar, Kind: ir.ValInstr}
	load1 := &ir.LoadInst{ID: fn.NewInstrID(), Result: l1, Address: ptr, ElemType: scalar}
	v.Append(load1)
	l1.Def = load1
	l2 := &ir.Value{ID: fn.NewValueID(), Name: "ptrval_dup", Type: scalar, Kind: ir.ValInstr}
	load2 := &ir.LoadInst{ID: fn.NewInstrID(), Result: l2, Address: dupPtr, ElemType: scalar}
	v.Append(load2)
	l2.Def = load2
	return emitScalarCmp(fn, v, "eq", false, l1, l2)
}

func emitArrayCmp(s *State, fn *ir.Function, v *ir.BasicBlock, arr, dupArr *ir.Value, t *ir.ArrayType) *ir.Value {
	var and *ir.Value
	floatElem := false
	if _, ok := t.Elem.(*ir.FloatType); ok {
		floatElem = true
	}
	for idx := 0; idx < t.Count; idx++ {
		idxVal := &ir.Value{Name: fmt.Sprintf("%d", idx), Type: &ir.IntType{Bits: 64}, Kind: ir.ValConst, Const: idx}

		g1 := &ir.Value{ID: fn.NewValueID(), Name: "elem", Type: &ir.PointerType{}, Kind: ir.ValInstr}
		gep1 := &ir.GEPInst{ID: fn.NewInstrID(), Result: g1, Base: arr, Indices: []*ir.Value{idxVal}, ElemType: t.Elem}
		v.Append(gep1)
		g1.Def = gep1

		g2 := &ir.Value{ID: fn.NewValueID(), Name: "elem_dup", Type: &ir.PointerType{}, Kind: ir.ValInstr}
		gep2 := &ir.GEPInst{ID: fn.NewInstrID(), Result: g2, Base: dupArr, Indices: []*ir.Value{idxVal}, ElemType: t.Elem}
		v.Append(gep2)
		g2.Def = gep2

		l1 := &ir.Value{ID: fn.NewValueID(), Name: "elemval", Type: t.Elem, Kind: ir.ValInstr}
		load1 := &ir.LoadInst{ID: fn.NewInstrID(), Result: l1, Address: g1, ElemType: t.Elem}
		v.Append(load1)
		l1.Def = load1

		l2 := &ir.Value{ID: fn.NewValueID(), Name: "elemval_dup", Type: t.Elem, Kind: ir.ValInstr}
		load2 := &ir.LoadInst{ID: fn.NewInstrID(), Result: l2, Address: g2, ElemType: t.Elem}
		v.Append(load2)
		l2.Def = load2

		s.Dup.Put(l1, l2)

		pred, float := "eq", false
		if floatElem {
			pred, float = "ueq", true
		}
		cmp := emitScalarCmp(fn, v, pred, float, l1, l2)
		if and == nil {
			and = cmp
		} else {
			and = emitAnd(fn, v, and, cmp)
		}
	}
	return and
}

func isAggregate(t ir.Type) bool {
	switch t.(type) {
	case *ir.StructType, *ir.ArrayType:
		return true
	default:
		return false
	}
}

// pointerUsedByReachableStore walks forward edges from "from" (inclusive)
// looking for a store through ptr; checking an address that is never
// written through is wasted (two copies of the same address are
// provably equal).
func pointerUsedByReachableStore(ptr *ir.Value, from *ir.BasicBlock) bool {
	if from == nil {
		return false
	}
	visited := map[*ir.BasicBlock]bool{}
	queue := []*ir.BasicBlock{from}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		if visited[b] {
			continue
		}
		visited[b] = true
		for _, inst := range b.Instrs {
			if st, ok := inst.(*ir.StoreInst); ok && st.Address == ptr {
				return true
			}
		}
		if b.Term != nil {
			for _, succ := range b.Term.GetSuccessors() {
				if succ != nil && !visited[succ] {
					queue = append(queue, succ)
				}
			}
		}
	}
	return false
}

// errorBlockFor lazily materializes the single canonical error block for
// fn: a call to the externally-defined handler followed by unreachable
// (§4.6 Termination). Error-block synthesis (§4.10) later clones this
// template once per failing edge and deletes it.
func errorBlockFor(s *State, fn *ir.Function) *ir.BasicBlock {
	if s.errBlocks == nil {
		s.errBlocks = map[*ir.Function]*ir.BasicBlock{}
	}
	if b, ok := s.errBlocks[fn]; ok {
		return b
	}
	handler := ensureHandlerDecl(s)
	b := &ir.BasicBlock{Label: fmt.Sprintf("sep_error.%d", fn.NewInstrID()), Func: fn}
	b.Append(&ir.CallInst{ID: fn.NewInstrID(), Callee: handler})
	b.SetTerm(&ir.UnreachableInst{ID: fn.NewInstrID()})
	fn.Blocks = append(fn.Blocks, b)
	s.errBlocks[fn] = b
	return b
}

func ensureHandlerDecl(s *State) *ir.Function {
	if fn := s.Module.FindFunction(dataCorruptionHandler); fn != nil {
		return fn
	}
	fn := &ir.Function{
		Name:          dataCorruptionHandler,
		IsDeclaration: true,
		Sig:           &ir.FunctionType{Return: &ir.VoidType{}},
	}
	s.Module.AddFunction(fn)
	return fn
}
