package harden

import "eddiharden/internal/ir"

// RewriteCalls is C7. For each call/invoke site inside a HardenFn's body,
// applies exactly one of the four cases of §4.7.
func RewriteCalls(s *State) error {
	for name := range copyBoolMap(s.Sets.HardenFns) {
		fn := s.bodyTarget(name)
		if fn == nil || fn.IsDeclaration {
			continue
		}
		rewriteCallsInFunction(s, fn)
	}
	return nil
}

func rewriteCallsInFunction(s *State, fn *ir.Function) {
	for _, b := range append([]*ir.BasicBlock(nil), fn.Blocks...) {
		for _, inst := range append([]ir.Instruction(nil), b.Instrs...) {
			switch c := inst.(type) {
			case *ir.CallInst:
				rewriteCall(s, fn, b, c)
			case *ir.IntrinsicInst:
				rewriteIntrinsic(s, fn, b, c)
			}
		}
		if inv, ok := b.Term.(*ir.InvokeInst); ok {
			rewriteInvokeSite(s, fn, b, inv)
		}
	}
}

var duplicationWorthyIntrinsics = map[string]bool{
	"llvm.memcpy":  true,
	"llvm.memmove": true,
	"llvm.memset":  true,
}

func rewriteCall(s *State, fn *ir.Function, b *ir.BasicBlock, c *ir.CallInst) {
	if c.CalleePtr != nil {
		rewriteIndirectCall(s, fn, b, c)
		return
	}
	callee := c.Callee
	if callee == nil {
		return
	}
	if s.Annotations.Func(callee.Name) == ir.AnnoDuplicate {
		cloneDirectCall(s, fn, b, c)
		return
	}
	if s.Sets.IsHardenFunc(callee.Name) {
		if dupFn, ok := s.DupFuncs[callee.Name]; ok {
			redirectToDupVariant(s, fn, b, c, callee, dupFn)
			return
		}
		// §9 Case 4 (source notes): f_dup is still being synthesized
		// (the recursive-callee case) — nothing to redirect to yet,
		// fall through to the external-call resync case so any pointer
		// arguments stay synchronized.
	}
	resyncAfterCall(s, fn, b, c, c.Args, c.ArgAttrs)
}

// cloneDirectCall handles case 1: f is to_duplicate, or a
// duplication-worthy intrinsic. The call is cloned right after the
// original with every operand rewritten to its duplicate where one
// exists.
func cloneDirectCall(s *State, fn *ir.Function, b *ir.BasicBlock, c *ir.CallInst) {
	clone := c.Clone(fn.NewInstrID()).(*ir.CallInst)
	for _, old := range c.Args {
		if nd := s.Dup.Get(old); nd != nil {
			clone.ReplaceOperand(old, nd)
		}
	}
	if c.Result != nil {
		nv := freshResultLike(fn, c.Result)
		clone.Result = nv
		s.Dup.Put(c.Result, nv)
	}
	insertAfter(b, c, clone)
}

func rewriteIntrinsic(s *State, fn *ir.Function, b *ir.BasicBlock, c *ir.IntrinsicInst) {
	if !duplicationWorthyIntrinsics[c.Name] {
		return
	}
	clone := c.Clone(fn.NewInstrID()).(*ir.IntrinsicInst)
	for _, old := range c.Args {
		if nd := s.Dup.Get(old); nd != nil {
			clone.ReplaceOperand(old, nd)
		}
	}
	if c.Result != nil {
		nv := freshResultLike(fn, c.Result)
		clone.Result = nv
		s.Dup.Put(c.Result, nv)
	}
	insertAfter(b, c, clone)
}

// redirectToDupVariant handles case 2: redirect c to f_dup. The argument
// vector is doubled per the memory-map configuration. A void-returning f
// has nothing further to do — f_dup's signature is just the doubled
// parameter list. A value-returning f additionally gets two stack slots
// sized to its original return type allocated, their addresses appended
// as the trailing out-parameters f_dup expects (§4.7); after the call,
// the original value is loaded back from the first slot into c's old
// result (every existing use stays wired to the same Value), and the
// second slot is loaded into a fresh value registered as that result's
// duplicate in D, per C3/C5's registration convention.
func redirectToDupVariant(s *State, fn *ir.Function, b *ir.BasicBlock, c *ir.CallInst, callee, dupFn *ir.Function) {
	args, attrs := doubledArgs(s, c.Args, c.ArgAttrs, s.Cfg.AlternateMemmap)

	if _, void := callee.Sig.Return.(*ir.VoidType); void {
		c.Callee = dupFn
		c.Args = args
		c.ArgAttrs = attrs
		return
	}

	slot0, slot1 := allocateOutSlots(fn, callee.Sig.Return)

	origResult := c.Result
	c.Callee = dupFn
	c.Args = append(args, slot0, slot1)
	c.ArgAttrs = append(attrs, nil, nil)
	c.Result = nil

	loadPrimary, loadDup := loadOutSlots(fn, callee.Sig.Return, origResult, slot0, slot1)
	insertAfter(b, c, loadPrimary)
	insertAfter(b, loadPrimary, loadDup)

	if origResult != nil {
		s.Dup.Put(origResult, loadDup.Result)
	}
}

// allocateOutSlots allocates the pair of stack slots a redirected call or
// invoke passes as its trailing out-parameters, grouped at the front of
// fn's entry block alongside any existing alloca prefix. Unlike
// insertAlloca's grouping rule, this ignores alternate-memmap: that knob
// only governs where a duplicate is placed relative to the original
// instruction it shadows (§6), and these two slots are not a
// original/duplicate pair shadowing any existing instruction — they're
// fresh call-site infrastructure with no "original" placement to stay
// adjacent to, so grouping them at the entry block's alloca prefix like
// any other plain alloca is the only placement that applies here.
func allocateOutSlots(fn *ir.Function, retType ir.Type) (*ir.Value, *ir.Value) {
	slot0 := &ir.Value{ID: fn.NewValueID(), Name: "ret_slot0", Type: &ir.PointerType{}, Kind: ir.ValInstr}
	slot0Alloca := &ir.AllocaInst{ID: fn.NewInstrID(), Result: slot0, ElemType: retType}
	slot0.Def = slot0Alloca
	slot1 := &ir.Value{ID: fn.NewValueID(), Name: "ret_slot1", Type: &ir.PointerType{}, Kind: ir.ValInstr}
	slot1Alloca := &ir.AllocaInst{ID: fn.NewInstrID(), Result: slot1, ElemType: retType}
	slot1.Def = slot1Alloca

	b := fn.EntryBlock()
	idx := 0
	for idx < len(b.Instrs) {
		if _, ok := b.Instrs[idx].(*ir.AllocaInst); !ok {
			break
		}
		idx++
	}
	slot0Alloca.SetBlock(b)
	slot1Alloca.SetBlock(b)
	b.Instrs = append(b.Instrs[:idx], append([]ir.Instruction{slot0Alloca, slot1Alloca}, b.Instrs[idx:]...)...)
	return slot0, slot1
}

// loadOutSlots builds the two loads that read a redirected call's result
// back out of its out-slots: the first reuses origResult's identity (or a
// fresh value if the original result was unused) so every existing use
// stays wired to the same Value, the second is a fresh value registered
// by the caller as origResult's duplicate in D.
func loadOutSlots(fn *ir.Function, retType ir.Type, origResult, slot0, slot1 *ir.Value) (*ir.LoadInst, *ir.LoadInst) {
	primary := origResult
	if primary == nil {
		primary = &ir.Value{ID: fn.NewValueID(), Name: "ret", Type: retType, Kind: ir.ValInstr}
	}
	loadPrimary := &ir.LoadInst{ID: fn.NewInstrID(), Result: primary, Address: slot0, ElemType: retType}
	primary.Def = loadPrimary

	dup := &ir.Value{ID: fn.NewValueID(), Name: primary.Name + "_dup", Type: retType, Kind: ir.ValInstr}
	loadDup := &ir.LoadInst{ID: fn.NewInstrID(), Result: dup, Address: slot1, ElemType: retType}
	dup.Def = loadDup

	return loadPrimary, loadDup
}

func doubledArgs(s *State, args []*ir.Value, attrs []ir.ParamAttr, interleaved bool) ([]*ir.Value, []ir.ParamAttr) {
	pairs := make([][2]*ir.Value, len(args))
	pairAttrs := make([][2]ir.ParamAttr, len(args))
	for i, a := range args {
		dup := s.Dup.Get(a)
		if dup == nil {
			dup = a // unduplicated argument: both slots carry the same value
		}
		pairs[i] = [2]*ir.Value{a, dup}
		var at ir.ParamAttr
		if i < len(attrs) {
			at = attrs[i]
		}
		pairAttrs[i] = [2]ir.ParamAttr{at, at}
	}
	var outArgs []*ir.Value
	var outAttrs []ir.ParamAttr
	if interleaved {
		for i := range pairs {
			outArgs = append(outArgs, pairs[i][0], pairs[i][1])
			outAttrs = append(outAttrs, pairAttrs[i][0], pairAttrs[i][1])
		}
	} else {
		for i := range pairs {
			outArgs = append(outArgs, pairs[i][0])
			outAttrs = append(outAttrs, pairAttrs[i][0])
		}
		for i := range pairs {
			outArgs = append(outArgs, pairs[i][1])
			outAttrs = append(outAttrs, pairAttrs[i][1])
		}
	}
	return outArgs, outAttrs
}

// rewriteIndirectCall handles case 3: synthesize a doubled-arity function
// type, bit-cast the callee pointer to it, and emit the call in the
// chosen argument layout.
func rewriteIndirectCall(s *State, fn *ir.Function, b *ir.BasicBlock, c *ir.CallInst) {
	args, attrs := doubledArgs(s, c.Args, c.ArgAttrs, s.Cfg.AlternateMemmap)

	castResult := &ir.Value{ID: fn.NewValueID(), Name: "callee_cast", Type: &ir.PointerType{}, Kind: ir.ValInstr}
	cast := &ir.CastInst{ID: fn.NewInstrID(), Result: castResult, Kind: "bitcast", Operand: c.CalleePtr, ToType: &ir.PointerType{}}
	insertBefore(b, c, cast)
	castResult.Def = cast

	c.CalleePtr = castResult
	c.Args = args
	c.ArgAttrs = attrs
}

// rewriteInvokeSite mirrors rewriteCall for the invoke terminator,
// preserving the normal/unwind destinations untouched (§4.7 Terminators).
func rewriteInvokeSite(s *State, fn *ir.Function, b *ir.BasicBlock, inv *ir.InvokeInst) {
	if inv.CalleePtr != nil {
		args, attrs := doubledArgs(s, inv.Args, inv.ArgAttrs, s.Cfg.AlternateMemmap)
		castResult := &ir.Value{ID: fn.NewValueID(), Name: "callee_cast", Type: &ir.PointerType{}, Kind: ir.ValInstr}
		cast := &ir.CastInst{ID: fn.NewInstrID(), Result: castResult, Kind: "bitcast", Operand: inv.CalleePtr, ToType: &ir.PointerType{}}
		b.Append(cast)
		castResult.Def = cast
		inv.CalleePtr = castResult
		inv.Args = args
		inv.ArgAttrs = attrs
		return
	}
	callee := inv.Callee
	if callee == nil {
		return
	}
	if s.Sets.IsHardenFunc(callee.Name) {
		if dupFn, ok := s.DupFuncs[callee.Name]; ok {
			redirectInvokeToDupVariant(s, fn, inv, callee, dupFn)
			return
		}
	}
	resyncAfterInvoke(s, fn, inv)
}

// redirectInvokeToDupVariant mirrors redirectToDupVariant for the invoke
// terminator. The result-loading pair lands at the front of the
// normal-path destination block, since that edge is the only one control
// reaches with a result to read — the unwind edge never sees one.
func redirectInvokeToDupVariant(s *State, fn *ir.Function, inv *ir.InvokeInst, callee, dupFn *ir.Function) {
	args, attrs := doubledArgs(s, inv.Args, inv.ArgAttrs, s.Cfg.AlternateMemmap)

	if _, void := callee.Sig.Return.(*ir.VoidType); void {
		inv.Callee = dupFn
		inv.Args = args
		inv.ArgAttrs = attrs
		return
	}

	if inv.Normal == nil {
		// No edge to load the result back in on: redirecting without a
		// place to read the result would strand origResult with nothing
		// ever writing back to it. Leave the invoke exactly as found.
		return
	}

	slot0, slot1 := allocateOutSlots(fn, callee.Sig.Return)

	origResult := inv.Result
	inv.Callee = dupFn
	inv.Args = append(args, slot0, slot1)
	inv.ArgAttrs = append(attrs, nil, nil)
	inv.Result = nil

	loadPrimary, loadDup := loadOutSlots(fn, callee.Sig.Return, origResult, slot0, slot1)
	loadPrimary.SetBlock(inv.Normal)
	loadDup.SetBlock(inv.Normal)
	inv.Normal.Instrs = append([]ir.Instruction{loadPrimary, loadDup}, inv.Normal.Instrs...)

	if origResult != nil {
		s.Dup.Put(origResult, loadDup.Result)
	}
}

// resyncAfterCall handles case 4: the callee is untouched, so any
// pointer argument with a duplicate needs its shadow copy refreshed —
// the callee may have mutated through the pointer. See buildResyncPair
// for the §4 S4 "tmp = load orig; store tmp, dup" pattern this builds.
func resyncAfterCall(s *State, fn *ir.Function, b *ir.BasicBlock, after ir.Instruction, args []*ir.Value, _ []ir.ParamAttr) {
	cursor := after
	for _, a := range args {
		if a == nil {
			continue
		}
		if _, ok := a.Type.(*ir.PointerType); !ok {
			continue
		}
		dup := s.Dup.Get(a)
		if dup == nil {
			continue
		}
		cursor = emitResync(fn, b, cursor, a, dup)
	}
}

// resyncAfterInvoke does the same at an invoke's normal-destination
// entry, since control only reaches there on the non-exceptional path.
// Like redirectInvokeToDupVariant's own result-loading pair, this
// assumes inv.Normal is not itself shared by any other predecessor edge
// (no critical-edge splitting is performed anywhere in this IR) — a
// pre-existing assumption of the invoke-rewriting path, not one specific
// to resync.
func resyncAfterInvoke(s *State, fn *ir.Function, inv *ir.InvokeInst) {
	dest := inv.Normal
	if dest == nil {
		return
	}
	var inserted []ir.Instruction
	for _, a := range inv.Args {
		if _, ok := a.Type.(*ir.PointerType); !ok {
			continue
		}
		dup := s.Dup.Get(a)
		if dup == nil {
			continue
		}
		load, store := buildResyncPair(fn, a, dup)
		inserted = append(inserted, load, store)
	}
	dest.Instrs = append(append([]ir.Instruction(nil), inserted...), dest.Instrs...)
	for _, in := range inserted {
		in.SetBlock(dest)
	}
}

// buildResyncPair constructs the "tmp = load orig; store tmp, dup"
// instruction pair §4's S4 example prescribes for refreshing a shadow
// copy after an untouched call/invoke may have mutated through orig. The
// load/store both use a 64-bit integer view of the pointee: the opaque
// PointerType used throughout this IR carries no element-type metadata
// for an arbitrary pointer argument, so there is no narrower width to
// recover it from (same rationale as emitPointerCmp in checks.go).
func buildResyncPair(fn *ir.Function, orig, dup *ir.Value) (*ir.LoadInst, *ir.StoreInst) {
	tmp := &ir.Value{ID: fn.NewValueID(), Name: "resync", Type: &ir.IntType{Bits: 64}, Kind: ir.ValInstr}
	load := &ir.LoadInst{ID: fn.NewInstrID(), Result: tmp, Address: orig, ElemType: &ir.IntType{Bits: 64}}
	tmp.Def = load
	store := &ir.StoreInst{ID: fn.NewInstrID(), Address: dup, Val: tmp}
	return load, store
}

func emitResync(fn *ir.Function, b *ir.BasicBlock, after ir.Instruction, orig, dup *ir.Value) ir.Instruction {
	load, store := buildResyncPair(fn, orig, dup)
	insertAfter(b, after, load)
	insertAfter(b, load, store)
	return store
}

func insertBefore(b *ir.BasicBlock, before, inst ir.Instruction) {
	idx := len(b.Instrs)
	for i, in := range b.Instrs {
		if in == before {
			idx = i
			break
		}
	}
	inst.SetBlock(b)
	b.Instrs = append(b.Instrs[:idx], append([]ir.Instruction{inst}, b.Instrs[idx:]...)...)
}
