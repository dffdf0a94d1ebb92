package harden

import (
	"eddiharden/internal/ir"
)

// ReturnByReferenceRewrite is C3. For every HardenFn it synthesizes a
// "_dup" twin whose parameter list is the original, doubled per the
// memory-map layout (the argument-duplication half of EDDI, normally
// performed alongside InstructionDuplicator's operand rewriting but
// pulled forward here since the twin's signature must exist before any
// call site can be rewritten) — so that by the time InstructionDuplicator
// runs, every HardenFn has a uniform void-returning, doubled-parameter
// twin to duplicate into (§5 ordering rule 3).
//
// A function returning a non-void value additionally gets two trailing
// out-parameters of pointer-to-return-type; every `return e` inside
// becomes a store of e to the first out-parameter followed by a void
// return, with DuplicateInstructions (C5) supplying the second store
// into the duplicate out-parameter once it duplicates the function body.
// A void-returning function needs no out-parameters: its twin's body is
// cloned with the doubled parameter list and left void-returning as-is.
//
// The original function f is left completely untouched and remains
// callable from code outside the sphere of replication (§8 S1).
func ReturnByReferenceRewrite(s *State) error {
	for name := range copyBoolMap(s.Sets.HardenFns) {
		fn := s.Module.FindFunction(name)
		if fn == nil || fn.IsDeclaration {
			continue
		}
		if err := s.advance(name, StateSignaturesRewritten); err != nil {
			return err
		}
		dupFn := synthesizeReturnByRefTwin(s, fn)
		s.DupFuncs[name] = dupFn
		s.Module.AddFunction(dupFn)
	}
	return nil
}

func synthesizeReturnByRefTwin(s *State, fn *ir.Function) *ir.Function {
	_, isVoid := fn.Sig.Return.(*ir.VoidType)

	dupFn := &ir.Function{
		Name:  fn.Name + "_dup",
		Attrs: map[string]string{},
		Sig: &ir.FunctionType{
			Return: &ir.VoidType{},
		},
	}

	// Doubled argument list, laid out per the configured memory map.
	paramPairs := make([][2]*ir.Param, len(fn.Params))
	for idx, p := range fn.Params {
		orig := &ir.Param{Val: &ir.Value{ID: dupFn.NewValueID(), Name: p.Val.Name, Type: p.Val.Type, Kind: ir.ValParam}}
		twin := &ir.Param{Val: &ir.Value{ID: dupFn.NewValueID(), Name: p.Val.Name + "_dup", Type: p.Val.Type, Kind: ir.ValParam}}
		paramPairs[idx] = [2]*ir.Param{orig, twin}
		s.Dup.Put(orig.Val, twin.Val)
	}
	appendDoubled(dupFn, paramPairs, s.Cfg.AlternateMemmap)

	var outA, outB *ir.Param
	if !isVoid {
		outPtrType := &ir.PointerType{}
		outA = &ir.Param{Val: &ir.Value{ID: dupFn.NewValueID(), Name: "out0", Type: outPtrType, Kind: ir.ValParam}}
		outB = &ir.Param{Val: &ir.Value{ID: dupFn.NewValueID(), Name: "out1", Type: outPtrType, Kind: ir.ValParam}}
		dupFn.Params = append(dupFn.Params, outA, outB)
		// outA is the "original" out-slot and outB its duplicate, registered
		// up front so InstructionDuplicator's ordinary store-duplication
		// (§4.5) retargets the store it generates from the single store
		// below at outB instead of writing val_dup back over outA.
		s.Dup.Put(outA.Val, outB.Val)
	}
	for _, t := range dupFn.Params {
		dupFn.Sig.Params = append(dupFn.Sig.Params, t.Val.Type)
	}

	// Clone fn's blocks, remapping parameter references to the new
	// doubled parameter list; a non-void return becomes one store to the
	// first out-parameter plus a void return (C5 adds the second store).
	blockMap := map[*ir.BasicBlock]*ir.BasicBlock{}
	for _, b := range fn.Blocks {
		blockMap[b] = &ir.BasicBlock{Label: b.Label, Func: dupFn}
	}
	valueMap := map[*ir.Value]*ir.Value{}
	for idx, p := range fn.Params {
		valueMap[p.Val] = paramPairs[idx][0].Val
	}

	for _, b := range fn.Blocks {
		nb := blockMap[b]
		for _, inst := range b.Instrs {
			c := inst.Clone(dupFn.NewInstrID())
			remapInstruction(c, valueMap, blockMap)
			if res := inst.GetResult(); res != nil {
				nv := &ir.Value{ID: dupFn.NewValueID(), Name: res.Name, Type: res.Type, Kind: ir.ValInstr}
				valueMap[res] = nv
				setResult(c, nv)
			}
			nb.Append(c)
		}
		if ret, ok := b.Term.(*ir.ReturnInst); ok && !isVoid {
			var val *ir.Value
			if ret.Val != nil {
				val = remapValue(ret.Val, valueMap)
			}
			// Only the original slot is stored here; DuplicateInstructions
			// (C5) sees outA registered with a duplicate and produces the
			// second store into outB itself, mirroring every other store's
			// duplication instead of special-casing this one.
			nb.Append(&ir.StoreInst{ID: dupFn.NewInstrID(), Address: outA.Val, Val: val})
			nb.SetTerm(&ir.ReturnInst{ID: dupFn.NewInstrID()})
			continue
		}
		term := b.Term.Clone(dupFn.NewInstrID()).(ir.Terminator)
		remapInstruction(term, valueMap, blockMap)
		nb.SetTerm(term)
	}

	for _, b := range fn.Blocks {
		dupFn.Blocks = append(dupFn.Blocks, blockMap[b])
	}
	return dupFn
}

// appendDoubled lays a parameter-pair list into dupFn.Params either
// interleaved (a, a', b, b', ...) or segregated (a, b, ..., a', b', ...)
// per the alternate-memmap configuration flag (spec §6).
func appendDoubled(dupFn *ir.Function, pairs [][2]*ir.Param, interleaved bool) {
	if interleaved {
		for _, pr := range pairs {
			dupFn.Params = append(dupFn.Params, pr[0], pr[1])
		}
		return
	}
	for _, pr := range pairs {
		dupFn.Params = append(dupFn.Params, pr[0])
	}
	for _, pr := range pairs {
		dupFn.Params = append(dupFn.Params, pr[1])
	}
}

func copyBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
