package harden

import "eddiharden/internal/ir"

// remapInstruction rewrites inst's operands and (if it is a terminator or
// phi) its block references through valueMap/blockMap. Used where a
// function body is cloned wholesale (ReturnByReferenceRewrite's twin);
// InstructionDuplicator rewrites its clones through ReplaceOperand instead.
func remapInstruction(inst ir.Instruction, valueMap map[*ir.Value]*ir.Value, blockMap map[*ir.BasicBlock]*ir.BasicBlock) {
	for _, old := range inst.GetOperands() {
		if nv, ok := valueMap[old]; ok {
			inst.ReplaceOperand(old, nv)
		}
	}
	if term, ok := inst.(ir.Terminator); ok {
		for _, succ := range term.GetSuccessors() {
			if nb, ok := blockMap[succ]; ok && succ != nb {
				term.ReplaceSuccessor(succ, nb)
			}
		}
	}
	if phi, ok := inst.(*ir.PhiInst); ok {
		for j := range phi.Incoming {
			if nb, ok := blockMap[phi.Incoming[j].Block]; ok {
				phi.Incoming[j].Block = nb
			}
		}
	}
}

func remapValue(v *ir.Value, valueMap map[*ir.Value]*ir.Value) *ir.Value {
	if v == nil {
		return nil
	}
	if nv, ok := valueMap[v]; ok {
		return nv
	}
	return v
}

// setResult installs v as the (primary) result of a cloned instruction.
// CmpXchgInst carries a second result (ResultOK) callers remap separately
// when they need it; every other opcode has exactly one.
func setResult(inst ir.Instruction, v *ir.Value) {
	switch t := inst.(type) {
	case *ir.AllocaInst:
		t.Result = v
	case *ir.LoadInst:
		t.Result = v
	case *ir.BinaryInst:
		t.Result = v
	case *ir.UnaryInst:
		t.Result = v
	case *ir.CmpInst:
		t.Result = v
	case *ir.GEPInst:
		t.Result = v
	case *ir.PhiInst:
		t.Result = v
	case *ir.SelectInst:
		t.Result = v
	case *ir.CastInst:
		t.Result = v
	case *ir.CallInst:
		t.Result = v
	case *ir.IntrinsicInst:
		t.Result = v
	case *ir.AtomicRMWInst:
		t.Result = v
	case *ir.CmpXchgInst:
		t.ResultVal = v
	}
	if v != nil {
		v.Def = inst
	}
}
