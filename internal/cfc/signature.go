// Package cfc is the control-flow-checking collaborator: a compile-time
// basic-block signature assignment plus a runtime signature-update-and-check
// insertion pass, run as a separate stage after the EDDI data-flow core
// (internal/harden) has finished. It implements CFCSS; rasm is handled
// identically, and inter-rasm differs only at a function's entry block,
// where it first validates the incoming signature against
// DefaultInterRASMSignature.
package cfc

import "eddiharden/internal/ir"

// Signatures is a compile-time assignment of one signature value per
// basic block, module-wide. CFCSS only requires the values be distinct;
// this assigns them by a single module-wide counter in function/block
// declaration order, which is sufficient and deterministic without a
// real register allocator (spec explicitly scopes this pass down to
// that: "no register allocation or path-sensitive optimization").
type Signatures struct {
	byBlock map[*ir.BasicBlock]int64
}

// DefaultInterRASMSignature is the reserved incoming signature inter-RASM
// assumes for a function entered from outside the signature domain (an
// interrupt, or a call from a translation unit this pass never saw) — a
// block that can't know its caller's real exit signature validates
// against this constant instead.
const DefaultInterRASMSignature int64 = -0xDEAD

// AssignSignatures walks every defined function's blocks in order and
// hands each one the next integer in a module-wide sequence, starting
// at 1 (0 is reserved so a zero-valued Signatures lookup is visibly
// "unassigned" rather than a plausible signature).
func AssignSignatures(m *ir.Module) *Signatures {
	s := &Signatures{byBlock: map[*ir.BasicBlock]int64{}}
	var next int64 = 1
	for _, fn := range m.Functions {
		if fn.IsDeclaration {
			continue
		}
		for _, b := range fn.Blocks {
			s.byBlock[b] = next
			next++
		}
	}
	return s
}

// Of returns b's assigned signature, or 0 if b was never assigned one
// (a block outside any defined function, or created after assignment ran).
func (s *Signatures) Of(b *ir.BasicBlock) int64 {
	return s.byBlock[b]
}
