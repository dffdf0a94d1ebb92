package harden

import (
	"fmt"

	"eddiharden/internal/ir"
)

// FinalizeErrorBlocks is §4.10. Run once per function after both
// CheckInserter and CallRewriter have finished contributing edges to its
// canonical error block: every edge still targeting the template gets
// its own clone, so each failing check can later carry distinct debug
// information, and the template itself is deleted.
func FinalizeErrorBlocks(s *State) {
	for fn, template := range s.errBlocks {
		edges := findEdgesTo(fn, template)
		for i, term := range edges {
			clone := cloneErrorBlock(fn, template, i)
			term.ReplaceSuccessor(template, clone)
		}
		removeBlock(fn, template)
	}
	s.errBlocks = map[*ir.Function]*ir.BasicBlock{}
}

func findEdgesTo(fn *ir.Function, target *ir.BasicBlock) []ir.Terminator {
	var out []ir.Terminator
	for _, b := range fn.Blocks {
		if b == target || b.Term == nil {
			continue
		}
		for _, succ := range b.Term.GetSuccessors() {
			if succ == target {
				out = append(out, b.Term)
				break
			}
		}
	}
	return out
}

func cloneErrorBlock(fn *ir.Function, template *ir.BasicBlock, n int) *ir.BasicBlock {
	nb := &ir.BasicBlock{Label: fmt.Sprintf("%s.%d", template.Label, n), Func: fn}
	for _, inst := range template.Instrs {
		nb.Append(inst.Clone(fn.NewInstrID()))
	}
	nb.SetTerm(template.Term.Clone(fn.NewInstrID()).(ir.Terminator))
	fn.Blocks = append(fn.Blocks, nb)
	return nb
}

func removeBlock(fn *ir.Function, b *ir.BasicBlock) {
	out := make([]*ir.BasicBlock, 0, len(fn.Blocks))
	for _, x := range fn.Blocks {
		if x != b {
			out = append(out, x)
		}
	}
	fn.Blocks = out
}
