// Package harden implements the EDDI/CFCSS data-flow hardening core: a
// whole-module transformation that duplicates the computations and
// globals reachable from annotated entry points and inserts runtime
// comparison checks between the two copies, so a single-bit upset in
// either copy is caught before it can escape through a store, a call, or
// a branch decision.
package harden

import (
	"eddiharden/internal/annotate"
	"eddiharden/internal/closure"
	"eddiharden/internal/diag"
	"eddiharden/internal/ir"
)

// Result bundles everything a caller needs after the core has run: the
// module itself (mutated in place), the intermediate analyses that
// decided what got duplicated, and the ordered list of functions whose
// bodies were actually duplicated, for internal/report's CSV side-output.
type Result struct {
	Module              *ir.Module
	Annotations         *ir.Annotations
	Sets                *ir.ProtectionSets
	Dup                 *ir.DuplicateMap
	DuplicatedFunctions []string
}

// pass is one stage of the pipeline, mirroring the teacher's
// OptimizationPass shape (Name/Description/Apply) generalized from
// "rewrite one Program" to "rewrite one State" and from "returns whether
// it changed anything" to "returns an error", since every stage here
// always runs and a skipped function is reported through s.Rep rather
// than through the pipeline's own return value.
type pass struct {
	name        string
	description string
	apply       func(*State) error
}

// Pipeline is the ordered driver sequencing C1 through C9 per §5's
// ordering guarantees. Its pass list is fixed and does not depend on
// cfg; internal/cfc is a separate pipeline stage entirely, run after
// this one returns.
type Pipeline struct {
	passes []pass
}

// NewPipeline builds the fixed C3–C9 pass list (C1 and C2 run in Run
// before it). Each pass is a free function of *State, testable on its
// own State.
func NewPipeline() *Pipeline {
	p := &Pipeline{}
	p.passes = []pass{
		{"ReturnByReferenceRewrite", "carve out return-by-reference twins before any call site can target them", ReturnByReferenceRewrite},
		{"GlobalDuplicator", "duplicate qualifying globals", func(s *State) error { DuplicateGlobals(s); return nil }},
		{"InstructionDuplicator", "duplicate data-flow computations reachable from the protection closure", DuplicateInstructions},
		{"CheckInserter", "insert comparison checks between original and duplicated values", InsertChecks},
		{"CallRewriter", "redirect call and invoke sites at duplicated twins", RewriteCalls},
		{"ErrorBlockSynthesis", "clone the canonical error block once per failing edge", func(s *State) error { FinalizeErrorBlocks(s); return nil }},
		{"VTableDuplicator", "duplicate constructor vtables", DuplicateVTables},
		{"CtorFixup", "redirect the global-constructor list at duplicated twins", FixupCtors},
	}
	return p
}

// Run executes C1/C2 (annotation collection and protection-closure
// computation) followed by every registered pass in order, surfacing the
// first error rather than attempting to continue past a broken
// invariant — the teacher's pipeline tolerates a no-op pass; this one
// cannot tolerate a pass that leaves the module in an inconsistent state.
func (p *Pipeline) Run(m *ir.Module, cfg *Config, rep *diag.Reporter) (*Result, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if rep == nil {
		rep = diag.NewReporter()
	}

	annos := annotate.Collect(m, rep)
	sets := closure.Compute(m, annos, rep)

	s := newState(m, cfg, rep)
	s.Annotations = annos
	s.Sets = sets

	for _, stage := range p.passes {
		if err := stage.apply(s); err != nil {
			rep.Report(diag.Diagnostic{
				Level:   diag.Error,
				Message: stage.name + ": " + err.Error(),
			})
			return nil, err
		}
	}

	return &Result{
		Module:              m,
		Annotations:         annos,
		Sets:                sets,
		Dup:                 s.Dup,
		DuplicatedFunctions: s.DuplicatedFunctions,
	}, nil
}

// Run is the one-shot convenience entry point: build the default pass
// sequence and run it once. Most callers (cmd/eddiharden-cli included)
// have no reason to hold onto a *Pipeline across runs.
func Run(m *ir.Module, cfg *Config, rep *diag.Reporter) (*Result, error) {
	return NewPipeline().Run(m, cfg, rep)
}
