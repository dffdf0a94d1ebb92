package harden

import (
	"eddiharden/internal/diag"
	"eddiharden/internal/ir"
)

// FuncState is §4.11's per-function state machine. Re-entering an earlier
// state on the same function is forbidden; State.advance enforces that.
type FuncState int

const (
	StateUntouched FuncState = iota
	StateSignaturesRewritten
	StateBodyDuplicated
	StateConstructorsFixed
	StateCtorsFixed
)

// State is the mutable context threaded through every stage of the
// pipeline: the module being transformed, C1/C2's outputs, the
// DuplicateMap every later stage reads and writes, and bookkeeping for
// the CSV side-output and the per-function state machine.
type State struct {
	Module      *ir.Module
	Annotations *ir.Annotations
	Sets        *ir.ProtectionSets
	Dup         *ir.DuplicateMap
	Cfg         *Config
	Rep         *diag.Reporter

	// DupFuncs maps an original hardened function's name to its
	// synthesized "_dup" twin, populated by ReturnByReferenceRewrite for
	// every HardenFn (void-returning ones get a twin too — just without
	// the two trailing out-parameters).
	DupFuncs map[string]*ir.Function

	// DuplicatedFunctions records, in the order they were duplicated, the
	// names of every function whose body was duplicated — the persisted
	// CSV side-output's payload (spec §6).
	DuplicatedFunctions []string

	// ctorVTable maps a constructor function's name to the vtable global
	// it stores, harvested while walking its body in VTableDuplicator.
	ctorVTable map[string]string

	// errBlocks caches each function's lazily-created canonical error
	// block (§4.6 Termination), one per function, until §4.10's
	// error-block synthesis clones and deletes it.
	errBlocks map[*ir.Function]*ir.BasicBlock

	funcState map[string]FuncState
}

func newState(m *ir.Module, cfg *Config, rep *diag.Reporter) *State {
	return &State{
		Module:     m,
		Cfg:        cfg,
		Rep:        rep,
		Dup:        ir.NewDuplicateMap(),
		DupFuncs:   map[string]*ir.Function{},
		ctorVTable: map[string]string{},
		funcState:  map[string]FuncState{},
	}
}

func (s *State) stateOf(name string) FuncState { return s.funcState[name] }

// bodyTarget returns the function whose body actually carries name's
// duplicated instructions: the "_dup" twin ReturnByReferenceRewrite (C3)
// built for it, or the original function itself when name was never a
// HardenFn to begin with (no twin was ever registered for it).
func (s *State) bodyTarget(name string) *ir.Function {
	if dupFn, ok := s.DupFuncs[name]; ok {
		return dupFn
	}
	return s.Module.FindFunction(name)
}

// advance moves fn from its current state to next, refusing to move
// backward or skip a step — the state machine §4.11 requires.
func (s *State) advance(name string, next FuncState) error {
	cur := s.funcState[name]
	if next <= cur {
		return nil // idempotent: already at or past this state
	}
	if next != cur+1 {
		return errStateSkip(name, cur, next)
	}
	s.funcState[name] = next
	return nil
}

func errStateSkip(name string, cur, next FuncState) error {
	return &stateError{name: name, cur: cur, next: next}
}

type stateError struct {
	name      string
	cur, next FuncState
}

func (e *stateError) Error() string {
	return "function " + e.name + " cannot move from state " + e.cur.String() + " to " + e.next.String() + " out of order"
}

func (s FuncState) String() string {
	switch s {
	case StateUntouched:
		return "untouched"
	case StateSignaturesRewritten:
		return "signatures-rewritten"
	case StateBodyDuplicated:
		return "body-duplicated"
	case StateConstructorsFixed:
		return "constructors-fixed"
	case StateCtorsFixed:
		return "ctors-fixed"
	default:
		return "unknown"
	}
}
