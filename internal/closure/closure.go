// Package closure implements C2, the fixed-point ProtectionClosure pass:
// it turns C1's per-value Annotations into the ProtectionSets (HardenFns,
// HardenVars) every later pass consumes.
package closure

import (
	"eddiharden/internal/diag"
	"eddiharden/internal/ir"
)

const ctorNamePattern = "C::C(" // demangled C++ constructor signature shape, spec §3/§4.2

// Compute runs C2's worklist to a fixed point: seed from annotations,
// propagate through store/load/call edges, then harvest constructor
// vtables and their direct call graphs, repeating both phases until
// neither adds anything new.
func Compute(m *ir.Module, annos *ir.Annotations, rep *diag.Reporter) *ir.ProtectionSets {
	sets := ir.NewProtectionSets()
	seed(m, annos, sets)

	for {
		changed := propagateDataFlow(m, sets)
		changed = harvestCallGraph(m, annos, sets) || changed
		if !changed {
			break
		}
	}

	if rep != nil {
		verifyInvariants(m, annos, sets, rep)
	}
	return sets
}

// seed step 1: HardenFns/HardenVars start from every value the
// annotation table marked to_harden.
func seed(m *ir.Module, annos *ir.Annotations, sets *ir.ProtectionSets) {
	for _, f := range m.Functions {
		if annos.Func(f.Name) == ir.AnnoHarden {
			sets.AddFunc(f.Name)
		}
	}
	for _, g := range m.Globals {
		if annos.Global(g.Name) == ir.AnnoHarden {
			sets.AddVar(g.Ref)
		}
	}
}

// propagateDataFlow is step 2: for each variable already in HardenVars,
// walk every use across the whole module. A store propagates to its
// value operand, a load propagates to its result, a call propagates the
// callee into HardenFns. Returns whether anything new was added.
func propagateDataFlow(m *ir.Module, sets *ir.ProtectionSets) bool {
	changed := false
	for _, fn := range m.Functions {
		for _, inst := range fn.AllInstructions() {
			switch in := inst.(type) {
			case *ir.StoreInst:
				if sets.IsHardenVar(in.Address) && sets.AddVar(in.Val) {
					changed = true
				}
			case *ir.LoadInst:
				if sets.IsHardenVar(in.Address) && sets.AddVar(in.Result) {
					changed = true
				}
			case *ir.CallInst:
				if in.Callee == nil {
					continue // indirect calls are resolved at call sites, not in the closure (§4.2)
				}
				for _, a := range in.Args {
					if sets.IsHardenVar(a) && sets.AddFunc(in.Callee.Name) {
						changed = true
					}
				}
			}
		}
	}
	return changed
}

// harvestCallGraph is step 3: every HardenFn contributes its own direct
// callees (unless excluded or marked to_duplicate, which are handled
// separately by C7); constructors additionally contribute the functions
// pointed to by the vtable they store.
func harvestCallGraph(m *ir.Module, annos *ir.Annotations, sets *ir.ProtectionSets) bool {
	changed := false
	for name := range copyStrings(sets.HardenFns) {
		fn := m.FindFunction(name)
		if fn == nil {
			continue
		}
		if isConstructorName(name) {
			if harvestVTable(m, fn, sets) {
				changed = true
			}
		}
		if harvestDirectCalls(fn, annos, sets) {
			changed = true
		}
	}
	return changed
}

func harvestVTable(m *ir.Module, ctor *ir.Function, sets *ir.ProtectionSets) bool {
	changed := false
	storedGlobal := findVTableStore(ctor)
	if storedGlobal == "" {
		return false
	}
	for _, vt := range m.VTables {
		if vt.Global.Name != storedGlobal {
			continue
		}
		for _, slot := range vt.Slots {
			if slot != nil && sets.AddFunc(slot.Name) {
				changed = true
			}
		}
	}
	return changed
}

// findVTableStore returns the name of the global stored by the first
// store (in block order) whose value operand is a global reference — the
// constructor's "store the vtable pointer into the object" instruction.
// It does not check that the global backs a VTable; harvestVTable only
// harvests when the name matches an entry of Module.VTables.
func findVTableStore(ctor *ir.Function) string {
	for _, b := range ctor.Blocks {
		for _, inst := range b.Instrs {
			st, ok := inst.(*ir.StoreInst)
			if !ok || st.Val == nil || st.Val.Kind != ir.ValGlobal {
				continue
			}
			return st.Val.Name
		}
	}
	return ""
}

func harvestDirectCalls(fn *ir.Function, annos *ir.Annotations, sets *ir.ProtectionSets) bool {
	changed := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Instrs {
			call, ok := inst.(*ir.CallInst)
			if !ok || call.Callee == nil {
				continue
			}
			k := annos.Func(call.Callee.Name)
			if k == ir.AnnoExclude || k == ir.AnnoDuplicate {
				continue
			}
			if sets.AddFunc(call.Callee.Name) {
				changed = true
			}
		}
	}
	return changed
}

func isConstructorName(name string) bool {
	// A full demangler is out of scope; the pattern this core matches is
	// the shape spec.md names directly: "C::C(...)" with the same symbol
	// repeated before and after "::".
	idx := indexOf(name, "::")
	if idx < 0 {
		return false
	}
	class := name[:idx]
	rest := name[idx+2:]
	return len(class) > 0 && len(rest) > len(class) && rest[:len(class)] == class && rest[len(class)] == '('
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func copyStrings(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// verifyInvariants reports (at debug level) any discrepancy between the
// computed sets and §3's invariant 1 — a development aid, not a
// hard failure, since a mismatch here indicates malformed input rather
// than a bug this pass can recover from on its own.
func verifyInvariants(m *ir.Module, annos *ir.Annotations, sets *ir.ProtectionSets, rep *diag.Reporter) {
	for _, f := range m.Functions {
		if annos.Func(f.Name) == ir.AnnoHarden && !sets.IsHardenFunc(f.Name) {
			rep.Report(diag.Diagnostic{
				Level:   diag.Debug,
				Code:    diag.CodeClosureDivergence,
				Message: "to_harden function " + f.Name + " missing from HardenFns after closure",
			})
		}
	}
}
