package harden

import (
	"eddiharden/internal/diag"
	"eddiharden/internal/ir"
)

// DuplicateVTables is C8. For each protected constructor with an
// associated vtable store, builds a parallel "_dup" vtable whose
// function-pointer slots point at each original slot's own "_dup" twin,
// then redirects the constructor's "_dup" twin's own vtable store to it.
func DuplicateVTables(s *State) error {
	for name := range copyBoolMap(s.Sets.HardenFns) {
		ctor := s.Module.FindFunction(name)
		if ctor == nil || ctor.IsDeclaration || !isCtorDemangled(name) {
			continue
		}
		vtGlobalName := findVTableStoreTarget(ctor)
		if vtGlobalName == "" {
			// No bare-global store in the body at all: an ordinary
			// non-virtual constructor, nothing to duplicate here.
			continue
		}
		vt := findVTable(s.Module, vtGlobalName)
		if vt == nil {
			s.Rep.Report(diag.Diagnostic{
				Level:    diag.Warning,
				Code:     diag.CodeVTableNotTracked,
				Message:  "constructor " + name + " stores global " + vtGlobalName + " but it isn't recorded as a vtable; leaving it un-duplicated",
				Position: diag.Position{Function: name},
			})
			continue
		}
		if err := s.advance(name, StateConstructorsFixed); err != nil {
			return err
		}
		dupVT := duplicateVTable(s, vt)
		if dupVT == nil {
			continue
		}
		fixupCtorVTableStore(s, name, vt.Global, dupVT.Global)
	}
	return nil
}

func duplicateVTable(s *State, vt *ir.VTable) *ir.VTable {
	g := vt.Global
	if g.Init == nil {
		s.Rep.Report(diag.Diagnostic{
			Level:   diag.Warning,
			Code:    diag.CodeMissingVTableInit,
			Message: "vtable " + g.Name + " has no constant initializer, skipping duplication",
		})
		return nil
	}

	slots := make([]*ir.Function, len(vt.Slots))
	for i, slot := range vt.Slots {
		if slot == nil {
			continue
		}
		if dup, ok := s.DupFuncs[slot.Name]; ok {
			slots[i] = dup
			continue
		}
		slots[i] = slot
		s.Rep.Report(diag.Diagnostic{
			Level:   diag.Warning,
			Code:    diag.CodeVTableSlotNotDuplicated,
			Message: "vtable slot " + slot.Name + " has no _dup twin, keeping the original in " + g.Name + "_dup",
		})
	}

	dupGlobal := &ir.Global{
		Name:     g.Name + "_dup",
		ElemType: g.ElemType,
		Init:     g.Init,
		IsConst:  g.IsConst,
		Section:  g.Section,
	}
	s.Module.AddGlobal(dupGlobal)
	dupVT := &ir.VTable{Global: dupGlobal, Slots: slots}
	s.Module.VTables = append(s.Module.VTables, dupVT)
	return dupVT
}

// fixupCtorVTableStore finds, in ctorName's "_dup" twin body, the store
// that writes the original vtable global and repoints it at the
// duplicated one — but only the copy of that store DuplicateInstructions
// (C5) produced for the duplicated "this" pointer. C5 leaves the
// original store's Address on the primary half of the doubled "this"
// parameter untouched (vtable globals are constants, so globals.go never
// registers one as an argument to duplicateValue, meaning the store's Val
// operand is cloned unchanged too); it inserts its clone for the
// duplicate half immediately after. Walking in program order and
// rewriting every match but the first therefore targets exactly the
// duplicate-side store, leaving the primary object's own vtable pointer
// correctly set to the real vtable instead of the duplicate one.
func fixupCtorVTableStore(s *State, ctorName string, orig, dup *ir.Global) {
	target := s.bodyTarget(ctorName)
	if target == nil {
		return
	}
	seenPrimary := false
	for _, b := range target.Blocks {
		for _, inst := range b.Instrs {
			st, ok := inst.(*ir.StoreInst)
			if !ok || st.Val == nil || st.Val.Kind != ir.ValGlobal || st.Val.Name != orig.Name {
				continue
			}
			if !seenPrimary {
				seenPrimary = true
				continue
			}
			st.Val = dup.Ref
		}
	}
}

func findVTable(m *ir.Module, globalName string) *ir.VTable {
	for _, vt := range m.VTables {
		if vt.Global.Name == globalName {
			return vt
		}
	}
	return nil
}

// findVTableStoreTarget mirrors internal/closure's constructor vtable
// detection (a store of a bare global value, the simplified stand-in for
// "store a GEP into the vtable's function-pointer array"): the first
// store of a global value found in the constructor's body names the
// vtable it installs.
func findVTableStoreTarget(ctor *ir.Function) string {
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

// isCtorDemangled mirrors internal/closure's deliberately partial
// "C::C(" demangler shape.
func isCtorDemangled(name string) bool {
	idx := -1
	for i := 0; i+2 <= len(name); i++ {
		if name[i:i+2] == "::" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	class := name[:idx]
	rest := name[idx+2:]
	return len(class) > 0 && len(rest) > len(class) && rest[:len(class)] == class && rest[len(class)] == '('
}
