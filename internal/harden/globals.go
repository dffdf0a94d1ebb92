package harden

import "eddiharden/internal/ir"

// DuplicateGlobals is C4. Every qualifying global (not a constant, not
// annotated exclude, not already a "_dup" twin, and either in HardenVars
// or annotated to_harden) gets a same-typed sibling global carrying the
// same initializer, registered in the DuplicateMap. Globals with no
// explicit section and no initializer are placed in the configured
// duplicate section so a linker can co-locate or separate the two
// copies. Twins are appended to the module's Globals slice after the
// originals; with AlternateMemmap set, each twin is moved to directly
// follow its original instead.
func DuplicateGlobals(s *State) {
	originals := append([]*ir.Global(nil), s.Module.Globals...)
	for _, g := range originals {
		if !qualifiesForDuplication(s, g) {
			continue
		}
		dup := &ir.Global{
			Name:        g.Name + "_dup",
			ElemType:    g.ElemType,
			Init:        g.Init,
			IsConst:     g.IsConst,
			Volatile:    g.Volatile,
			IsDuplicate: true,
			Section:     g.Section,
		}
		if dup.Section == "" && dup.Init == nil {
			dup.Section = s.Cfg.DuplicateSection
		}
		s.Module.AddGlobal(dup)
		s.Dup.Put(g.Ref, dup.Ref)
		if s.Cfg.AlternateMemmap {
			reorderInterleaved(s.Module, g, dup)
		}
	}
}

func qualifiesForDuplication(s *State, g *ir.Global) bool {
	if g.IsConst || g.IsDuplicate {
		return false
	}
	if s.Annotations.Global(g.Name) == ir.AnnoExclude {
		return false
	}
	if !s.Sets.IsHardenVar(g.Ref) && s.Annotations.Global(g.Name) != ir.AnnoHarden {
		return false
	}
	return true
}

// reorderInterleaved moves dup to immediately follow g in the module's
// Globals slice, giving "g, g_dup, g2, g2_dup, ..." layout when
// alternate-memmap requests interleaving instead of the default
// "all originals then all duplicates" append order.
func reorderInterleaved(m *ir.Module, g, dup *ir.Global) {
	idx := -1
	for i, x := range m.Globals {
		if x == g {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	without := make([]*ir.Global, 0, len(m.Globals))
	for _, x := range m.Globals {
		if x != dup {
			without = append(without, x)
		}
	}
	out := make([]*ir.Global, 0, len(without)+1)
	out = append(out, without[:idx+1]...)
	out = append(out, dup)
	out = append(out, without[idx+1:]...)
	m.Globals = out
}
