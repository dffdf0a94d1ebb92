package harden

// FixupCtors is C9. Rewrites every entry of the module's
// global-constructor list so a registered startup function whose body
// was duplicated runs its "_dup" twin instead: priority and the
// associated data pointer are left untouched, only Func is repointed.
func FixupCtors(s *State) error {
	for _, entry := range s.Module.Ctors {
		if entry.Func == nil {
			continue
		}
		name := entry.Func.Name
		if dupFn, ok := s.DupFuncs[name]; ok {
			entry.Func = dupFn
		}
		if s.stateOf(name) == StateConstructorsFixed {
			if err := s.advance(name, StateCtorsFixed); err != nil {
				return err
			}
		}
	}
	return nil
}
