package ir

// AnnotationKind is the resolved marker attached to a value by C1, after
// alias resolution and the at-most-one-annotation rule have been applied.
type AnnotationKind int

const (
	AnnoNone AnnotationKind = iota // "grey": no explicit marker
	AnnoHarden
	AnnoDuplicate
	AnnoExclude
	AnnoRuntimeSig
	AnnoRunAdjSig
)

func (k AnnotationKind) String() string {
	switch k {
	case AnnoHarden:
		return "to_harden"
	case AnnoDuplicate:
		return "to_duplicate"
	case AnnoExclude:
		return "exclude"
	case AnnoRuntimeSig:
		return "runtime_sig"
	case AnnoRunAdjSig:
		return "run_adj_sig"
	default:
		return "grey"
	}
}

// Annotations is C1's output: the resolved Value -> AnnotationKind map.
// Keyed by the underlying *Value for instructions/globals surfaced as
// values, and separately by function/global name for the two entity
// kinds an annotation can target directly.
type Annotations struct {
	Funcs   map[string]AnnotationKind
	Globals map[string]AnnotationKind
}

func NewAnnotations() *Annotations {
	return &Annotations{
		Funcs:   make(map[string]AnnotationKind),
		Globals: make(map[string]AnnotationKind),
	}
}

func (a *Annotations) Func(name string) AnnotationKind {
	if k, ok := a.Funcs[name]; ok {
		return k
	}
	return AnnoNone
}

func (a *Annotations) Global(name string) AnnotationKind {
	if k, ok := a.Globals[name]; ok {
		return k
	}
	return AnnoNone
}

// ProtectionSets is C2's output: HardenFns and HardenVars, the two sets
// closed to a fixed point from the to_harden seeds (spec data model §3).
type ProtectionSets struct {
	HardenFns  map[string]bool
	HardenVars map[*Value]bool
}

func NewProtectionSets() *ProtectionSets {
	return &ProtectionSets{
		HardenFns:  make(map[string]bool),
		HardenVars: make(map[*Value]bool),
	}
}

func (p *ProtectionSets) AddFunc(name string) bool {
	if p.HardenFns[name] {
		return false
	}
	p.HardenFns[name] = true
	return true
}

func (p *ProtectionSets) AddVar(v *Value) bool {
	if v == nil || p.HardenVars[v] {
		return false
	}
	p.HardenVars[v] = true
	return true
}

func (p *ProtectionSets) IsHardenFunc(name string) bool { return p.HardenFns[name] }
func (p *ProtectionSets) IsHardenVar(v *Value) bool     { return v != nil && p.HardenVars[v] }
