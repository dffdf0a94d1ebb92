package ir

import "strings"

// BasicBlock is a straight-line sequence of instructions ending in exactly
// one Terminator.
type BasicBlock struct {
	Label  string
	Func   *Function
	Instrs []Instruction
	Term   Terminator
}

// Preds computes the block's predecessors by scanning every block in the
// owning function for a terminator whose successors include b. Cheap
// enough for the module sizes this core targets; recomputed on demand
// rather than kept incrementally consistent through every rewrite.
func (b *BasicBlock) Preds() []*BasicBlock {
	var preds []*BasicBlock
	for _, other := range b.Func.Blocks {
		if other.Term == nil {
			continue
		}
		for _, s := range other.Term.GetSuccessors() {
			if s == b {
				preds = append(preds, other)
				break
			}
		}
	}
	return preds
}

// Append adds a non-terminator instruction to the end of the block.
func (b *BasicBlock) Append(inst Instruction) {
	inst.SetBlock(b)
	b.Instrs = append(b.Instrs, inst)
}

// SetTerm installs t as the block's terminator.
func (b *BasicBlock) SetTerm(t Terminator) {
	t.SetBlock(b)
	b.Term = t
}

func (b *BasicBlock) String() string {
	var sb strings.Builder
	sb.WriteString(b.Label)
	sb.WriteString(":\n")
	for _, inst := range b.Instrs {
		sb.WriteString("  ")
		sb.WriteString(inst.String())
		sb.WriteString("\n")
	}
	if b.Term != nil {
		sb.WriteString("  ")
		sb.WriteString(b.Term.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Param is a function parameter.
type Param struct {
	Val *Value
}

// Function is a defined or declared function. Declarations (IsDeclaration)
// have no blocks and are never duplicated — only called.
type Function struct {
	Name          string
	Sig           *FunctionType
	Params        []*Param
	Blocks        []*BasicBlock
	IsDeclaration bool
	IsVariadic    bool
	// Attrs carries per-function metadata such as "internal" linkage and
	// the marker the annotation table references by name.
	Attrs map[string]string

	// Ref is the canonical Value naming this function's address — every
	// operand that refers to @name resolves to this same pointer, so
	// identity-keyed structures (DuplicateMap, ProtectionSets.HardenVars)
	// see one Value per function rather than a fresh one per reference.
	Ref *Value

	nextValueID int
	nextInstrID int
}

// NewValueID and NewInstrID hand out fresh IDs scoped to this function —
// duplication doubles a function's value/instruction count, so IDs are
// per-function rather than module-global to keep them dense.
func (f *Function) NewValueID() int {
	f.nextValueID++
	return f.nextValueID
}

func (f *Function) NewInstrID() int {
	f.nextInstrID++
	return f.nextInstrID
}

func (f *Function) EntryBlock() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// AllInstructions yields every instruction in the function, terminators
// included, in block order.
func (f *Function) AllInstructions() []Instruction {
	var out []Instruction
	for _, b := range f.Blocks {
		out = append(out, b.Instrs...)
		if b.Term != nil {
			out = append(out, b.Term)
		}
	}
	return out
}

func (f *Function) String() string {
	var sb strings.Builder
	sb.WriteString("func ")
	sb.WriteString(f.Name)
	sb.WriteString(f.Sig.String())
	if f.IsDeclaration {
		sb.WriteString(" (declare)\n")
		return sb.String()
	}
	sb.WriteString(" {\n")
	for _, b := range f.Blocks {
		sb.WriteString(b.String())
	}
	sb.WriteString("}\n")
	return sb.String()
}

// Global is a module-level variable.
type Global struct {
	Name        string
	ElemType    Type
	Init        *Value // nil if zero-initialized / externally defined
	IsConst     bool
	Volatile    bool
	IsDuplicate bool // true for the synthesized "<name>_dup" twin (§4.4)
	Section     string

	// Ref is the canonical Value naming this global's address. Every
	// operand that refers to @name resolves to this same pointer, the
	// identity DuplicateMap and ProtectionSets.HardenVars key on.
	Ref *Value
}

func (g *Global) String() string { return "@" + g.Name + ": " + g.ElemType.String() }

// Alias names another global or function under a second symbol — the
// annotation table resolves through these before classifying an entity
// (§4.1 "resolves aliases").
type Alias struct {
	Name   string
	Target string
}

// GlobalCtorEntry mirrors one entry of @llvm.global_ctors: a priority-
// ordered constructor function run before main. C9 CtorFixup rewrites
// these once their callee has been duplicated.
type GlobalCtorEntry struct {
	Priority int
	Func     *Function
	Data     *Value // associated data pointer, or nil
}

// AnnotationEntry is one row of the module's annotation table (§6): a
// named value paired with the marker attached to it by the front end
// ("harden", "duplicate", "exclude", "runtime_sig", "run_adj_sig", ...).
type AnnotationEntry struct {
	Target string // function or global name, pre-alias-resolution
	Marker string
	Args   []string
}

// Module is a whole program: every function, global, alias, constructor
// entry, and annotation the hardening pipeline operates over.
type Module struct {
	Name        string
	Functions   []*Function
	Globals     []*Global
	Aliases     []*Alias
	Ctors       []*GlobalCtorEntry
	Annotations []*AnnotationEntry
	VTables     []*VTable

	funcByName   map[string]*Function
	globalByName map[string]*Global
}

// VTable models a virtual-dispatch table as a struct global whose fields
// are function pointers, generalized from the "constructor registry"
// concept (§4.9) to cover C++-style dynamic dispatch.
type VTable struct {
	Global *Global
	Slots  []*Function // nil entries are indirect/unresolved slots
}

func NewModule(name string) *Module {
	return &Module{
		Name:         name,
		funcByName:   make(map[string]*Function),
		globalByName: make(map[string]*Global),
	}
}

func (m *Module) AddFunction(f *Function) {
	if f.Ref == nil {
		f.Ref = &Value{Name: f.Name, Kind: ValGlobal, Type: &PointerType{}}
	}
	m.Functions = append(m.Functions, f)
	m.funcByName[f.Name] = f
}

func (m *Module) AddGlobal(g *Global) {
	if g.Ref == nil {
		g.Ref = &Value{Name: g.Name, Kind: ValGlobal, Type: &PointerType{}}
	}
	m.Globals = append(m.Globals, g)
	m.globalByName[g.Name] = g
}

func (m *Module) FindFunction(name string) *Function { return m.funcByName[name] }
func (m *Module) FindGlobal(name string) *Global      { return m.globalByName[name] }

// ResolveAlias follows alias chains to the underlying function or global
// name, stopping at the first name that isn't itself an alias. Cycles
// (malformed input) terminate after len(Aliases)+1 hops rather than
// looping forever.
func (m *Module) ResolveAlias(name string) string {
	seen := 0
	for seen <= len(m.Aliases) {
		found := false
		for _, a := range m.Aliases {
			if a.Name == name {
				name = a.Target
				found = true
				break
			}
		}
		if !found {
			return name
		}
		seen++
	}
	return name
}

func (m *Module) String() string {
	var sb strings.Builder
	sb.WriteString("module ")
	sb.WriteString(m.Name)
	sb.WriteString("\n\n")
	for _, g := range m.Globals {
		sb.WriteString("global ")
		sb.WriteString(g.String())
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	for _, f := range m.Functions {
		sb.WriteString(f.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
