package ir

import "fmt"

// Builder constructs IR programmatically — the role the teacher's AST-to-IR
// Builder plays, narrowed here to plain IR assembly since this module has
// no source-language front end of its own. Neither internal/irtext nor
// the tests use it: irtext constructs instruction structs directly, and
// tests build their fixtures by hand.
type Builder struct {
	Module *Module
	fn     *Function
	block  *BasicBlock
}

func NewBuilder(moduleName string) *Builder {
	return &Builder{Module: NewModule(moduleName)}
}

// DefineFunction starts a new function definition and makes it current.
func (b *Builder) DefineFunction(name string, sig *FunctionType, paramNames []string) *Function {
	f := &Function{Name: name, Sig: sig, Attrs: make(map[string]string)}
	for i, pt := range sig.Params {
		pname := fmt.Sprintf("arg%d", i)
		if i < len(paramNames) && paramNames[i] != "" {
			pname = paramNames[i]
		}
		v := &Value{ID: f.NewValueID(), Name: pname, Type: pt, Kind: ValParam}
		f.Params = append(f.Params, &Param{Val: v})
	}
	b.Module.AddFunction(f)
	b.fn = f
	return f
}

// DeclareFunction registers an external declaration (no body).
func (b *Builder) DeclareFunction(name string, sig *FunctionType) *Function {
	f := &Function{Name: name, Sig: sig, IsDeclaration: true, Attrs: make(map[string]string)}
	b.Module.AddFunction(f)
	return f
}

// Block appends a new basic block to the current function and makes it
// the insertion point.
func (b *Builder) Block(label string) *BasicBlock {
	bb := &BasicBlock{Label: label, Func: b.fn}
	b.fn.Blocks = append(b.fn.Blocks, bb)
	b.block = bb
	return bb
}

func (b *Builder) freshValue(name string, t Type) *Value {
	id := b.fn.NewValueID()
	if name == "" {
		name = fmt.Sprintf("v%d", id)
	}
	return &Value{ID: id, Name: name, Type: t, Kind: ValInstr, Block: b.block}
}

func (b *Builder) emit(inst Instruction, result *Value) *Value {
	b.block.Append(inst)
	if result != nil {
		result.Def = inst
	}
	return result
}

// Alloca, Load, Store, Binary, Cmp, Branch, Jump, Ret are thin emit
// helpers that build small function bodies without parsing textual IR.

func (b *Builder) Alloca(name string, elem Type) *Value {
	r := b.freshValue(name, &PointerType{})
	inst := &AllocaInst{ID: b.fn.NewInstrID(), Result: r, ElemType: elem}
	return b.emit(inst, r)
}

func (b *Builder) Load(name string, addr *Value, elem Type) *Value {
	r := b.freshValue(name, elem)
	inst := &LoadInst{ID: b.fn.NewInstrID(), Result: r, Address: addr, ElemType: elem}
	return b.emit(inst, r)
}

func (b *Builder) Store(addr, val *Value) {
	inst := &StoreInst{ID: b.fn.NewInstrID(), Address: addr, Val: val}
	b.block.Append(inst)
}

func (b *Builder) Binary(name, op string, lhs, rhs *Value) *Value {
	r := b.freshValue(name, lhs.Type)
	inst := &BinaryInst{ID: b.fn.NewInstrID(), Result: r, Op: op, LHS: lhs, RHS: rhs}
	return b.emit(inst, r)
}

func (b *Builder) Cmp(name, pred string, lhs, rhs *Value) *Value {
	r := b.freshValue(name, &BoolType{})
	inst := &CmpInst{ID: b.fn.NewInstrID(), Result: r, Pred: pred, LHS: lhs, RHS: rhs}
	return b.emit(inst, r)
}

func (b *Builder) Ret(val *Value) {
	inst := &ReturnInst{ID: b.fn.NewInstrID(), Val: val}
	b.block.SetTerm(inst)
}

func (b *Builder) Jump(target *BasicBlock) {
	inst := &JumpInst{ID: b.fn.NewInstrID(), Target: target}
	b.block.SetTerm(inst)
}

func (b *Builder) Branch(cond *Value, t, f *BasicBlock) {
	inst := &BranchInst{ID: b.fn.NewInstrID(), Cond: cond, TrueBlock: t, FalseBlock: f}
	b.block.SetTerm(inst)
}

func (b *Builder) ConstInt(bits int, v int64) *Value {
	return &Value{Name: fmt.Sprintf("%d", v), Type: &IntType{Bits: bits}, Kind: ValConst, Const: v}
}
