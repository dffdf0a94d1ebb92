package ir

import (
	"fmt"
	"strings"
)

// Effect describes the side effect of an instruction. Grounded on the
// teacher's internal/ir/effects.go (Pure/Memory/Storage effect taxonomy),
// generalized from EVM storage/memory to byte-addressed memory only —
// this IR has no separate persistent-storage address space.
type Effect interface{ EffectKind() string }

type PureEffect struct{}

func (PureEffect) EffectKind() string { return "pure" }

type MemEffect struct{ Op string } // "read" or "write"

func (m MemEffect) EffectKind() string { return "memory:" + m.Op }

type CallEffect struct{} // unknown/opaque effect of an external call

func (CallEffect) EffectKind() string { return "call" }

// Instruction is implemented by every non-terminator and terminator op.
type Instruction interface {
	GetID() int
	GetResult() *Value
	GetOperands() []*Value
	// ReplaceOperand rewrites every operand slot equal to old to new. This
	// is the single place that implements the spec's "operand rewriting
	// rule" (§4.5): callers never poke instruction fields directly.
	ReplaceOperand(old, new *Value)
	GetBlock() *BasicBlock
	SetBlock(*BasicBlock)
	IsTerminator() bool
	GetEffects() []Effect
	// Clone returns a shallow copy with a fresh ID and no result value;
	// the caller (InstructionDuplicator) assigns Result and registers it
	// in the DuplicateMap.
	Clone(newID int) Instruction
	String() string
}

// Terminator is the subset of instructions that end a basic block.
type Terminator interface {
	Instruction
	GetSuccessors() []*BasicBlock
	ReplaceSuccessor(old, new *BasicBlock)
}

// ---- Alloca ----

type AllocaInst struct {
	ID           int
	Result       *Value
	Block        *BasicBlock
	ElemType     Type
	IsLandingPad bool // slot feeding __cxa_begin_catch; never cloned (§4.5)
}

func (i *AllocaInst) GetID() int            { return i.ID }
func (i *AllocaInst) GetResult() *Value     { return i.Result }
func (i *AllocaInst) GetOperands() []*Value { return nil }
func (i *AllocaInst) ReplaceOperand(*Value, *Value) {}
func (i *AllocaInst) GetBlock() *BasicBlock      { return i.Block }
func (i *AllocaInst) SetBlock(b *BasicBlock)      { i.Block = b }
func (i *AllocaInst) IsTerminator() bool          { return false }
func (i *AllocaInst) GetEffects() []Effect        { return []Effect{PureEffect{}} }
func (i *AllocaInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	return &c
}
func (i *AllocaInst) String() string {
	return fmt.Sprintf("%s = alloca %s", i.Result, i.ElemType)
}

// ---- Load / Store ----

type LoadInst struct {
	ID       int
	Result   *Value
	Block    *BasicBlock
	Address  *Value
	ElemType Type
	Volatile bool
}

func (i *LoadInst) GetID() int            { return i.ID }
func (i *LoadInst) GetResult() *Value     { return i.Result }
func (i *LoadInst) GetOperands() []*Value { return []*Value{i.Address} }
func (i *LoadInst) ReplaceOperand(old, new *Value) {
	if i.Address == old {
		i.Address = new
	}
}
func (i *LoadInst) GetBlock() *BasicBlock { return i.Block }
func (i *LoadInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *LoadInst) IsTerminator() bool     { return false }
func (i *LoadInst) GetEffects() []Effect   { return []Effect{MemEffect{Op: "read"}} }
func (i *LoadInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	return &c
}
func (i *LoadInst) String() string {
	return fmt.Sprintf("%s = load %s, %s", i.Result, i.ElemType, i.Address)
}

type StoreInst struct {
	ID       int
	Block    *BasicBlock
	Address  *Value
	Val      *Value
	Volatile bool
}

func (i *StoreInst) GetID() int            { return i.ID }
func (i *StoreInst) GetResult() *Value     { return nil }
func (i *StoreInst) GetOperands() []*Value { return []*Value{i.Address, i.Val} }
func (i *StoreInst) ReplaceOperand(old, new *Value) {
	if i.Address == old {
		i.Address = new
	}
	if i.Val == old {
		i.Val = new
	}
}
func (i *StoreInst) GetBlock() *BasicBlock { return i.Block }
func (i *StoreInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *StoreInst) IsTerminator() bool     { return false }
func (i *StoreInst) GetEffects() []Effect   { return []Effect{MemEffect{Op: "write"}} }
func (i *StoreInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	return &c
}
func (i *StoreInst) String() string {
	return fmt.Sprintf("store %s, %s", i.Val, i.Address)
}

// Identical reports whether two stores write the same value to the same
// address — the "trivial duplication" test of §4.5/§8 S6.
func (i *StoreInst) Identical(o *StoreInst) bool {
	return i.Address == o.Address && i.Val == o.Val
}

// ---- Binary / Unary / Cmp ----

type BinaryInst struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Op     string // "add","sub","mul","sdiv","udiv","and","or","xor","shl","lshr","ashr","fadd",...
	LHS    *Value
	RHS    *Value
}

func (i *BinaryInst) GetID() int            { return i.ID }
func (i *BinaryInst) GetResult() *Value     { return i.Result }
func (i *BinaryInst) GetOperands() []*Value { return []*Value{i.LHS, i.RHS} }
func (i *BinaryInst) ReplaceOperand(old, new *Value) {
	if i.LHS == old {
		i.LHS = new
	}
	if i.RHS == old {
		i.RHS = new
	}
}
func (i *BinaryInst) GetBlock() *BasicBlock { return i.Block }
func (i *BinaryInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *BinaryInst) IsTerminator() bool     { return false }
func (i *BinaryInst) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (i *BinaryInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	return &c
}
func (i *BinaryInst) String() string {
	return fmt.Sprintf("%s = %s %s, %s", i.Result, i.Op, i.LHS, i.RHS)
}

type UnaryInst struct {
	ID      int
	Result  *Value
	Block   *BasicBlock
	Op      string // "neg","not","fneg"
	Operand *Value
}

func (i *UnaryInst) GetID() int            { return i.ID }
func (i *UnaryInst) GetResult() *Value     { return i.Result }
func (i *UnaryInst) GetOperands() []*Value { return []*Value{i.Operand} }
func (i *UnaryInst) ReplaceOperand(old, new *Value) {
	if i.Operand == old {
		i.Operand = new
	}
}
func (i *UnaryInst) GetBlock() *BasicBlock { return i.Block }
func (i *UnaryInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *UnaryInst) IsTerminator() bool     { return false }
func (i *UnaryInst) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (i *UnaryInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	return &c
}
func (i *UnaryInst) String() string {
	return fmt.Sprintf("%s = %s %s", i.Result, i.Op, i.Operand)
}

type CmpInst struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Pred   string // "eq","ne","lt","le","gt","ge","ueq" (unordered-equal, NaN-tolerant)
	Float  bool
	LHS    *Value
	RHS    *Value
}

func (i *CmpInst) GetID() int            { return i.ID }
func (i *CmpInst) GetResult() *Value     { return i.Result }
func (i *CmpInst) GetOperands() []*Value { return []*Value{i.LHS, i.RHS} }
func (i *CmpInst) ReplaceOperand(old, new *Value) {
	if i.LHS == old {
		i.LHS = new
	}
	if i.RHS == old {
		i.RHS = new
	}
}
func (i *CmpInst) GetBlock() *BasicBlock { return i.Block }
func (i *CmpInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *CmpInst) IsTerminator() bool     { return false }
func (i *CmpInst) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (i *CmpInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	return &c
}
func (i *CmpInst) String() string {
	return fmt.Sprintf("%s = cmp %s %s, %s", i.Result, i.Pred, i.LHS, i.RHS)
}

// ---- GEP ----

type GEPInst struct {
	ID       int
	Result   *Value
	Block    *BasicBlock
	Base     *Value
	Indices  []*Value
	ElemType Type
}

func (i *GEPInst) GetID() int            { return i.ID }
func (i *GEPInst) GetResult() *Value     { return i.Result }
func (i *GEPInst) GetOperands() []*Value { return append([]*Value{i.Base}, i.Indices...) }
func (i *GEPInst) ReplaceOperand(old, new *Value) {
	if i.Base == old {
		i.Base = new
	}
	for j, idx := range i.Indices {
		if idx == old {
			i.Indices[j] = new
		}
	}
}
func (i *GEPInst) GetBlock() *BasicBlock { return i.Block }
func (i *GEPInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *GEPInst) IsTerminator() bool     { return false }
func (i *GEPInst) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (i *GEPInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	c.Indices = append([]*Value(nil), i.Indices...)
	return &c
}
func (i *GEPInst) String() string {
	idx := make([]string, len(i.Indices))
	for j, v := range i.Indices {
		idx[j] = v.String()
	}
	return fmt.Sprintf("%s = gep %s, %s, [%s]", i.Result, i.ElemType, i.Base, strings.Join(idx, ", "))
}

// ---- Phi ----

type PhiIncoming struct {
	Block *BasicBlock
	Value *Value
}

type PhiInst struct {
	ID       int
	Result   *Value
	Block    *BasicBlock
	Incoming []PhiIncoming
}

func (i *PhiInst) GetID() int        { return i.ID }
func (i *PhiInst) GetResult() *Value { return i.Result }
func (i *PhiInst) GetOperands() []*Value {
	ops := make([]*Value, len(i.Incoming))
	for j, in := range i.Incoming {
		ops[j] = in.Value
	}
	return ops
}
func (i *PhiInst) ReplaceOperand(old, new *Value) {
	for j := range i.Incoming {
		if i.Incoming[j].Value == old {
			i.Incoming[j].Value = new
		}
	}
}
func (i *PhiInst) GetBlock() *BasicBlock { return i.Block }
func (i *PhiInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *PhiInst) IsTerminator() bool     { return false }
func (i *PhiInst) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (i *PhiInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	c.Incoming = append([]PhiIncoming(nil), i.Incoming...)
	return &c
}
func (i *PhiInst) String() string {
	parts := make([]string, len(i.Incoming))
	for j, in := range i.Incoming {
		parts[j] = fmt.Sprintf("[%s, %%%s]", in.Value, in.Block.Label)
	}
	return fmt.Sprintf("%s = phi %s", i.Result, strings.Join(parts, ", "))
}

// ---- Select / Cast ----

type SelectInst struct {
	ID                      int
	Result                  *Value
	Block                   *BasicBlock
	Cond, TrueVal, FalseVal *Value
}

func (i *SelectInst) GetID() int        { return i.ID }
func (i *SelectInst) GetResult() *Value { return i.Result }
func (i *SelectInst) GetOperands() []*Value {
	return []*Value{i.Cond, i.TrueVal, i.FalseVal}
}
func (i *SelectInst) ReplaceOperand(old, new *Value) {
	if i.Cond == old {
		i.Cond = new
	}
	if i.TrueVal == old {
		i.TrueVal = new
	}
	if i.FalseVal == old {
		i.FalseVal = new
	}
}
func (i *SelectInst) GetBlock() *BasicBlock { return i.Block }
func (i *SelectInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *SelectInst) IsTerminator() bool     { return false }
func (i *SelectInst) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (i *SelectInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	return &c
}
func (i *SelectInst) String() string {
	return fmt.Sprintf("%s = select %s, %s, %s", i.Result, i.Cond, i.TrueVal, i.FalseVal)
}

type CastInst struct {
	ID      int
	Result  *Value
	Block   *BasicBlock
	Kind    string // "zext","sext","trunc","bitcast","fptosi","sitofp",...
	Operand *Value
	ToType  Type
}

func (i *CastInst) GetID() int            { return i.ID }
func (i *CastInst) GetResult() *Value     { return i.Result }
func (i *CastInst) GetOperands() []*Value { return []*Value{i.Operand} }
func (i *CastInst) ReplaceOperand(old, new *Value) {
	if i.Operand == old {
		i.Operand = new
	}
}
func (i *CastInst) GetBlock() *BasicBlock { return i.Block }
func (i *CastInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *CastInst) IsTerminator() bool     { return false }
func (i *CastInst) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (i *CastInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	return &c
}
func (i *CastInst) String() string {
	return fmt.Sprintf("%s = %s %s, %s", i.Result, i.Kind, i.Operand, i.ToType)
}

// ---- Call / Intrinsic ----

// ParamAttr models a handful of per-parameter attributes (e.g. "nonnull",
// "byval") that C7 must propagate to both slots of a doubled call.
type ParamAttr []string

type CallInst struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	// Callee is the direct callee, or nil for an indirect call through
	// CalleePtr (a function-pointer value).
	Callee    *Function
	CalleePtr *Value
	Args      []*Value
	ArgAttrs  []ParamAttr
}

func (i *CallInst) GetID() int        { return i.ID }
func (i *CallInst) GetResult() *Value { return i.Result }
func (i *CallInst) GetOperands() []*Value {
	if i.CalleePtr != nil {
		return append([]*Value{i.CalleePtr}, i.Args...)
	}
	return append([]*Value(nil), i.Args...)
}
func (i *CallInst) ReplaceOperand(old, new *Value) {
	if i.CalleePtr == old {
		i.CalleePtr = new
	}
	for j, a := range i.Args {
		if a == old {
			i.Args[j] = new
		}
	}
}
func (i *CallInst) GetBlock() *BasicBlock { return i.Block }
func (i *CallInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *CallInst) IsTerminator() bool     { return false }
func (i *CallInst) GetEffects() []Effect   { return []Effect{CallEffect{}} }
func (i *CallInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	c.Args = append([]*Value(nil), i.Args...)
	c.ArgAttrs = append([]ParamAttr(nil), i.ArgAttrs...)
	return &c
}
func (i *CallInst) IsIndirect() bool { return i.Callee == nil }
func (i *CallInst) String() string {
	callee := i.CalleePtr.String()
	if i.Callee != nil {
		callee = "@" + i.Callee.Name
	}
	parts := append([]string{callee}, valueStrings(i.Args)...)
	res := ""
	if i.Result != nil {
		res = i.Result.String() + " = "
	}
	return fmt.Sprintf("%scall %s", res, strings.Join(parts, ", "))
}

func valueStrings(vs []*Value) []string {
	out := make([]string, len(vs))
	for j, v := range vs {
		out[j] = v.String()
	}
	return out
}

// IntrinsicInst models duplication-worthy intrinsics named in §4.7 (e.g.
// memcpy-family calls) as a distinct opcode from ordinary calls so C7 can
// dispatch on "is this call a duplication-worthy intrinsic" structurally.
type IntrinsicInst struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Name   string // e.g. "llvm.memcpy"
	Args   []*Value
}

func (i *IntrinsicInst) GetID() int            { return i.ID }
func (i *IntrinsicInst) GetResult() *Value     { return i.Result }
func (i *IntrinsicInst) GetOperands() []*Value { return i.Args }
func (i *IntrinsicInst) ReplaceOperand(old, new *Value) {
	for j, a := range i.Args {
		if a == old {
			i.Args[j] = new
		}
	}
}
func (i *IntrinsicInst) GetBlock() *BasicBlock { return i.Block }
func (i *IntrinsicInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *IntrinsicInst) IsTerminator() bool     { return false }
func (i *IntrinsicInst) GetEffects() []Effect   { return []Effect{MemEffect{Op: "write"}} }
func (i *IntrinsicInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	c.Args = append([]*Value(nil), i.Args...)
	return &c
}
func (i *IntrinsicInst) String() string {
	parts := append([]string{i.Name}, valueStrings(i.Args)...)
	res := ""
	if i.Result != nil {
		res = i.Result.String() + " = "
	}
	return fmt.Sprintf("%sintrinsic %s", res, strings.Join(parts, ", "))
}

// ---- Atomics ----

type AtomicRMWInst struct {
	ID      int
	Result  *Value
	Block   *BasicBlock
	Op      string // "add","xchg","and","or","xor",...
	Address *Value
	Val     *Value
}

func (i *AtomicRMWInst) GetID() int            { return i.ID }
func (i *AtomicRMWInst) GetResult() *Value     { return i.Result }
func (i *AtomicRMWInst) GetOperands() []*Value { return []*Value{i.Address, i.Val} }
func (i *AtomicRMWInst) ReplaceOperand(old, new *Value) {
	if i.Address == old {
		i.Address = new
	}
	if i.Val == old {
		i.Val = new
	}
}
func (i *AtomicRMWInst) GetBlock() *BasicBlock { return i.Block }
func (i *AtomicRMWInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *AtomicRMWInst) IsTerminator() bool     { return false }
func (i *AtomicRMWInst) GetEffects() []Effect {
	return []Effect{MemEffect{Op: "read"}, MemEffect{Op: "write"}}
}
func (i *AtomicRMWInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	return &c
}
func (i *AtomicRMWInst) String() string {
	return fmt.Sprintf("%s = atomicrmw %s, %s, %s", i.Result, i.Op, i.Address, i.Val)
}

type CmpXchgInst struct {
	ID                 int
	ResultVal          *Value // the value observed at Address before the swap
	ResultOK           *Value // whether the swap happened
	Block              *BasicBlock
	Address            *Value
	Expected, New      *Value
}

func (i *CmpXchgInst) GetID() int        { return i.ID }
func (i *CmpXchgInst) GetResult() *Value { return i.ResultVal }
func (i *CmpXchgInst) GetOperands() []*Value {
	return []*Value{i.Address, i.Expected, i.New}
}
func (i *CmpXchgInst) ReplaceOperand(old, new *Value) {
	if i.Address == old {
		i.Address = new
	}
	if i.Expected == old {
		i.Expected = new
	}
	if i.New == old {
		i.New = new
	}
}
func (i *CmpXchgInst) GetBlock() *BasicBlock { return i.Block }
func (i *CmpXchgInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *CmpXchgInst) IsTerminator() bool     { return false }
func (i *CmpXchgInst) GetEffects() []Effect {
	return []Effect{MemEffect{Op: "read"}, MemEffect{Op: "write"}}
}
func (i *CmpXchgInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.ResultVal = nil
	c.ResultOK = nil
	return &c
}
func (i *CmpXchgInst) String() string {
	return fmt.Sprintf("%s, %s = cmpxchg %s, %s, %s", i.ResultVal, i.ResultOK, i.Address, i.Expected, i.New)
}

// ---- Terminators ----

type ReturnInst struct {
	ID    int
	Block *BasicBlock
	Val   *Value // nil for a void return
}

func (i *ReturnInst) GetID() int        { return i.ID }
func (i *ReturnInst) GetResult() *Value { return nil }
func (i *ReturnInst) GetOperands() []*Value {
	if i.Val != nil {
		return []*Value{i.Val}
	}
	return nil
}
func (i *ReturnInst) ReplaceOperand(old, new *Value) {
	if i.Val == old {
		i.Val = new
	}
}
func (i *ReturnInst) GetBlock() *BasicBlock          { return i.Block }
func (i *ReturnInst) SetBlock(b *BasicBlock)          { i.Block = b }
func (i *ReturnInst) IsTerminator() bool              { return true }
func (i *ReturnInst) GetEffects() []Effect            { return []Effect{PureEffect{}} }
func (i *ReturnInst) GetSuccessors() []*BasicBlock    { return nil }
func (i *ReturnInst) ReplaceSuccessor(*BasicBlock, *BasicBlock) {}
func (i *ReturnInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	return &c
}
func (i *ReturnInst) String() string {
	if i.Val == nil {
		return "ret"
	}
	return fmt.Sprintf("ret %s", i.Val)
}

type JumpInst struct {
	ID     int
	Block  *BasicBlock
	Target *BasicBlock
}

func (i *JumpInst) GetID() int                { return i.ID }
func (i *JumpInst) GetResult() *Value         { return nil }
func (i *JumpInst) GetOperands() []*Value     { return nil }
func (i *JumpInst) ReplaceOperand(*Value, *Value) {}
func (i *JumpInst) GetBlock() *BasicBlock      { return i.Block }
func (i *JumpInst) SetBlock(b *BasicBlock)      { i.Block = b }
func (i *JumpInst) IsTerminator() bool          { return true }
func (i *JumpInst) GetEffects() []Effect        { return []Effect{PureEffect{}} }
func (i *JumpInst) GetSuccessors() []*BasicBlock { return []*BasicBlock{i.Target} }
func (i *JumpInst) ReplaceSuccessor(old, new *BasicBlock) {
	if i.Target == old {
		i.Target = new
	}
}
func (i *JumpInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	return &c
}
func (i *JumpInst) String() string { return fmt.Sprintf("jmp %%%s", i.Target.Label) }

type BranchInst struct {
	ID                     int
	Block                  *BasicBlock
	Cond                   *Value
	TrueBlock, FalseBlock  *BasicBlock
}

func (i *BranchInst) GetID() int            { return i.ID }
func (i *BranchInst) GetResult() *Value     { return nil }
func (i *BranchInst) GetOperands() []*Value { return []*Value{i.Cond} }
func (i *BranchInst) ReplaceOperand(old, new *Value) {
	if i.Cond == old {
		i.Cond = new
	}
}
func (i *BranchInst) GetBlock() *BasicBlock { return i.Block }
func (i *BranchInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *BranchInst) IsTerminator() bool     { return true }
func (i *BranchInst) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (i *BranchInst) GetSuccessors() []*BasicBlock {
	return []*BasicBlock{i.TrueBlock, i.FalseBlock}
}
func (i *BranchInst) ReplaceSuccessor(old, new *BasicBlock) {
	if i.TrueBlock == old {
		i.TrueBlock = new
	}
	if i.FalseBlock == old {
		i.FalseBlock = new
	}
}
func (i *BranchInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	return &c
}
func (i *BranchInst) String() string {
	return fmt.Sprintf("br %s, %%%s, %%%s", i.Cond, i.TrueBlock.Label, i.FalseBlock.Label)
}

type SwitchCase struct {
	Val   *Value
	Block *BasicBlock
}

type SwitchInst struct {
	ID      int
	Block   *BasicBlock
	Cond    *Value
	Default *BasicBlock
	Cases   []SwitchCase
}

func (i *SwitchInst) GetID() int        { return i.ID }
func (i *SwitchInst) GetResult() *Value { return nil }
func (i *SwitchInst) GetOperands() []*Value {
	ops := []*Value{i.Cond}
	for _, c := range i.Cases {
		ops = append(ops, c.Val)
	}
	return ops
}
func (i *SwitchInst) ReplaceOperand(old, new *Value) {
	if i.Cond == old {
		i.Cond = new
	}
	for j := range i.Cases {
		if i.Cases[j].Val == old {
			i.Cases[j].Val = new
		}
	}
}
func (i *SwitchInst) GetBlock() *BasicBlock { return i.Block }
func (i *SwitchInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *SwitchInst) IsTerminator() bool     { return true }
func (i *SwitchInst) GetEffects() []Effect   { return []Effect{PureEffect{}} }
func (i *SwitchInst) GetSuccessors() []*BasicBlock {
	succs := []*BasicBlock{i.Default}
	for _, c := range i.Cases {
		succs = append(succs, c.Block)
	}
	return succs
}
func (i *SwitchInst) ReplaceSuccessor(old, new *BasicBlock) {
	if i.Default == old {
		i.Default = new
	}
	for j := range i.Cases {
		if i.Cases[j].Block == old {
			i.Cases[j].Block = new
		}
	}
}
func (i *SwitchInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Cases = append([]SwitchCase(nil), i.Cases...)
	return &c
}
func (i *SwitchInst) String() string {
	cases := make([]string, len(i.Cases))
	for j, c := range i.Cases {
		cases[j] = fmt.Sprintf("[%s, %%%s]", c.Val, c.Block.Label)
	}
	return fmt.Sprintf("switch %s, %%%s, [%s]", i.Cond, i.Default.Label, strings.Join(cases, ", "))
}

// InvokeInst is a call with an explicit unwind edge; the spec requires it
// be preserved as an invoke (never lowered to a plain call) across every
// rewrite in C7.
type InvokeInst struct {
	ID              int
	Result          *Value
	Block           *BasicBlock
	Callee          *Function
	CalleePtr       *Value
	Args            []*Value
	ArgAttrs        []ParamAttr
	Normal, Unwind  *BasicBlock
}

func (i *InvokeInst) GetID() int        { return i.ID }
func (i *InvokeInst) GetResult() *Value { return i.Result }
func (i *InvokeInst) GetOperands() []*Value {
	if i.CalleePtr != nil {
		return append([]*Value{i.CalleePtr}, i.Args...)
	}
	return append([]*Value(nil), i.Args...)
}
func (i *InvokeInst) ReplaceOperand(old, new *Value) {
	if i.CalleePtr == old {
		i.CalleePtr = new
	}
	for j, a := range i.Args {
		if a == old {
			i.Args[j] = new
		}
	}
}
func (i *InvokeInst) GetBlock() *BasicBlock { return i.Block }
func (i *InvokeInst) SetBlock(b *BasicBlock) { i.Block = b }
func (i *InvokeInst) IsTerminator() bool     { return true }
func (i *InvokeInst) GetEffects() []Effect   { return []Effect{CallEffect{}} }
func (i *InvokeInst) GetSuccessors() []*BasicBlock {
	return []*BasicBlock{i.Normal, i.Unwind}
}
func (i *InvokeInst) ReplaceSuccessor(old, new *BasicBlock) {
	if i.Normal == old {
		i.Normal = new
	}
	if i.Unwind == old {
		i.Unwind = new
	}
}
func (i *InvokeInst) IsIndirect() bool { return i.Callee == nil }
func (i *InvokeInst) Clone(id int) Instruction {
	c := *i
	c.ID = id
	c.Result = nil
	c.Args = append([]*Value(nil), i.Args...)
	c.ArgAttrs = append([]ParamAttr(nil), i.ArgAttrs...)
	return &c
}
func (i *InvokeInst) String() string {
	callee := i.CalleePtr.String()
	if i.Callee != nil {
		callee = "@" + i.Callee.Name
	}
	parts := append([]string{callee}, valueStrings(i.Args)...)
	parts = append(parts, "%"+i.Normal.Label, "%"+i.Unwind.Label)
	res := ""
	if i.Result != nil {
		res = i.Result.String() + " = "
	}
	return fmt.Sprintf("%sinvoke %s", res, strings.Join(parts, ", "))
}

// UnreachableInst terminates the cloned error block (§4.10).
type UnreachableInst struct {
	ID    int
	Block *BasicBlock
}

func (i *UnreachableInst) GetID() int                     { return i.ID }
func (i *UnreachableInst) GetResult() *Value              { return nil }
func (i *UnreachableInst) GetOperands() []*Value          { return nil }
func (i *UnreachableInst) ReplaceOperand(*Value, *Value)  {}
func (i *UnreachableInst) GetBlock() *BasicBlock           { return i.Block }
func (i *UnreachableInst) SetBlock(b *BasicBlock)           { i.Block = b }
func (i *UnreachableInst) IsTerminator() bool               { return true }
func (i *UnreachableInst) GetEffects() []Effect             { return []Effect{PureEffect{}} }
func (i *UnreachableInst) GetSuccessors() []*BasicBlock     { return nil }
func (i *UnreachableInst) ReplaceSuccessor(*BasicBlock, *BasicBlock) {}
func (i *UnreachableInst) Clone(id int) Instruction {
	return &UnreachableInst{ID: id}
}
func (i *UnreachableInst) String() string { return "unreachable" }
