package ir

import "fmt"

// Whole-program IR for the hardening core. The opcode set mirrors the
// finite set named in the spec: alloca, load, store, binary, unary, cmp,
// gep, phi, select, cast, call/invoke, branch/switch/return, intrinsic,
// atomic-rmw, cmpxchg. Pointer types are opaque: byte-addressed, with the
// element type carried on the instruction (gep/load/store) rather than on
// the pointer type itself.

// Type is implemented by every IR type.
type Type interface {
	String() string
}

type IntType struct{ Bits int }
type FloatType struct{ Bits int } // 32 or 64
type BoolType struct{}
type VoidType struct{}
type PointerType struct{ AddrSpace int }

type ArrayType struct {
	Elem  Type
	Count int
}

type StructType struct {
	Name   string
	Fields []Type
}

type FunctionType struct {
	Params   []Type
	Variadic bool
	Return   Type
}

func (t *IntType) String() string   { return fmt.Sprintf("i%d", t.Bits) }
func (t *FloatType) String() string { return fmt.Sprintf("f%d", t.Bits) }
func (t *BoolType) String() string  { return "i1" }
func (t *VoidType) String() string  { return "void" }
func (t *PointerType) String() string {
	if t.AddrSpace != 0 {
		return fmt.Sprintf("ptr addrspace(%d)", t.AddrSpace)
	}
	return "ptr"
}
func (t *ArrayType) String() string { return fmt.Sprintf("[%d x %s]", t.Count, t.Elem) }
func (t *StructType) String() string {
	if t.Name != "" {
		return "%" + t.Name
	}
	s := "{"
	for i, f := range t.Fields {
		if i > 0 {
			s += ", "
		}
		s += f.String()
	}
	return s + "}"
}
func (t *FunctionType) String() string {
	s := "("
	for i, p := range t.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	if t.Variadic {
		s += ", ..."
	}
	return s + ") -> " + t.Return.String()
}

// SameType compares two types structurally. Pointer types are opaque and
// always compatible with one another regardless of address space — the
// element type travels with the instruction, never the pointer.
func SameType(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch av := a.(type) {
	case *IntType:
		bv, ok := b.(*IntType)
		return ok && av.Bits == bv.Bits
	case *FloatType:
		bv, ok := b.(*FloatType)
		return ok && av.Bits == bv.Bits
	case *BoolType:
		_, ok := b.(*BoolType)
		return ok
	case *VoidType:
		_, ok := b.(*VoidType)
		return ok
	case *PointerType:
		_, ok := b.(*PointerType)
		return ok
	case *ArrayType:
		bv, ok := b.(*ArrayType)
		return ok && av.Count == bv.Count && SameType(av.Elem, bv.Elem)
	case *StructType:
		bv, ok := b.(*StructType)
		return ok && av.Name == bv.Name
	case *FunctionType:
		bv, ok := b.(*FunctionType)
		if !ok || len(av.Params) != len(bv.Params) || av.Variadic != bv.Variadic {
			return false
		}
		for i := range av.Params {
			if !SameType(av.Params[i], bv.Params[i]) {
				return false
			}
		}
		return SameType(av.Return, bv.Return)
	}
	return false
}

// ValueKind distinguishes how a Value came to exist.
type ValueKind int

const (
	ValInstr ValueKind = iota
	ValParam
	ValGlobal
	ValConst
)

// Value is a single definition in the IR. Instruction results, function
// parameters, globals, and constants are all values so operand lists and
// the DuplicateMap can treat them uniformly.
type Value struct {
	ID    int
	Name  string
	Type  Type
	Kind  ValueKind
	Block *BasicBlock // defining block, for ValInstr/ValParam (param: entry block)
	Def   Instruction // defining instruction, for ValInstr only
	Const interface{} // literal payload, for ValConst only
}

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	if v.Kind == ValConst {
		return fmt.Sprintf("%v", v.Const)
	}
	return "%" + v.Name
}

// IsConst reports whether v is a compile-time constant.
func (v *Value) IsConst() bool { return v != nil && v.Kind == ValConst }
