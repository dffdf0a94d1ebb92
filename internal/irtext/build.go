package irtext

import (
	"fmt"
	"strconv"

	"eddiharden/internal/ir"
)

var binaryOps = map[string]bool{
	"add": true, "sub": true, "mul": true, "sdiv": true, "udiv": true,
	"srem": true, "urem": true, "and": true, "or": true, "xor": true,
	"shl": true, "lshr": true, "ashr": true,
	"fadd": true, "fsub": true, "fmul": true, "fdiv": true,
}

var unaryOps = map[string]bool{"neg": true, "fneg": true, "not": true}

var castKinds = map[string]bool{
	"zext": true, "sext": true, "trunc": true, "bitcast": true,
	"fptosi": true, "sitofp": true, "fptrunc": true, "fpext": true,
	"ptrtoint": true, "inttoptr": true, "uitofp": true, "fptoui": true,
}

// Build converts a parsed File into an *ir.Module. This is the other half
// of the round trip ir.Printer implements — together they let the pipeline
// read a module in, harden it, and write it back out as text.
func Build(f *File) (*ir.Module, error) {
	md := f.Module
	m := ir.NewModule(md.Name)

	for _, a := range md.Annotations {
		m.Annotations = append(m.Annotations, &ir.AnnotationEntry{
			Target: a.Target, Marker: a.Marker, Args: a.Args,
		})
	}
	for _, a := range md.Aliases {
		m.Aliases = append(m.Aliases, &ir.Alias{Name: a.Name, Target: a.Target})
	}

	b := &builder{m: m, globals: map[string]*ir.Global{}}

	for _, gd := range md.Globals {
		g, err := b.buildGlobalDecl(gd)
		if err != nil {
			return nil, err
		}
		m.AddGlobal(g)
		b.globals[g.Name] = g
	}

	// Functions are declared (signatures only) before any body is built so
	// that call sites can resolve forward references to callees defined
	// later in the file.
	funcDecls := make([]*FuncDecl, 0, len(md.Funcs))
	for _, fd := range md.Funcs {
		fn, err := b.declareFunction(fd)
		if err != nil {
			return nil, err
		}
		m.AddFunction(fn)
		funcDecls = append(funcDecls, fd)
	}

	for _, vd := range md.VTables {
		vtGlobal, ok := b.globals[vd.Name[1:]]
		if !ok {
			return nil, fmt.Errorf("vtable references undeclared global %s", vd.Name)
		}
		vt := &ir.VTable{Global: vtGlobal}
		for _, slot := range vd.Slots {
			if slot.Func == "nil" {
				vt.Slots = append(vt.Slots, nil)
				continue
			}
			vt.Slots = append(vt.Slots, m.FindFunction(slot.Func))
		}
		m.VTables = append(m.VTables, vt)
	}

	for _, cd := range md.Ctors {
		fn := m.FindFunction(cd.Func)
		if fn == nil {
			return nil, fmt.Errorf("ctor entry references undeclared function %s", cd.Func)
		}
		m.Ctors = append(m.Ctors, &ir.GlobalCtorEntry{Priority: cd.Priority, Func: fn})
	}

	for i, fd := range funcDecls {
		if fd.Declare {
			continue
		}
		if err := b.buildFunctionBody(m.Functions[i], fd); err != nil {
			return nil, fmt.Errorf("function %s: %w", fd.Name, err)
		}
	}

	return m, nil
}

type builder struct {
	m       *ir.Module
	globals map[string]*ir.Global
}

func (b *builder) buildGlobalDecl(gd *GlobalDecl) (*ir.Global, error) {
	t, err := resolveType(gd.Type)
	if err != nil {
		return nil, err
	}
	g := &ir.Global{
		Name:        gd.Name[1:],
		ElemType:    t,
		IsDuplicate: gd.Dup,
		Volatile:    gd.Volatile,
		Section:     gd.Section,
	}
	if gd.Init != nil {
		g.Init = constOperand(gd.Init, t)
	}
	return g, nil
}

func (b *builder) declareFunction(fd *FuncDecl) (*ir.Function, error) {
	sig := &ir.FunctionType{}
	for _, p := range fd.Params {
		t, err := resolveType(p.Type)
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, t)
	}
	ret, err := resolveType(fd.Return)
	if err != nil {
		return nil, err
	}
	sig.Return = ret

	fn := &ir.Function{
		Name:          fd.Name,
		Sig:           sig,
		IsDeclaration: fd.Declare,
		Attrs:         map[string]string{},
	}
	for _, p := range fd.Params {
		t, _ := resolveType(p.Type)
		v := &ir.Value{ID: fn.NewValueID(), Name: p.Name, Type: t, Kind: ir.ValParam}
		fn.Params = append(fn.Params, &ir.Param{Val: v})
	}
	return fn, nil
}

func resolveType(t *TypeExpr) (ir.Type, error) {
	if t == nil {
		return &ir.VoidType{}, nil
	}
	if t.Name == "" {
		elem, err := resolveType(t.ArrayElem)
		if err != nil {
			return nil, err
		}
		return &ir.ArrayType{Elem: elem, Count: t.ArrayCount}, nil
	}
	switch t.Name {
	case "void":
		return &ir.VoidType{}, nil
	case "ptr":
		return &ir.PointerType{}, nil
	case "i1", "bool":
		return &ir.BoolType{}, nil
	case "f32":
		return &ir.FloatType{Bits: 32}, nil
	case "f64":
		return &ir.FloatType{Bits: 64}, nil
	}
	if len(t.Name) > 1 && t.Name[0] == 'i' {
		if bits, err := strconv.Atoi(t.Name[1:]); err == nil {
			return &ir.IntType{Bits: bits}, nil
		}
	}
	return &ir.StructType{Name: t.Name}, nil
}

// constOperand turns a literal Operand (int/float/bare true|false) into a
// constant *ir.Value of type t. Used only for global initializers, which
// this text format restricts to scalar literals.
func constOperand(op *Operand, t ir.Type) *ir.Value {
	switch {
	case op.Int != nil:
		n, _ := strconv.ParseInt(*op.Int, 0, 64)
		return &ir.Value{Name: *op.Int, Type: t, Kind: ir.ValConst, Const: n}
	case op.Float != nil:
		return &ir.Value{Name: strconv.FormatFloat(*op.Float, 'g', -1, 64), Type: t, Kind: ir.ValConst, Const: *op.Float}
	case op.Bare == "true":
		return &ir.Value{Name: "true", Type: t, Kind: ir.ValConst, Const: true}
	case op.Bare == "false":
		return &ir.Value{Name: "false", Type: t, Kind: ir.ValConst, Const: false}
	default:
		return nil
	}
}
