package closure

import (
	"testing"

	"eddiharden/internal/diag"
	"eddiharden/internal/ir"
)

// ============================================================================
// Seeding and data-flow propagation
// ============================================================================

func TestComputeSeedsFromAnnotations(t *testing.T) {
	m := ir.NewModule("t")
	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)

	annos := ir.NewAnnotations()
	annos.Funcs["f"] = ir.AnnoHarden

	sets := Compute(m, annos, diag.NewReporter())
	if !sets.IsHardenFunc("f") {
		t.Error("expected f in HardenFns after seeding")
	}
}

func TestComputePropagatesThroughStoreAndLoad(t *testing.T) {
	m := ir.NewModule("t")
	g := &ir.Global{Name: "g", ElemType: &ir.IntType{Bits: 32}}
	m.AddGlobal(g)

	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	entry := &ir.BasicBlock{Label: "entry", Func: fn}
	fn.Blocks = append(fn.Blocks, entry)

	stored := &ir.Value{ID: fn.NewValueID(), Name: "v0", Kind: ir.ValConst, Type: &ir.IntType{Bits: 32}, Const: int64(1)}
	entry.Append(&ir.StoreInst{ID: fn.NewInstrID(), Address: g.Ref, Val: stored})

	loadResult := &ir.Value{ID: fn.NewValueID(), Name: "v1", Kind: ir.ValInstr, Type: &ir.IntType{Bits: 32}}
	entry.Append(&ir.LoadInst{ID: fn.NewInstrID(), Result: loadResult, Address: g.Ref})
	entry.SetTerm(&ir.ReturnInst{ID: fn.NewInstrID()})

	annos := ir.NewAnnotations()
	annos.Globals["g"] = ir.AnnoHarden

	sets := Compute(m, annos, diag.NewReporter())
	if !sets.IsHardenVar(g.Ref) {
		t.Fatal("expected g to seed HardenVars")
	}
	if !sets.IsHardenVar(stored) {
		t.Error("expected the stored value to be propagated into HardenVars")
	}
	if !sets.IsHardenVar(loadResult) {
		t.Error("expected the load result to be propagated into HardenVars")
	}
}

func TestComputeIgnoresIndirectCalls(t *testing.T) {
	m := ir.NewModule("t")
	g := &ir.Global{Name: "g", ElemType: &ir.PointerType{}}
	m.AddGlobal(g)

	fn := &ir.Function{Name: "f", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	entry := &ir.BasicBlock{Label: "entry", Func: fn}
	fn.Blocks = append(fn.Blocks, entry)
	entry.Append(&ir.CallInst{ID: fn.NewInstrID(), CalleePtr: g.Ref, Args: []*ir.Value{g.Ref}})
	entry.SetTerm(&ir.ReturnInst{ID: fn.NewInstrID()})

	annos := ir.NewAnnotations()
	annos.Globals["g"] = ir.AnnoHarden

	sets := Compute(m, annos, diag.NewReporter())
	// No crash, and no function erroneously added since the call is indirect.
	if len(sets.HardenFns) != 0 {
		t.Errorf("expected no functions hardened via an indirect call, got %v", sets.HardenFns)
	}
}

// ============================================================================
// Constructor harvesting
// ============================================================================

func TestComputeHarvestsVTableFromConstructor(t *testing.T) {
	m := ir.NewModule("t")

	vtGlobal := &ir.Global{Name: "Widget_vtbl", ElemType: &ir.PointerType{}}
	m.AddGlobal(vtGlobal)

	method := &ir.Function{Name: "Widget_draw", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(method)
	m.VTables = append(m.VTables, &ir.VTable{Global: vtGlobal, Slots: []*ir.Function{method}})

	ctor := &ir.Function{Name: "Widget::Widget()", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(ctor)
	entry := &ir.BasicBlock{Label: "entry", Func: ctor}
	ctor.Blocks = append(ctor.Blocks, entry)
	objPtr := &ir.Value{ID: ctor.NewValueID(), Name: "this", Kind: ir.ValParam, Type: &ir.PointerType{}}
	entry.Append(&ir.StoreInst{ID: ctor.NewInstrID(), Address: objPtr, Val: vtGlobal.Ref})
	entry.SetTerm(&ir.ReturnInst{ID: ctor.NewInstrID()})

	annos := ir.NewAnnotations()
	annos.Funcs["Widget::Widget()"] = ir.AnnoHarden

	sets := Compute(m, annos, diag.NewReporter())
	if !sets.IsHardenFunc("Widget_draw") {
		t.Error("expected vtable method harvested into HardenFns from the constructor's store")
	}
}

func TestComputeHarvestsDirectCalleeFromNonConstructor(t *testing.T) {
	m := ir.NewModule("t")

	helper := &ir.Function{Name: "compute_checksum", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(helper)

	fn := &ir.Function{Name: "process", Sig: &ir.FunctionType{Return: &ir.VoidType{}}}
	m.AddFunction(fn)
	entry := &ir.BasicBlock{Label: "entry", Func: fn}
	fn.Blocks = append(fn.Blocks, entry)
	entry.Append(&ir.CallInst{ID: fn.NewInstrID(), Callee: helper})
	entry.SetTerm(&ir.ReturnInst{ID: fn.NewInstrID()})

	annos := ir.NewAnnotations()
	annos.Funcs["process"] = ir.AnnoHarden

	sets := Compute(m, annos, diag.NewReporter())
	if !sets.IsHardenFunc("compute_checksum") {
		t.Error("expected a plain unannotated helper called by a non-constructor HardenFn to be harvested into HardenFns")
	}
}

func TestIsConstructorName(t *testing.T) {
	cases := map[string]bool{
		"Widget::Widget()":   true,
		"Widget::Widget(int)": true,
		"Widget::draw()":     false,
		"plain_function":     false,
	}
	for name, want := range cases {
		if got := isConstructorName(name); got != want {
			t.Errorf("isConstructorName(%q) = %v, want %v", name, got, want)
		}
	}
}
