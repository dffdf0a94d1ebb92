package irtext

import (
	"fmt"
	"strconv"
	"strings"

	"eddiharden/internal/ir"
)

// funcScope holds the per-function resolution state while a body is being
// built. Values and blocks are resolved in two passes so that forward
// references — a phi whose incoming value is defined later in program
// order, a jump to a block not yet parsed — work without a dedicated
// incomplete-phi/sealed-block bookkeeping scheme: pass one allocates every
// result placeholder and every block, pass two fills in operands once
// everything a function can reference already exists.
type funcScope struct {
	fn     *ir.Function
	mod    *ir.Module
	values map[string]*ir.Value
	blocks map[string]*ir.BasicBlock
}

func (s *funcScope) valueOf(ref string) (*ir.Value, bool) {
	v, ok := s.values[strings.TrimPrefix(ref, "%")]
	return v, ok
}

func (s *funcScope) blockOf(ref string) (*ir.BasicBlock, bool) {
	b, ok := s.blocks[strings.TrimPrefix(ref, "%")]
	return b, ok
}

func (b *builder) buildFunctionBody(fn *ir.Function, fd *FuncDecl) error {
	scope := &funcScope{fn: fn, mod: b.m, values: map[string]*ir.Value{}, blocks: map[string]*ir.BasicBlock{}}
	for _, p := range fn.Params {
		scope.values[p.Val.Name] = p.Val
	}

	for _, bd := range fd.Blocks {
		bb := &ir.BasicBlock{Label: bd.Label, Func: fn}
		fn.Blocks = append(fn.Blocks, bb)
		scope.blocks[bd.Label] = bb
	}

	// Pass 1: allocate a placeholder Value for every instruction result.
	for _, bd := range fd.Blocks {
		for _, line := range bd.Instrs {
			for _, name := range line.Results {
				n := strings.TrimPrefix(name, "%")
				scope.values[n] = &ir.Value{ID: fn.NewValueID(), Name: n, Kind: ir.ValInstr}
			}
		}
	}

	// Pass 2: resolve every operand and emit the concrete instruction.
	for bi, bd := range fd.Blocks {
		bb := fn.Blocks[bi]
		for _, line := range bd.Instrs {
			inst, isTerm, err := b.buildInstr(scope, bb, line)
			if err != nil {
				return fmt.Errorf("block %s: %w", bd.Label, err)
			}
			if isTerm {
				bb.SetTerm(inst.(ir.Terminator))
			} else {
				bb.Append(inst)
			}
		}
	}
	return nil
}

func (s *funcScope) resultNames(line *InstrLine) []*ir.Value {
	out := make([]*ir.Value, len(line.Results))
	for i, name := range line.Results {
		out[i], _ = s.valueOf(name)
	}
	return out
}

// operandValue resolves op to a *ir.Value: a reference to an existing
// value/param/instruction result, or a freshly synthesized constant for a
// literal. hint supplies the type a bare numeric/bool literal should carry
// since the text format doesn't repeat an operand's type at every use.
func (s *funcScope) operandValue(op *Operand, hint ir.Type) (*ir.Value, error) {
	switch {
	case op.Value != "":
		v, ok := s.valueOf(op.Value)
		if !ok {
			return nil, fmt.Errorf("undefined value %s", op.Value)
		}
		return v, nil
	case op.Global != "":
		name := strings.TrimPrefix(op.Global, "@")
		if g := s.mod.FindGlobal(name); g != nil {
			return g.Ref, nil
		}
		if fn := s.mod.FindFunction(name); fn != nil {
			return fn.Ref, nil
		}
		return nil, fmt.Errorf("undefined global or function %s", name)
	case op.Int != nil:
		n, err := strconv.ParseInt(*op.Int, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad integer literal %q: %w", *op.Int, err)
		}
		return &ir.Value{Name: *op.Int, Kind: ir.ValConst, Const: n, Type: hint}, nil
	case op.Float != nil:
		return &ir.Value{Name: strconv.FormatFloat(*op.Float, 'g', -1, 64), Kind: ir.ValConst, Const: *op.Float, Type: hint}, nil
	case op.Bare == "true":
		return &ir.Value{Name: "true", Kind: ir.ValConst, Const: true, Type: &ir.BoolType{}}, nil
	case op.Bare == "false":
		return &ir.Value{Name: "false", Kind: ir.ValConst, Const: false, Type: &ir.BoolType{}}, nil
	}
	return nil, fmt.Errorf("operand is not a value")
}

func (s *funcScope) operandBlock(op *Operand) (*ir.BasicBlock, error) {
	if op.Value == "" {
		return nil, fmt.Errorf("expected a block reference")
	}
	bb, ok := s.blockOf(op.Value)
	if !ok {
		return nil, fmt.Errorf("undefined block %s", op.Value)
	}
	return bb, nil
}

func operandType(op *Operand) (ir.Type, error) {
	if op.Bare == "" {
		return nil, fmt.Errorf("expected a type name")
	}
	return resolveType(&TypeExpr{Name: op.Bare})
}

func (b *builder) buildInstr(scope *funcScope, bb *ir.BasicBlock, line *InstrLine) (ir.Instruction, bool, error) {
	fn := scope.fn
	ops := line.Operands
	results := scope.resultNames(line)
	var result *ir.Value
	if len(results) > 0 {
		result = results[0]
	}

	switch {
	case line.Op == "alloca":
		elem, err := operandType(ops[0])
		if err != nil {
			return nil, false, err
		}
		result.Type = &ir.PointerType{}
		return &ir.AllocaInst{ID: fn.NewInstrID(), Result: result, ElemType: elem}, false, nil

	case line.Op == "load":
		elem, err := operandType(ops[0])
		if err != nil {
			return nil, false, err
		}
		addr, err := scope.operandValue(ops[1], &ir.PointerType{})
		if err != nil {
			return nil, false, err
		}
		result.Type = elem
		return &ir.LoadInst{ID: fn.NewInstrID(), Result: result, Address: addr, ElemType: elem}, false, nil

	case line.Op == "store":
		val, err := scope.operandValue(ops[0], nil)
		if err != nil {
			return nil, false, err
		}
		addr, err := scope.operandValue(ops[1], &ir.PointerType{})
		if err != nil {
			return nil, false, err
		}
		return &ir.StoreInst{ID: fn.NewInstrID(), Address: addr, Val: val}, false, nil

	case line.Op == "cmp":
		pred := ops[0].Bare
		lhs, err := scope.operandValue(ops[1], nil)
		if err != nil {
			return nil, false, err
		}
		rhs, err := scope.operandValue(ops[2], lhs.Type)
		if err != nil {
			return nil, false, err
		}
		result.Type = &ir.BoolType{}
		_, isFloat := lhs.Type.(*ir.FloatType)
		return &ir.CmpInst{ID: fn.NewInstrID(), Result: result, Pred: pred, Float: isFloat, LHS: lhs, RHS: rhs}, false, nil

	case line.Op == "gep":
		elem, err := operandType(ops[0])
		if err != nil {
			return nil, false, err
		}
		base, err := scope.operandValue(ops[1], &ir.PointerType{})
		if err != nil {
			return nil, false, err
		}
		var idxs []*ir.Value
		for _, o := range ops[2].List {
			v, err := scope.operandValue(o, &ir.IntType{Bits: 64})
			if err != nil {
				return nil, false, err
			}
			idxs = append(idxs, v)
		}
		result.Type = &ir.PointerType{}
		return &ir.GEPInst{ID: fn.NewInstrID(), Result: result, Base: base, Indices: idxs, ElemType: elem}, false, nil

	case line.Op == "phi":
		var incoming []ir.PhiIncoming
		for _, o := range ops {
			if len(o.List) != 2 {
				return nil, false, fmt.Errorf("phi incoming must be [value, block]")
			}
			val, err := scope.operandValue(o.List[0], nil)
			if err != nil {
				return nil, false, err
			}
			blk, err := scope.operandBlock(o.List[1])
			if err != nil {
				return nil, false, err
			}
			incoming = append(incoming, ir.PhiIncoming{Block: blk, Value: val})
		}
		if len(incoming) > 0 {
			result.Type = incoming[0].Value.Type
		}
		return &ir.PhiInst{ID: fn.NewInstrID(), Result: result, Incoming: incoming}, false, nil

	case line.Op == "select":
		cond, err := scope.operandValue(ops[0], &ir.BoolType{})
		if err != nil {
			return nil, false, err
		}
		tv, err := scope.operandValue(ops[1], nil)
		if err != nil {
			return nil, false, err
		}
		fv, err := scope.operandValue(ops[2], tv.Type)
		if err != nil {
			return nil, false, err
		}
		result.Type = tv.Type
		return &ir.SelectInst{ID: fn.NewInstrID(), Result: result, Cond: cond, TrueVal: tv, FalseVal: fv}, false, nil

	case line.Op == "call", line.Op == "intrinsic":
		return b.buildCallLike(scope, line, result)

	case line.Op == "atomicrmw":
		op := ops[0].Bare
		addr, err := scope.operandValue(ops[1], &ir.PointerType{})
		if err != nil {
			return nil, false, err
		}
		val, err := scope.operandValue(ops[2], nil)
		if err != nil {
			return nil, false, err
		}
		result.Type = val.Type
		return &ir.AtomicRMWInst{ID: fn.NewInstrID(), Result: result, Op: op, Address: addr, Val: val}, false, nil

	case line.Op == "cmpxchg":
		addr, err := scope.operandValue(ops[0], &ir.PointerType{})
		if err != nil {
			return nil, false, err
		}
		expected, err := scope.operandValue(ops[1], nil)
		if err != nil {
			return nil, false, err
		}
		newv, err := scope.operandValue(ops[2], expected.Type)
		if err != nil {
			return nil, false, err
		}
		resOK := result
		resVal := result
		if len(results) == 2 {
			resVal, resOK = results[0], results[1]
		}
		resVal.Type = expected.Type
		resOK.Type = &ir.BoolType{}
		return &ir.CmpXchgInst{ID: fn.NewInstrID(), ResultVal: resVal, ResultOK: resOK, Address: addr, Expected: expected, New: newv}, false, nil

	case line.Op == "ret":
		if len(ops) == 0 {
			return &ir.ReturnInst{ID: fn.NewInstrID()}, true, nil
		}
		v, err := scope.operandValue(ops[0], fn.Sig.Return)
		if err != nil {
			return nil, false, err
		}
		return &ir.ReturnInst{ID: fn.NewInstrID(), Val: v}, true, nil

	case line.Op == "jmp":
		target, err := scope.operandBlock(ops[0])
		if err != nil {
			return nil, false, err
		}
		return &ir.JumpInst{ID: fn.NewInstrID(), Target: target}, true, nil

	case line.Op == "br":
		cond, err := scope.operandValue(ops[0], &ir.BoolType{})
		if err != nil {
			return nil, false, err
		}
		tb, err := scope.operandBlock(ops[1])
		if err != nil {
			return nil, false, err
		}
		fb, err := scope.operandBlock(ops[2])
		if err != nil {
			return nil, false, err
		}
		return &ir.BranchInst{ID: fn.NewInstrID(), Cond: cond, TrueBlock: tb, FalseBlock: fb}, true, nil

	case line.Op == "switch":
		cond, err := scope.operandValue(ops[0], nil)
		if err != nil {
			return nil, false, err
		}
		def, err := scope.operandBlock(ops[1])
		if err != nil {
			return nil, false, err
		}
		var cases []ir.SwitchCase
		for _, o := range ops[2].List {
			if len(o.List) != 2 {
				return nil, false, fmt.Errorf("switch case must be [value, block]")
			}
			val, err := scope.operandValue(o.List[0], cond.Type)
			if err != nil {
				return nil, false, err
			}
			blk, err := scope.operandBlock(o.List[1])
			if err != nil {
				return nil, false, err
			}
			cases = append(cases, ir.SwitchCase{Val: val, Block: blk})
		}
		return &ir.SwitchInst{ID: fn.NewInstrID(), Cond: cond, Default: def, Cases: cases}, true, nil

	case line.Op == "invoke":
		return b.buildInvoke(scope, line, result)

	case line.Op == "unreachable":
		return &ir.UnreachableInst{ID: fn.NewInstrID()}, true, nil

	case binaryOps[line.Op]:
		lhs, err := scope.operandValue(ops[0], nil)
		if err != nil {
			return nil, false, err
		}
		rhs, err := scope.operandValue(ops[1], lhs.Type)
		if err != nil {
			return nil, false, err
		}
		result.Type = lhs.Type
		return &ir.BinaryInst{ID: fn.NewInstrID(), Result: result, Op: line.Op, LHS: lhs, RHS: rhs}, false, nil

	case unaryOps[line.Op]:
		v, err := scope.operandValue(ops[0], nil)
		if err != nil {
			return nil, false, err
		}
		result.Type = v.Type
		return &ir.UnaryInst{ID: fn.NewInstrID(), Result: result, Op: line.Op, Operand: v}, false, nil

	case castKinds[line.Op]:
		toType, err := operandType(ops[1])
		if err != nil {
			return nil, false, err
		}
		v, err := scope.operandValue(ops[0], nil)
		if err != nil {
			return nil, false, err
		}
		result.Type = toType
		return &ir.CastInst{ID: fn.NewInstrID(), Result: result, Kind: line.Op, Operand: v, ToType: toType}, false, nil
	}

	return nil, false, fmt.Errorf("unknown opcode %q", line.Op)
}

// buildCallLike handles both "call" and "intrinsic", which share the same
// "[result =] op callee, arg*" shape once callee is understood as either a
// direct reference (call only) or a name (intrinsic).
func (b *builder) buildCallLike(scope *funcScope, line *InstrLine, result *ir.Value) (ir.Instruction, bool, error) {
	ops := line.Operands
	if len(ops) == 0 {
		return nil, false, fmt.Errorf("%s requires a callee", line.Op)
	}
	args := make([]*ir.Value, 0, len(ops)-1)
	for _, o := range ops[1:] {
		v, err := scope.operandValue(o, nil)
		if err != nil {
			return nil, false, err
		}
		args = append(args, v)
	}

	if line.Op == "intrinsic" {
		name := ops[0].Bare
		if result != nil {
			result.Type = nil
		}
		return &ir.IntrinsicInst{ID: scope.fn.NewInstrID(), Result: result, Name: name, Args: args}, false, nil
	}

	callee := ops[0]
	inst := &ir.CallInst{ID: scope.fn.NewInstrID(), Result: result, Args: args}
	if callee.Global != "" {
		name := strings.TrimPrefix(callee.Global, "@")
		inst.Callee = b.m.FindFunction(name)
		if inst.Callee == nil {
			return nil, false, fmt.Errorf("call to undeclared function %s", name)
		}
		if result != nil {
			result.Type = inst.Callee.Sig.Return
		}
	} else {
		ptr, err := scope.operandValue(callee, &ir.PointerType{})
		if err != nil {
			return nil, false, err
		}
		inst.CalleePtr = ptr
	}
	return inst, false, nil
}

func (b *builder) buildInvoke(scope *funcScope, line *InstrLine, result *ir.Value) (ir.Instruction, bool, error) {
	ops := line.Operands
	if len(ops) < 3 {
		return nil, false, fmt.Errorf("invoke requires callee, normal block, unwind block")
	}
	normal, err := scope.operandBlock(ops[len(ops)-2])
	if err != nil {
		return nil, false, err
	}
	unwind, err := scope.operandBlock(ops[len(ops)-1])
	if err != nil {
		return nil, false, err
	}
	args := make([]*ir.Value, 0, len(ops)-3)
	for _, o := range ops[1 : len(ops)-2] {
		v, err := scope.operandValue(o, nil)
		if err != nil {
			return nil, false, err
		}
		args = append(args, v)
	}

	inst := &ir.InvokeInst{ID: scope.fn.NewInstrID(), Result: result, Args: args, Normal: normal, Unwind: unwind}
	callee := ops[0]
	if callee.Global != "" {
		name := strings.TrimPrefix(callee.Global, "@")
		inst.Callee = b.m.FindFunction(name)
		if inst.Callee == nil {
			return nil, false, fmt.Errorf("invoke of undeclared function %s", name)
		}
		if result != nil {
			result.Type = inst.Callee.Sig.Return
		}
	} else {
		ptr, err := scope.operandValue(callee, &ir.PointerType{})
		if err != nil {
			return nil, false, err
		}
		inst.CalleePtr = ptr
	}
	return inst, true, nil
}
