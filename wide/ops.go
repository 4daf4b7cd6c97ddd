// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wide

import (
	"github.com/gogpu/wideshade/analysis"
	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
)

// lower emits one straight-line instruction.
func (g *Generator) lower(in *ir.Instruction) error {
	switch in.Op {
	case ir.OpNop, ir.OpEnd:
		return nil
	case ir.OpUseParam:
		return g.useParams(in)
	case ir.OpBreak:
		return g.breakLoop()
	}

	if err := g.needArgs(in); err != nil {
		return err
	}
	a := func(i int) ir.SymbolHandle { return in.Args[i].Sym }

	switch in.Op {
	case ir.OpAssign:
		return g.Assign(a(0), a(1), NoIndex)
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv:
		return g.arith(in.Op, a(0), a(1), a(2))
	case ir.OpNeg:
		return g.neg(a(0), a(1))
	case ir.OpEq, ir.OpNeq, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
		return g.compare(in.Op, a(0), a(1), a(2))
	case ir.OpAnd, ir.OpOr:
		return g.logical(in.Op, a(0), a(1), a(2))
	case ir.OpAref:
		return g.aref(a(0), a(1), a(2))
	case ir.OpAassign:
		return g.aassign(a(0), a(1), a(2))
	case ir.OpGetAttribute:
		return g.getAttribute(in)
	}

	return ir.Errorf(ir.ErrUnsupportedFeature, "opcode %q", in.Op).At(g.l.Name, g.op)
}

func arity(op ir.Opcode) int {
	switch op {
	case ir.OpAssign, ir.OpNeg:
		return 2
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv,
		ir.OpEq, ir.OpNeq, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe,
		ir.OpAnd, ir.OpOr, ir.OpAref, ir.OpAassign, ir.OpGetAttribute:
		return 3
	}
	return 0
}

func (g *Generator) needArgs(in *ir.Instruction) error {
	if n := arity(in.Op); len(in.Args) < n {
		return ir.Errorf(ir.ErrInvalidLayer, "%s needs %d arguments, has %d", in.Op, n, len(in.Args)).At(g.l.Name, g.op)
	}
	return nil
}

// useParams initializes lazy userdata parameters on first use.
func (g *Generator) useParams(in *ir.Instruction) error {
	if !g.opts.LazyUserdata {
		return nil
	}
	for _, arg := range in.Args {
		h := g.l.Dealias(arg.Sym)
		s := g.l.Symbol(h)
		if !s.IsParam() || !analysis.IsLazyUserdata(s) || g.lazyDone[h] {
			continue
		}
		g.lazyDone[h] = true

		var err error
		if s.Default.Len() > 0 {
			err = g.assignDefault(h)
		} else {
			err = g.AssignZero(h)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// dual is a value and its two derivatives.
type dual [3]emit.Value

func (g *Generator) loadDual(h ir.SymbolHandle, c int, cast Cast, uniform, derivs bool) (dual, error) {
	var out dual
	n := 1
	if derivs {
		n = 3
	}
	for d := range n {
		v, err := g.Load(h, d, nil, c, cast, uniform)
		if err != nil {
			return out, err
		}
		out[d] = v
	}
	return out, nil
}

func (g *Generator) storeDual(v dual, h ir.SymbolHandle, c int) error {
	for d, x := range v {
		if x == nil {
			continue
		}
		if err := g.Store(x, h, d, nil, c); err != nil {
			return err
		}
	}
	return nil
}

func binOp(op ir.Opcode) emit.BinOp {
	switch op {
	case ir.OpSub:
		return emit.OpSub
	case ir.OpMul:
		return emit.OpMul
	case ir.OpDiv:
		return emit.OpDiv
	default:
		return emit.OpAdd
	}
}

func (g *Generator) arith(op ir.Opcode, dst, x, y ir.SymbolHandle) error {
	ds := g.sym(dst)
	if (!ds.Type.IsFloatBased() && !ds.Type.IsInt()) || ds.Type.IsArray() {
		return ir.Errorf(ir.ErrUnsupportedType, "%s of %s", op, ds.Type).At(g.l.Name, g.op)
	}
	if (op == ir.OpMul || op == ir.OpDiv) && g.sym(x).Type.IsMatrix() && g.sym(y).Type.IsMatrix() {
		return ir.Errorf(ir.ErrUnsupportedFeature, "matrix %s", op).At(g.l.Name, g.op)
	}

	uniform := g.isUniform(dst)
	cast := castFor(ds.Type)
	derivs := ds.HasDerivs

	// operands may alias dst, so every component is computed before storing
	out := make([]dual, ds.Type.Aggregate)
	for c := range out {
		a, err := g.loadDual(x, c, cast, uniform, derivs)
		if err != nil {
			return err
		}
		b, err := g.loadDual(y, c, cast, uniform, derivs)
		if err != nil {
			return err
		}
		if out[c], err = g.combine(op, a, b, derivs); err != nil {
			return err
		}
	}

	for c, v := range out {
		if err := g.storeDual(v, dst, c); err != nil {
			return err
		}
	}
	return nil
}

// combine applies op to a and b, carrying derivatives by the product and
// quotient rules.
func (g *Generator) combine(op ir.Opcode, a, b dual, derivs bool) (dual, error) {
	var out dual
	var err error
	bin := func(op emit.BinOp, x, y emit.Value) emit.Value {
		if err != nil {
			return nil
		}
		var v emit.Value
		v, err = g.b.Binary(op, x, y)
		return v
	}

	out[0] = bin(binOp(op), a[0], b[0])
	if derivs {
		for d := 1; d <= 2; d++ {
			switch op {
			case ir.OpAdd, ir.OpSub:
				out[d] = bin(binOp(op), a[d], b[d])
			case ir.OpMul:
				out[d] = bin(emit.OpAdd, bin(emit.OpMul, a[0], b[d]), bin(emit.OpMul, a[d], b[0]))
			case ir.OpDiv:
				num := bin(emit.OpSub, bin(emit.OpMul, a[d], b[0]), bin(emit.OpMul, a[0], b[d]))
				out[d] = bin(emit.OpDiv, num, bin(emit.OpMul, b[0], b[0]))
			}
		}
	}
	return out, g.fail(err)
}

func (g *Generator) neg(dst, x ir.SymbolHandle) error {
	ds := g.sym(dst)
	if (!ds.Type.IsFloatBased() && !ds.Type.IsInt()) || ds.Type.IsArray() {
		return ir.Errorf(ir.ErrUnsupportedType, "neg of %s", ds.Type).At(g.l.Name, g.op)
	}

	uniform := g.isUniform(dst)
	cast := castFor(ds.Type)

	out := make([]dual, ds.Type.Aggregate)
	for c := range out {
		a, err := g.loadDual(x, c, cast, uniform, ds.HasDerivs)
		if err != nil {
			return err
		}
		for d, v := range a {
			if v == nil {
				continue
			}
			if out[c][d], err = g.b.Neg(v); err != nil {
				return g.fail(err)
			}
		}
	}

	for c, v := range out {
		if err := g.storeDual(v, dst, c); err != nil {
			return err
		}
	}
	return nil
}

func cmpOp(op ir.Opcode) emit.CmpOp {
	switch op {
	case ir.OpNeq:
		return emit.CmpNe
	case ir.OpLt:
		return emit.CmpLt
	case ir.OpLe:
		return emit.CmpLe
	case ir.OpGt:
		return emit.CmpGt
	case ir.OpGe:
		return emit.CmpGe
	default:
		return emit.CmpEq
	}
}

// compare lowers a comparison. Aggregates compare equal when every
// component does.
func (g *Generator) compare(op ir.Opcode, dst, x, y ir.SymbolHandle) error {
	xs, ys := g.sym(x), g.sym(y)
	for _, s := range []*ir.Symbol{xs, ys} {
		if s.Type.IsClosureBased() || s.Type.IsArray() || s.Type.IsStructure() {
			return ir.Errorf(ir.ErrUnsupportedType, "%s of %s", op, s.Type).At(g.l.Name, g.op)
		}
	}

	n := max(int(xs.Type.Aggregate), int(ys.Type.Aggregate))
	if n > 1 && op != ir.OpEq && op != ir.OpNeq {
		return ir.Errorf(ir.ErrUnsupportedFeature, "%s of %s and %s", op, xs.Type, ys.Type).At(g.l.Name, g.op)
	}

	cast := CastNone
	switch {
	case xs.Type.IsFloatBased() || ys.Type.IsFloatBased():
		cast = CastFloat
	case xs.Type.IsInt() && ys.Type.IsInt():
		cast = CastInt
	}
	uniform := g.isUniform(dst)

	var out emit.Value
	for c := range n {
		a, err := g.Load(x, 0, nil, c, cast, uniform)
		if err != nil {
			return err
		}
		b, err := g.Load(y, 0, nil, c, cast, uniform)
		if err != nil {
			return err
		}
		r, err := g.b.Compare(cmpOp(op), a, b)
		if err != nil {
			return g.fail(err)
		}
		switch {
		case out == nil:
			out = r
		case op == ir.OpNeq:
			out, err = g.b.Or(out, r)
		default:
			out, err = g.b.And(out, r)
		}
		if err != nil {
			return g.fail(err)
		}
	}

	return g.Store(out, dst, 0, nil, 0)
}

// truth loads h as a predicate in the requested shape.
func (g *Generator) truth(h ir.SymbolHandle, uniform bool) (emit.Value, error) {
	v, err := g.Load(h, 0, nil, 0, CastNone, uniform)
	if err != nil {
		return nil, err
	}
	if v.Type().Kind == emit.KindBool {
		return v, nil
	}
	z, err := g.zero(v.Type().Kind, uniform)
	if err != nil {
		return nil, err
	}
	v, err = g.b.Compare(emit.CmpNe, v, z)
	return v, g.fail(err)
}

func (g *Generator) logical(op ir.Opcode, dst, x, y ir.SymbolHandle) error {
	uniform := g.isUniform(dst)

	a, err := g.truth(x, uniform)
	if err != nil {
		return err
	}
	b, err := g.truth(y, uniform)
	if err != nil {
		return err
	}

	var v emit.Value
	if op == ir.OpAnd {
		v, err = g.b.And(a, b)
	} else {
		v, err = g.b.Or(a, b)
	}
	if err != nil {
		return g.fail(err)
	}
	return g.Store(v, dst, 0, nil, 0)
}

// index loads an array index, which must be uniform.
func (g *Generator) index(h ir.SymbolHandle) (emit.Value, error) {
	if !g.isUniform(h) {
		return nil, ir.Errorf(ir.ErrUnsupportedFeature, "varying array index %s", g.sym(h).Name).At(g.l.Name, g.op)
	}
	return g.Load(h, 0, nil, 0, CastInt, true)
}

// aref lowers dst = array[index].
func (g *Generator) aref(dst, array, index ir.SymbolHandle) error {
	ds := g.sym(dst)
	idx, err := g.index(index)
	if err != nil {
		return err
	}

	uniform := g.isUniform(dst)
	cast := castFor(ds.Type)

	out := make([]dual, ds.Type.Aggregate)
	for c := range out {
		for d := range 3 {
			if d > 0 && !ds.HasDerivs {
				break
			}
			if out[c][d], err = g.Load(array, d, idx, c, cast, uniform); err != nil {
				return err
			}
		}
	}

	for c, v := range out {
		if err := g.storeDual(v, dst, c); err != nil {
			return err
		}
	}
	return nil
}

// aassign lowers array[index] = src.
func (g *Generator) aassign(array, index, src ir.SymbolHandle) error {
	as := g.sym(array)
	idx, err := g.index(index)
	if err != nil {
		return err
	}

	uniform := g.isUniform(array)
	cast := castFor(as.Type)

	for d := range 3 {
		if d > 0 && !as.HasDerivs {
			break
		}
		for c := range int(as.Type.Aggregate) {
			v, err := g.Load(src, d, nil, c, cast, uniform)
			if err != nil {
				return err
			}
			if err := g.Store(v, array, d, idx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// getAttribute lowers result = getattribute([object,] name, dest). The
// host function receives the addresses of the name, the optional object
// and the destination, and returns a per-lane success flag.
func (g *Generator) getAttribute(in *ir.Instruction) error {
	res := in.Args[0].Sym
	dst := in.Args[len(in.Args)-1].Sym
	lookup := in.Args[1 : len(in.Args)-1]

	vals := make([]emit.Value, 0, len(in.Args)-1)
	for _, arg := range lookup {
		v, err := g.MarshalCallArgument(arg.Sym, false, false)
		if err != nil {
			return err
		}
		vals = append(vals, v)
	}

	loc, err := g.Resolve(dst)
	if err != nil {
		return err
	}
	if loc.Uniform() {
		return g.shapef("getattribute destination %s is uniform", g.sym(dst).Mangled())
	}
	vals = append(vals, loc.Ptr)

	ok, err := g.b.Call("getattribute", vals...)
	if err != nil {
		return g.fail(err)
	}
	if ok == nil {
		return ir.NewError(ir.ErrInternalError, "getattribute returned no result").At(g.l.Name, g.op)
	}
	if ok, err = g.shape(ok, g.isUniform(res)); err != nil {
		return err
	}
	return g.Store(ok, res, 0, nil, 0)
}
