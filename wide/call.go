// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wide

import (
	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
)

// MarshalCallArgument prepares h as an argument of a host function.
//
// Uniform scalars without derivatives are passed by value to uniform
// callees. Everything else is passed as the address of storage shaped for
// the callee: varying callees get varying storage, and derivatives are
// zero-filled when requested from a symbol that has none. Constants and
// uniform symbols passed to varying callees are copied into a temporary.
func (g *Generator) MarshalCallArgument(h ir.SymbolHandle, derivPtrs, calleeUniform bool) (emit.Value, error) {
	h = g.l.Dealias(h)
	s := g.l.Symbol(h)
	argUniform := g.isUniform(h)

	scalar := s.Type.Aggregate == ir.AggScalar && !s.Type.IsArray()
	if scalar && !derivPtrs && calleeUniform && argUniform {
		return g.Load(h, 0, nil, 0, CastNone, true)
	}

	if !argUniform && calleeUniform {
		return nil, g.shapef("varying argument %s to uniform function", s.Mangled())
	}

	needCopy := (derivPtrs && !s.HasDerivs) ||
		(s.IsConstant() && !calleeUniform) ||
		(argUniform && !calleeUniform)
	if !needCopy {
		loc, err := g.Resolve(h)
		if err != nil {
			return nil, err
		}
		return loc.Ptr, nil
	}

	return g.materialize(h, derivPtrs, !calleeUniform)
}

// materialize copies h into a fresh temporary of the requested shape.
func (g *Generator) materialize(h ir.SymbolHandle, derivs, wide bool) (emit.Pointer, error) {
	s := g.l.Symbol(h)

	kind, err := lowerKind(s.Type)
	if err != nil {
		return nil, g.fail(err)
	}
	if g.pred[h] {
		kind = emit.KindInt
	}

	tmp := &Location{
		Sym:      h,
		Type:     s.Type,
		Elem:     emit.Type{Kind: kind, Wide: wide},
		Derivs:   derivs,
		Elements: numElements(s),
	}
	tmp.Ptr = g.b.Alloca("argtmp_"+s.Mangled(), tmp.Elem, tmp.Slots())

	cast := castFor(s.Type)
	planes := 1
	if derivs {
		planes = 3
	}
	for d := range planes {
		for e := range tmp.Elements {
			index := NoIndex
			if s.Type.IsArray() {
				index = e
			}
			for c := range tmp.Components() {
				v, err := g.element(h, d, index, c, cast, !wide)
				if err != nil {
					return nil, err
				}
				p, err := g.b.Offset(tmp.Ptr, d*tmp.Plane()+e*tmp.Components()+c)
				if err != nil {
					return nil, g.fail(err)
				}
				if err := g.b.Store(v, p); err != nil {
					return nil, g.fail(err)
				}
			}
		}
	}

	return tmp.Ptr, nil
}

// CallFunction marshals args and calls the named host function.
func (g *Generator) CallFunction(name string, calleeUniform, derivPtrs bool, args ...ir.SymbolHandle) (emit.Value, error) {
	vals := make([]emit.Value, len(args))
	for i, h := range args {
		v, err := g.MarshalCallArgument(h, derivPtrs, calleeUniform)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}

	if g.tr.If("wide_call") {
		g.tr.Printw("call", "func", name, "uniform", calleeUniform, "args", len(args))
	}

	v, err := g.b.Call(name, vals...)
	return v, g.fail(err)
}
