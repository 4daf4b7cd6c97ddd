// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wide

import (
	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
)

// NoIndex selects whole-symbol assignment.
const NoIndex = -1

// Assign copies src into dst. With an arrayIndex other than NoIndex both
// sides are indexed at that element.
func (g *Generator) Assign(dst, src ir.SymbolHandle, arrayIndex int) error {
	ds, ss := g.sym(dst), g.sym(src)
	dstUniform := g.isUniform(dst)

	var idx emit.Value
	if arrayIndex != NoIndex {
		idx = g.b.ConstInt(int32(arrayIndex))
	}

	switch {
	case ds.Type.IsClosureBased():
		var v emit.Value
		var err error
		if ss.Type.IsClosureBased() {
			v, err = g.element(src, 0, arrayIndex, 0, CastNone, dstUniform)
		} else {
			v, err = g.zero(emit.KindPtr, dstUniform)
		}
		if err != nil {
			return err
		}
		return g.Store(v, dst, 0, idx, 0)

	case ds.Type.IsMatrix() && ss.Type.IsIntOrFloat():
		v, err := g.element(src, 0, arrayIndex, 0, CastFloat, dstUniform)
		if err != nil {
			return err
		}
		z, err := g.zero(emit.KindFloat, dstUniform)
		if err != nil {
			return err
		}
		for i := range int(ir.AggMatrix44) {
			c := z
			if i%5 == 0 {
				c = v
			}
			if err := g.Store(c, dst, 0, idx, i); err != nil {
				return err
			}
		}
		return g.ZeroDerivs(dst)

	case ds.Type.IsArray() && ss.Type.IsArray() && arrayIndex == NoIndex:
		return g.copyArray(dst, src)
	}

	cast := castFor(ds.Type)
	for c := range int(ds.Type.Aggregate) {
		v, err := g.element(src, 0, arrayIndex, c, cast, dstUniform)
		if err != nil {
			return err
		}
		if err := g.Store(v, dst, 0, idx, c); err != nil {
			return err
		}
	}

	if !ds.HasDerivs {
		return nil
	}
	for d := 1; d <= 2; d++ {
		for c := range int(ds.Type.Aggregate) {
			// element returns zero for sources without derivatives
			v, err := g.element(src, d, arrayIndex, c, cast, dstUniform)
			if err != nil {
				return err
			}
			if err := g.Store(v, dst, d, idx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyArray copies the leading elements the two arrays have in common.
func (g *Generator) copyArray(dst, src ir.SymbolHandle) error {
	ds, ss := g.sym(dst), g.sym(src)

	dloc, err := g.Resolve(dst)
	if err != nil {
		return err
	}
	n := min(numElements(ds), numElements(ss))

	if !ss.IsConstant() && !g.masked() {
		sloc, err := g.Resolve(src)
		if err != nil {
			return err
		}
		if sloc.Elem == dloc.Elem && sloc.Predicate == dloc.Predicate && sloc.Components() == dloc.Components() {
			return g.blockCopy(dloc, sloc, n)
		}
	}

	cast := castFor(ds.Type)
	dstUniform := dloc.Uniform()
	planes := 1
	if ds.HasDerivs {
		planes = 3
	}
	for d := range planes {
		for e := range n {
			idx := g.b.ConstInt(int32(e))
			for c := range dloc.Components() {
				v, err := g.element(src, d, e, c, cast, dstUniform)
				if err != nil {
					return err
				}
				if err := g.Store(v, dst, d, idx, c); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// blockCopy copies n elements of every derivative plane. Derivative planes
// the source lacks are zeroed.
func (g *Generator) blockCopy(dloc, sloc *Location, n int) error {
	count := n * dloc.Components()
	for d := range 3 {
		if d > 0 && !dloc.Derivs {
			break
		}
		dp, err := g.b.Offset(dloc.Ptr, d*dloc.Plane())
		if err != nil {
			return g.fail(err)
		}
		if d > 0 && !sloc.Derivs {
			if err := g.b.Memset(dp, count); err != nil {
				return g.fail(err)
			}
			continue
		}
		sp, err := g.b.Offset(sloc.Ptr, d*sloc.Plane())
		if err != nil {
			return g.fail(err)
		}
		if err := g.b.Memcpy(dp, sp, count); err != nil {
			return g.fail(err)
		}
	}
	return nil
}

// element loads one component of one element of h, reading constants
// from their payload. arrayIndex is NoIndex for non-arrays.
func (g *Generator) element(h ir.SymbolHandle, deriv, arrayIndex, component int, cast Cast, targetUniform bool) (emit.Value, error) {
	s := g.sym(h)
	if arrayIndex == NoIndex {
		if s.Type.IsArray() {
			arrayIndex = 0
		} else {
			return g.Load(h, deriv, nil, component, cast, targetUniform)
		}
	}

	if s.IsConstant() {
		if deriv > 0 {
			return g.Load(h, deriv, nil, component, cast, targetUniform)
		}
		return g.LoadConstant(h, arrayIndex, component, cast, targetUniform)
	}
	if !s.Type.IsArray() {
		return g.Load(h, deriv, nil, component, cast, targetUniform)
	}
	return g.Load(h, deriv, g.b.ConstInt(int32(arrayIndex)), component, cast, targetUniform)
}

// AssignZero zero-fills h, including derivatives. Closures become null.
func (g *Generator) AssignZero(h ir.SymbolHandle) error {
	loc, err := g.Resolve(h)
	if err != nil {
		return err
	}
	return g.zeroSlots(loc, 0, loc.Slots())
}

// ZeroDerivs zero-fills the derivatives of h, if it has any.
func (g *Generator) ZeroDerivs(h ir.SymbolHandle) error {
	if !g.sym(h).HasDerivs {
		return nil
	}
	loc, err := g.Resolve(h)
	if err != nil {
		return err
	}
	return g.zeroSlots(loc, loc.Plane(), 2*loc.Plane())
}

// zeroSlots zero-fills n slots of loc starting at off, only in the active
// lanes when the current op is masked.
func (g *Generator) zeroSlots(loc *Location, off, n int) error {
	p, err := g.b.Offset(loc.Ptr, off)
	if err != nil {
		return g.fail(err)
	}
	if !g.masked() || loc.Uniform() {
		return g.fail(g.b.Memset(p, n))
	}

	z, err := g.zero(loc.Elem.Kind, false)
	if err != nil {
		return err
	}
	for i := range n {
		q, err := g.b.Offset(p, i)
		if err != nil {
			return g.fail(err)
		}
		if err := g.b.MaskedStore(z, q); err != nil {
			return g.fail(err)
		}
	}
	return nil
}
