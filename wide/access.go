// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wide

import (
	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
)

// Load reads one component of h. deriv selects the value (0) or a
// derivative (1 dx, 2 dy); arrayIndex is nil for non-arrays or a uniform
// int. The result is shaped by targetUniform: uniform storage is broadcast
// when a wide value is wanted, the reverse is an error.
func (g *Generator) Load(h ir.SymbolHandle, deriv int, arrayIndex emit.Value, component int, cast Cast, targetUniform bool) (emit.Value, error) {
	s := g.sym(h)

	if deriv > 0 && !s.HasDerivs {
		kind, err := lowerKind(s.Type)
		if err != nil {
			return nil, g.fail(err)
		}
		return g.zero(castKind(kind, cast), targetUniform)
	}

	if s.IsConstant() && arrayIndex == nil {
		return g.LoadConstant(h, 0, component, cast, targetUniform)
	}

	loc, err := g.Resolve(h)
	if err != nil {
		return nil, err
	}
	p, err := g.slot(loc, deriv, arrayIndex, component)
	if err != nil {
		return nil, err
	}
	v, err := g.b.Load(p)
	if err != nil {
		return nil, g.fail(err)
	}

	if loc.Predicate && cast != CastNone {
		if v, err = g.b.Convert(v, castKind(emit.KindInt, cast)); err != nil {
			return nil, g.fail(err)
		}
	}
	if v, err = g.cast(v, cast); err != nil {
		return nil, err
	}

	return g.shape(v, targetUniform)
}

// Store writes one component of h. Writing a derivative of a symbol
// without derivatives does nothing. Stores from ops the analyzer flagged
// only touch the active lanes. v must already have the shape of the
// storage; callers load operands with the matching targetUniform.
func (g *Generator) Store(v emit.Value, h ir.SymbolHandle, deriv int, arrayIndex emit.Value, component int) error {
	s := g.sym(h)
	if deriv > 0 && !s.HasDerivs {
		return nil
	}

	loc, err := g.Resolve(h)
	if err != nil {
		return err
	}
	p, err := g.slot(loc, deriv, arrayIndex, component)
	if err != nil {
		return err
	}

	switch vk := v.Type().Kind; {
	case loc.Predicate && vk != emit.KindBool,
		!loc.Predicate && vk == emit.KindBool && loc.Elem.Kind != emit.KindBool:
		if v, err = g.b.Convert(v, loc.Elem.Kind); err != nil {
			return g.fail(err)
		}
	}

	if v.Type().Wide != loc.Elem.Wide {
		return g.shapef("store of %v to %s %s", v.Type(), shapeName(loc.Elem.Wide), s.Mangled())
	}

	if g.masked() && loc.Elem.Wide {
		return g.fail(g.b.MaskedStore(v, p))
	}
	return g.fail(g.b.Store(v, p))
}

// LoadConstant returns a literal from the payload of constant h without
// touching storage.
func (g *Generator) LoadConstant(h ir.SymbolHandle, arrayIndex, component int, cast Cast, targetUniform bool) (emit.Value, error) {
	s := g.sym(h)
	if !s.IsConstant() {
		return nil, ir.Errorf(ir.ErrInternalError, "%s %s is not a constant", s.SymType, s.Mangled()).At(g.l.Name, g.op)
	}

	agg := int(s.Type.Aggregate)
	if s.Type.Aggregate == ir.AggScalar {
		component = 0
	}
	if component < 0 || component >= agg {
		return nil, ir.Errorf(ir.ErrInvalidLayer, "component %d of %s %s", component, s.Type, s.Name).At(g.l.Name, g.op)
	}

	v, err := g.literal(s, arrayIndex*agg+component, cast)
	if err != nil {
		return nil, err
	}
	if targetUniform {
		return v, nil
	}
	v, err = g.b.Broadcast(v)
	return v, g.fail(err)
}

// slot addresses one component of one derivative plane of loc.
func (g *Generator) slot(loc *Location, deriv int, arrayIndex emit.Value, component int) (emit.Pointer, error) {
	s := g.sym(loc.Sym)

	if loc.Components() == 1 {
		component = 0
	}
	if component < 0 || component >= loc.Components() || deriv < 0 || deriv > 2 {
		return nil, ir.Errorf(ir.ErrInvalidLayer, "component %d deriv %d of %s %s", component, deriv, s.Type, s.Name).At(g.l.Name, g.op)
	}

	p, err := g.b.Offset(loc.Ptr, deriv*loc.Plane()+component)
	if err != nil {
		return nil, g.fail(err)
	}
	if arrayIndex == nil {
		return p, nil
	}

	if arrayIndex.Type().Wide {
		return nil, ir.Errorf(ir.ErrUnsupportedFeature, "varying index into array %s", s.Mangled()).At(g.l.Name, g.op)
	}
	if arrayIndex.Type().Kind != emit.KindInt {
		if arrayIndex, err = g.b.Convert(arrayIndex, emit.KindInt); err != nil {
			return nil, g.fail(err)
		}
	}
	p, err = g.b.Index(p, arrayIndex, loc.Components())
	return p, g.fail(err)
}

// literal returns payload entry i of constant s.
func (g *Generator) literal(s *ir.Symbol, i int, cast Cast) (emit.Value, error) {
	return g.payload(s.Const, s, i, cast)
}

// payload returns entry i of c, a constant or default value of s.
func (g *Generator) payload(c *ir.ConstValue, s *ir.Symbol, i int, cast Cast) (emit.Value, error) {
	if c.Len() == 0 && s.Type.IsClosureBased() {
		return g.b.Null(), nil
	}
	if i < 0 || i >= c.Len() {
		return nil, ir.Errorf(ir.ErrInvalidLayer, "entry %d of %s with %d entries", i, s.Name, c.Len()).At(g.l.Name, g.op)
	}

	switch {
	case c.Floats != nil:
		if cast == CastInt {
			return g.b.ConstInt(int32(c.Floats[i])), nil
		}
		return g.b.ConstFloat(c.Floats[i]), nil
	case c.Ints != nil:
		if cast == CastFloat || (cast == CastNone && s.Type.IsFloatBased()) {
			return g.b.ConstFloat(float32(c.Ints[i])), nil
		}
		return g.b.ConstInt(c.Ints[i]), nil
	default:
		return g.b.ConstString(c.Strings[i]), nil
	}
}

// cast converts between int and float. Other kinds pass through.
func (g *Generator) cast(v emit.Value, cast Cast) (emit.Value, error) {
	want := castKind(v.Type().Kind, cast)
	if want == v.Type().Kind {
		return v, nil
	}
	v, err := g.b.Convert(v, want)
	return v, g.fail(err)
}

func castKind(k emit.Kind, cast Cast) emit.Kind {
	switch {
	case cast == CastInt && (k == emit.KindFloat || k == emit.KindBool):
		return emit.KindInt
	case cast == CastFloat && (k == emit.KindInt || k == emit.KindBool):
		return emit.KindFloat
	}
	return k
}

// shape broadcasts uniform values when a wide one is wanted.
func (g *Generator) shape(v emit.Value, targetUniform bool) (emit.Value, error) {
	switch wide := v.Type().Wide; {
	case wide && targetUniform:
		return nil, g.shapef("varying %v requested as uniform", v.Type())
	case !wide && !targetUniform:
		v, err := g.b.Broadcast(v)
		return v, g.fail(err)
	}
	return v, nil
}

func shapeName(wide bool) string {
	if wide {
		return "varying"
	}
	return "uniform"
}

// zero returns the zero of kind in the requested shape.
func (g *Generator) zero(kind emit.Kind, uniform bool) (emit.Value, error) {
	var v emit.Value
	switch kind {
	case emit.KindFloat:
		v = g.b.ConstFloat(0)
	case emit.KindInt:
		v = g.b.ConstInt(0)
	case emit.KindBool:
		v = g.b.ConstBool(false)
	case emit.KindString:
		v = g.b.ConstString("")
	case emit.KindPtr:
		v = g.b.Null()
	default:
		return nil, ir.Errorf(ir.ErrUnsupportedType, "no zero of %v", kind).At(g.l.Name, g.op)
	}
	if uniform {
		return v, nil
	}
	v, err := g.b.Broadcast(v)
	return v, g.fail(err)
}
