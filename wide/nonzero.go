// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wide

import (
	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
)

// TestNonZero returns a predicate, shaped like h, that is true where any
// component of h is nonzero. With includeDerivs the derivatives count too.
func (g *Generator) TestNonZero(h ir.SymbolHandle, includeDerivs bool) (emit.Value, error) {
	s := g.sym(h)
	uniform := g.isUniform(h)

	if s.Type.IsInt() {
		v, err := g.Load(h, 0, nil, 0, CastNone, uniform)
		if err != nil {
			return nil, err
		}
		// predicate storage loads as bool; compare against the matching zero
		z, err := g.zero(v.Type().Kind, uniform)
		if err != nil {
			return nil, err
		}
		out, err := g.b.Compare(emit.CmpNe, v, z)
		return out, g.fail(err)
	}

	if !s.Type.IsFloatBased() || s.Type.IsArray() {
		return nil, ir.Errorf(ir.ErrUnsupportedType, "nonzero test of %s %s", s.Type, s.Name).At(g.l.Name, g.op)
	}

	z, err := g.zero(emit.KindFloat, uniform)
	if err != nil {
		return nil, err
	}

	derivs := 1
	if includeDerivs && s.HasDerivs {
		derivs = 3
	}

	var out emit.Value
	for d := range derivs {
		for c := range int(s.Type.Aggregate) {
			v, err := g.Load(h, d, nil, c, CastFloat, uniform)
			if err != nil {
				return nil, err
			}
			nz, err := g.b.Compare(emit.CmpNe, v, z)
			if err != nil {
				return nil, g.fail(err)
			}
			if out == nil {
				out = nz
			} else if out, err = g.b.Or(out, nz); err != nil {
				return nil, g.fail(err)
			}
		}
	}
	return out, nil
}
