// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wide

import (
	"github.com/nikandfor/errors"

	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
)

// Resolve returns the storage of h, allocating locals, temporaries and
// constants on first use.
func (g *Generator) Resolve(h ir.SymbolHandle) (*Location, error) {
	if !g.l.Valid(h) {
		return nil, ir.Errorf(ir.ErrUnresolvedSymbol, "symbol %d out of range", h).At(g.l.Name, g.op)
	}
	h = g.l.Dealias(h)
	s := g.l.Symbol(h)

	switch s.SymType {
	case ir.SymGlobal:
		return g.resolveGlobal(h, s)
	case ir.SymParam, ir.SymOutputParam:
		return g.resolveParam(h, s)
	default:
		if loc, ok := g.allocs[s.Mangled()]; ok {
			return loc, nil
		}
		return g.allocate(h, s, g.pred[h])
	}
}

// AllocatePredicate allocates h with native predicate storage. It is a
// no-op returning the existing storage if h was already allocated as a
// predicate.
func (g *Generator) AllocatePredicate(h ir.SymbolHandle) (*Location, error) {
	h = g.l.Dealias(h)
	s := g.l.Symbol(h)
	if !s.Type.IsInt() || (s.SymType != ir.SymLocal && s.SymType != ir.SymTemp) {
		return nil, ir.Errorf(ir.ErrInternalError, "predicate storage for %s %s %s", s.SymType, s.Type, s.Name).At(g.l.Name, g.op)
	}
	if loc, ok := g.allocs[s.Mangled()]; ok {
		if !loc.Predicate {
			return nil, ir.Errorf(ir.ErrInconsistentShape, "%s already allocated as integer storage", s.Mangled()).At(g.l.Name, g.op)
		}
		return loc, nil
	}
	return g.allocate(h, s, true)
}

func (g *Generator) allocate(h ir.SymbolHandle, s *ir.Symbol, predicate bool) (*Location, error) {
	kind, err := lowerKind(s.Type)
	if err != nil {
		return nil, g.fail(err)
	}
	if predicate {
		kind = emit.KindBool
	}

	loc := &Location{
		Sym:       h,
		Type:      s.Type,
		Elem:      emit.Type{Kind: kind, Wide: !g.isUniform(h)},
		Derivs:    s.HasDerivs,
		Predicate: predicate,
		Elements:  numElements(s),
	}
	loc.Ptr = g.b.Alloca(s.Mangled(), loc.Elem, loc.Slots())
	g.allocs[s.Mangled()] = loc

	if g.tr.If("wide_alloc") {
		g.tr.Printw("alloca", "symbol", s.Mangled(), "elem", loc.Elem, "slots", loc.Slots())
	}

	if s.SymType == ir.SymConst {
		if err := g.fillConstant(loc, s); err != nil {
			return nil, err
		}
	}

	return loc, nil
}

// fillConstant copies a constant's payload into its storage.
func (g *Generator) fillConstant(loc *Location, s *ir.Symbol) error {
	n := loc.Plane()
	if s.Const.Len() < n {
		return ir.Errorf(ir.ErrInvalidLayer, "constant %s has %d entries, needs %d", s.Name, s.Const.Len(), n).At(g.l.Name, g.op)
	}
	for i := range n {
		v, err := g.literal(s, i, castFor(s.Type))
		if err != nil {
			return err
		}
		p, err := g.b.Offset(loc.Ptr, i)
		if err != nil {
			return g.fail(err)
		}
		if err := g.b.Store(v, p); err != nil {
			return g.fail(err)
		}
	}
	if loc.Derivs {
		p, err := g.b.Offset(loc.Ptr, n)
		if err != nil {
			return g.fail(err)
		}
		if err := g.b.Memset(p, 2*n); err != nil {
			return g.fail(err)
		}
	}
	return nil
}

func (g *Generator) resolveGlobal(h ir.SymbolHandle, s *ir.Symbol) (*Location, error) {
	i, ok := g.opts.Globals.Index(s.Name)
	if !ok {
		return nil, ir.Errorf(ir.ErrUnresolvedSymbol, "no shader global named %q (%s)", s.Name, s.Mangled()).At(g.l.Name, g.op)
	}
	f := g.opts.Globals.Fields[i]

	kind, err := lowerKind(f.Type)
	if err != nil {
		return nil, g.fail(err)
	}
	p, err := g.b.Member(g.globals, i)
	if err != nil {
		return nil, g.fail(err)
	}

	return &Location{
		Ptr:      p,
		Sym:      h,
		Type:     f.Type,
		Elem:     emit.Type{Kind: kind, Wide: !f.Uniform},
		Derivs:   f.HasDerivs,
		Elements: max(f.Type.ArrayLen, 1),
	}, nil
}

func (g *Generator) resolveParam(h ir.SymbolHandle, s *ir.Symbol) (*Location, error) {
	if g.group == nil {
		return nil, ir.Errorf(ir.ErrUnresolvedSymbol, "parameter %s (%s) without group data", s.Name, s.Mangled()).At(g.l.Name, g.op)
	}
	p, err := g.group.ParamRef(g.b, g.l.Index, h)
	if err != nil {
		var e *ir.Error
		if errors.As(err, &e) && e.Kind == ir.ErrUnresolvedSymbol {
			return nil, ir.Errorf(ir.ErrUnresolvedSymbol, "parameter %s (%s) has no group data field", s.Name, s.Mangled()).At(g.l.Name, g.op)
		}
		return nil, g.fail(err)
	}

	kind, err := lowerKind(s.Type)
	if err != nil {
		return nil, g.fail(err)
	}
	field, _ := g.group.Field(g.l.Index, h)

	return &Location{
		Ptr:      p,
		Sym:      h,
		Type:     s.Type,
		Elem:     emit.Type{Kind: kind, Wide: g.group.fields[field].Elem.Wide},
		Derivs:   s.HasDerivs,
		Elements: numElements(s),
	}, nil
}
