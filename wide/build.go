// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wide

import (
	"context"

	"github.com/nikandfor/errors"
	"github.com/nikandfor/tlog"

	"github.com/gogpu/wideshade/analysis"
	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
)

// BuildLayer lowers the whole layer: it marks the layer as run, runs the
// initializers in the order the analyzer walked them and then the main
// code.
func (g *Generator) BuildLayer(ctx context.Context) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "build layer", "layer", g.l.Name)
	defer tr.Finish("err", &err)

	g.tr = tr
	g.ctx = ctx

	if g.group != nil {
		p, err := g.group.LayerRunRef(g.b, g.l.Index)
		if err != nil {
			return g.fail(err)
		}
		if err := g.b.Store(g.b.ConstInt(1), p); err != nil {
			return g.fail(err)
		}
	}

	for i := range g.l.Symbols {
		h := ir.SymbolHandle(i)
		s := g.l.Symbol(h)
		if s.Type.IsStructure() || s.Alias != nil {
			continue
		}
		if s.SymType != ir.SymLocal && s.SymType != ir.SymTemp {
			continue
		}
		if !s.Type.IsClosureBased() && !s.Type.IsStringBased() && !g.opts.DebugUninit {
			continue
		}
		if err := g.initSymbol(h); err != nil {
			return errors.Wrap(err, "init %v", s.Name)
		}
	}

	for _, h := range g.l.Params() {
		s := g.l.Symbol(h)
		if s.Type.IsStructure() || !analysis.NeedsInit(s) || s.Connected {
			continue
		}
		if g.opts.LazyUserdata && analysis.IsLazyUserdata(s) {
			continue
		}
		if err := g.initSymbol(h); err != nil {
			return errors.Wrap(err, "init %v", s.Name)
		}
	}

	g.op = -1
	if err := g.build(g.l.MainBegin, g.l.MainEnd); err != nil {
		if errors.Is(err, emit.ErrBreak) {
			return ir.NewError(ir.ErrInvalidLayer, "break outside of a loop").At(g.l.Name, g.op)
		}
		return err
	}

	return nil
}

// initSymbol runs the init ops of h, or assigns its default value.
func (g *Generator) initSymbol(h ir.SymbolHandle) error {
	s := g.l.Symbol(h)
	g.op = -1

	switch {
	case s.HasInitOps():
		return g.build(s.InitBegin, s.InitEnd)
	case s.IsParam() && s.Default.Len() > 0:
		return g.assignDefault(h)
	default:
		return g.AssignZero(h)
	}
}

// assignDefault fills parameter h from its default payload. Missing
// entries are zero.
func (g *Generator) assignDefault(h ir.SymbolHandle) error {
	s := g.l.Symbol(h)
	uniform := g.isUniform(h)
	cast := castFor(s.Type)
	agg := int(s.Type.Aggregate)

	if err := g.AssignZero(h); err != nil {
		return err
	}

	n := min(numElements(s)*agg, s.Default.Len())
	for i := range n {
		v, err := g.payload(s.Default, s, i, cast)
		if err != nil {
			return err
		}
		if v, err = g.shape(v, uniform); err != nil {
			return err
		}

		var idx emit.Value
		if s.Type.IsArray() {
			idx = g.b.ConstInt(int32(i / agg))
		}
		if err := g.Store(v, h, 0, idx, i%agg); err != nil {
			return err
		}
	}
	return nil
}

// build lowers the instructions in [begin, end).
func (g *Generator) build(begin, end int) error {
	for i := begin; i < end; {
		if err := g.ctx.Err(); err != nil {
			return err
		}

		r, err := ir.RegionOf(g.l, i)
		if err != nil {
			return err
		}

		g.SetOp(i)
		if g.tr.If("wide_op") {
			g.tr.Printw("op", "i", i, "op", g.l.Ops[i].Op, "masked", g.masked())
		}

		if r == nil {
			if err := g.lower(&g.l.Ops[i]); err != nil {
				return err
			}
			i++
			continue
		}

		if err := g.region(r); err != nil {
			return err
		}
		i = g.l.Ops[i].FarthestJump()
	}
	return nil
}

func (g *Generator) region(r ir.Region) error {
	switch r := r.(type) {
	case ir.IfRegion:
		cond, err := g.TestNonZero(r.Cond, false)
		if err != nil {
			return err
		}
		return g.fail(g.b.If(cond, g.branch(r.Then), g.branch(r.Else)))

	case ir.LoopRegion:
		return g.loop(r)

	case ir.CallRegion:
		return g.build(r.Body.Begin, r.Body.End)
	}

	return ir.NewError(ir.ErrUnsupportedControl, "unhandled region").At(g.l.Name, g.op)
}

func (g *Generator) branch(s ir.Span) func() error {
	if s.Empty() {
		return nil
	}
	return func() error { return g.build(s.Begin, s.End) }
}

func (g *Generator) loop(r ir.LoopRegion) error {
	if err := g.build(r.Init.Begin, r.Init.End); err != nil {
		return err
	}

	varying := !g.isUniform(r.Cond)

	g.loops.Push(r.Cond, varying)
	defer g.loops.Pop()

	test := func() (emit.Value, error) {
		if err := g.build(r.Test.Begin, r.Test.End); err != nil {
			return nil, err
		}
		return g.TestNonZero(r.Cond, false)
	}
	body := func() error {
		if err := g.build(r.Body.Begin, r.Body.End); err != nil {
			return err
		}
		return g.build(r.Step.Begin, r.Step.End)
	}

	return g.fail(g.b.Loop(varying, r.TestFirst(), test, body))
}

// breakLoop retires the active lanes from the innermost loop. Leaving a
// uniform loop unwinds to it through emit.ErrBreak.
func (g *Generator) breakLoop() error {
	if _, ok := g.loops.Top(); !ok {
		return ir.NewError(ir.ErrInvalidLayer, "break outside of a loop").At(g.l.Name, g.op)
	}
	if !g.loops.Varying() {
		return emit.ErrBreak
	}
	return g.fail(g.b.MaskedBreak())
}
