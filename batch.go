// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wideshade

import (
	"context"

	"github.com/nikandfor/errors"
	"github.com/nikandfor/tlog"

	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
	"github.com/gogpu/wideshade/wide"
)

// Batch is the state of one run: a Machine holding the shader globals,
// the group data and every layer's storage.
type Batch struct {
	p *Program
	m *emit.Machine

	globals emit.Pointer
	gens    []*wide.Generator
}

// NewBatch creates a batch with every lane active and zeroed globals.
func (p *Program) NewBatch() (*Batch, error) {
	m := emit.NewMachine(emit.MachineOptions{
		Lanes:         p.opts.Lanes,
		MaxIterations: p.opts.MaxIterations,
	})

	m.Register("getattribute", p.Attributes.host)
	for name, fn := range p.funcs {
		m.Register(name, fn)
	}

	grp, err := wide.NewGroup(p.Name, p.Layers, p.Infos)
	if err != nil {
		return nil, err
	}
	grp.Bind(m)

	globals, err := wide.NewGlobals(m, p.opts.globals())
	if err != nil {
		return nil, err
	}

	b := &Batch{
		p:       p,
		m:       m,
		globals: globals,
		gens:    make([]*wide.Generator, len(p.Layers)),
	}

	for i, l := range p.Layers {
		b.gens[i] = wide.NewGenerator(l, p.Infos[i], m, globals, grp, p.opts.wide())
	}

	return b, nil
}

// Machine returns the batch's builder.
func (b *Batch) Machine() *emit.Machine { return b.m }

// Lanes returns the batch width.
func (b *Batch) Lanes() int { return b.m.Lanes() }

// SetActive enables only the first n lanes.
func (b *Batch) SetActive(n int) { b.m.SetActive(n) }

// SetGlobal stores component of the named shader global. Uniform values
// are broadcast into wide globals.
func (b *Batch) SetGlobal(name string, component int, v emit.Value) error {
	tab := b.p.opts.globals()

	i, ok := tab.Index(name)
	if !ok {
		return ir.Errorf(ir.ErrUnresolvedSymbol, "unknown global %s", name)
	}

	f := tab.Fields[i]
	if component < 0 || component >= int(f.Type.Aggregate) {
		return ir.Errorf(ir.ErrInvalidLayer, "component %d of global %s (%v)", component, name, f.Type)
	}

	if vec, ok := v.(*emit.Vec); ok {
		n := 1
		if vec.T.Wide {
			n = b.m.Lanes()
		}
		if vec.Len() != n {
			return ir.Errorf(ir.ErrInconsistentShape, "global %s: %d values for %d lanes", name, vec.Len(), n)
		}
	}

	p, err := b.m.Member(b.globals, i)
	if err != nil {
		return ir.Wrap(ir.ErrInternalError, err)
	}

	p, err = b.m.Offset(p, component)
	if err != nil {
		return ir.Wrap(ir.ErrInternalError, err)
	}

	if p.Elem().Wide && !v.Type().Wide {
		v, err = b.m.Broadcast(v)
		if err != nil {
			return ir.Wrap(ir.ErrInconsistentShape, err)
		}
	}

	if err = b.m.Store(v, p); err != nil {
		return ir.Wrap(ir.ErrInconsistentShape, err)
	}

	return nil
}

// Run builds every layer in group order. Connected parameters are copied
// from their upstream outputs before their layer runs.
func (b *Batch) Run(ctx context.Context) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "run group", "group", b.p.Name, "lanes", b.m.Lanes())
	defer tr.Finish("err", &err)

	for i, g := range b.gens {
		for _, lk := range b.p.links {
			if lk.toLayer != i {
				continue
			}

			if err = b.copyLink(lk); err != nil {
				return err
			}
		}

		if err = g.BuildLayer(ctx); err != nil {
			return err
		}
	}

	return nil
}

// copyLink copies every element, component and derivative of an upstream
// output into the connected parameter.
func (b *Batch) copyLink(lk link) error {
	up, down := b.gens[lk.fromLayer], b.gens[lk.toLayer]

	dst, err := down.Resolve(lk.to)
	if err != nil {
		return err
	}

	derivs := 1
	if dst.Derivs {
		derivs = 3
	}

	for d := range derivs {
		for e := range dst.Elements {
			var idx emit.Value
			if dst.Type.IsArray() {
				idx = b.m.ConstInt(int32(e))
			}

			for c := range dst.Components() {
				v, err := up.Load(lk.from, d, idx, c, wide.CastNone, dst.Uniform())
				if err != nil {
					return errors.Wrap(err, "connection of %v", down.Layer().Symbol(lk.to).Name)
				}

				if err = down.Store(v, lk.to, d, idx, c); err != nil {
					return errors.Wrap(err, "connection of %v", down.Layer().Symbol(lk.to).Name)
				}
			}
		}
	}

	return nil
}

// Output loads component of the named symbol of layer as a wide value.
func (b *Batch) Output(layer int, name string, component int) (emit.Value, error) {
	if layer < 0 || layer >= len(b.gens) {
		return nil, ir.Errorf(ir.ErrInvalidLayer, "layer %d of %d", layer, len(b.gens))
	}

	g := b.gens[layer]

	h, ok := g.Layer().Lookup(name)
	if !ok {
		return nil, ir.Errorf(ir.ErrUnresolvedSymbol, "no symbol %s", name).At(g.Layer().Name, -1)
	}

	return g.Load(h, 0, nil, component, wide.CastNone, false)
}

// Outputs returns the output parameters of layer by name.
func (b *Batch) Outputs(layer int) (map[string][]emit.Value, error) {
	if layer < 0 || layer >= len(b.gens) {
		return nil, ir.Errorf(ir.ErrInvalidLayer, "layer %d of %d", layer, len(b.gens))
	}

	l := b.p.Layers[layer]
	out := make(map[string][]emit.Value)

	for _, h := range l.Params() {
		s := l.Symbol(h)
		if s.SymType != ir.SymOutputParam || s.Type.IsStructure() || s.Type.IsArray() {
			continue
		}

		for c := range int(s.Type.Aggregate) {
			v, err := b.gens[layer].Load(h, 0, nil, c, wide.CastNone, false)
			if err != nil {
				return nil, err
			}
			out[s.Name] = append(out[s.Name], v)
		}
	}

	return out, nil
}
