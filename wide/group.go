// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wide

import (
	"github.com/nikandfor/errors"

	"github.com/gogpu/wideshade/analysis"
	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
)

// LayerRunField is the group data field holding the per-layer run flags.
const LayerRunField = 0

type paramKey struct {
	layer int
	sym   ir.SymbolHandle
}

// Group is the layout of the data block shared by the layers of a shader
// group.
type Group struct {
	Name   string
	Layers []*ir.Layer

	fields []emit.Field
	index  map[paramKey]int
	block  emit.Pointer
}

// NewGroup lays out the group data block. Each parameter of each layer
// gets a field shaped by the layer's classification.
func NewGroup(name string, layers []*ir.Layer, infos []*analysis.Info) (*Group, error) {
	if len(infos) != len(layers) {
		return nil, ir.Errorf(ir.ErrInternalError, "%d layers with %d classifications", len(layers), len(infos))
	}

	g := &Group{
		Name:   name,
		Layers: layers,
		index:  make(map[paramKey]int),
	}
	g.fields = append(g.fields, emit.Field{Name: "layer_run", Elem: emit.Int, Count: len(layers)})

	for li, l := range layers {
		for _, h := range l.Params() {
			s := l.Symbol(h)
			if s.Type.IsStructure() {
				continue
			}
			kind, err := lowerKind(s.Type)
			if err != nil {
				return nil, errors.Wrap(err, "layer %v parameter %v", l.Name, s.Name)
			}
			g.index[paramKey{li, h}] = len(g.fields)
			g.fields = append(g.fields, emit.Field{
				Name:  l.Name + "_" + s.Mangled(),
				Elem:  emit.Type{Kind: kind, Wide: infos[li].IsVarying(h)},
				Count: slotCount(s),
			})
		}
	}

	return g, nil
}

// Fields returns the block layout.
func (g *Group) Fields() []emit.Field { return g.fields }

// Bind creates the block on b. It must be called before any reference is
// taken.
func (g *Group) Bind(b emit.Builder) emit.Pointer {
	g.block = b.Struct(g.Name, g.fields)
	return g.block
}

// Block returns the bound block, or nil.
func (g *Group) Block() emit.Pointer { return g.block }

// Field returns the field index of parameter h of layer.
func (g *Group) Field(layer int, h ir.SymbolHandle) (int, bool) {
	i, ok := g.index[paramKey{layer, h}]
	return i, ok
}

// LayerRunRef addresses the run flag of layer.
func (g *Group) LayerRunRef(b emit.Builder, layer int) (emit.Pointer, error) {
	if g.block == nil {
		return nil, ir.NewError(ir.ErrInternalError, "group data block not bound")
	}
	if layer < 0 || layer >= len(g.Layers) {
		return nil, ir.Errorf(ir.ErrInternalError, "layer %d of %d", layer, len(g.Layers))
	}
	flags, err := b.Member(g.block, LayerRunField)
	if err != nil {
		return nil, err
	}
	return b.Offset(flags, layer)
}

// ParamRef addresses the storage of parameter h of layer.
func (g *Group) ParamRef(b emit.Builder, layer int, h ir.SymbolHandle) (emit.Pointer, error) {
	if g.block == nil {
		return nil, ir.NewError(ir.ErrInternalError, "group data block not bound")
	}
	i, ok := g.Field(layer, h)
	if !ok {
		return nil, ir.Errorf(ir.ErrUnresolvedSymbol, "parameter %d of layer %d has no group data field", h, layer)
	}
	return b.Member(g.block, i)
}

// GlobalFields returns the layout of the shader-globals block.
func GlobalFields(tab *ir.GlobalTable) ([]emit.Field, error) {
	fields := make([]emit.Field, len(tab.Fields))
	for i, f := range tab.Fields {
		kind, err := lowerKind(f.Type)
		if err != nil {
			return nil, err
		}
		n := int(f.Type.Aggregate) * max(f.Type.ArrayLen, 1)
		if f.HasDerivs {
			n *= 3
		}
		fields[i] = emit.Field{Name: f.Name, Elem: emit.Type{Kind: kind, Wide: !f.Uniform}, Count: n}
	}
	return fields, nil
}

// NewGlobals creates the shader-globals block for tab on b.
func NewGlobals(b emit.Builder, tab *ir.GlobalTable) (emit.Pointer, error) {
	fields, err := GlobalFields(tab)
	if err != nil {
		return nil, err
	}
	return b.Struct("shaderglobals", fields), nil
}
