// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package wideshade compiles shading-language layers to wide (SIMD batch)
// code.
//
// A layer is analyzed for divergence, then lowered by the wide generator
// onto an emit.Builder. The reference builder, emit.Machine, executes the
// lowering eagerly over a batch of lanes, so compiling and running a layer
// is a single walk.
//
// Example usage:
//
//	l, err := layerfile.Load("count.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	prog, err := wideshade.Compile(ctx, l, wideshade.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	batch, err := prog.Run(ctx, wideshade.Input{Global: "u", Value: lanes})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := batch.Output(0, "out", 0)
//
// Lower-level access is available through the ir, analysis, wide and emit
// packages.
package wideshade

import (
	"context"

	"github.com/nikandfor/errors"
	"github.com/nikandfor/tlog"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/wideshade/analysis"
	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
	"github.com/gogpu/wideshade/wide"
)

// CompileOptions configures compilation.
type CompileOptions struct {
	// Lanes is the batch width. Zero means emit.DefaultLanes().
	Lanes int

	// Validate enables structural validation before analysis.
	Validate bool

	// DebugUninit initializes every local so reads of unset storage are
	// deterministic.
	DebugUninit bool

	// LazyUserdata defers initialization of interpolated parameters to
	// their first useparam.
	LazyUserdata bool

	// MaxIterations bounds every loop. Zero means no bound.
	MaxIterations int

	// Globals is the shader-globals layout. Nil means ir.DefaultGlobals.
	Globals *ir.GlobalTable
}

// DefaultOptions returns sensible default options.
func DefaultOptions() CompileOptions {
	return CompileOptions{
		Validate:      true,
		MaxIterations: 1 << 20,
	}
}

func (o CompileOptions) analysis() analysis.Options {
	return analysis.Options{
		Globals:      o.Globals,
		DebugUninit:  o.DebugUninit,
		LazyUserdata: o.LazyUserdata,
	}
}

func (o CompileOptions) wide() wide.Options {
	return wide.Options{
		Globals:      o.Globals,
		DebugUninit:  o.DebugUninit,
		LazyUserdata: o.LazyUserdata,
	}
}

func (o CompileOptions) globals() *ir.GlobalTable {
	if o.Globals == nil {
		return ir.DefaultGlobals
	}
	return o.Globals
}

// Validate checks a layer for structural correctness.
//
// Returns a slice of validation errors. If the slice is empty, validation passed.
func Validate(l *ir.Layer) ([]ir.ValidationError, error) {
	return ir.Validate(l)
}

// Analyze classifies the symbols and ops of a layer.
func Analyze(ctx context.Context, l *ir.Layer, opts CompileOptions) (*analysis.Info, error) {
	if opts.Validate {
		if err := validate(l); err != nil {
			return nil, err
		}
	}

	return analysis.New(opts.analysis()).Analyze(ctx, l)
}

func validate(l *ir.Layer) error {
	errs, err := ir.Validate(l)
	if err != nil {
		return ir.Wrap(ir.ErrInvalidLayer, err)
	}
	if len(errs) == 0 {
		return nil
	}

	// coverage errors keep their kind
	for _, ve := range errs {
		var e *ir.Error
		if errors.As(ve, &e) && e.IsCoverage() {
			return e.At(l.Name, ve.Op)
		}
	}

	return ir.Wrap(ir.ErrInvalidLayer, errs[0]).At(l.Name, errs[0].Op)
}

// Connection feeds an output parameter of an earlier layer into a
// connected parameter of a later one.
type Connection struct {
	FromLayer int
	From      string
	ToLayer   int
	To        string
}

type link struct {
	fromLayer, toLayer int
	from, to           ir.SymbolHandle
}

// Program is a compiled shader group. Every run gets its own Batch, so
// runs may proceed concurrently once Register and Attributes are set up.
type Program struct {
	Name   string
	Layers []*ir.Layer
	Infos  []*analysis.Info

	// Attributes answer getattribute lookups of every batch.
	Attributes Attributes

	opts  CompileOptions
	links []link
	funcs map[string]emit.Func
}

// Compile compiles a single layer.
func Compile(ctx context.Context, l *ir.Layer, opts CompileOptions) (*Program, error) {
	if l == nil {
		return nil, ir.NewError(ir.ErrInvalidLayer, "layer is nil")
	}

	return CompileGroup(ctx, l.Name, []*ir.Layer{l}, nil, opts)
}

// CompileGroup validates and analyzes the layers of a group concurrently
// and checks the connections between them. It sets each layer's Index to
// its position in the group.
//
// The compilation pipeline is:
//  1. Validate every layer (if enabled)
//  2. Analyze every layer
//  3. Lay out the group data and shader-globals blocks
//  4. Resolve connections
func CompileGroup(ctx context.Context, name string, layers []*ir.Layer, conns []Connection, opts CompileOptions) (p *Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile group", "group", name, "layers", len(layers))
	defer tr.Finish("err", &err)

	if len(layers) == 0 {
		return nil, ir.NewError(ir.ErrInvalidLayer, "empty group")
	}

	for i, l := range layers {
		if l == nil {
			return nil, ir.Errorf(ir.ErrInvalidLayer, "layer %d is nil", i)
		}
		l.Index = i
	}

	if opts.Validate {
		var g errgroup.Group

		for _, l := range layers {
			g.Go(func() error { return validate(l) })
		}

		if err = g.Wait(); err != nil {
			return nil, err
		}
	}

	res, err := analysis.New(opts.analysis()).AnalyzeGroup(ctx, layers, 0)
	if err != nil {
		return nil, err
	}

	p = &Program{
		Name:   name,
		Layers: layers,
		Infos:  make([]*analysis.Info, len(layers)),
		opts:   opts,
		funcs:  make(map[string]emit.Func),
	}

	for i, r := range res {
		p.Infos[i] = r.Info
	}

	if _, err = wide.NewGroup(name, layers, p.Infos); err != nil {
		return nil, err
	}

	if _, err = wide.GlobalFields(opts.globals()); err != nil {
		return nil, err
	}

	for _, c := range conns {
		lk, err := p.connect(c)
		if err != nil {
			return nil, err
		}
		p.links = append(p.links, lk)
	}

	tr.V("compile").Printw("compiled", "group", name, "connections", len(p.links))

	return p, nil
}

func (p *Program) connect(c Connection) (lk link, err error) {
	if c.FromLayer < 0 || c.ToLayer >= len(p.Layers) || c.FromLayer >= c.ToLayer {
		return lk, ir.Errorf(ir.ErrInvalidLayer, "connection from layer %d to layer %d", c.FromLayer, c.ToLayer)
	}

	up, down := p.Layers[c.FromLayer], p.Layers[c.ToLayer]

	from, ok := up.Lookup(c.From)
	if !ok || up.Symbol(from).SymType != ir.SymOutputParam {
		return lk, ir.Errorf(ir.ErrUnresolvedSymbol, "no output parameter %s", c.From).At(up.Name, -1)
	}

	to, ok := down.Lookup(c.To)
	if !ok || down.Symbol(to).SymType != ir.SymParam {
		return lk, ir.Errorf(ir.ErrUnresolvedSymbol, "no parameter %s", c.To).At(down.Name, -1)
	}

	if !down.Symbol(to).Connected {
		return lk, ir.Errorf(ir.ErrInvalidLayer, "parameter %s is not marked connected", c.To).At(down.Name, -1)
	}

	ft, tt := up.Symbol(from).Type, down.Symbol(to).Type
	if ft.Base != tt.Base || ft.Aggregate != tt.Aggregate || ft.Closure != tt.Closure || ft.NumElements() != tt.NumElements() {
		return lk, ir.Errorf(ir.ErrInconsistentShape, "connection %s.%s (%v) to %s.%s (%v)", up.Name, c.From, ft, down.Name, c.To, tt)
	}

	return link{fromLayer: c.FromLayer, toLayer: c.ToLayer, from: from, to: to}, nil
}

// Register makes a host function callable from every batch.
func (p *Program) Register(name string, fn emit.Func) {
	p.funcs[name] = fn
}

// Input sets one component of a shader global for every lane.
type Input struct {
	Global    string
	Component int
	Value     emit.Value
}

// Run executes the program on a full batch.
func (p *Program) Run(ctx context.Context, inputs ...Input) (*Batch, error) {
	b, err := p.NewBatch()
	if err != nil {
		return nil, err
	}

	for _, in := range inputs {
		if err := b.SetGlobal(in.Global, in.Component, in.Value); err != nil {
			return nil, err
		}
	}

	if err := b.Run(ctx); err != nil {
		return nil, err
	}

	return b, nil
}
