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

// Options configures a Generator. They must match the options the layer
// was analyzed with.
type Options struct {
	// Globals is the shader-globals layout. Nil means ir.DefaultGlobals.
	Globals *ir.GlobalTable

	DebugUninit  bool
	LazyUserdata bool
}

// Generator lowers one layer. It is not safe for concurrent use.
type Generator struct {
	l     *ir.Layer
	info  *analysis.Info
	b     emit.Builder
	opts  Options
	group *Group

	globals emit.Pointer
	allocs  map[string]*Location
	pred    map[ir.SymbolHandle]bool

	loops *LoopStack

	// op is the instruction being lowered, or -1.
	op int

	lazyDone map[ir.SymbolHandle]bool

	ctx context.Context
	tr  tlog.Span
}

// NewGenerator binds a layer, its classification, a builder, the
// shader-globals block and the group data layout. The group must be bound
// to b.
func NewGenerator(l *ir.Layer, info *analysis.Info, b emit.Builder, globals emit.Pointer, group *Group, opts Options) *Generator {
	if opts.Globals == nil {
		opts.Globals = ir.DefaultGlobals
	}

	g := &Generator{
		l:       l,
		info:    info,
		b:       b,
		opts:    opts,
		group:   group,
		globals: globals,
		allocs:  make(map[string]*Location),
		pred:    predicateTemps(l),
		loops:   NewLoopStack(b),
		op:      -1,

		lazyDone: make(map[ir.SymbolHandle]bool),

		ctx: context.Background(),
	}

	return g
}

// Layer returns the bound layer.
func (g *Generator) Layer() *ir.Layer { return g.l }

// Loops returns the loop mask stack.
func (g *Generator) Loops() *LoopStack { return g.loops }

// SetOp sets the instruction whose stores are being emitted. Stores are
// masked when the analyzer flagged that instruction.
func (g *Generator) SetOp(op int) { g.op = op }

func (g *Generator) masked() bool { return g.info.RequiresMasking(g.op) }

// isUniform returns the storage shape of h. Globals have the fixed shape
// of their table entry.
func (g *Generator) isUniform(h ir.SymbolHandle) bool {
	h = g.l.Dealias(h)
	s := g.l.Symbol(h)
	switch s.SymType {
	case ir.SymGlobal:
		return g.opts.Globals.IsUniform(s.Name)
	case ir.SymConst:
		return true
	default:
		return g.info.IsUniform(h)
	}
}

// predicateTemps finds integer temporaries written only by comparisons and
// logical operators. They get native predicate storage.
func predicateTemps(l *ir.Layer) map[ir.SymbolHandle]bool {
	pred := make(map[ir.SymbolHandle]bool)
	for i := range l.Ops {
		in := &l.Ops[i]
		for _, a := range in.Args {
			if !a.Write || !l.Valid(a.Sym) {
				continue
			}
			h := l.Dealias(a.Sym)
			s := l.Symbol(h)
			if s.SymType != ir.SymTemp || !s.Type.IsInt() {
				continue
			}
			if prev, seen := pred[h]; seen && !prev {
				continue
			}
			pred[h] = isPredicateOp(in.Op)
		}
	}
	for i := range l.Symbols {
		s := &l.Symbols[i]
		if s.Alias != nil {
			// shares storage with its target
			delete(pred, ir.SymbolHandle(i))
		}
	}
	return pred
}

func isPredicateOp(op ir.Opcode) bool {
	switch op {
	case ir.OpEq, ir.OpNeq, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe, ir.OpAnd, ir.OpOr:
		return true
	}
	return false
}

// fail converts builder errors into layer errors at the current op.
// ErrBreak passes through untouched.
func (g *Generator) fail(err error) error {
	if err == nil || errors.Is(err, emit.ErrBreak) {
		return err
	}

	var e *ir.Error
	if errors.As(err, &e) {
		if e.Layer == "" {
			return e.At(g.l.Name, g.op)
		}
		return err
	}

	kind := ir.ErrInternalError
	if errors.Is(err, emit.ErrShape) {
		kind = ir.ErrInconsistentShape
	}
	return ir.Wrap(kind, err).At(g.l.Name, g.op)
}

// shapef reports an analyzer/value-access contract violation.
func (g *Generator) shapef(format string, args ...any) error {
	return ir.Errorf(ir.ErrInconsistentShape, format, args...).At(g.l.Name, g.op)
}

func (g *Generator) sym(h ir.SymbolHandle) *ir.Symbol { return g.l.Symbol(g.l.Dealias(h)) }
