package analysis

import (
	"context"

	"github.com/nikandfor/errors"
	"github.com/nikandfor/tlog"

	"github.com/gogpu/wideshade/ir"
)

// Options configures an Analyzer.
type Options struct {
	// Globals is the shader-globals layout. Nil means ir.DefaultGlobals.
	Globals *ir.GlobalTable

	// DebugUninit walks the init ops of every local and temporary, not just
	// the closure and string ones.
	DebugUninit bool

	// LazyUserdata skips init ops of parameters interpolated from geometry,
	// which are then initialized on first use.
	LazyUserdata bool
}

// Analyzer computes Info for layers. It is safe for concurrent use.
type Analyzer struct {
	opts Options
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	if opts.Globals == nil {
		opts.Globals = ir.DefaultGlobals
	}
	return &Analyzer{opts: opts}
}

// Analyze classifies l with default options.
func Analyze(ctx context.Context, l *ir.Layer) (*Info, error) {
	return New(Options{}).Analyze(ctx, l)
}

type write struct {
	depth int
	op    int
}

// usage tracks the last write of a symbol and the writes not yet known to
// need masking.
type usage struct {
	depth   int
	mask    int
	pending []write
}

type walker struct {
	l    *ir.Layer
	opts *Options
	tr   tlog.Span

	uniform map[ir.SymbolHandle]bool
	edges   map[ir.SymbolHandle][]ir.SymbolHandle
	usage   map[ir.SymbolHandle]*usage
	masked  []bool

	dependsOn []ir.SymbolHandle
	loopConds []ir.SymbolHandle
	fetched   []ir.SymbolHandle

	nextMask int
}

// Analyze classifies the symbols and instructions of l.
func (a *Analyzer) Analyze(ctx context.Context, l *ir.Layer) (info *Info, err error) {
	if l == nil {
		return nil, errors.New("nil layer")
	}

	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "analyze layer", "layer", l.Name)
	defer tr.Finish("err", &err)

	w := &walker{
		l:       l,
		opts:    &a.opts,
		tr:      tr,
		uniform: make(map[ir.SymbolHandle]bool),
		edges:   make(map[ir.SymbolHandle][]ir.SymbolHandle),
		usage:   make(map[ir.SymbolHandle]*usage),
		masked:  make([]bool, len(l.Ops)),
	}

	mainMask := w.mint()

	for _, h := range w.initOrder() {
		s := l.Symbol(h)
		if err = w.walk(s.InitBegin, s.InitEnd, 0, 0, mainMask, mainMask); err != nil {
			return nil, errors.Wrap(err, "init ops of %v", s.Name)
		}
	}

	if err = w.walk(l.MainBegin, l.MainEnd, 0, 0, mainMask, mainMask); err != nil {
		return nil, errors.Wrap(err, "main code")
	}

	// Outputs may be written under a mask and never read inside the layer.
	for _, h := range l.Params() {
		s := l.Symbol(h)
		if s.SymType == ir.SymOutputParam && s.Type.Struct == "" && NeedsInit(s) {
			w.ensureMasked(l.Dealias(h), 0, mainMask)
		}
	}

	w.propagate()

	info = &Info{
		Layer:   l,
		globals: a.opts.Globals,
		uniform: w.uniform,
		masked:  w.masked,
	}

	if tr.If("analysis_dump") {
		for _, h := range info.Referenced() {
			tr.Printw("symbol", "name", l.Symbol(h).Name, "uniform", info.IsUniform(h))
		}
		tr.Printw("masked ops", "ops", info.MaskedOps())
	}

	return info, nil
}

// initOrder returns the symbols whose init ops run before the main code:
// closure and string locals first, then parameters that are read or
// connected.
func (w *walker) initOrder() []ir.SymbolHandle {
	var out []ir.SymbolHandle

	for i := range w.l.Symbols {
		s := &w.l.Symbols[i]
		if s.Type.IsStructure() || !s.HasInitOps() {
			continue
		}
		if s.SymType != ir.SymLocal && s.SymType != ir.SymTemp {
			continue
		}
		if s.Type.IsClosureBased() || s.Type.IsStringBased() || w.opts.DebugUninit {
			out = append(out, ir.SymbolHandle(i))
		}
	}

	for _, h := range w.l.Params() {
		s := w.l.Symbol(h)
		if s.Type.IsStructure() || !s.HasInitOps() || !NeedsInit(s) {
			continue
		}
		if w.opts.LazyUserdata && IsLazyUserdata(s) {
			continue
		}
		// connected params take their value from upstream
		if s.Connected {
			continue
		}
		out = append(out, h)
	}

	return out
}

// NeedsInit reports parameters whose value is observed: read, connected
// or consumed by the renderer.
func NeedsInit(s *ir.Symbol) bool {
	return s.EverRead || s.Connected || s.ConnectedDown || s.RendererOutput
}

// IsLazyUserdata reports parameters that may be interpolated from geometry
// and are not part of a connection.
func IsLazyUserdata(s *ir.Symbol) bool {
	return s.SymType == ir.SymParam && !s.Lockgeom && !s.Type.IsClosure() &&
		!s.Connected && !s.ConnectedDown
}

func (w *walker) mint() int {
	m := w.nextMask
	w.nextMask++
	return m
}

// walk visits [begin, end). Reads happen at (depth, mask) and writes are
// recorded at (writeDepth, writeMask); the two differ only for loop
// conditions, which are re-evaluated under the body mask.
func (w *walker) walk(begin, end, depth, writeDepth, mask, writeMask int) error {
	for i := begin; i < end; {
		in := &w.l.Ops[i]

		var reads, writes []ir.SymbolHandle
		for k, a := range in.Args {
			if !w.l.Valid(a.Sym) {
				return ir.Errorf(ir.ErrInvalidLayer, "argument %d refers to symbol %d", k, a.Sym).At(w.l.Name, i)
			}
			h := w.l.Dealias(a.Sym)
			if a.Write {
				writes = append(writes, h)
			}
			if a.Read {
				reads = append(reads, h)
			}
			w.uniform[h] = true
		}

		if w.tr.If("analysis_walk") {
			w.tr.Printw("op", "i", i, "op", in.Op, "depth", depth, "mask", mask, "wdepth", writeDepth, "wmask", writeMask)
		}

		for _, r := range reads {
			for _, wr := range writes {
				if wr != r {
					w.edge(r, wr)
				}
			}
			w.ensureMasked(r, depth, mask)
		}

		for _, wr := range writes {
			u := w.usageOf(wr)
			u.depth = writeDepth
			u.mask = writeMask
			u.pending = append(u.pending, write{writeDepth, i})
		}

		for _, c := range w.dependsOn {
			for _, wr := range writes {
				if wr != c {
					w.edge(c, wr)
				}
			}
		}

		r, err := ir.RegionOf(w.l, i)
		if err != nil {
			return err
		}
		if r != nil {
			if far := in.FarthestJump(); far <= i || far > end {
				return ir.Errorf(ir.ErrInvalidLayer, "region [%d, %d) escapes enclosing range [%d, %d)", i+1, far, begin, end).At(w.l.Name, i)
			}
			if err := w.region(r, depth, writeDepth, mask, writeMask); err != nil {
				return err
			}
		}

		switch in.Op {
		case ir.OpBreak:
			if err := w.breakLoop(i, writeDepth, writeMask); err != nil {
				return err
			}
		case ir.OpGetAttribute:
			w.fetched = append(w.fetched, writes...)
		}

		if r != nil {
			i = in.FarthestJump()
		} else {
			i++
		}
	}

	return nil
}

func (w *walker) region(r ir.Region, depth, writeDepth, mask, writeMask int) error {
	switch r := r.(type) {
	case ir.IfRegion:
		cond := w.l.Dealias(r.Cond)
		w.dependsOn = append(w.dependsOn, cond)

		thenMask := w.mint()
		if err := w.walk(r.Then.Begin, r.Then.End, depth+1, depth+1, thenMask, thenMask); err != nil {
			return err
		}
		elseMask := w.mint()
		if err := w.walk(r.Else.Begin, r.Else.End, depth+1, depth+1, elseMask, elseMask); err != nil {
			return err
		}

		w.dependsOn = w.dependsOn[:len(w.dependsOn)-1]

	case ir.LoopRegion:
		cond := w.l.Dealias(r.Cond)

		// the initializer runs once, unconditionally
		if err := w.walk(r.Init.Begin, r.Init.End, depth, depth, mask, mask); err != nil {
			return err
		}

		inner := depth + 1
		bodyMask := w.mint()
		w.dependsOn = append(w.dependsOn, cond)
		w.loopConds = append(w.loopConds, cond)

		if err := w.walk(r.Body.Begin, r.Body.End, inner, inner, bodyMask, bodyMask); err != nil {
			return err
		}
		if err := w.walk(r.Step.Begin, r.Step.End, inner, inner, bodyMask, bodyMask); err != nil {
			return err
		}

		// The condition is walked last so that writes feeding it from the
		// body are already recorded.
		if err := w.walk(r.Test.Begin, r.Test.End, depth, inner, mask, bodyMask); err != nil {
			return err
		}

		// Lanes leave the loop when the condition turns false, so every
		// write to it must be masked.
		w.ensureMasked(cond, depth, mask)

		w.dependsOn = w.dependsOn[:len(w.dependsOn)-1]
		w.loopConds = w.loopConds[:len(w.loopConds)-1]

	case ir.CallRegion:
		return w.walk(r.Body.Begin, r.Body.End, depth, writeDepth, mask, writeMask)
	}

	return nil
}

// breakLoop records the break at op as a write to the innermost loop
// condition, and makes that condition depend on every condition entered
// since the loop began.
func (w *walker) breakLoop(op, writeDepth, writeMask int) error {
	if len(w.loopConds) == 0 {
		return ir.NewError(ir.ErrInvalidLayer, "break outside of a loop").At(w.l.Name, op)
	}
	cond := w.loopConds[len(w.loopConds)-1]

	at := -1
	for k := len(w.dependsOn) - 1; k >= 0; k-- {
		if w.dependsOn[k] == cond {
			at = k
			break
		}
	}
	if at < 0 {
		return ir.Errorf(ir.ErrInternalError, "loop condition %v missing from dependency stack", w.l.Symbol(cond).Name).At(w.l.Name, op)
	}
	for _, c := range w.dependsOn[at+1:] {
		w.edge(c, cond)
	}

	u := w.usageOf(cond)
	if writeDepth > u.depth {
		u.depth = writeDepth
		u.mask = writeMask
	}
	u.pending = append(u.pending, write{writeDepth, op})

	return nil
}

// ensureMasked handles a read of h at (depth, mask). Writes recorded
// deeper than the read under another mask are flagged, and the record is
// collapsed to the read's depth.
func (w *walker) ensureMasked(h ir.SymbolHandle, depth, mask int) {
	u, ok := w.usage[h]
	if !ok || u.depth <= depth || u.mask == mask {
		return
	}

	if w.tr.If("analysis_walk") {
		w.tr.Printw("masking writes", "symbol", w.l.Symbol(h).Name, "depth", depth)
	}

	kept := u.pending[:0]
	for _, wr := range u.pending {
		if wr.depth > depth {
			w.masked[wr.op] = true
		} else {
			kept = append(kept, wr)
		}
	}
	u.pending = kept
	u.depth = depth
}

func (w *walker) usageOf(h ir.SymbolHandle) *usage {
	u, ok := w.usage[h]
	if !ok {
		u = &usage{}
		w.usage[h] = u
	}
	return u
}

func (w *walker) edge(from, to ir.SymbolHandle) {
	w.edges[from] = append(w.edges[from], to)
}

// propagate seeds the varying set and closes it over the dependency edges.
func (w *walker) propagate() {
	var seeds []ir.SymbolHandle

	for i := range w.l.Symbols {
		h := ir.SymbolHandle(i)
		if !w.referenced(h) {
			continue
		}
		s := w.l.Symbol(h)
		switch s.SymType {
		case ir.SymGlobal:
			if !w.opts.Globals.IsUniform(s.Name) {
				seeds = append(seeds, h)
			}
		case ir.SymParam:
			seeds = append(seeds, h)
		}
	}
	seeds = append(seeds, w.fetched...)

	for _, h := range seeds {
		w.markVarying(h)
	}

	// Unreferenced outputs are reported varying by Info.IsUniform.
	for _, h := range w.l.Params() {
		if w.l.Symbol(h).SymType != ir.SymOutputParam {
			continue
		}
		if h = w.l.Dealias(h); w.referenced(h) {
			w.markVarying(h)
		}
	}
}

func (w *walker) referenced(h ir.SymbolHandle) bool {
	_, ok := w.uniform[h]
	return ok
}

// markVarying marks h and everything reachable from it varying. Symbols
// already varying are not expanded again, so cycles terminate.
func (w *walker) markVarying(h ir.SymbolHandle) {
	stack := []ir.SymbolHandle{h}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if uni, ok := w.uniform[s]; ok && !uni {
			continue
		}
		w.uniform[s] = false
		stack = append(stack, w.edges[s]...)
	}
}
