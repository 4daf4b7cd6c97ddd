package analysis

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/wideshade/ir"
)

// branchLayer builds
//
//	0: neq    cond <- u, 0
//	1: if     cond (else 3, end 4)
//	2: add    result <- a, b
//	3: assign result <- c
//	4: assign out <- result
type branchLayer struct {
	l *ir.Layer

	u, cond, a, b, c, result, out ir.SymbolHandle
	zero                          ir.SymbolHandle
}

func newBranchLayer() branchLayer {
	var t branchLayer
	b := ir.NewLayerBuilder("branch")
	t.u = b.Global("u")
	t.cond = b.Temp("cond", ir.Int)
	t.a = b.Local("a", ir.Float)
	t.b = b.Local("b", ir.Float)
	t.c = b.Local("c", ir.Float)
	t.result = b.Local("result", ir.Float)
	t.out = b.Output("out", ir.Float)
	t.zero = b.ConstFloat(0)

	b.BeginMain()
	b.Op(ir.OpNeq, t.cond, t.u, t.zero)
	i := b.BeginIf(t.cond)
	b.Op(ir.OpAdd, t.result, t.a, t.b)
	b.Else(i)
	b.Op(ir.OpAssign, t.result, t.c)
	b.EndIf(i)
	b.Op(ir.OpAssign, t.out, t.result)
	t.l = b.Layer()
	return t
}

func TestAnalyze_ControlDependency(t *testing.T) {
	bl := newBranchLayer()
	info, err := Analyze(context.Background(), bl.l)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	wantVarying := []ir.SymbolHandle{bl.u, bl.cond, bl.result, bl.out}
	if diff := cmp.Diff(wantVarying, info.Varying()); diff != "" {
		t.Errorf("Varying() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 3}, info.MaskedOps()); diff != "" {
		t.Errorf("MaskedOps() mismatch (-want +got):\n%s", diff)
	}
	for _, h := range []ir.SymbolHandle{bl.a, bl.b, bl.c, bl.zero} {
		if !info.IsUniform(h) {
			t.Errorf("%s should be uniform", bl.l.Symbol(h).Name)
		}
	}
}

func TestAnalyze_UniformBranchNotMasked(t *testing.T) {
	b := ir.NewLayerBuilder("uniform")
	rt := b.Global("raytype")
	cond := b.Temp("cond", ir.Int)
	x := b.Local("x", ir.Float)
	y := b.Local("y", ir.Float)
	one := b.ConstFloat(1)
	zero := b.ConstInt(0)

	b.BeginMain()
	b.Op(ir.OpNeq, cond, rt, zero)
	i := b.BeginIf(cond)
	b.Op(ir.OpAssign, x, one)
	b.EndIf(i)
	b.Op(ir.OpAssign, y, x)
	l := b.Layer()

	info, err := Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Varying()) != 0 {
		t.Errorf("Varying() = %v, want none", info.Varying())
	}
	// Masking is decided structurally; the generator only applies it to
	// varying destinations.
	if diff := cmp.Diff([]int{2}, info.MaskedOps()); diff != "" {
		t.Errorf("MaskedOps() mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyze_GlobalSeeding(t *testing.T) {
	b := ir.NewLayerBuilder("globals")
	var varying, uniform []ir.SymbolHandle
	for _, f := range ir.DefaultGlobals.Fields {
		h := b.Global(f.Name)
		if f.Uniform {
			uniform = append(uniform, h)
		} else {
			varying = append(varying, h)
		}
	}
	unknown := b.Global("mystery")
	sink := b.Local("sink", ir.Float)

	b.BeginMain()
	for i := range ir.DefaultGlobals.Fields {
		b.Op(ir.OpUseParam, ir.SymbolHandle(i))
	}
	b.Op(ir.OpAssign, sink, unknown)
	l := b.Layer()

	info, err := Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range varying {
		if info.IsUniform(h) {
			t.Errorf("global %s should be varying", l.Symbol(h).Name)
		}
	}
	for _, h := range uniform {
		if !info.IsUniform(h) {
			t.Errorf("global %s should be uniform", l.Symbol(h).Name)
		}
	}
	if info.IsUniform(unknown) || info.IsUniform(sink) {
		t.Error("unknown globals and their dependents should be varying")
	}
}

func TestAnalyze_CustomGlobals(t *testing.T) {
	b := ir.NewLayerBuilder("custom")
	p := b.Global("P")
	x := b.Local("x", ir.Point)
	b.Op(ir.OpAssign, x, p)
	l := b.Layer()

	tab := ir.NewGlobalTable([]ir.GlobalField{{Name: "P", Type: ir.Point, Uniform: true}})
	info, err := New(Options{Globals: tab}).Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsUniform(p) || !info.IsUniform(x) {
		t.Error("P declared uniform by the table should stay uniform")
	}
}

func TestAnalyze_UnreferencedGlobals(t *testing.T) {
	b := ir.NewLayerBuilder("unreferenced")
	p := b.Global("P")
	raytype := b.Global("raytype")
	x := b.Local("x", ir.Float)
	l := b.Layer()

	info, err := Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Referenced()) != 0 {
		t.Fatalf("referenced = %v, want none", info.Referenced())
	}

	for _, tc := range []struct {
		h       ir.SymbolHandle
		uniform bool
	}{
		{p, ir.DefaultGlobals.IsUniform("P")},
		{raytype, ir.DefaultGlobals.IsUniform("raytype")},
		{x, true},
	} {
		name := l.Symbol(tc.h).Name
		if got := info.IsUniform(tc.h); got != tc.uniform {
			t.Errorf("IsUniform(%s) = %v, want %v", name, got, tc.uniform)
		}
		if info.IsVarying(tc.h) == info.IsUniform(tc.h) {
			t.Errorf("IsVarying(%s) agrees with IsUniform", name)
		}
	}
	if info.IsUniform(p) {
		t.Error("unreferenced P should keep its varying table shape")
	}

	tab := ir.NewGlobalTable([]ir.GlobalField{{Name: "P", Type: ir.Point, Uniform: true}})
	info, err = New(Options{Globals: tab}).Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsUniform(p) {
		t.Error("P declared uniform by the table should stay uniform")
	}
	if info.IsUniform(raytype) {
		t.Error("globals missing from the table are varying")
	}
}

func TestAnalyze_OutputForcing(t *testing.T) {
	b := ir.NewLayerBuilder("outputs")
	written := b.Output("written", ir.Float)
	untouched := b.Output("untouched", ir.Color)
	x := b.Local("x", ir.Float)
	one := b.ConstFloat(1)
	b.Op(ir.OpAssign, written, one)
	b.Op(ir.OpAssign, x, written)
	l := b.Layer()

	info, err := Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	if info.IsUniform(written) || info.IsUniform(untouched) {
		t.Error("output parameters must be varying")
	}
	if info.IsUniform(x) {
		t.Error("x reads a varying output and must be varying")
	}
	if !info.IsUniform(one) {
		t.Error("constant should stay uniform")
	}
}

func TestAnalyze_OutputWrittenUnderMask(t *testing.T) {
	b := ir.NewLayerBuilder("maskedout")
	n := b.Global("N")
	cond := b.Temp("cond", ir.Int)
	out := b.Output("out", ir.Float)
	one := b.ConstFloat(1)

	b.Op(ir.OpAssign, cond, n)
	i := b.BeginIf(cond)
	b.Op(ir.OpAssign, out, one)
	b.EndIf(i)
	l := b.Layer()

	info, err := Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	if !info.RequiresMasking(2) {
		t.Error("write to an output inside a branch must be masked")
	}
	if info.RequiresMasking(0) || info.RequiresMasking(-1) || info.RequiresMasking(99) {
		t.Error("unexpected masking")
	}
}

// loopLayer builds a while loop over i whose body breaks when brk is set.
//
//	0: while  cond (test 1, body 2, step 5, end 6)
//	1: lt     cond <- i, n
//	2: neq    brk <- src, 0
//	3: if     brk (else 5, end 5)
//	4: break
//	5: add    i <- i, one
func loopLayer(src ir.SymbolHandle, b *ir.LayerBuilder) (l *ir.Layer, cond, i ir.SymbolHandle) {
	cond = b.Temp("cond", ir.Int)
	i = b.Local("i", ir.Int)
	brk := b.Temp("brk", ir.Int)
	n := b.ConstInt(10)
	one := b.ConstInt(1)
	zero := b.ConstInt(0)

	b.BeginMain()
	w := b.BeginLoop(ir.OpWhile, cond)
	b.LoopTest(w)
	b.Op(ir.OpLt, cond, i, n)
	b.LoopBody(w)
	b.Op(ir.OpNeq, brk, src, zero)
	f := b.BeginIf(brk)
	b.Break()
	b.EndIf(f)
	b.LoopStep(w)
	b.Op(ir.OpAdd, i, i, one)
	b.EndLoop(w)
	return b.Layer(), cond, i
}

func TestAnalyze_BreakPropagatesToLoopCondition(t *testing.T) {
	b := ir.NewLayerBuilder("break")
	u := b.Global("u")
	l, cond, i := loopLayer(u, b)

	info, err := Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	if info.IsUniform(cond) {
		t.Error("loop condition should be varying after a divergent break")
	}
	if info.IsUniform(i) {
		t.Error("the step runs under the loop condition and must be varying")
	}
	if !info.RequiresMasking(5) {
		t.Error("step write read by the condition must be masked")
	}
	if !info.RequiresMasking(4) {
		t.Error("break must be masked")
	}
}

func TestAnalyze_UniformLoop(t *testing.T) {
	b := ir.NewLayerBuilder("uniformloop")
	rt := b.Global("raytype")
	l, cond, _ := loopLayer(rt, b)

	info, err := Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Varying()) != 0 {
		t.Errorf("Varying() = %v, want none", info.Varying())
	}
	if !info.IsUniform(cond) {
		t.Error("loop condition should be uniform")
	}
}

func TestAnalyze_GetAttributeForcesVarying(t *testing.T) {
	b := ir.NewLayerBuilder("attr")
	res := b.Temp("found", ir.Int)
	name := b.ConstString("object:name")
	dst := b.Local("dst", ir.String)
	copyOf := b.Local("copy", ir.String)
	b.Op(ir.OpGetAttribute, res, name, dst)
	l := b.Layer()
	l.Ops = append(l.Ops, ir.Instruction{
		Op:    ir.OpAssign,
		Args:  []ir.Arg{{Sym: copyOf, Write: true}, {Sym: dst, Read: true}},
		Jumps: ir.NoJumps,
	})
	l.MainEnd = len(l.Ops)

	info, err := Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]ir.SymbolHandle{res, dst, copyOf}, info.Varying()); diff != "" {
		t.Errorf("Varying() mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyze_Determinism(t *testing.T) {
	b := ir.NewLayerBuilder("det")
	u := b.Global("u")
	l, _, _ := loopLayer(u, b)

	first, err := Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		again, err := Analyze(context.Background(), l)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(first.uniform, again.uniform); diff != "" {
			t.Fatalf("uniform table differs (-first +again):\n%s", diff)
		}
		if diff := cmp.Diff(first.masked, again.masked); diff != "" {
			t.Fatalf("masking table differs (-first +again):\n%s", diff)
		}
	}
}

func TestAnalyze_ParamsConservative(t *testing.T) {
	b := ir.NewLayerBuilder("params")
	k := b.Param("k", ir.Float, &ir.ConstValue{Floats: []float32{1}})
	x := b.Local("x", ir.Float)
	y := b.Local("y", ir.Float)
	one := b.ConstFloat(1)
	b.Op(ir.OpMul, x, k, one)
	b.Op(ir.OpAssign, y, one)
	l := b.Layer()

	info, err := Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	if info.IsUniform(k) || info.IsUniform(x) {
		t.Error("referenced params and their dependents are varying")
	}
	if !info.IsUniform(y) {
		t.Error("y does not depend on k")
	}
}

func TestAnalyze_CallBodyKeepsMask(t *testing.T) {
	b := ir.NewLayerBuilder("call")
	fn := b.ConstString("helper")
	x := b.Local("x", ir.Float)
	out := b.Output("out", ir.Float)
	one := b.ConstFloat(1)
	c := b.BeginCall(fn)
	b.Op(ir.OpAssign, x, one)
	b.EndCall(c)
	b.Op(ir.OpAssign, out, x)
	l := b.Layer()

	info, err := Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.MaskedOps()) != 0 {
		t.Errorf("MaskedOps() = %v, inlined bodies share the caller's mask", info.MaskedOps())
	}
}

func TestAnalyze_InitOrder(t *testing.T) {
	b := ir.NewLayerBuilder("init")
	p := b.Global("P")
	s := b.Local("s", ir.String)
	f := b.Local("f", ir.Float)
	k := b.Param("k", ir.Float, nil)
	lazy := b.Param("lazy", ir.Float, nil)
	b.Get(lazy).Lockgeom = false
	hello := b.ConstString("hello")

	b.BeginInit(s)
	b.Op(ir.OpAssign, s, hello)
	b.EndInit(s)
	b.BeginInit(f)
	b.Op(ir.OpAssign, f, p)
	b.EndInit(f)
	b.BeginInit(k)
	b.Op(ir.OpAssign, k, p)
	b.EndInit(k)
	b.BeginInit(lazy)
	b.Op(ir.OpAssign, lazy, p)
	b.EndInit(lazy)
	b.BeginMain()
	b.Op(ir.OpNop)
	l := b.Layer()

	info, err := Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	want := []ir.SymbolHandle{p, s, k, lazy, hello}
	if diff := cmp.Diff(want, info.Referenced()); diff != "" {
		t.Errorf("Referenced() mismatch (-want +got):\n%s", diff)
	}

	info, err = New(Options{DebugUninit: true, LazyUserdata: true}).Analyze(context.Background(), l)
	if err != nil {
		t.Fatal(err)
	}
	want = []ir.SymbolHandle{p, s, f, k, hello}
	if diff := cmp.Diff(want, info.Referenced()); diff != "" {
		t.Errorf("Referenced() with DebugUninit+LazyUserdata mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	t.Run("nil layer", func(t *testing.T) {
		if _, err := Analyze(context.Background(), nil); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("break outside loop", func(t *testing.T) {
		b := ir.NewLayerBuilder("badbreak")
		b.Break()
		_, err := Analyze(context.Background(), b.Layer())
		var e *ir.Error
		if !errors.As(err, &e) || e.Kind != ir.ErrInvalidLayer {
			t.Errorf("got %v, want InvalidLayer", err)
		}
	})

	t.Run("unhandled control construct", func(t *testing.T) {
		b := ir.NewLayerBuilder("switch")
		c := b.Temp("c", ir.Int)
		i := b.OpArgs("switch", []ir.Arg{{Sym: c, Read: true}})
		b.Op(ir.OpNop)
		l := b.Layer()
		l.Ops[i].Jumps[0] = 2
		_, err := Analyze(context.Background(), l)
		var e *ir.Error
		if !errors.As(err, &e) || e.Kind != ir.ErrUnsupportedControl {
			t.Fatalf("got %v, want UnsupportedControl", err)
		}
		if !strings.Contains(err.Error(), "unhandled control construct") {
			t.Errorf("error %q lacks description", err)
		}
	})

	t.Run("argument out of range", func(t *testing.T) {
		b := ir.NewLayerBuilder("range")
		b.OpArgs(ir.OpAssign, []ir.Arg{{Sym: 7, Write: true}})
		_, err := Analyze(context.Background(), b.Layer())
		var e *ir.Error
		if !errors.As(err, &e) || e.Kind != ir.ErrInvalidLayer {
			t.Errorf("got %v, want InvalidLayer", err)
		}
	})
}

func TestInfo_Dump(t *testing.T) {
	bl := newBranchLayer()
	info, err := Analyze(context.Background(), bl.l)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := info.Dump(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`layer "branch"`, "result", "varying", "uniform", "2:add", "3:assign"} {
		if !strings.Contains(out, want) {
			t.Errorf("Dump output missing %q:\n%s", want, out)
		}
	}
}
