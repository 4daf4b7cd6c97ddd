// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wideshade

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
	"github.com/gogpu/wideshade/layerfile"
)

func testOptions() CompileOptions {
	opts := DefaultOptions()
	opts.Lanes = 4
	opts.MaxIterations = 64
	return opts
}

func floatsOf(t *testing.T, v emit.Value) []float32 {
	t.Helper()
	vec, ok := v.(*emit.Vec)
	if !ok || vec.T.Kind != emit.KindFloat {
		t.Fatalf("value %v is not a float vector", v)
	}
	return vec.F
}

func requireKind(t *testing.T, err error, kind ir.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected a %v error", kind)
	}
	var e *ir.Error
	if !errors.As(err, &e) {
		t.Fatalf("error %v is not an ir.Error", err)
	}
	if e.Kind != kind {
		t.Fatalf("error kind = %v, want %v: %v", e.Kind, kind, err)
	}
}

// TestCompileLayerFile tests the loop in testdata/count.yaml: out counts up
// to min(u, limit) with lanes leaving the loop at different iterations.
func TestCompileLayerFile(t *testing.T) {
	l, err := layerfile.Load("layerfile/testdata/count.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	prog, err := Compile(context.Background(), l, testOptions())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	tests := []struct {
		name string
		u    []float32
		want []float32
	}{
		{"staggered", []float32{0, 1, 2, 5}, []float32{0, 1, 2, 3}},
		{"limit", []float32{9, 9, 9, 9}, []float32{3, 3, 3, 3}},
		{"immediate", []float32{0, 0, 0, 0}, []float32{0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := prog.Run(context.Background(), Input{
				Global: "u",
				Value:  &emit.Vec{T: emit.WideFloat, F: tt.u},
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			out, err := batch.Output(0, "out", 0)
			if err != nil {
				t.Fatalf("Output: %v", err)
			}
			if diff := cmp.Diff(tt.want, floatsOf(t, out)); diff != "" {
				t.Errorf("out (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	l, err := layerfile.Load("layerfile/testdata/count.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	info, err := Analyze(context.Background(), l, DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	for _, name := range []string{"u", "i", "cond", "out"} {
		h, _ := l.Lookup(name)
		if info.IsUniform(h) {
			t.Errorf("%s should be varying", name)
		}
	}
	for _, name := range []string{"zero", "one"} {
		h, _ := l.Lookup(name)
		if !info.IsUniform(h) {
			t.Errorf("%s should be uniform", name)
		}
	}
}

func TestCompile_ValidationFailure(t *testing.T) {
	b := ir.NewLayerBuilder("bad")
	b.BeginMain()
	b.Break()
	l := b.Layer()

	if errs, _ := Validate(l); len(errs) == 0 {
		t.Fatal("Validate should report the stray break")
	}

	_, err := Compile(context.Background(), l, testOptions())
	requireKind(t, err, ir.ErrInvalidLayer)

	_, err = Compile(context.Background(), nil, testOptions())
	requireKind(t, err, ir.ErrInvalidLayer)
}

func TestCompile_UnsupportedControl(t *testing.T) {
	b := ir.NewLayerBuilder("switch")
	c := b.Local("c", ir.Int)
	b.BeginMain()
	b.Op(ir.OpNop)
	b.Op(ir.OpNop)
	l := b.Layer()
	l.Ops[0] = ir.Instruction{Op: "switch", Args: []ir.Arg{{Sym: c, Read: true}}, Jumps: [ir.MaxJumps]int{1, -1, -1, -1}}

	for _, validate := range []bool{true, false} {
		opts := testOptions()
		opts.Validate = validate

		_, err := Compile(context.Background(), l, opts)
		requireKind(t, err, ir.ErrUnsupportedControl)
	}
}

// connectedLayers builds
//
//	up:   Cout = u * 2
//	down: out = Cin + 1, Cin connected to up.Cout
func connectedLayers() []*ir.Layer {
	ub := ir.NewLayerBuilder("up")
	u := ub.Global("u")
	cout := ub.Output("Cout", ir.Float)
	two := ub.ConstFloat(2)
	ub.BeginMain()
	ub.Op(ir.OpMul, cout, u, two)
	ub.Get(cout).ConnectedDown = true

	db := ir.NewLayerBuilder("down")
	cin := db.Param("Cin", ir.Float, &ir.ConstValue{Floats: []float32{-1}})
	db.Get(cin).Connected = true
	out := db.Output("out", ir.Float)
	one := db.ConstFloat(1)
	db.BeginMain()
	db.Op(ir.OpAdd, out, cin, one)

	return []*ir.Layer{ub.Layer(), db.Layer()}
}

func TestCompileGroup_Connection(t *testing.T) {
	layers := connectedLayers()

	prog, err := CompileGroup(context.Background(), "group", layers, []Connection{
		{FromLayer: 0, From: "Cout", ToLayer: 1, To: "Cin"},
	}, testOptions())
	if err != nil {
		t.Fatalf("CompileGroup: %v", err)
	}
	if layers[1].Index != 1 {
		t.Errorf("down Index = %d, want 1", layers[1].Index)
	}

	batch, err := prog.Run(context.Background(), Input{
		Global: "u",
		Value:  &emit.Vec{T: emit.WideFloat, F: []float32{1, 2, 3, 4}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	outs, err := batch.Outputs(1)
	if err != nil {
		t.Fatalf("Outputs: %v", err)
	}
	if diff := cmp.Diff([]float32{3, 5, 7, 9}, floatsOf(t, outs["out"][0])); diff != "" {
		t.Errorf("out (-want +got):\n%s", diff)
	}

	up, err := batch.Output(0, "Cout", 0)
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if diff := cmp.Diff([]float32{2, 4, 6, 8}, floatsOf(t, up)); diff != "" {
		t.Errorf("Cout (-want +got):\n%s", diff)
	}
}

func TestCompileGroup_ConnectionErrors(t *testing.T) {
	tests := []struct {
		name string
		conn Connection
		prep func(layers []*ir.Layer)
		kind ir.ErrorKind
	}{
		{
			name: "backwards",
			conn: Connection{FromLayer: 1, From: "out", ToLayer: 0, To: "Cout"},
			kind: ir.ErrInvalidLayer,
		},
		{
			name: "unknown output",
			conn: Connection{FromLayer: 0, From: "Cd", ToLayer: 1, To: "Cin"},
			kind: ir.ErrUnresolvedSymbol,
		},
		{
			name: "unknown parameter",
			conn: Connection{FromLayer: 0, From: "Cout", ToLayer: 1, To: "Kd"},
			kind: ir.ErrUnresolvedSymbol,
		},
		{
			name: "not connected",
			conn: Connection{FromLayer: 0, From: "Cout", ToLayer: 1, To: "Cin"},
			prep: func(layers []*ir.Layer) {
				h, _ := layers[1].Lookup("Cin")
				layers[1].Symbol(h).Connected = false
			},
			kind: ir.ErrInvalidLayer,
		},
		{
			name: "type mismatch",
			conn: Connection{FromLayer: 0, From: "Cout", ToLayer: 1, To: "Cin"},
			prep: func(layers []*ir.Layer) {
				h, _ := layers[0].Lookup("Cout")
				layers[0].Symbol(h).Type = ir.Color
			},
			kind: ir.ErrInconsistentShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layers := connectedLayers()
			if tt.prep != nil {
				tt.prep(layers)
			}
			_, err := CompileGroup(context.Background(), "group", layers, []Connection{tt.conn}, testOptions())
			requireKind(t, err, tt.kind)
		})
	}
}

// attrLayer builds
//
//	found = getattribute("Cd", dst)
//	Cout = dst
//	ok = found
func attrLayer(name string) *ir.Layer {
	b := ir.NewLayerBuilder("attr")
	found := b.Temp("found", ir.Int)
	key := b.ConstString(name)
	dst := b.Local("dst", ir.Color)
	cout := b.Output("Cout", ir.Color)
	ok := b.Output("ok", ir.Int)
	b.BeginMain()
	b.Op(ir.OpGetAttribute, found, key, dst)
	b.Op(ir.OpAssign, cout, dst)
	b.Op(ir.OpAssign, ok, found)
	return b.Layer()
}

func TestAttributes(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		wantCd []float32
		wantOk []int32
	}{
		{"found", "Cd", []float32{1, 1, 1, 1}, []int32{1, 1, 1, 1}},
		{"missing", "Cs", []float32{0, 0, 0, 0}, []int32{0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Compile(context.Background(), attrLayer(tt.key), testOptions())
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			prog.Attributes = Attributes{
				"Cd": {
					&emit.Vec{T: emit.Float, F: []float32{1}},
					&emit.Vec{T: emit.WideFloat, F: []float32{0.1, 0.2, 0.3, 0.4}},
					&emit.Vec{T: emit.Float, F: []float32{0}},
				},
			}

			batch, err := prog.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			cd, err := batch.Output(0, "Cout", 0)
			if err != nil {
				t.Fatalf("Output: %v", err)
			}
			if diff := cmp.Diff(tt.wantCd, floatsOf(t, cd)); diff != "" {
				t.Errorf("Cout.r (-want +got):\n%s", diff)
			}

			ok, err := batch.Output(0, "ok", 0)
			if err != nil {
				t.Fatalf("Output: %v", err)
			}
			if diff := cmp.Diff(tt.wantOk, ok.(*emit.Vec).I); diff != "" {
				t.Errorf("ok (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAttributes_ObjectKey(t *testing.T) {
	b := ir.NewLayerBuilder("attr")
	found := b.Temp("found", ir.Int)
	obj := b.ConstString("lamp")
	key := b.ConstString("power")
	dst := b.Local("dst", ir.Float)
	out := b.Output("out", ir.Float)
	b.BeginMain()
	b.Op(ir.OpGetAttribute, found, obj, key, dst)
	b.Op(ir.OpAssign, out, dst)

	prog, err := Compile(context.Background(), b.Layer(), testOptions())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	prog.Attributes = Attributes{"lamp:power": {&emit.Vec{T: emit.Float, F: []float32{60}}}}

	batch, err := prog.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	v, err := batch.Output(0, "out", 0)
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if diff := cmp.Diff([]float32{60, 60, 60, 60}, floatsOf(t, v)); diff != "" {
		t.Errorf("out (-want +got):\n%s", diff)
	}
}

func TestProgram_Register(t *testing.T) {
	prog, err := Compile(context.Background(), attrLayer("Cd"), testOptions())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	calls := 0
	prog.Register("getattribute", func(m *emit.Machine, args []emit.Value) (emit.Value, error) {
		calls++
		return &emit.Vec{T: emit.WideBool, B: []bool{false, true, false, true}}, nil
	})

	batch, err := prog.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Errorf("host called %d times, want 1", calls)
	}

	ok, err := batch.Output(0, "ok", 0)
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if diff := cmp.Diff([]int32{0, 1, 0, 1}, ok.(*emit.Vec).I); diff != "" {
		t.Errorf("ok (-want +got):\n%s", diff)
	}
}

func TestBatch_PartialAndErrors(t *testing.T) {
	l, err := layerfile.Load("layerfile/testdata/count.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	prog, err := Compile(context.Background(), l, testOptions())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	batch, err := prog.NewBatch()
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if batch.Lanes() != 4 {
		t.Fatalf("Lanes = %d, want 4", batch.Lanes())
	}

	requireKind(t, batch.SetGlobal("nosuch", 0, &emit.Vec{T: emit.Float, F: []float32{1}}), ir.ErrUnresolvedSymbol)
	requireKind(t, batch.SetGlobal("u", 1, &emit.Vec{T: emit.Float, F: []float32{1}}), ir.ErrInvalidLayer)
	requireKind(t, batch.SetGlobal("u", 0, &emit.Vec{T: emit.String, S: []string{"x"}}), ir.ErrInconsistentShape)

	// uniform values are broadcast
	if err := batch.SetGlobal("u", 0, &emit.Vec{T: emit.Float, F: []float32{2}}); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}

	batch.SetActive(2)
	if err := batch.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out, err := batch.Output(0, "out", 0)
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if diff := cmp.Diff([]float32{2, 2, 0, 0}, floatsOf(t, out)); diff != "" {
		t.Errorf("out (-want +got):\n%s", diff)
	}

	_, err = batch.Output(0, "nosuch", 0)
	requireKind(t, err, ir.ErrUnresolvedSymbol)
	_, err = batch.Output(3, "out", 0)
	requireKind(t, err, ir.ErrInvalidLayer)
}

func TestRun_LaneCount(t *testing.T) {
	l, err := layerfile.Load("layerfile/testdata/count.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	prog, err := Compile(context.Background(), l, testOptions())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	for _, v := range []*emit.Vec{
		{T: emit.WideFloat, F: []float32{1, 2, 3}},
		{T: emit.WideFloat, F: []float32{1, 2, 3, 4, 5}},
		{T: emit.Float, F: []float32{1, 2}},
	} {
		_, err := prog.Run(context.Background(), Input{Global: "u", Value: v})
		requireKind(t, err, ir.ErrInconsistentShape)
	}
}

func TestRun_Canceled(t *testing.T) {
	l, err := layerfile.Load("layerfile/testdata/count.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	prog, err := Compile(context.Background(), l, testOptions())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := prog.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
}
