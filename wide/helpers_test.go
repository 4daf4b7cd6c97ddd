// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wide

import (
	"context"
	"testing"

	"github.com/nikandfor/errors"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/wideshade/analysis"
	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
)

const testLanes = 4

type fixture struct {
	m    *emit.Machine
	l    *ir.Layer
	info *analysis.Info
	grp  *Group
	g    *Generator
}

func newFixture(t *testing.T, l *ir.Layer) *fixture {
	return newFixtureOpts(t, l, Options{})
}

func newFixtureOpts(t *testing.T, l *ir.Layer, opts Options) *fixture {
	t.Helper()

	info, err := analysis.New(analysis.Options{
		Globals:      opts.Globals,
		DebugUninit:  opts.DebugUninit,
		LazyUserdata: opts.LazyUserdata,
	}).Analyze(context.Background(), l)
	require.NoError(t, err)

	m := emit.NewMachine(emit.MachineOptions{Lanes: testLanes, MaxIterations: 64})

	grp, err := NewGroup("group", []*ir.Layer{l}, []*analysis.Info{info})
	require.NoError(t, err)
	grp.Bind(m)

	tab := opts.Globals
	if tab == nil {
		tab = ir.DefaultGlobals
	}
	globals, err := NewGlobals(m, tab)
	require.NoError(t, err)

	return &fixture{
		m:    m,
		l:    l,
		info: info,
		grp:  grp,
		g:    NewGenerator(l, info, m, globals, grp, opts),
	}
}

func (f *fixture) build(t *testing.T) {
	t.Helper()
	require.NoError(t, f.g.BuildLayer(context.Background()))
}

func wideFloats(xs ...float32) *emit.Vec {
	return &emit.Vec{T: emit.WideFloat, F: xs}
}

func wideInts(xs ...int32) *emit.Vec {
	return &emit.Vec{T: emit.WideInt, I: xs}
}

func (f *fixture) floats(t *testing.T, h ir.SymbolHandle, deriv, component int) []float32 {
	t.Helper()
	v, err := f.g.Load(h, deriv, nil, component, CastFloat, false)
	require.NoError(t, err)
	vec, ok := v.(*emit.Vec)
	require.True(t, ok)
	return vec.F
}

func (f *fixture) setFloats(t *testing.T, h ir.SymbolHandle, xs ...float32) {
	t.Helper()
	require.NoError(t, f.g.Store(wideFloats(xs...), h, 0, nil, 0))
}

func requireKind(t *testing.T, err error, kind ir.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	var e *ir.Error
	require.True(t, errors.As(err, &e), "error %v is not an ir.Error", err)
	require.Equal(t, kind, e.Kind, "error: %v", err)
}
