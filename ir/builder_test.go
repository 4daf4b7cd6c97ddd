package ir

import "testing"

func TestDefaultAccess(t *testing.T) {
	tests := []struct {
		op     Opcode
		n      int
		writes []bool
	}{
		{OpAdd, 3, []bool{true, false, false}},
		{OpAassign, 3, []bool{true, false, false}},
		{OpGetAttribute, 3, []bool{true, false, true}},
		{OpGetAttribute, 4, []bool{true, false, false, true}},
		{OpIf, 1, []bool{false}},
		{OpWhile, 1, []bool{false}},
		{OpFunctionCall, 1, []bool{false}},
		{OpUseParam, 2, []bool{false, false}},
		{OpBreak, 0, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			args := DefaultAccess(tt.op, tt.n)
			if len(args) != tt.n {
				t.Fatalf("len = %d, want %d", len(args), tt.n)
			}
			for i, a := range args {
				if a.Write != tt.writes[i] || a.Read == a.Write {
					t.Errorf("arg %d = %+v, want write=%v", i, a, tt.writes[i])
				}
			}
		})
	}
}

func TestLayerBuilder_Consts(t *testing.T) {
	b := NewLayerBuilder("c")
	a := b.ConstFloat(1)
	if b.ConstFloat(1) != a {
		t.Error("identical float constants not shared")
	}
	if b.ConstInt(1) == a {
		t.Error("int and float constants shared")
	}
	if b.ConstTriple(Color, 1, 2, 3) == b.ConstTriple(Point, 1, 2, 3) {
		t.Error("color and point constants shared")
	}
	l := b.Layer()
	s := l.Symbol(a)
	if !s.IsConstant() || s.Const.Len() != 1 || s.Const.Floats[0] != 1 {
		t.Errorf("constant symbol = %+v", s)
	}
}

func TestLayerBuilder_Globals(t *testing.T) {
	b := NewLayerBuilder("g")
	p := b.Global("P")
	bogus := b.Global("nosuchglobal")
	l := b.Layer()
	if s := l.Symbol(p); s.Type != Point || !s.HasDerivs || s.SymType != SymGlobal {
		t.Errorf("P = %+v", s)
	}
	if s := l.Symbol(bogus); s.Type != Float || s.HasDerivs {
		t.Errorf("unknown global = %+v", s)
	}
}

func TestLayerBuilder_InitAndMain(t *testing.T) {
	b := NewLayerBuilder("init")
	k := b.Param("k", Float, &ConstValue{Floats: []float32{2}})
	two := b.ConstFloat(2)
	b.BeginInit(k)
	b.Op(OpAssign, k, two)
	b.EndInit(k)
	b.BeginMain()
	b.Op(OpNop)
	b.Op(OpEnd)
	l := b.Layer()

	s := l.Symbol(k)
	if !s.HasInitOps() || s.InitBegin != 0 || s.InitEnd != 1 {
		t.Errorf("init range = [%d, %d)", s.InitBegin, s.InitEnd)
	}
	if l.MainBegin != 1 || l.MainEnd != 3 {
		t.Errorf("main range = [%d, %d)", l.MainBegin, l.MainEnd)
	}
	if got := l.Params(); len(got) != 1 || got[0] != k {
		t.Errorf("Params() = %v", got)
	}
}

func TestLayer_LookupAndDealias(t *testing.T) {
	b := NewLayerBuilder("alias")
	x := b.Local("x", Float)
	y := b.Local("y", Float)
	shadow := b.Local("x", Float)
	b.Get(shadow).Scope = 2
	b.Get(y).Alias = &x
	l := b.Layer()

	if h, ok := l.Lookup("x"); !ok || h != shadow {
		t.Errorf("Lookup(x) = %d, %v", h, ok)
	}
	if _, ok := l.Lookup("z"); ok {
		t.Error("Lookup(z) succeeded")
	}
	if l.Dealias(y) != x || l.Dealias(x) != x {
		t.Error("Dealias wrong")
	}
	if got := l.Symbol(shadow).Mangled(); got != "___2_x" {
		t.Errorf("Mangled() = %q", got)
	}
	if got := l.Symbol(x).Mangled(); got != "x" {
		t.Errorf("Mangled() = %q", got)
	}
}

func TestSymType_String(t *testing.T) {
	if SymOutputParam.String() != "OutputParam" || SymConst.String() != "Const" {
		t.Errorf("got %q, %q", SymOutputParam, SymConst)
	}
	if got := SymType(42).String(); got != "SymType(42)" {
		t.Errorf("got %q", got)
	}
}
