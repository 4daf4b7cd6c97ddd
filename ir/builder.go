package ir

import (
	"fmt"
	"strconv"
)

// DefaultAccess returns the conventional read/write flags for an opcode
// with n arguments: control opcodes and useparam only read, getattribute
// also writes its last argument, everything else writes its first
// argument and reads the rest.
func DefaultAccess(op Opcode, n int) []Arg {
	args := make([]Arg, n)
	for i := range args {
		switch {
		case op == OpIf || op.IsLoop() || op == OpFunctionCall || op == OpUseParam:
			args[i].Read = true
		case op == OpBreak || op == OpContinue || op == OpNop || op == OpEnd:
			args[i].Read = true
		case i == 0, op == OpGetAttribute && i == n-1:
			args[i].Write = true
		default:
			args[i].Read = true
		}
	}
	return args
}

// LayerBuilder assembles a Layer and patches jump targets of the control
// constructs it opens.
type LayerBuilder struct {
	layer  Layer
	consts map[string]SymbolHandle
	main   bool
}

// NewLayerBuilder creates a builder for a layer named name.
func NewLayerBuilder(name string) *LayerBuilder {
	return &LayerBuilder{
		layer:  Layer{Name: name},
		consts: make(map[string]SymbolHandle),
	}
}

// Symbol appends s and returns its handle.
func (b *LayerBuilder) Symbol(s Symbol) SymbolHandle {
	h := SymbolHandle(len(b.layer.Symbols))
	b.layer.Symbols = append(b.layer.Symbols, s)
	return h
}

// Get returns the symbol for h for in-place adjustments.
func (b *LayerBuilder) Get(h SymbolHandle) *Symbol {
	return &b.layer.Symbols[h]
}

// Global declares a shader global. Type and derivatives come from
// DefaultGlobals; unknown names are floats.
func (b *LayerBuilder) Global(name string) SymbolHandle {
	s := Symbol{Name: name, Type: Float, SymType: SymGlobal}
	if i, ok := DefaultGlobals.Index(name); ok {
		f := DefaultGlobals.Fields[i]
		s.Type = f.Type
		s.HasDerivs = f.HasDerivs
	}
	return b.Symbol(s)
}

// Param declares an input parameter with an optional default.
func (b *LayerBuilder) Param(name string, t TypeSpec, def *ConstValue) SymbolHandle {
	return b.Symbol(Symbol{Name: name, Type: t, SymType: SymParam, Default: def, Lockgeom: true, EverRead: true})
}

// Output declares an output parameter.
func (b *LayerBuilder) Output(name string, t TypeSpec) SymbolHandle {
	return b.Symbol(Symbol{Name: name, Type: t, SymType: SymOutputParam, Lockgeom: true, RendererOutput: true})
}

func (b *LayerBuilder) Local(name string, t TypeSpec) SymbolHandle {
	return b.Symbol(Symbol{Name: name, Type: t, SymType: SymLocal})
}

func (b *LayerBuilder) Temp(name string, t TypeSpec) SymbolHandle {
	return b.Symbol(Symbol{Name: name, Type: t, SymType: SymTemp})
}

// Derivs marks h as carrying derivatives and returns it.
func (b *LayerBuilder) Derivs(h SymbolHandle) SymbolHandle {
	b.layer.Symbols[h].HasDerivs = true
	return h
}

// Const declares a constant of type t, reusing an identical earlier one.
func (b *LayerBuilder) Const(t TypeSpec, v ConstValue) SymbolHandle {
	key := t.String() + fmt.Sprint(v.Floats, v.Ints, v.Strings)
	if h, ok := b.consts[key]; ok {
		return h
	}
	h := b.Symbol(Symbol{
		Name:    "$const" + strconv.Itoa(len(b.consts)+1),
		Type:    t,
		SymType: SymConst,
		Const:   &v,
	})
	b.consts[key] = h
	return h
}

func (b *LayerBuilder) ConstFloat(f float32) SymbolHandle {
	return b.Const(Float, ConstValue{Floats: []float32{f}})
}

func (b *LayerBuilder) ConstInt(i int32) SymbolHandle {
	return b.Const(Int, ConstValue{Ints: []int32{i}})
}

func (b *LayerBuilder) ConstString(s string) SymbolHandle {
	return b.Const(String, ConstValue{Strings: []string{s}})
}

func (b *LayerBuilder) ConstTriple(t TypeSpec, x, y, z float32) SymbolHandle {
	return b.Const(t, ConstValue{Floats: []float32{x, y, z}})
}

// Op appends an instruction with DefaultAccess flags and returns its index.
func (b *LayerBuilder) Op(op Opcode, args ...SymbolHandle) int {
	acc := DefaultAccess(op, len(args))
	for i := range acc {
		acc[i].Sym = args[i]
	}
	return b.OpArgs(op, acc)
}

// OpArgs appends an instruction with explicit argument flags.
func (b *LayerBuilder) OpArgs(op Opcode, args []Arg) int {
	i := len(b.layer.Ops)
	b.layer.Ops = append(b.layer.Ops, Instruction{Op: op, Args: args, Jumps: NoJumps})
	return i
}

func (b *LayerBuilder) here() int { return len(b.layer.Ops) }

// BeginIf opens a branch on cond; the then-block follows.
func (b *LayerBuilder) BeginIf(cond SymbolHandle) int {
	return b.Op(OpIf, cond)
}

// Else ends the then-block of the branch opened at i.
func (b *LayerBuilder) Else(i int) {
	b.layer.Ops[i].Jumps[0] = b.here()
}

// EndIf closes the branch opened at i.
func (b *LayerBuilder) EndIf(i int) {
	in := &b.layer.Ops[i]
	if in.Jumps[0] < 0 {
		in.Jumps[0] = b.here()
	}
	in.Jumps[1] = b.here()
}

// BeginLoop opens a loop of kind op on cond; the init block follows.
func (b *LayerBuilder) BeginLoop(op Opcode, cond SymbolHandle) int {
	return b.Op(op, cond)
}

// LoopTest ends the init block; the condition block follows.
func (b *LayerBuilder) LoopTest(i int) { b.setJump(i, 0) }

// LoopBody ends the condition block; the body follows.
func (b *LayerBuilder) LoopBody(i int) { b.setJump(i, 1) }

// LoopStep ends the body; the step block follows.
func (b *LayerBuilder) LoopStep(i int) { b.setJump(i, 2) }

// EndLoop closes the loop opened at i.
func (b *LayerBuilder) EndLoop(i int) { b.setJump(i, 3) }

// setJump sets jump k and any unset earlier jumps to the current position.
func (b *LayerBuilder) setJump(i, k int) {
	in := &b.layer.Ops[i]
	for n := 0; n <= k; n++ {
		if in.Jumps[n] < 0 {
			in.Jumps[n] = b.here()
		}
	}
}

// BeginCall opens an inlined call of the function named by name.
func (b *LayerBuilder) BeginCall(name SymbolHandle) int {
	return b.Op(OpFunctionCall, name)
}

// EndCall closes the call opened at i.
func (b *LayerBuilder) EndCall(i int) { b.setJump(i, 0) }

// Break appends a break out of the innermost loop.
func (b *LayerBuilder) Break() int {
	return b.Op(OpBreak)
}

// BeginInit starts the init ops of h.
func (b *LayerBuilder) BeginInit(h SymbolHandle) {
	b.layer.Symbols[h].InitBegin = b.here()
	b.layer.Symbols[h].InitEnd = b.here()
}

// EndInit ends the init ops of h.
func (b *LayerBuilder) EndInit(h SymbolHandle) {
	b.layer.Symbols[h].InitEnd = b.here()
}

// BeginMain marks the start of the main code.
func (b *LayerBuilder) BeginMain() {
	b.layer.MainBegin = b.here()
	b.main = true
}

// Layer returns the built layer. The main code ends at the last op.
func (b *LayerBuilder) Layer() *Layer {
	l := b.layer
	if !b.main {
		l.MainBegin = 0
	}
	l.MainEnd = len(l.Ops)
	return &l
}
