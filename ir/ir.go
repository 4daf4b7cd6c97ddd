package ir

import "strconv"

//go:generate go tool stringer -type=SymType -trimprefix=Sym

// SymbolHandle indexes Layer.Symbols.
type SymbolHandle uint32

// NoSymbol is the invalid handle.
const NoSymbol SymbolHandle = ^SymbolHandle(0)

// SymType is the storage class of a symbol.
type SymType uint8

const (
	SymGlobal SymType = iota
	SymParam
	SymOutputParam
	SymLocal
	SymTemp
	SymConst
)

// ConstValue is a literal payload. Exactly one slice is populated, with
// NumElements * Aggregate entries.
type ConstValue struct {
	Floats  []float32
	Ints    []int32
	Strings []string
}

// Len returns the number of scalar entries.
func (c *ConstValue) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Floats) + len(c.Ints) + len(c.Strings)
}

// Symbol is a typed storage slot of a layer.
type Symbol struct {
	Name string

	// Scope disambiguates locals of nested scopes sharing a name.
	Scope int

	Type      TypeSpec
	SymType   SymType
	HasDerivs bool

	// Const is the payload of SymConst symbols.
	Const *ConstValue

	// Default is the default value of parameters.
	Default *ConstValue

	// Connected marks a parameter fed by an upstream layer's output.
	Connected bool
	// ConnectedDown marks an output read by a downstream layer.
	ConnectedDown  bool
	EverRead       bool
	RendererOutput bool

	// Lockgeom is false for parameters that may be interpolated from
	// geometry (userdata).
	Lockgeom bool

	// Alias points at the symbol this one shares storage with.
	Alias *SymbolHandle

	// InitBegin and InitEnd delimit the symbol's init ops.
	InitBegin, InitEnd int
}

// HasInitOps reports whether the symbol is initialized by code.
func (s *Symbol) HasInitOps() bool { return s.InitEnd > s.InitBegin }

// IsConstant reports constant symbols.
func (s *Symbol) IsConstant() bool { return s.SymType == SymConst }

// IsParam reports parameters and output parameters.
func (s *Symbol) IsParam() bool {
	return s.SymType == SymParam || s.SymType == SymOutputParam
}

// Mangled returns the allocation key of the symbol.
func (s *Symbol) Mangled() string {
	if s.Scope == 0 {
		return s.Name
	}
	return "___" + strconv.Itoa(s.Scope) + "_" + s.Name
}

// Opcode names an instruction.
type Opcode string

const (
	OpNop          Opcode = "nop"
	OpEnd          Opcode = "end"
	OpUseParam     Opcode = "useparam"
	OpAssign       Opcode = "assign"
	OpAdd          Opcode = "add"
	OpSub          Opcode = "sub"
	OpMul          Opcode = "mul"
	OpDiv          Opcode = "div"
	OpNeg          Opcode = "neg"
	OpEq           Opcode = "eq"
	OpNeq          Opcode = "neq"
	OpLt           Opcode = "lt"
	OpLe           Opcode = "le"
	OpGt           Opcode = "gt"
	OpGe           Opcode = "ge"
	OpAnd          Opcode = "and"
	OpOr           Opcode = "or"
	OpAref         Opcode = "aref"
	OpAassign      Opcode = "aassign"
	OpIf           Opcode = "if"
	OpFor          Opcode = "for"
	OpWhile        Opcode = "while"
	OpDoWhile      Opcode = "dowhile"
	OpFunctionCall Opcode = "functioncall"
	OpBreak        Opcode = "break"
	OpContinue     Opcode = "continue"
	OpGetAttribute Opcode = "getattribute"
)

// IsLoop reports the three loop opcodes.
func (op Opcode) IsLoop() bool {
	return op == OpFor || op == OpWhile || op == OpDoWhile
}

// MaxJumps is the size of an instruction's jump list.
const MaxJumps = 4

// Arg is one instruction argument.
type Arg struct {
	Sym   SymbolHandle
	Read  bool
	Write bool
}

// Instruction is one operation of the stream.
type Instruction struct {
	Op    Opcode
	Args  []Arg
	Jumps [MaxJumps]int
}

// NoJumps is the jump list of straight-line instructions.
var NoJumps = [MaxJumps]int{-1, -1, -1, -1}

// HasJumps reports whether the instruction delimits nested regions.
func (in *Instruction) HasJumps() bool { return in.Jumps[0] >= 0 }

// NumJumps returns the number of valid jump targets.
func (in *Instruction) NumJumps() int {
	n := 0
	for n < MaxJumps && in.Jumps[n] >= 0 {
		n++
	}
	return n
}

// FarthestJump returns the largest jump target, or -1.
func (in *Instruction) FarthestJump() int {
	far := -1
	for _, j := range in.Jumps {
		far = max(far, j)
	}
	return far
}

// Reads returns the symbols read by the instruction, in argument order.
func (in *Instruction) Reads() []SymbolHandle {
	var out []SymbolHandle
	for _, a := range in.Args {
		if a.Read {
			out = append(out, a.Sym)
		}
	}
	return out
}

// Writes returns the symbols written by the instruction, in argument order.
func (in *Instruction) Writes() []SymbolHandle {
	var out []SymbolHandle
	for _, a := range in.Args {
		if a.Write {
			out = append(out, a.Sym)
		}
	}
	return out
}

// Layer is one instantiated shader.
type Layer struct {
	Name  string
	Index int

	Symbols []Symbol
	Ops     []Instruction

	// MainBegin and MainEnd delimit the main code.
	MainBegin, MainEnd int
}

// Symbol returns the symbol for h.
func (l *Layer) Symbol(h SymbolHandle) *Symbol {
	return &l.Symbols[h]
}

// Valid reports whether h indexes a symbol of the layer.
func (l *Layer) Valid(h SymbolHandle) bool {
	return int(h) < len(l.Symbols)
}

// Arg returns the symbol of argument i of instruction op.
func (l *Layer) Arg(op, i int) SymbolHandle {
	return l.Ops[op].Args[i].Sym
}

// Dealias follows alias links to the symbol owning the storage.
func (l *Layer) Dealias(h SymbolHandle) SymbolHandle {
	for range len(l.Symbols) {
		a := l.Symbols[h].Alias
		if a == nil || *a == h || !l.Valid(*a) {
			return h
		}
		h = *a
	}
	return h
}

// Lookup finds a symbol by name. Later symbols shadow earlier ones.
func (l *Layer) Lookup(name string) (SymbolHandle, bool) {
	for i := len(l.Symbols) - 1; i >= 0; i-- {
		if l.Symbols[i].Name == name {
			return SymbolHandle(i), true
		}
	}
	return NoSymbol, false
}

// Params returns parameter and output parameter handles in declaration order.
func (l *Layer) Params() []SymbolHandle {
	var out []SymbolHandle
	for i := range l.Symbols {
		if l.Symbols[i].IsParam() {
			out = append(out, SymbolHandle(i))
		}
	}
	return out
}
