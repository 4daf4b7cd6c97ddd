package ir

// Span is a contiguous instruction range [Begin, End).
type Span struct {
	Begin, End int
}

// Empty reports whether the span contains no instructions.
func (s Span) Empty() bool { return s.End <= s.Begin }

// Region is the nested structure delimited by a control opcode's jumps.
type Region interface {
	region()
}

// IfRegion is a two-way branch on Cond.
type IfRegion struct {
	Cond SymbolHandle
	Then Span
	Else Span
}

func (IfRegion) region() {}

// LoopRegion is a for, while or do-while loop continuing while Cond is
// nonzero.
type LoopRegion struct {
	Kind Opcode
	Cond SymbolHandle
	Init Span
	Test Span
	Body Span
	Step Span
}

func (LoopRegion) region() {}

// TestFirst reports whether the condition is evaluated before the first
// iteration.
func (r LoopRegion) TestFirst() bool { return r.Kind != OpDoWhile }

// CallRegion is the inlined body of a function call.
type CallRegion struct {
	Body Span
}

func (CallRegion) region() {}

// RegionOf decodes the region of instruction i. It returns nil for
// straight-line instructions and ErrUnsupportedControl for opcodes with
// jumps that are not structured control constructs.
func RegionOf(l *Layer, i int) (Region, error) {
	in := &l.Ops[i]
	if !in.HasJumps() {
		return nil, nil
	}
	j := in.Jumps

	switch {
	case in.Op == OpIf:
		cond, err := conditionOf(l, i)
		if err != nil {
			return nil, err
		}
		end := j[1]
		if end < 0 {
			end = j[0]
		}
		return IfRegion{
			Cond: cond,
			Then: Span{i + 1, j[0]},
			Else: Span{j[0], end},
		}, nil

	case in.Op.IsLoop():
		if in.NumJumps() < MaxJumps {
			return nil, Errorf(ErrInvalidLayer, "%s needs %d jump targets, has %d", in.Op, MaxJumps, in.NumJumps()).At(l.Name, i)
		}
		cond, err := conditionOf(l, i)
		if err != nil {
			return nil, err
		}
		return LoopRegion{
			Kind: in.Op,
			Cond: cond,
			Init: Span{i + 1, j[0]},
			Test: Span{j[0], j[1]},
			Body: Span{j[1], j[2]},
			Step: Span{j[2], j[3]},
		}, nil

	case in.Op == OpFunctionCall:
		return CallRegion{Body: Span{i + 1, j[0]}}, nil

	default:
		return nil, Errorf(ErrUnsupportedControl, "unhandled control construct %q", in.Op).At(l.Name, i)
	}
}

// conditionOf returns the single symbol read by a branch or loop.
func conditionOf(l *Layer, i int) (SymbolHandle, error) {
	reads := l.Ops[i].Reads()
	if len(reads) != 1 {
		return NoSymbol, Errorf(ErrInvalidLayer, "%s must read exactly one condition, reads %d", l.Ops[i].Op, len(reads)).At(l.Name, i)
	}
	return reads[0], nil
}
