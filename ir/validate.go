package ir

import (
	"fmt"
)

// ValidationError represents a validation error.
type ValidationError struct {
	Message string
	// Optional context
	Symbol *SymbolHandle
	Op     int
	// Cause is the *Error behind the message, for region errors.
	Cause error
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Symbol != nil {
		return fmt.Sprintf("symbol %d: %s", *e.Symbol, e.Message)
	}
	if e.Op >= 0 {
		return fmt.Sprintf("op %d: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the cause, so errors.As finds the *Error kind of a
// region error.
func (e ValidationError) Unwrap() error { return e.Cause }

// Validator validates layers.
type Validator struct {
	layer  *Layer
	errors []ValidationError
}

// Validate checks the layer for structural correctness.
// Returns validation errors if any, or nil if the layer is valid.
func Validate(layer *Layer) ([]ValidationError, error) {
	if layer == nil {
		return nil, fmt.Errorf("layer is nil")
	}

	v := &Validator{
		layer:  layer,
		errors: make([]ValidationError, 0),
	}

	v.ValidateLayer()

	if len(v.errors) > 0 {
		return v.errors, nil
	}
	return nil, nil
}

// ValidateLayer validates symbols, ranges and the instruction stream.
func (v *Validator) ValidateLayer() {
	v.validateSymbols()

	n := len(v.layer.Ops)
	if v.layer.MainBegin < 0 || v.layer.MainBegin > v.layer.MainEnd || v.layer.MainEnd > n {
		v.addError(fmt.Sprintf("main code range [%d, %d) outside of %d ops", v.layer.MainBegin, v.layer.MainEnd, n))
		return
	}

	for i := range v.layer.Ops {
		v.validateOp(i)
	}
	if len(v.errors) > 0 {
		return
	}

	for i := range v.layer.Symbols {
		s := &v.layer.Symbols[i]
		if s.HasInitOps() {
			v.validateRange(s.InitBegin, s.InitEnd, 0)
		}
	}
	v.validateRange(v.layer.MainBegin, v.layer.MainEnd, 0)
}

func (v *Validator) validateSymbols() {
	n := len(v.layer.Ops)
	for i := range v.layer.Symbols {
		h := SymbolHandle(i)
		s := &v.layer.Symbols[i]

		if s.Name == "" {
			v.addErrorInSymbol(h, "symbol has no name")
		}
		if s.Alias != nil && !v.layer.Valid(*s.Alias) {
			v.addErrorInSymbol(h, fmt.Sprintf("alias %d out of range", *s.Alias))
		}
		if s.InitBegin < 0 || s.InitBegin > s.InitEnd || s.InitEnd > n {
			v.addErrorInSymbol(h, fmt.Sprintf("init range [%d, %d) outside of %d ops", s.InitBegin, s.InitEnd, n))
		}

		if s.SymType == SymConst {
			v.validateConst(h, s)
		} else if s.Const != nil {
			v.addErrorInSymbol(h, fmt.Sprintf("%s symbol carries a constant payload", s.SymType))
		}
	}
}

func (v *Validator) validateConst(h SymbolHandle, s *Symbol) {
	if s.Const == nil {
		v.addErrorInSymbol(h, "constant without payload")
		return
	}

	t := s.Type
	var got int
	switch {
	case t.IsStringBased():
		got = len(s.Const.Strings)
	case t.IsFloatBased():
		got = len(s.Const.Floats)
	case t.Base == BaseInt:
		got = len(s.Const.Ints)
	default:
		v.addErrorInSymbol(h, fmt.Sprintf("constant of type %s", t))
		return
	}
	if got != s.Const.Len() {
		v.addErrorInSymbol(h, fmt.Sprintf("constant of type %s has a mixed payload", t))
		return
	}

	if t.ArrayLen < 0 {
		if got == 0 || got%int(t.Aggregate) != 0 {
			v.addErrorInSymbol(h, fmt.Sprintf("unsized constant array has %d entries", got))
		}
		return
	}
	if want := t.NumElements() * int(t.Aggregate); got != want {
		v.addErrorInSymbol(h, fmt.Sprintf("constant of type %s has %d entries, want %d", t, got, want))
	}
}

func (v *Validator) validateOp(i int) {
	in := &v.layer.Ops[i]
	for k, a := range in.Args {
		if !v.layer.Valid(a.Sym) {
			v.addErrorInOp(i, fmt.Sprintf("argument %d refers to symbol %d, layer has %d", k, a.Sym, len(v.layer.Symbols)))
		}
	}

	prev := i + 1
	for k := 0; k < in.NumJumps(); k++ {
		j := in.Jumps[k]
		if j < prev || j > len(v.layer.Ops) {
			v.addErrorInOp(i, fmt.Sprintf("jump %d targets %d, want within [%d, %d]", k, j, prev, len(v.layer.Ops)))
			return
		}
		prev = j
	}
	for k := in.NumJumps(); k < MaxJumps; k++ {
		if in.Jumps[k] >= 0 {
			v.addErrorInOp(i, fmt.Sprintf("jump %d set after unset jump", k))
			return
		}
	}
}

// validateRange walks [begin, end) structurally, checking that nested
// regions stay inside their parent and that breaks are inside loops.
func (v *Validator) validateRange(begin, end, loops int) {
	for i := begin; i < end; {
		in := &v.layer.Ops[i]

		if in.Op == OpBreak && loops == 0 {
			v.addErrorInOp(i, "break outside of a loop")
		}

		r, err := RegionOf(v.layer, i)
		if err != nil {
			v.errors = append(v.errors, ValidationError{Message: err.Error(), Op: i, Cause: err})
			return
		}
		if r == nil {
			i++
			continue
		}
		if far := in.FarthestJump(); far > end {
			v.addErrorInOp(i, fmt.Sprintf("region ends at %d past enclosing end %d", far, end))
			return
		}

		switch r := r.(type) {
		case IfRegion:
			v.validateRange(r.Then.Begin, r.Then.End, loops)
			v.validateRange(r.Else.Begin, r.Else.End, loops)
		case LoopRegion:
			v.validateRange(r.Init.Begin, r.Init.End, loops)
			v.validateRange(r.Test.Begin, r.Test.End, loops)
			v.validateRange(r.Body.Begin, r.Body.End, loops+1)
			v.validateRange(r.Step.Begin, r.Step.End, loops+1)
		case CallRegion:
			v.validateRange(r.Body.Begin, r.Body.End, loops)
		}
		i = in.FarthestJump()
	}
}

func (v *Validator) addError(msg string) {
	v.errors = append(v.errors, ValidationError{
		Message: msg,
		Op:      -1,
	})
}

func (v *Validator) addErrorInSymbol(h SymbolHandle, msg string) {
	v.errors = append(v.errors, ValidationError{
		Message: msg,
		Symbol:  &h,
		Op:      -1,
	})
}

func (v *Validator) addErrorInOp(i int, msg string) {
	v.errors = append(v.errors, ValidationError{
		Message: msg,
		Op:      i,
	})
}
