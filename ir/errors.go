package ir

import "fmt"

// ErrorKind categorizes compilation errors.
type ErrorKind uint8

const (
	// ErrUnsupportedType indicates an element type the lowering does not handle.
	ErrUnsupportedType ErrorKind = iota

	// ErrUnsupportedControl indicates an opcode with jump targets that is not
	// one of the structured control constructs.
	ErrUnsupportedControl

	// ErrUnsupportedFeature indicates an opcode or operand combination the
	// wide generator does not lower.
	ErrUnsupportedFeature

	// ErrUnresolvedSymbol indicates a referenced symbol has no storage.
	ErrUnresolvedSymbol

	// ErrInconsistentShape indicates a value whose uniform/wide shape or
	// representation disagrees with its destination.
	ErrInconsistentShape

	// ErrInvalidLayer indicates the instruction stream is malformed.
	ErrInvalidLayer

	// ErrInternalError indicates an internal compiler error.
	ErrInternalError
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrUnsupportedType:
		return "UnsupportedType"
	case ErrUnsupportedControl:
		return "UnsupportedControl"
	case ErrUnsupportedFeature:
		return "UnsupportedFeature"
	case ErrUnresolvedSymbol:
		return "UnresolvedSymbol"
	case ErrInconsistentShape:
		return "InconsistentShape"
	case ErrInvalidLayer:
		return "InvalidLayer"
	case ErrInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Error is a compilation error scoped to one layer.
type Error struct {
	// Kind categorizes the error.
	Kind ErrorKind

	// Layer names the layer being compiled, if known.
	Layer string

	// Op is the instruction index, or -1.
	Op int

	// Message provides details about the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Layer != "" && e.Op >= 0:
		return fmt.Sprintf("%s: layer %q, op %d: %s", e.Kind, e.Layer, e.Op, e.Message)
	case e.Layer != "":
		return fmt.Sprintf("%s: layer %q: %s", e.Kind, e.Layer, e.Message)
	case e.Op >= 0:
		return fmt.Sprintf("%s: op %d: %s", e.Kind, e.Op, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// NewError creates an error without layer or op context.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      -1,
		Message: message,
	}
}

// Errorf creates an error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an error of kind caused by err. The message is err's text.
func Wrap(kind ErrorKind, err error) *Error {
	e := NewError(kind, err.Error())
	e.Cause = err
	return e
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Cause }

// At returns a copy of e with layer and op context.
func (e *Error) At(layer string, op int) *Error {
	c := *e
	c.Layer = layer
	c.Op = op
	return &c
}

// IsCoverage reports errors for constructs the backend does not handle yet.
func (e *Error) IsCoverage() bool {
	return e.Kind == ErrUnsupportedType || e.Kind == ErrUnsupportedControl || e.Kind == ErrUnsupportedFeature
}

// IsResolution reports errors for symbols without storage.
func (e *Error) IsResolution() bool {
	return e.Kind == ErrUnresolvedSymbol
}

// IsConsistency reports analyzer/value-access contract violations.
func (e *Error) IsConsistency() bool {
	return e.Kind == ErrInconsistentShape || e.Kind == ErrInternalError
}
