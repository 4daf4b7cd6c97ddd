// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package emit

import "github.com/nikandfor/errors"

// Value is an SSA-like value produced by a Builder.
type Value interface {
	Type() Type
}

// Pointer addresses storage of Elem typed slots. Pointers are values of
// KindAddr, so they can be passed to functions by reference.
type Pointer interface {
	Value
	Elem() Type
}

var (
	// ErrShape reports a value whose kind or shape disagrees with its
	// destination or with the other operand.
	ErrShape = errors.New("inconsistent shape")

	// ErrBreak is returned from a uniform loop body to leave the loop.
	ErrBreak = errors.New("break")

	ErrIterationLimit  = errors.New("loop iteration limit exceeded")
	ErrUnknownFunction = errors.New("unknown function")
	ErrOutOfBounds     = errors.New("access out of bounds")
)

// Builder is the code-emission service the wide generator lowers onto.
type Builder interface {
	// Lanes returns the batch width.
	Lanes() int

	// Alloca reserves count slots of elem on the stack.
	Alloca(name string, elem Type, count int) Pointer
	// Struct creates a named block with the given fields.
	Struct(name string, fields []Field) Pointer
	// Member returns the address of field i of a struct block.
	Member(p Pointer, field int) (Pointer, error)
	// Offset advances p by n slots.
	Offset(p Pointer, n int) (Pointer, error)
	// Index advances p by idx*stride slots; idx is a uniform int.
	Index(p Pointer, idx Value, stride int) (Pointer, error)

	Load(p Pointer) (Value, error)
	Store(v Value, p Pointer) error
	// MaskedStore stores only the active lanes of a wide value.
	MaskedStore(v Value, p Pointer) error
	// Memset zero-fills count slots.
	Memset(p Pointer, count int) error
	// Memcpy copies count slots from src to dst.
	Memcpy(dst, src Pointer, count int) error

	ConstFloat(f float32) Value
	ConstInt(i int32) Value
	ConstBool(b bool) Value
	ConstString(s string) Value
	// Null returns the null opaque reference.
	Null() Value
	// Broadcast duplicates a uniform value across all lanes.
	Broadcast(v Value) (Value, error)

	// Convert changes the representation of v, keeping its shape.
	Convert(v Value, to Kind) (Value, error)
	Binary(op BinOp, a, b Value) (Value, error)
	Neg(v Value) (Value, error)
	Compare(op CmpOp, a, b Value) (Value, error)
	And(a, b Value) (Value, error)
	Or(a, b Value) (Value, error)
	Not(v Value) (Value, error)

	// Call invokes a named function. It returns nil for void functions.
	Call(name string, args ...Value) (Value, error)

	// If runs then or els depending on cond. A wide cond runs each side
	// under the lanes that take it, skipping sides with no lanes.
	If(cond Value, then, els func() error) error

	// Loop runs body while test yields true. A wide loop keeps iterating
	// while any lane is still running and tracks lanes that broke out;
	// the caller clears that state with ClearMaskBreak after the loop.
	// A uniform loop ends when body returns ErrBreak.
	Loop(wide, testFirst bool, test func() (Value, error), body func() error) error

	// MaskedBreak retires the active lanes from the innermost wide loop.
	MaskedBreak() error
	// ClearMaskBreak discards the broken-lane state of the innermost wide
	// loop.
	ClearMaskBreak()
}
