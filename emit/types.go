// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package emit

import "fmt"

// Kind is the element representation of a value or storage slot.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindFloat
	KindInt
	// KindBool is the native predicate representation. It is distinct from
	// KindInt and is never reinterpreted as integer storage.
	KindBool
	KindString
	// KindPtr is an opaque reference: closures and renderer handles.
	KindPtr
	// KindAddr is the address of storage, as passed to functions by
	// reference.
	KindAddr
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindPtr:
		return "ptr"
	case KindAddr:
		return "addr"
	default:
		return "invalid"
	}
}

// Type is a kind plus a shape.
type Type struct {
	Kind Kind
	Wide bool
}

func (t Type) String() string {
	if t.Wide {
		return fmt.Sprintf("wide %s", t.Kind)
	}
	return t.Kind.String()
}

// Uniform returns the uniform variant of t.
func (t Type) Uniform() Type { return Type{Kind: t.Kind} }

// Widened returns the wide variant of t.
func (t Type) Widened() Type { return Type{Kind: t.Kind, Wide: true} }

// Common types.
var (
	Float     = Type{Kind: KindFloat}
	Int       = Type{Kind: KindInt}
	Bool      = Type{Kind: KindBool}
	String    = Type{Kind: KindString}
	Ptr       = Type{Kind: KindPtr}
	WideFloat = Type{Kind: KindFloat, Wide: true}
	WideInt   = Type{Kind: KindInt, Wide: true}
	WideBool  = Type{Kind: KindBool, Wide: true}
)

// BinOp is an arithmetic operator.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
)

func (op BinOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	default:
		return "binop?"
	}
}

// CmpOp is a comparison operator. Comparisons produce KindBool.
type CmpOp uint8

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

func (op CmpOp) String() string {
	switch op {
	case CmpEq:
		return "eq"
	case CmpNe:
		return "ne"
	case CmpLt:
		return "lt"
	case CmpLe:
		return "le"
	case CmpGt:
		return "gt"
	case CmpGe:
		return "ge"
	default:
		return "cmp?"
	}
}

// Field is one member of a struct block: Count consecutive slots of Elem.
type Field struct {
	Name  string
	Elem  Type
	Count int
}
