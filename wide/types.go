// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wide

import (
	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
)

// Cast is an optional numeric conversion applied by Load.
type Cast uint8

const (
	CastNone Cast = iota
	CastInt
	CastFloat
)

func (c Cast) String() string {
	switch c {
	case CastInt:
		return "int"
	case CastFloat:
		return "float"
	default:
		return "none"
	}
}

// castFor returns the cast that loads a value in the representation of t.
func castFor(t ir.TypeSpec) Cast {
	switch {
	case t.IsFloatBased():
		return CastFloat
	case t.Base == ir.BaseInt && !t.Closure:
		return CastInt
	default:
		return CastNone
	}
}

// Location is the storage of one symbol.
type Location struct {
	// Ptr addresses the first slot.
	Ptr emit.Pointer

	Sym  ir.SymbolHandle
	Type ir.TypeSpec

	// Elem is the type of every slot; Elem.Wide is the storage shape.
	Elem emit.Type

	Derivs bool

	// Predicate marks native boolean storage.
	Predicate bool

	// Elements is the number of array elements, 1 for non-arrays.
	Elements int
}

// Uniform reports scalar storage.
func (l *Location) Uniform() bool { return !l.Elem.Wide }

// Components returns the scalar components per array element.
func (l *Location) Components() int { return int(l.Type.Aggregate) }

// Plane returns the number of slots holding one derivative plane.
func (l *Location) Plane() int { return l.Elements * l.Components() }

// Slots returns the total number of slots.
func (l *Location) Slots() int {
	if l.Derivs {
		return 3 * l.Plane()
	}
	return l.Plane()
}

// lowerKind maps an element type to its slot representation.
func lowerKind(t ir.TypeSpec) (emit.Kind, error) {
	switch {
	case t.IsStructure():
		return emit.KindInvalid, ir.Errorf(ir.ErrUnsupportedType, "structure %s has no storage", t.Struct)
	case t.IsClosureBased():
		return emit.KindPtr, nil
	case t.Base == ir.BaseFloat:
		return emit.KindFloat, nil
	case t.Base == ir.BaseInt:
		return emit.KindInt, nil
	case t.Base == ir.BaseString:
		return emit.KindString, nil
	case t.Base == ir.BasePtr:
		return emit.KindPtr, nil
	default:
		return emit.KindInvalid, ir.Errorf(ir.ErrUnsupportedType, "no storage for type %s", t)
	}
}

// numElements returns the array length of s, sizing unsized arrays from
// their payload.
func numElements(s *ir.Symbol) int {
	switch {
	case s.Type.ArrayLen > 0:
		return s.Type.ArrayLen
	case s.Type.ArrayLen < 0:
		payload := s.Const
		if payload == nil {
			payload = s.Default
		}
		if n := payload.Len() / int(s.Type.Aggregate); n > 0 {
			return n
		}
	}
	return 1
}

// slotCount returns the storage size of s.
func slotCount(s *ir.Symbol) int {
	n := numElements(s) * int(s.Type.Aggregate)
	if s.HasDerivs {
		n *= 3
	}
	return n
}
