package ir

import (
	"strconv"
	"strings"
)

// BaseType is the scalar base of a TypeSpec.
type BaseType uint8

const (
	BaseNone BaseType = iota
	BaseFloat
	BaseInt
	BaseString
	BasePtr // opaque renderer handle
)

// Aggregate is the number of scalar components in one element.
type Aggregate uint8

const (
	AggScalar   Aggregate = 1
	AggTriple   Aggregate = 3
	AggMatrix44 Aggregate = 16
)

// VecSemantics distinguishes the triple flavors. It does not change storage.
type VecSemantics uint8

const (
	SemNone VecSemantics = iota
	SemColor
	SemPoint
	SemVector
	SemNormal
)

// TypeSpec describes the element type of a symbol.
type TypeSpec struct {
	Base      BaseType
	Aggregate Aggregate
	Semantics VecSemantics

	// ArrayLen is 0 for non-arrays and -1 for unsized arrays.
	ArrayLen int

	// Closure marks closure color types; storage is an opaque pointer.
	Closure bool

	// Struct is the structure name for structure placeholders.
	Struct string
}

// Common types.
var (
	Void    = TypeSpec{Base: BaseNone, Aggregate: AggScalar}
	Float   = TypeSpec{Base: BaseFloat, Aggregate: AggScalar}
	Int     = TypeSpec{Base: BaseInt, Aggregate: AggScalar}
	String  = TypeSpec{Base: BaseString, Aggregate: AggScalar}
	Ptr     = TypeSpec{Base: BasePtr, Aggregate: AggScalar}
	Color   = TypeSpec{Base: BaseFloat, Aggregate: AggTriple, Semantics: SemColor}
	Point   = TypeSpec{Base: BaseFloat, Aggregate: AggTriple, Semantics: SemPoint}
	Vector  = TypeSpec{Base: BaseFloat, Aggregate: AggTriple, Semantics: SemVector}
	Normal  = TypeSpec{Base: BaseFloat, Aggregate: AggTriple, Semantics: SemNormal}
	Matrix  = TypeSpec{Base: BaseFloat, Aggregate: AggMatrix44}
	Closure = TypeSpec{Base: BaseNone, Aggregate: AggScalar, Closure: true}
)

// ArrayOf returns an array type of n elements of t.
func ArrayOf(t TypeSpec, n int) TypeSpec {
	t.ArrayLen = n
	return t
}

// StructOf returns a structure placeholder type.
func StructOf(name string) TypeSpec {
	return TypeSpec{Base: BaseNone, Aggregate: AggScalar, Struct: name}
}

// ElementType strips the array dimension.
func (t TypeSpec) ElementType() TypeSpec {
	t.ArrayLen = 0
	return t
}

// NumElements returns the array length, or 1 for non-arrays.
func (t TypeSpec) NumElements() int {
	if t.ArrayLen > 0 {
		return t.ArrayLen
	}
	return 1
}

func (t TypeSpec) IsArray() bool     { return t.ArrayLen != 0 }
func (t TypeSpec) IsStructure() bool { return t.Struct != "" }

func (t TypeSpec) IsClosure() bool { return t.Closure && t.ArrayLen == 0 }

// IsClosureBased reports closures and arrays of closures.
func (t TypeSpec) IsClosureBased() bool { return t.Closure }

func (t TypeSpec) simple() bool { return !t.Closure && t.Struct == "" && t.ArrayLen == 0 }

func (t TypeSpec) IsFloat() bool {
	return t.simple() && t.Base == BaseFloat && t.Aggregate == AggScalar
}

func (t TypeSpec) IsInt() bool {
	return t.simple() && t.Base == BaseInt && t.Aggregate == AggScalar
}

func (t TypeSpec) IsString() bool {
	return t.simple() && t.Base == BaseString
}

// IsStringBased reports strings and arrays of strings.
func (t TypeSpec) IsStringBased() bool {
	return !t.Closure && t.Struct == "" && t.Base == BaseString
}

func (t TypeSpec) IsTriple() bool {
	return t.simple() && t.Base == BaseFloat && t.Aggregate == AggTriple
}

func (t TypeSpec) IsMatrix() bool {
	return t.simple() && t.Base == BaseFloat && t.Aggregate == AggMatrix44
}

func (t TypeSpec) IsIntOrFloat() bool { return t.IsInt() || t.IsFloat() }

// IsFloatBased reports float, triple and matrix types and arrays of them.
func (t TypeSpec) IsFloatBased() bool {
	return !t.Closure && t.Struct == "" && t.Base == BaseFloat
}

// String returns the shading-language spelling of the type.
func (t TypeSpec) String() string {
	var b strings.Builder

	switch {
	case t.Struct != "":
		b.WriteString("struct ")
		b.WriteString(t.Struct)
	case t.Closure:
		b.WriteString("closure color")
	default:
		b.WriteString(t.elementName())
	}

	switch {
	case t.ArrayLen > 0:
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(t.ArrayLen))
		b.WriteByte(']')
	case t.ArrayLen < 0:
		b.WriteString("[]")
	}

	return b.String()
}

func (t TypeSpec) elementName() string {
	switch t.Base {
	case BaseFloat:
		switch t.Aggregate {
		case AggTriple:
			switch t.Semantics {
			case SemColor:
				return "color"
			case SemPoint:
				return "point"
			case SemNormal:
				return "normal"
			default:
				return "vector"
			}
		case AggMatrix44:
			return "matrix"
		default:
			return "float"
		}
	case BaseInt:
		return "int"
	case BaseString:
		return "string"
	case BasePtr:
		return "ptr"
	default:
		return "void"
	}
}

// ParseType parses the spelling produced by String. It accepts the
// element names float, int, string, ptr, void, color, point, vector,
// normal, matrix and closure, with an optional [N] or [] suffix.
func ParseType(s string) (TypeSpec, bool) {
	s = strings.TrimSpace(s)

	arrayLen := 0
	if i := strings.IndexByte(s, '['); i >= 0 {
		if !strings.HasSuffix(s, "]") {
			return TypeSpec{}, false
		}
		dim := s[i+1 : len(s)-1]
		s = strings.TrimSpace(s[:i])
		if dim == "" {
			arrayLen = -1
		} else {
			n, err := strconv.Atoi(dim)
			if err != nil || n <= 0 {
				return TypeSpec{}, false
			}
			arrayLen = n
		}
	}

	var t TypeSpec
	switch s {
	case "float":
		t = Float
	case "int":
		t = Int
	case "string":
		t = String
	case "ptr":
		t = Ptr
	case "void":
		t = Void
	case "color":
		t = Color
	case "point":
		t = Point
	case "vector":
		t = Vector
	case "normal":
		t = Normal
	case "matrix":
		t = Matrix
	case "closure", "closure color":
		t = Closure
	default:
		if name, ok := strings.CutPrefix(s, "struct "); ok && name != "" {
			t = StructOf(name)
		} else {
			return TypeSpec{}, false
		}
	}

	t.ArrayLen = arrayLen
	return t, true
}
