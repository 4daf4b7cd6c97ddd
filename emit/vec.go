// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package emit

import (
	"fmt"
	"strings"
)

// Vec is the Machine's value: one element for uniform values, one per
// lane for wide values. Only the slice matching T.Kind is populated.
type Vec struct {
	T Type
	F []float32
	I []int32
	B []bool
	S []string
	P []any
}

// Type implements Value.
func (v *Vec) Type() Type { return v.T }

// Len returns the number of elements.
func (v *Vec) Len() int {
	switch v.T.Kind {
	case KindFloat:
		return len(v.F)
	case KindInt:
		return len(v.I)
	case KindBool:
		return len(v.B)
	case KindString:
		return len(v.S)
	case KindPtr:
		return len(v.P)
	default:
		return 0
	}
}

// Lane returns element i, or element 0 of a uniform value.
func (v *Vec) Lane(i int) any {
	if !v.T.Wide {
		i = 0
	}
	switch v.T.Kind {
	case KindFloat:
		return v.F[i]
	case KindInt:
		return v.I[i]
	case KindBool:
		return v.B[i]
	case KindString:
		return v.S[i]
	case KindPtr:
		return v.P[i]
	default:
		return nil
	}
}

// truth reports whether element i is nonzero.
func (v *Vec) truth(i int) bool {
	if !v.T.Wide {
		i = 0
	}
	switch v.T.Kind {
	case KindFloat:
		return v.F[i] != 0
	case KindInt:
		return v.I[i] != 0
	case KindBool:
		return v.B[i]
	case KindString:
		return v.S[i] != ""
	case KindPtr:
		return v.P[i] != nil
	default:
		return false
	}
}

func (v *Vec) clone() *Vec {
	c := &Vec{T: v.T}
	c.F = append([]float32(nil), v.F...)
	c.I = append([]int32(nil), v.I...)
	c.B = append([]bool(nil), v.B...)
	c.S = append([]string(nil), v.S...)
	c.P = append([]any(nil), v.P...)
	return c
}

// copyLane sets element i of v from element j of src.
func (v *Vec) copyLane(i int, src *Vec, j int) {
	switch v.T.Kind {
	case KindFloat:
		v.F[i] = src.F[j]
	case KindInt:
		v.I[i] = src.I[j]
	case KindBool:
		v.B[i] = src.B[j]
	case KindString:
		v.S[i] = src.S[j]
	case KindPtr:
		v.P[i] = src.P[j]
	}
}

func (v *Vec) String() string {
	var b strings.Builder
	if v.T.Wide {
		b.WriteByte('<')
	}
	for i := range v.Len() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprint(&b, v.Lane(i))
	}
	if v.T.Wide {
		b.WriteByte('>')
	}
	return b.String()
}

// zeroVec returns a zero value of t.
func zeroVec(t Type, lanes int) *Vec {
	n := 1
	if t.Wide {
		n = lanes
	}
	v := &Vec{T: t}
	switch t.Kind {
	case KindFloat:
		v.F = make([]float32, n)
	case KindInt:
		v.I = make([]int32, n)
	case KindBool:
		v.B = make([]bool, n)
	case KindString:
		v.S = make([]string, n)
	case KindPtr:
		v.P = make([]any, n)
	}
	return v
}
