// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package emit

import (
	"fmt"
	"math"

	"github.com/nikandfor/errors"
)

// Func is a function callable through Machine.Call.
type Func func(m *Machine, args []Value) (Value, error)

// MachineOptions configures a Machine.
type MachineOptions struct {
	// Lanes is the batch width. Zero means DefaultLanes().
	Lanes int

	// MaxIterations bounds the iterations of a single loop. Zero means
	// no bound.
	MaxIterations int
}

// Machine is an eager Builder over concrete lane vectors.
type Machine struct {
	lanes   int
	maxIter int

	masks  [][]bool
	broken [][]bool

	funcs map[string]Func

	allocas int
	named   map[string]int
	listing []string
}

var _ Builder = (*Machine)(nil)

// NewMachine creates a Machine with every lane active.
func NewMachine(opts MachineOptions) *Machine {
	if opts.Lanes <= 0 {
		opts.Lanes = DefaultLanes()
	}

	all := make([]bool, opts.Lanes)
	for i := range all {
		all[i] = true
	}

	return &Machine{
		lanes:   opts.Lanes,
		maxIter: opts.MaxIterations,
		masks:   [][]bool{all},
		funcs:   make(map[string]Func),
		named:   make(map[string]int),
	}
}

// Lanes implements Builder.
func (m *Machine) Lanes() int { return m.lanes }

// SetActive enables only the first n lanes, for partial batches.
func (m *Machine) SetActive(n int) {
	root := m.masks[0]
	for i := range root {
		root[i] = i < n
	}
}

// Mask returns a copy of the active lanes.
func (m *Machine) Mask() []bool {
	return append([]bool(nil), m.mask()...)
}

// mask returns the active lanes: the top of the mask stack minus the lanes
// that broke out of the innermost wide loop.
func (m *Machine) mask() []bool {
	top := m.masks[len(m.masks)-1]
	if len(m.broken) == 0 {
		return top
	}
	br := m.broken[len(m.broken)-1]
	out := make([]bool, m.lanes)
	for i := range out {
		out[i] = top[i] && !br[i]
	}
	return out
}

// Register makes fn callable by name.
func (m *Machine) Register(name string, fn Func) {
	m.funcs[name] = fn
}

// Listing returns the allocations and calls performed so far.
func (m *Machine) Listing() []string { return m.listing }

// Allocations returns the number of Alloca calls.
func (m *Machine) Allocations() int { return m.allocas }

// Allocated reports whether storage named name was allocated.
func (m *Machine) Allocated(name string) bool { return m.named[name] > 0 }

func (m *Machine) logf(format string, args ...any) {
	m.listing = append(m.listing, fmt.Sprintf(format, args...))
}

// block is a run of slots of one element type.
type block struct {
	name  string
	elem  Type
	slots []*Vec
}

type ptr struct {
	b   *block
	off int
}

func (p *ptr) Type() Type { return Type{Kind: KindAddr} }
func (p *ptr) Elem() Type { return p.b.elem }

func (p *ptr) String() string { return fmt.Sprintf("&%s[%d]", p.b.name, p.off) }

type structPtr struct {
	name   string
	fields []*ptr
}

func (p *structPtr) Type() Type { return Type{Kind: KindAddr} }
func (p *structPtr) Elem() Type { return Type{} }

func (m *Machine) newBlock(name string, elem Type, count int) *block {
	b := &block{name: name, elem: elem, slots: make([]*Vec, count)}
	for i := range b.slots {
		b.slots[i] = zeroVec(elem, m.lanes)
	}
	return b
}

// Alloca implements Builder.
func (m *Machine) Alloca(name string, elem Type, count int) Pointer {
	m.allocas++
	m.named[name]++
	m.logf("alloca %s %d x %s", name, count, elem)
	return &ptr{b: m.newBlock(name, elem, count)}
}

// Struct implements Builder.
func (m *Machine) Struct(name string, fields []Field) Pointer {
	s := &structPtr{name: name, fields: make([]*ptr, len(fields))}
	for i, f := range fields {
		s.fields[i] = &ptr{b: m.newBlock(name+"."+f.Name, f.Elem, max(f.Count, 1))}
	}
	return s
}

// Member implements Builder.
func (m *Machine) Member(p Pointer, field int) (Pointer, error) {
	s, ok := p.(*structPtr)
	if !ok {
		return nil, errors.Wrap(ErrShape, "member %d of non-struct %v", field, p)
	}
	if field < 0 || field >= len(s.fields) {
		return nil, errors.Wrap(ErrOutOfBounds, "member %d of %s with %d fields", field, s.name, len(s.fields))
	}
	return s.fields[field], nil
}

// Offset implements Builder.
func (m *Machine) Offset(p Pointer, n int) (Pointer, error) {
	q, ok := p.(*ptr)
	if !ok {
		return nil, errors.Wrap(ErrShape, "offset of %v", p)
	}
	return &ptr{b: q.b, off: q.off + n}, nil
}

// Index implements Builder.
func (m *Machine) Index(p Pointer, idx Value, stride int) (Pointer, error) {
	v, ok := idx.(*Vec)
	if !ok || v.T != Int {
		return nil, errors.Wrap(ErrShape, "index of type %v", idx.Type())
	}
	return m.Offset(p, int(v.I[0])*stride)
}

func (m *Machine) slot(p Pointer) (*ptr, *Vec, error) {
	q, ok := p.(*ptr)
	if !ok {
		return nil, nil, errors.Wrap(ErrShape, "access through %v", p)
	}
	if q.off < 0 || q.off >= len(q.b.slots) {
		return nil, nil, errors.Wrap(ErrOutOfBounds, "%v of %d slots", q, len(q.b.slots))
	}
	return q, q.b.slots[q.off], nil
}

// Load implements Builder.
func (m *Machine) Load(p Pointer) (Value, error) {
	_, s, err := m.slot(p)
	if err != nil {
		return nil, err
	}
	return s.clone(), nil
}

func (m *Machine) storeCheck(v Value, p Pointer) (*Vec, *Vec, error) {
	q, s, err := m.slot(p)
	if err != nil {
		return nil, nil, err
	}
	vec, ok := v.(*Vec)
	if !ok || vec.T != q.b.elem {
		return nil, nil, errors.Wrap(ErrShape, "store %v to %v of %v", v.Type(), q, q.b.elem)
	}
	if n := m.width(vec.T); vec.Len() != n {
		return nil, nil, errors.Wrap(ErrShape, "store of %d lanes to %v of %d", vec.Len(), q, n)
	}
	return vec, s, nil
}

// width is the number of elements a value of type t holds.
func (m *Machine) width(t Type) int {
	if t.Wide {
		return m.lanes
	}
	return 1
}

// Store implements Builder.
func (m *Machine) Store(v Value, p Pointer) error {
	vec, s, err := m.storeCheck(v, p)
	if err != nil {
		return err
	}
	c := vec.clone()
	*s = *c
	return nil
}

// MaskedStore implements Builder. Stores to uniform storage are not masked.
func (m *Machine) MaskedStore(v Value, p Pointer) error {
	vec, s, err := m.storeCheck(v, p)
	if err != nil {
		return err
	}
	if !vec.T.Wide {
		*s = *vec.clone()
		return nil
	}
	for i, on := range m.mask() {
		if on {
			s.copyLane(i, vec, i)
		}
	}
	return nil
}

// Memset implements Builder.
func (m *Machine) Memset(p Pointer, count int) error {
	q, ok := p.(*ptr)
	if !ok {
		return errors.Wrap(ErrShape, "memset of %v", p)
	}
	if q.off < 0 || q.off+count > len(q.b.slots) {
		return errors.Wrap(ErrOutOfBounds, "memset %d slots at %v of %d", count, q, len(q.b.slots))
	}
	for i := range count {
		q.b.slots[q.off+i] = zeroVec(q.b.elem, m.lanes)
	}
	return nil
}

// Memcpy implements Builder.
func (m *Machine) Memcpy(dst, src Pointer, count int) error {
	d, ok1 := dst.(*ptr)
	s, ok2 := src.(*ptr)
	if !ok1 || !ok2 || d.b.elem != s.b.elem {
		return errors.Wrap(ErrShape, "memcpy %v to %v", src, dst)
	}
	if d.off < 0 || s.off < 0 || d.off+count > len(d.b.slots) || s.off+count > len(s.b.slots) {
		return errors.Wrap(ErrOutOfBounds, "memcpy %d slots from %v to %v", count, s, d)
	}
	tmp := make([]*Vec, count)
	for i := range count {
		tmp[i] = s.b.slots[s.off+i].clone()
	}
	copy(d.b.slots[d.off:], tmp)
	m.logf("memcpy %v %v %d", d, s, count)
	return nil
}

func (m *Machine) ConstFloat(f float32) Value { return &Vec{T: Float, F: []float32{f}} }
func (m *Machine) ConstInt(i int32) Value     { return &Vec{T: Int, I: []int32{i}} }
func (m *Machine) ConstBool(b bool) Value     { return &Vec{T: Bool, B: []bool{b}} }
func (m *Machine) ConstString(s string) Value { return &Vec{T: String, S: []string{s}} }
func (m *Machine) Null() Value                { return &Vec{T: Ptr, P: []any{nil}} }

// ConstPtr returns an opaque reference to x.
func (m *Machine) ConstPtr(x any) Value { return &Vec{T: Ptr, P: []any{x}} }

// Broadcast implements Builder.
func (m *Machine) Broadcast(v Value) (Value, error) {
	vec, ok := v.(*Vec)
	if !ok || vec.T.Wide {
		return nil, errors.Wrap(ErrShape, "broadcast of %v", v.Type())
	}
	out := zeroVec(vec.T.Widened(), m.lanes)
	for i := range m.lanes {
		out.copyLane(i, vec, 0)
	}
	return out, nil
}

func asVec(v Value) (*Vec, error) {
	vec, ok := v.(*Vec)
	if !ok {
		return nil, errors.Wrap(ErrShape, "operand of type %v", v.Type())
	}
	return vec, nil
}

// Convert implements Builder.
func (m *Machine) Convert(v Value, to Kind) (Value, error) {
	in, err := asVec(v)
	if err != nil {
		return nil, err
	}
	if in.T.Kind == to {
		return in.clone(), nil
	}

	out := zeroVec(Type{Kind: to, Wide: in.T.Wide}, m.lanes)
	for i := range in.Len() {
		switch {
		case to == KindBool:
			out.B[i] = in.truth(i)
		case to == KindFloat && in.T.Kind == KindInt:
			out.F[i] = float32(in.I[i])
		case to == KindFloat && in.T.Kind == KindBool:
			out.F[i] = b2f(in.B[i])
		case to == KindInt && in.T.Kind == KindFloat:
			out.I[i] = int32(in.F[i])
		case to == KindInt && in.T.Kind == KindBool:
			out.I[i] = int32(b2f(in.B[i]))
		default:
			return nil, errors.Wrap(ErrShape, "convert %v to %v", in.T, to)
		}
	}
	return out, nil
}

func b2f(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func sameShape(a, b Value) (*Vec, *Vec, error) {
	x, err := asVec(a)
	if err != nil {
		return nil, nil, err
	}
	y, err := asVec(b)
	if err != nil {
		return nil, nil, err
	}
	if x.T != y.T {
		return nil, nil, errors.Wrap(ErrShape, "operands %v and %v", x.T, y.T)
	}
	return x, y, nil
}

// Binary implements Builder. Division by zero yields zero.
func (m *Machine) Binary(op BinOp, a, b Value) (Value, error) {
	x, y, err := sameShape(a, b)
	if err != nil {
		return nil, err
	}

	out := zeroVec(x.T, m.lanes)
	switch x.T.Kind {
	case KindFloat:
		for i := range x.F {
			out.F[i] = binf(op, x.F[i], y.F[i])
		}
	case KindInt:
		for i := range x.I {
			out.I[i] = bini(op, x.I[i], y.I[i])
		}
	default:
		return nil, errors.Wrap(ErrShape, "%v of %v", op, x.T)
	}
	return out, nil
}

func binf(op BinOp, a, b float32) float32 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	default:
		if b == 0 {
			return 0
		}
		return a / b
	}
}

func bini(op BinOp, a, b int32) int32 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	default:
		if b == 0 || (a == math.MinInt32 && b == -1) {
			return 0
		}
		return a / b
	}
}

// Neg implements Builder.
func (m *Machine) Neg(v Value) (Value, error) {
	x, err := asVec(v)
	if err != nil {
		return nil, err
	}
	out := x.clone()
	switch x.T.Kind {
	case KindFloat:
		for i := range out.F {
			out.F[i] = -out.F[i]
		}
	case KindInt:
		for i := range out.I {
			out.I[i] = -out.I[i]
		}
	default:
		return nil, errors.Wrap(ErrShape, "neg of %v", x.T)
	}
	return out, nil
}

// Compare implements Builder.
func (m *Machine) Compare(op CmpOp, a, b Value) (Value, error) {
	x, y, err := sameShape(a, b)
	if err != nil {
		return nil, err
	}

	out := zeroVec(Type{Kind: KindBool, Wide: x.T.Wide}, m.lanes)
	for i := range out.B {
		var c int
		switch x.T.Kind {
		case KindFloat:
			c = cmp3(x.F[i], y.F[i])
		case KindInt:
			c = cmp3(x.I[i], y.I[i])
		case KindString:
			if op != CmpEq && op != CmpNe {
				return nil, errors.Wrap(ErrShape, "%v of strings", op)
			}
			c = cmp3(x.S[i], y.S[i])
		case KindBool:
			if op != CmpEq && op != CmpNe {
				return nil, errors.Wrap(ErrShape, "%v of bools", op)
			}
			c = cmp3(b2f(x.B[i]), b2f(y.B[i]))
		default:
			return nil, errors.Wrap(ErrShape, "%v of %v", op, x.T)
		}
		out.B[i] = holds(op, c)
	}
	return out, nil
}

func cmp3[T int32 | float32 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	default:
		return 2 // unordered
	}
}

func holds(op CmpOp, c int) bool {
	switch op {
	case CmpEq:
		return c == 0
	case CmpNe:
		return c != 0
	case CmpLt:
		return c == -1
	case CmpLe:
		return c == -1 || c == 0
	case CmpGt:
		return c == 1
	default:
		return c == 1 || c == 0
	}
}

func (m *Machine) logical(a, b Value, f func(x, y bool) bool) (Value, error) {
	x, y, err := sameShape(a, b)
	if err != nil {
		return nil, err
	}
	if x.T.Kind != KindBool {
		return nil, errors.Wrap(ErrShape, "logical op on %v", x.T)
	}
	out := zeroVec(x.T, m.lanes)
	for i := range out.B {
		out.B[i] = f(x.B[i], y.B[i])
	}
	return out, nil
}

// And implements Builder.
func (m *Machine) And(a, b Value) (Value, error) {
	return m.logical(a, b, func(x, y bool) bool { return x && y })
}

// Or implements Builder.
func (m *Machine) Or(a, b Value) (Value, error) {
	return m.logical(a, b, func(x, y bool) bool { return x || y })
}

// Not implements Builder.
func (m *Machine) Not(v Value) (Value, error) {
	return m.logical(v, v, func(x, _ bool) bool { return !x })
}

// Call implements Builder.
func (m *Machine) Call(name string, args ...Value) (Value, error) {
	fn, ok := m.funcs[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownFunction, "%v", name)
	}
	m.logf("call %s %d args", name, len(args))
	return fn(m, args)
}
