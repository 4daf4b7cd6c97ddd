// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wideshade

import (
	"slices"

	"github.com/nikandfor/errors"

	"github.com/gogpu/wideshade/emit"
)

// Attributes answers getattribute lookups. Keys are attribute names, or
// "object:name" when the lookup names an object. Values hold one entry per
// component, uniform or wide.
type Attributes map[string][]emit.Value

// host is the getattribute function registered on every batch. Its
// arguments are the addresses of the optional object, the name and the
// destination. Lanes whose key is missing keep their destination.
func (a Attributes) host(m *emit.Machine, args []emit.Value) (emit.Value, error) {
	if len(args) < 2 {
		return nil, errors.New("getattribute: %d args", len(args))
	}

	dst, ok := args[len(args)-1].(emit.Pointer)
	if !ok {
		return nil, errors.Wrap(emit.ErrShape, "getattribute destination %v", args[len(args)-1].Type())
	}

	keys := make([]string, m.Lanes())

	for j, arg := range args[:len(args)-1] {
		v, err := loadString(m, arg)
		if err != nil {
			return nil, err
		}

		for i := range keys {
			s := v.Lane(i).(string)
			if j > 0 {
				s = keys[i] + ":" + s
			}
			keys[i] = s
		}
	}

	found := &emit.Vec{T: emit.WideBool, B: make([]bool, m.Lanes())}

	distinct := slices.Clone(keys)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)

	for _, key := range distinct {
		val, ok := a[key]
		if !ok {
			continue
		}

		sel := &emit.Vec{T: emit.WideBool, B: make([]bool, m.Lanes())}
		for i, k := range keys {
			sel.B[i] = k == key
			found.B[i] = found.B[i] || sel.B[i]
		}

		err := m.If(sel, func() error {
			return storeAttribute(m, val, dst)
		}, nil)
		if err != nil {
			return nil, errors.Wrap(err, "attribute %v", key)
		}
	}

	return found, nil
}

func loadString(m *emit.Machine, arg emit.Value) (*emit.Vec, error) {
	p, ok := arg.(emit.Pointer)
	if !ok {
		return nil, errors.Wrap(emit.ErrShape, "getattribute lookup by value %v", arg.Type())
	}

	v, err := m.Load(p)
	if err != nil {
		return nil, err
	}

	vec, ok := v.(*emit.Vec)
	if !ok || vec.T.Kind != emit.KindString {
		return nil, errors.Wrap(emit.ErrShape, "getattribute lookup by %v", v.Type())
	}

	return vec, nil
}

func storeAttribute(m *emit.Machine, val []emit.Value, dst emit.Pointer) error {
	for c, v := range val {
		p, err := m.Offset(dst, c)
		if err != nil {
			return err
		}

		if !v.Type().Wide {
			v, err = m.Broadcast(v)
			if err != nil {
				return err
			}
		}

		if err := m.MaskedStore(v, p); err != nil {
			return err
		}
	}

	return nil
}
