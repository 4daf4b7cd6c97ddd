// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package layerfile

import (
	"github.com/nikandfor/errors"

	"github.com/gogpu/wideshade/ir"
)

// names maps mangled and plain symbol names to handles.
type names struct {
	mangled map[string]ir.SymbolHandle

	// plain holds the handles declared under each plain name.
	plain map[string][]ir.SymbolHandle
}

func newNames() *names {
	return &names{
		mangled: make(map[string]ir.SymbolHandle),
		plain:   make(map[string][]ir.SymbolHandle),
	}
}

func (n *names) add(s ir.Symbol, h ir.SymbolHandle) error {
	m := s.Mangled()

	if _, ok := n.mangled[m]; ok {
		return errors.New("duplicate symbol %s", m)
	}

	n.mangled[m] = h
	n.plain[s.Name] = append(n.plain[s.Name], h)

	return nil
}

func (n *names) lookup(name string) (ir.SymbolHandle, error) {
	if h, ok := n.mangled[name]; ok {
		return h, nil
	}

	switch hs := n.plain[name]; len(hs) {
	case 0:
		return ir.NoSymbol, errors.New("unknown symbol %q", name)
	case 1:
		return hs[0], nil
	default:
		return ir.NoSymbol, errors.New("ambiguous symbol %q: %d scopes", name, len(hs))
	}
}
