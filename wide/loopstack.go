// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package wide

import (
	"github.com/gogpu/wideshade/emit"
	"github.com/gogpu/wideshade/ir"
)

// LoopStack tracks the loops enclosing the code being lowered. An entry is
// the loop's condition when the loop is varying, or ir.NoSymbol for a
// uniform loop.
type LoopStack struct {
	b       emit.Builder
	entries []ir.SymbolHandle
}

// NewLoopStack creates an empty stack.
func NewLoopStack(b emit.Builder) *LoopStack {
	return &LoopStack{b: b}
}

// Push enters a loop on cond.
func (s *LoopStack) Push(cond ir.SymbolHandle, varying bool) {
	if !varying {
		cond = ir.NoSymbol
	}
	s.entries = append(s.entries, cond)
}

// Top returns the innermost entry. ok is false when no loop is open.
func (s *LoopStack) Top() (cond ir.SymbolHandle, ok bool) {
	if len(s.entries) == 0 {
		return ir.NoSymbol, false
	}
	return s.entries[len(s.entries)-1], true
}

// Varying reports whether the innermost loop is varying.
func (s *LoopStack) Varying() bool {
	cond, ok := s.Top()
	return ok && cond != ir.NoSymbol
}

// Pop leaves the innermost loop. Leaving a varying loop discards its
// broken-lane state.
func (s *LoopStack) Pop() {
	if len(s.entries) == 0 {
		return
	}
	varying := s.Varying()
	s.entries = s.entries[:len(s.entries)-1]
	if varying {
		s.b.ClearMaskBreak()
	}
}

// Len returns the number of open loops.
func (s *LoopStack) Len() int { return len(s.entries) }
