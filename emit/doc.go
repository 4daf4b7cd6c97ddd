// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package emit defines the code-emission primitives the wide generator
// lowers shader layers onto, and Machine, an eager reference backend.
//
// A Builder exposes stack allocation, typed pointers into struct blocks,
// loads and stores (optionally restricted to the active lanes), scalar and
// wide literals, conversions, arithmetic, comparisons, function calls and
// structured control flow. Every value is either uniform (one scalar for
// the whole batch) or wide (one element per lane); the only implicit
// shape change a Builder offers is Broadcast.
//
// Machine executes each primitive immediately over concrete lane vectors,
// in the manner of a scalar-fallback SIMD library. Control flow is
// expressed with callbacks: If and Loop run the callbacks under the lane
// mask they establish, so divergent code executes both sides with the
// appropriate lanes enabled.
package emit
