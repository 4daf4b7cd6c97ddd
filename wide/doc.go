// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package wide lowers an analyzed shader layer onto an emit.Builder, one
// batch of shading points per invocation.
//
// Symbols classified uniform occupy one scalar per slot; varying symbols
// occupy one lane vector per slot. Every symbol's storage is laid out as
// [derivative][array element][component], so a symbol with derivatives
// holds three consecutive planes: value, d/dx and d/dy.
//
// Shader globals live in a struct block whose field shapes are fixed by
// the globals table. Parameters of all layers of a group share a group
// data block; field 0 holds one run flag per layer. Locals, temporaries
// and materialized constants are stack allocated on first use.
package wide
