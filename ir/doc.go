// Package ir defines the symbol and instruction model consumed by the wide
// code generator.
//
// A Layer is one instantiated shading program unit. It owns an arena of
// Symbols (typed storage slots addressed by SymbolHandle) and a flat,
// ordered stream of Instructions. Structured control constructs (if, the
// three loop forms, inlined function calls) delimit their nested code with a
// fixed-size list of jump targets, so every region is a contiguous index
// range [begin, end) of the stream.
//
// # Structure
//
//   - Symbols: globals, parameters, outputs, locals, temporaries, constants
//   - Ops: the instruction stream, with per-argument read/write flags
//   - Regions: a tagged-union view of control opcodes (IfRegion,
//     LoopRegion, CallRegion) derived from jump targets
//   - GlobalTable: the fixed shader-globals record layout and the static
//     uniform/varying shape of each field
//
// The model is read-only once a layer is built. Analysis results live in
// separate tables owned by the analysis package.
package ir
