// Package analysis classifies the symbols of a shader layer as uniform or
// varying across the lanes of a batch, and flags the instructions whose
// stores must be restricted to the active lanes.
//
// The walk visits regions in the same order and at the same nesting depth
// as the wide code generator. Every region that starts a new predicate
// scope (either branch of an if, the body and step of a loop) gets its own
// mask id. A symbol written under one mask and read at a shallower depth
// under a different mask crosses a divergence boundary, so the deeper
// writes to it are flagged as requiring masking.
//
// Uniformity is computed optimistically: every referenced symbol starts
// uniform, then varying seeds (varying shader globals, parameters,
// renderer attribute fetches) are propagated along data and control
// dependency edges. Output parameters are always varying.
package analysis
