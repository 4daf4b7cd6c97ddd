package analysis

import (
	"fmt"
	"io"
	"slices"

	"github.com/samber/lo"

	"github.com/gogpu/wideshade/ir"
)

// Info is the classification of one layer.
type Info struct {
	Layer *ir.Layer

	globals *ir.GlobalTable
	uniform map[ir.SymbolHandle]bool
	masked  []bool
}

// IsUniform reports whether h holds one value for the whole batch.
// Aliases are classified as the symbol they alias. Symbols the layer
// never references are uniform, except output parameters, which are
// varying, and globals, which keep the shape of their table entry.
func (in *Info) IsUniform(h ir.SymbolHandle) bool {
	if in.Layer.Valid(h) {
		h = in.Layer.Dealias(h)
	}
	if u, ok := in.uniform[h]; ok {
		return u
	}
	if !in.Layer.Valid(h) {
		return true
	}

	switch s := in.Layer.Symbol(h); s.SymType {
	case ir.SymOutputParam:
		return false
	case ir.SymGlobal:
		return in.globals.IsUniform(s.Name)
	}
	return true
}

// IsVarying is the negation of IsUniform.
func (in *Info) IsVarying(h ir.SymbolHandle) bool { return !in.IsUniform(h) }

// RequiresMasking reports whether stores of instruction op must be
// restricted to the active lanes.
func (in *Info) RequiresMasking(op int) bool {
	return op >= 0 && op < len(in.masked) && in.masked[op]
}

// Referenced returns the symbols read or written by the walked code, in
// handle order.
func (in *Info) Referenced() []ir.SymbolHandle {
	hs := lo.Keys(in.uniform)
	slices.Sort(hs)
	return hs
}

// Varying returns the referenced varying symbols in handle order.
func (in *Info) Varying() []ir.SymbolHandle {
	return lo.Filter(in.Referenced(), func(h ir.SymbolHandle, _ int) bool {
		return !in.uniform[h]
	})
}

// MaskedOps returns the indices of instructions that require masking.
func (in *Info) MaskedOps() []int {
	var ops []int
	for i, m := range in.masked {
		if m {
			ops = append(ops, i)
		}
	}
	return ops
}

// Dump writes a human-readable classification table.
func (in *Info) Dump(w io.Writer) error {
	refs := in.Referenced()
	width := lo.Max(lo.Map(refs, func(h ir.SymbolHandle, _ int) int {
		return len(in.Layer.Symbol(h).Mangled())
	}))

	if _, err := fmt.Fprintf(w, "layer %q\n", in.Layer.Name); err != nil {
		return err
	}
	for _, h := range refs {
		s := in.Layer.Symbol(h)
		shape := "uniform"
		if !in.uniform[h] {
			shape = "varying"
		}
		if _, err := fmt.Fprintf(w, "  %-*s  %-11s %-13s %s\n", width, s.Mangled(), s.SymType, s.Type, shape); err != nil {
			return err
		}
	}

	ops := in.MaskedOps()
	if len(ops) == 0 {
		_, err := fmt.Fprintln(w, "  masked ops: none")
		return err
	}
	_, err := fmt.Fprintf(w, "  masked ops: %v\n", lo.Map(ops, func(i int, _ int) string {
		return fmt.Sprintf("%d:%s", i, in.Layer.Ops[i].Op)
	}))
	return err
}
