package analysis

import (
	"context"
	"testing"

	"github.com/gogpu/wideshade/ir"
)

// nestedLayer builds depth nested loops, each breaking on a varying test.
func nestedLayer(depth int) *ir.Layer {
	b := ir.NewLayerBuilder("nested")
	u := b.Global("u")
	zero := b.ConstFloat(0)
	one := b.ConstFloat(1)
	acc := b.Output("acc", ir.Float)
	b.BeginMain()

	var loops []int
	for d := range depth {
		cond := b.Temp("cond", ir.Int)
		b.Get(cond).Scope = d + 1
		l := b.BeginLoop(ir.OpWhile, cond)
		b.LoopTest(l)
		b.Op(ir.OpLt, cond, acc, u)
		b.LoopBody(l)
		loops = append(loops, l)
	}
	brk := b.Temp("brk", ir.Int)
	b.Op(ir.OpGt, brk, u, zero)
	f := b.BeginIf(brk)
	b.Break()
	b.Else(f)
	b.Op(ir.OpAdd, acc, acc, one)
	b.EndIf(f)
	for i := len(loops) - 1; i >= 0; i-- {
		b.LoopStep(loops[i])
		b.EndLoop(loops[i])
	}
	return b.Layer()
}

func BenchmarkAnalyze(b *testing.B) {
	l := nestedLayer(16)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := Analyze(ctx, l); err != nil {
			b.Fatal(err)
		}
	}
}
