package analysis

import (
	"context"
	"runtime"

	"github.com/nikandfor/errors"
	"github.com/nikandfor/tlog"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/wideshade/ir"
)

// Result is the outcome of analyzing one layer of a group.
type Result struct {
	Layer string
	Info  *Info
	Err   error
}

// AnalyzeGroup analyzes layers concurrently with at most workers running
// at once (GOMAXPROCS when workers <= 0). Results are in layer order. A
// failing layer does not stop the others; the returned error is the first
// failure to finish, and every Result carries its own.
func (a *Analyzer) AnalyzeGroup(ctx context.Context, layers []*ir.Layer, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "analyze group", "layers", len(layers), "workers", workers)
	defer tr.Finish()

	res := make([]Result, len(layers))

	var g errgroup.Group
	g.SetLimit(workers)

	for i, l := range layers {
		if l != nil {
			res[i].Layer = l.Name
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				res[i].Err = err
				return err
			}

			res[i].Info, res[i].Err = a.Analyze(ctx, l)
			if res[i].Err != nil {
				return errors.Wrap(res[i].Err, "analyze %v", res[i].Layer)
			}

			return nil
		})
	}

	return res, g.Wait()
}
