package runner

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type Job func(ctx context.Context) error

// RunPool executes jobs with at most maxWorkers concurrently, starting them
// in slice order. The first error cancels the context seen by the remaining
// jobs and is returned; jobs not yet started are skipped.
func RunPool(ctx context.Context, maxWorkers int, jobs []Job) error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for _, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return job(gctx)
		})
	}
	return g.Wait()
}
