package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Parallel runs fns concurrently and returns once all of them have
// returned. The first error cancels the context handed to the others and is
// the one reported.
func Parallel(ctx context.Context, fns ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		g.Go(func() error {
			return fn(gctx)
		})
	}
	return g.Wait()
}
