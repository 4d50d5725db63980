package visibility

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"sightline/pkg/model"
)

// runChunks calls fn for every index in [0,n). Chunks run one after
// another; indices inside a chunk run concurrently, bounded by workers.
// Cancellation is honoured only between chunks: the in-flight chunk always
// completes, then the run fails with an aborted error.
func (a *Analyzer) runChunks(ctx context.Context, op string, n int, fn func(ctx context.Context, i int), progress func(done, total int)) error {
	chunk := a.cfg.ChunkSize
	work := context.WithoutCancel(ctx)

	for start := 0; start < n; start += chunk {
		if ctx.Err() != nil {
			return model.AbortError(op, start, n, context.Cause(ctx))
		}
		end := min(start+chunk, n)

		var g errgroup.Group
		g.SetLimit(a.cfg.Workers)
		for i := start; i < end; i++ {
			g.Go(func() error {
				fn(work, i)
				return nil
			})
		}
		_ = g.Wait()

		if progress != nil {
			progress(end, n)
		}
		if end < n {
			pause(ctx, a.cfg.ChunkPause)
		}
	}

	if ctx.Err() != nil {
		return model.AbortError(op, n, n, context.Cause(ctx))
	}
	return nil
}

// pause yields between chunks. It returns early on cancellation; the next
// boundary check reports it.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
