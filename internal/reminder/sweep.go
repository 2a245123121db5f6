package reminder

import (
	"context"
	"time"

	"github.com/colonyops/chime/internal/core/jobs"
	"github.com/colonyops/chime/internal/core/kv"
	"github.com/rs/zerolog"
)

// SweepResult reports what a sweep removed.
type SweepResult struct {
	Jobs int64 `json:"jobs"`
	KV   int64 `json:"kv"`
}

// Sweep prunes finished jobs older than pruneAfter and expired KV entries.
func Sweep(ctx context.Context, queue *jobs.Queue, store kv.KV, pruneAfter time.Duration) (SweepResult, error) {
	var (
		res SweepResult
		err error
	)

	if pruneAfter > 0 {
		if res.Jobs, err = queue.Prune(ctx, pruneAfter); err != nil {
			return res, err
		}
	}

	res.KV, err = store.SweepExpired(ctx)
	return res, err
}

// RunSweeper sweeps every interval until ctx is cancelled.
func RunSweeper(ctx context.Context, interval time.Duration, sweep func(context.Context) (SweepResult, error), log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := sweep(ctx)
			if err != nil {
				log.Debug().Err(err).Msg("sweep failed")
				continue
			}
			if res.Jobs > 0 || res.KV > 0 {
				log.Debug().Int64("jobs", res.Jobs).Int64("kv", res.KV).Msg("swept")
			}
		}
	}
}
