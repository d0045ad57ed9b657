// Package batch runs many independent isolated calls with bounded
// concurrency.
package batch

import (
	"context"

	"isolator/internal/isolation/deadline"
	"isolator/internal/isolation/outcome"
	"isolator/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultLimit = 4

// Caller runs one isolated call. *isolation.Isolator implements it.
type Caller interface {
	Call(ctx context.Context, name string, budget deadline.Budget) (outcome.Outcome, error)
}

// Job names a computation and its budget.
type Job struct {
	Computation string
	Budget      deadline.Budget
}

// Result pairs a job with its outcome.
type Result struct {
	Job     Job
	Outcome outcome.Outcome
}

// Run executes jobs with at most limit in flight and returns results in
// job order. A non-positive limit uses a small default. An error from any
// call cancels the jobs not yet started and is returned; outcomes never
// stop the batch.
func Run(ctx context.Context, caller Caller, jobs []Job, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	ctx = logger.ContextWithBatchID(ctx, uuid.NewString())
	logger.Info(ctx, "batch started", zap.Int("jobs", len(jobs)), zap.Int("limit", limit))

	results := make([]Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o, err := caller.Call(gctx, job.Computation, job.Budget)
			if err != nil {
				return err
			}
			results[i] = Result{Job: job, Outcome: o}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn(ctx, "batch stopped", zap.Error(err))
		return nil, err
	}
	logger.Info(ctx, "batch finished", zap.Int("jobs", len(jobs)))
	return results, nil
}

// Summary counts results by outcome kind.
func Summary(results []Result) map[string]int {
	counts := make(map[string]int)
	for _, r := range results {
		counts[outcome.Kind(r.Outcome)]++
	}
	return counts
}
