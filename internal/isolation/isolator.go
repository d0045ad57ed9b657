// Package isolation runs named computations in a separate, killable
// process and reports what happened as an outcome.
package isolation

import (
	"context"
	"time"

	"isolator/internal/isolation/channel"
	"isolator/internal/isolation/child"
	"isolator/internal/isolation/deadline"
	"isolator/internal/isolation/outcome"
	"isolator/internal/isolation/supervisor"
	"isolator/internal/isolation/world"
	pkgerrors "isolator/pkg/errors"
	"isolator/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config configures an Isolator.
type Config struct {
	Supervisor supervisor.Config
	// Registry, when set, lets Call reject unknown names before spawning.
	Registry *child.Registry
}

// Isolator is the entry point for isolated calls. Calls share nothing but
// the world, so one Isolator serves concurrent callers.
type Isolator struct {
	world      world.World
	registry   *child.Registry
	supervisor *supervisor.Supervisor
}

// New creates an Isolator over w.
func New(w world.World, cfg Config) *Isolator {
	return &Isolator{
		world:      w,
		registry:   cfg.Registry,
		supervisor: supervisor.New(w, cfg.Supervisor),
	}
}

// Call runs the computation registered as name in a child process with at
// most budget of wall time. Failures of the child are reported in the
// outcome. The error is reserved for faults that stop a child from being
// attempted at all, such as an unknown name, no descriptors left or a
// context cancelled before the call. Cancellation during the call kills the
// child and is reported as a Timeout.
func (i *Isolator) Call(ctx context.Context, name string, budget deadline.Budget) (outcome.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i.registry != nil {
		if _, ok := i.registry.Lookup(name); !ok {
			return nil, pkgerrors.Newf(pkgerrors.ComputationNotFound, "computation %q is not registered", name).
				WithDetail("computation", name)
		}
	}

	ctx = logger.ContextWithCallID(ctx, uuid.NewString())
	ctx = logger.ContextWithComputation(ctx, name)
	start := i.world.Clock.Now()
	logger.Debug(ctx, "isolated call started", zap.Stringer("budget", budget))

	result, err := channel.Scope(i.world.IO, func(resultCh *channel.Channel) (outcome.Outcome, error) {
		return channel.Scope(i.world.IO, func(logCh *channel.Channel) (outcome.Outcome, error) {
			return i.supervisor.Run(ctx, supervisor.Job{
				Computation: name,
				Log:         logCh,
				Result:      resultCh,
				Deadline:    deadline.New(i.world.Clock, budget),
			}), nil
		})
	})
	if err != nil {
		if result == nil {
			logger.Error(ctx, "isolated call not attempted", zap.Error(err))
			return nil, err
		}
		// The child ran; a descriptor that failed to close does not change
		// what it did.
		logger.Warn(ctx, "release channels failed", zap.Error(err))
	}

	logger.Info(ctx, "isolated call finished",
		zap.String("outcome", outcome.Kind(result)),
		zap.Duration("elapsed", i.world.Clock.Now().Sub(start).Round(time.Millisecond)),
	)
	return result, nil
}
