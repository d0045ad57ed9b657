// Package supervisor drives one isolated child from spawn to reaped exit
// status and turns what it observed into an outcome.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"isolator/internal/isolation/channel"
	"isolator/internal/isolation/deadline"
	"isolator/internal/isolation/outcome"
	"isolator/internal/isolation/world"
	pkgerrors "isolator/pkg/errors"
	"isolator/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultReadChunk    = 4096
	defaultJoinAttempts = 10
	defaultJoinInterval = 10 * time.Millisecond
	defaultKillGrace    = 250 * time.Millisecond
	defaultPollSlice    = 100 * time.Millisecond
)

// State is a supervisor phase.
type State int

const (
	Starting State = iota
	Reading
	Joining
	Done
)

func (s State) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Reading:
		return "READING"
	case Joining:
		return "JOINING"
	case Done:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config tunes the read and join phases. Zero values take defaults.
type Config struct {
	// ReadChunk bounds a single read.
	ReadChunk int `yaml:"readChunkBytes"`
	// JoinAttempts is the number of non-blocking waits before the child is killed.
	JoinAttempts int `yaml:"joinAttempts"`
	// JoinInterval is the sleep between waits.
	JoinInterval time.Duration `yaml:"joinInterval"`
	// KillGrace is how long the final wait is delayed after the join kill.
	KillGrace time.Duration `yaml:"killGrace"`
	// PollSlice bounds one readiness wait when the call's context can be
	// cancelled, so cancellation is noticed between waits.
	PollSlice time.Duration `yaml:"pollSlice"`
}

func (c Config) withDefaults() Config {
	if c.ReadChunk <= 0 {
		c.ReadChunk = defaultReadChunk
	}
	if c.JoinAttempts <= 0 {
		c.JoinAttempts = defaultJoinAttempts
	}
	if c.JoinInterval <= 0 {
		c.JoinInterval = defaultJoinInterval
	}
	if c.KillGrace <= 0 {
		c.KillGrace = defaultKillGrace
	}
	if c.PollSlice <= 0 {
		c.PollSlice = defaultPollSlice
	}
	return c
}

// Job is one supervised call. The channels stay owned by the caller; the
// supervisor only takes their parent ends.
type Job struct {
	Computation string
	Log         *channel.Channel
	Result      *channel.Channel
	Deadline    deadline.Deadline
}

// Supervisor runs jobs against a world. It holds no per-call state and
// can be shared between goroutines.
type Supervisor struct {
	world world.World
	cfg   Config
}

// New creates a Supervisor.
func New(w world.World, cfg Config) *Supervisor {
	return &Supervisor{world: w, cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (s *Supervisor) Config() Config {
	return s.cfg
}

// run holds the state of one job.
type run struct {
	*Supervisor
	ctx      context.Context
	job      Job
	state    State
	pid      int
	logFD    int
	resultFD int
	log      []byte
	result   []byte
	signaled bool
	recorded outcome.Outcome
}

// Run supervises job and returns its outcome. It never returns nil.
func (s *Supervisor) Run(ctx context.Context, job Job) outcome.Outcome {
	r := &run{Supervisor: s, ctx: ctx, job: job, state: Starting}
	for r.state != Done {
		next := r.step()
		logger.Debug(ctx, "supervisor transition",
			zap.Stringer("from", r.state),
			zap.Stringer("to", next),
			zap.Int("pid", r.pid),
		)
		r.state = next
	}
	logger.Debug(ctx, "supervisor done", zap.Stringer("outcome", r.recorded))
	return r.recorded
}

func (r *run) step() State {
	switch r.state {
	case Starting:
		return r.start()
	case Reading:
		return r.read()
	case Joining:
		return r.join()
	default:
		return Done
	}
}

func (r *run) record(o outcome.Outcome) {
	r.recorded = outcome.Append(r.recorded, o)
}

func (r *run) kill() {
	r.signaled = true
	if err := r.world.Process.Kill(r.pid); err != nil {
		logger.Warn(r.ctx, "kill child failed", zap.Int("pid", r.pid), zap.Error(err))
	}
}

func (r *run) start() State {
	pid, err := r.world.Process.Spawn(world.SpawnRequest{
		Computation: r.job.Computation,
		LogFD:       r.job.Log.Writer(),
		ResultFD:    r.job.Result.Writer(),
	})
	if err != nil {
		logger.Warn(r.ctx, "spawn child failed", zap.Error(err))
		r.record(outcome.SpawnFailure{})
		return Done
	}
	r.pid = pid

	// The child holds its own copies of the writers now. Ours must go or
	// end-of-stream never arrives.
	if r.logFD, err = r.job.Log.ParentEnd(); err != nil {
		logger.Warn(r.ctx, "release log writer failed", zap.Error(err))
	}
	if r.resultFD, err = r.job.Result.ParentEnd(); err != nil {
		logger.Warn(r.ctx, "release result writer failed", zap.Error(err))
	}
	logger.Debug(r.ctx, "child spawned", zap.Int("pid", pid))
	return Reading
}

func (r *run) read() State {
	pending := []int{r.logFD, r.resultFD}
	cancellable := r.ctx.Done() != nil
	for len(pending) > 0 {
		if r.ctx.Err() != nil {
			return r.cancelled()
		}
		status := r.job.Deadline.Status()
		if !status.OK() {
			return r.timedOut()
		}
		timeout, sliced := status.PollTimeout(), false
		if cancellable && (timeout < 0 || timeout > r.cfg.PollSlice) {
			timeout, sliced = r.cfg.PollSlice, true
		}
		ready, err := r.world.IO.Poll(pending, timeout)
		if err != nil {
			logger.Warn(r.ctx, "poll channels failed", zap.Int("pid", r.pid), zap.Error(err))
			r.record(outcome.DecodeFailure{Err: pkgerrors.Wrap(err, pkgerrors.ChannelPollFailed)})
			r.kill()
			return Joining
		}
		if len(ready) == 0 {
			if sliced {
				continue
			}
			return r.timedOut()
		}
		for _, fd := range ready {
			if !r.drainOnce(fd) {
				pending = remove(pending, fd)
			}
		}
	}
	r.decode()
	return Joining
}

// drainOnce performs one read from fd and reports whether fd is still open.
func (r *run) drainOnce(fd int) bool {
	data, err := r.world.IO.Read(fd, r.cfg.ReadChunk)
	if err != nil {
		logger.Warn(r.ctx, "read channel failed", zap.Int("fd", fd), zap.Error(err))
		return false
	}
	if len(data) == 0 {
		return false
	}
	if fd == r.logFD {
		r.log = append(r.log, data...)
	} else {
		r.result = append(r.result, data...)
	}
	return true
}

func (r *run) timedOut() State {
	allowed, _ := r.job.Deadline.Allowed()
	logger.Info(r.ctx, "isolated call timed out", zap.Int("pid", r.pid), zap.Duration("allowed", allowed))
	r.record(outcome.Timeout{Allowed: allowed})
	r.kill()
	return Joining
}

// cancelled ends reading because the caller gave up. It is reported as a
// Timeout of the call's budget.
func (r *run) cancelled() State {
	allowed, _ := r.job.Deadline.Allowed()
	logger.Info(r.ctx, "isolated call cancelled", zap.Int("pid", r.pid), zap.Error(r.ctx.Err()))
	r.record(outcome.Timeout{Allowed: allowed})
	r.kill()
	return Joining
}

func (r *run) decode() {
	value, err := r.world.Codec.Decode(r.result)
	if err != nil {
		r.record(outcome.DecodeFailure{Err: err})
		return
	}
	r.record(outcome.Success{Value: value, Log: r.log})
}

func (r *run) join() State {
	status, ok := r.waitAttempts()
	if !ok {
		// A child already signalled only needs more time to be reapable.
		if !r.signaled {
			logger.Warn(r.ctx, "child not reaped, killing", zap.Int("pid", r.pid))
			r.kill()
		}
		r.world.Clock.Sleep(r.cfg.KillGrace)
		status, ok = r.wait()
		if !ok {
			r.world.Process.Abort(pkgerrors.Newf(pkgerrors.ChildUnkillable,
				"child %d survived SIGKILL", r.pid))
			return Done
		}
	}
	logger.Debug(r.ctx, "child reaped", zap.Int("pid", r.pid), zap.Stringer("status", status))
	if !r.signaled && !status.Success() {
		r.record(outcome.ChildFailure{Status: status, Log: r.log})
	}
	return Done
}

func (r *run) waitAttempts() (outcome.ExitStatus, bool) {
	for i := 0; i < r.cfg.JoinAttempts; i++ {
		if status, ok := r.wait(); ok {
			return status, true
		}
		r.world.Clock.Sleep(r.cfg.JoinInterval)
	}
	return outcome.ExitStatus{}, false
}

func (r *run) wait() (outcome.ExitStatus, bool) {
	status, ok, err := r.world.Process.Wait(r.pid)
	if err != nil {
		logger.Warn(r.ctx, "wait child failed", zap.Int("pid", r.pid), zap.Error(err))
		return outcome.ExitStatus{}, false
	}
	return status, ok
}

func remove(fds []int, fd int) []int {
	out := fds[:0]
	for _, f := range fds {
		if f != fd {
			out = append(out, f)
		}
	}
	return out
}
