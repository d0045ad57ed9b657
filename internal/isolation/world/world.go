// Package world bundles the capabilities an isolated call needs from its
// environment: a clock, descriptor I/O, process control and a codec.
// Production code builds Linux() once; tests substitute worldtest.
package world

import (
	"time"

	"isolator/internal/isolation/clock"
	"isolator/internal/isolation/outcome"
)

// IO moves bytes through pipe descriptors.
type IO interface {
	// Pipe allocates a reader and a writer.
	Pipe() (r, w int, err error)
	// Close releases a descriptor.
	Close(fd int) error
	// Poll waits until some of fds are readable or hung up, or timeout
	// passes. A negative timeout waits without a bound. No ready
	// descriptors means the timeout elapsed.
	Poll(fds []int, timeout time.Duration) ([]int, error)
	// Read performs one read of at most size bytes. An empty slice with a
	// nil error is end-of-stream.
	Read(fd int, size int) ([]byte, error)
}

// SpawnRequest describes the child to start. LogFD and ResultFD are the
// parent's writer descriptors; the child inherits them.
type SpawnRequest struct {
	Computation string
	LogFD       int
	ResultFD    int
}

// Process controls child processes.
type Process interface {
	// Spawn starts a child and returns its pid.
	Spawn(req SpawnRequest) (int, error)
	// Kill sends the uncatchable terminate signal.
	Kill(pid int) error
	// Wait polls for the exit status without blocking. ok is false while
	// the child is still running.
	Wait(pid int) (status outcome.ExitStatus, ok bool, err error)
	// Abort stops the whole program. It is reserved for a child that
	// survives SIGKILL, which means the host is broken.
	Abort(err error)
}

// Codec decodes the result bytes sent by the child.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// World is the capability bundle passed to the orchestrator.
type World struct {
	Clock   clock.Clock
	IO      IO
	Process Process
	Codec   Codec
}
