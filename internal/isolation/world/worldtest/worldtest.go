// Package worldtest provides a scripted world for deterministic tests of
// the supervisor and orchestrator. Nothing forks and no real time passes.
package worldtest

import (
	"fmt"
	"sync"
	"time"

	"isolator/internal/isolation/clock"
	"isolator/internal/isolation/codec"
	"isolator/internal/isolation/outcome"
	"isolator/internal/isolation/world"
)

// Stream names one of the two channels of a call.
type Stream int

const (
	Log Stream = iota
	Result
)

func (s Stream) String() string {
	if s == Log {
		return "log"
	}
	return "result"
}

// PollStep scripts one readiness wait.
type PollStep struct {
	// Elapse is how far the clock moves during the wait.
	Elapse time.Duration
	// Ready lists the streams reported ready. Empty means the wait timed out.
	Ready []Stream
	Err   error
	// Do runs while the wait is in progress.
	Do func()
}

// WaitStep scripts one non-blocking wait for the exit status.
type WaitStep struct {
	Status outcome.ExitStatus
	OK     bool
	Err    error
}

// Aborted is the panic value raised by Abort.
type Aborted struct {
	Err error
}

func (a Aborted) Error() string {
	return fmt.Sprintf("aborted: %v", a.Err)
}

// World is a scripted implementation of world.IO and world.Process.
type World struct {
	Clock *clock.FakeClock
	Codec world.Codec

	PID         int
	SpawnErr    error
	SpawnElapse time.Duration
	PipeErr     error
	Polls       []PollStep
	Chunks      map[Stream][][]byte
	ReadErrs    map[Stream]error
	Waits       []WaitStep

	mu           sync.Mutex
	nextFD       int
	writerOf     map[int]int
	open         map[int]bool
	closeCounts  map[int]int
	streamOf     map[int]Stream
	spawns       []world.SpawnRequest
	pollTimeouts []time.Duration
	reads        int
	kills        []int
	waitCalls    int
	aborted      error
}

// New returns a World whose clock starts at a fixed instant.
func New() *World {
	return &World{
		Clock:       clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Codec:       codec.Default(),
		PID:         4242,
		Chunks:      make(map[Stream][][]byte),
		ReadErrs:    make(map[Stream]error),
		nextFD:      10,
		writerOf:    make(map[int]int),
		open:        make(map[int]bool),
		closeCounts: make(map[int]int),
		streamOf:    make(map[int]Stream),
	}
}

// Bundle returns the world.World backed by w.
func (w *World) Bundle() world.World {
	return world.World{Clock: w.Clock, IO: w, Process: w, Codec: w.Codec}
}

// Pipe allocates two fresh descriptor numbers.
func (w *World) Pipe() (int, int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.PipeErr != nil {
		return -1, -1, w.PipeErr
	}
	r, wr := w.nextFD, w.nextFD+1
	w.nextFD += 2
	w.open[r] = true
	w.open[wr] = true
	w.writerOf[wr] = r
	return r, wr, nil
}

// Close marks fd closed and counts how often it was closed.
func (w *World) Close(fd int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeCounts[fd]++
	if !w.open[fd] {
		return fmt.Errorf("close %d: bad file descriptor", fd)
	}
	w.open[fd] = false
	return nil
}

// Poll consumes the next PollStep. An exhausted script times out.
func (w *World) Poll(fds []int, timeout time.Duration) ([]int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pollTimeouts = append(w.pollTimeouts, timeout)
	if len(w.Polls) == 0 {
		return nil, nil
	}
	step := w.Polls[0]
	w.Polls = w.Polls[1:]
	w.Clock.Advance(step.Elapse)
	if step.Do != nil {
		step.Do()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	var ready []int
	for _, fd := range fds {
		stream, ok := w.streamOf[fd]
		if !ok {
			continue
		}
		for _, s := range step.Ready {
			if s == stream {
				ready = append(ready, fd)
				break
			}
		}
	}
	return ready, nil
}

// Read returns the next scripted chunk of the stream behind fd, split at
// size. An exhausted stream is at end-of-stream.
func (w *World) Read(fd int, size int) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reads++
	stream, ok := w.streamOf[fd]
	if !ok || !w.open[fd] {
		return nil, fmt.Errorf("read %d: bad file descriptor", fd)
	}
	if err := w.ReadErrs[stream]; err != nil {
		return nil, err
	}
	chunks := w.Chunks[stream]
	if len(chunks) == 0 {
		return []byte{}, nil
	}
	chunk := chunks[0]
	if len(chunk) > size {
		w.Chunks[stream] = append([][]byte{chunk[size:]}, chunks[1:]...)
		return chunk[:size], nil
	}
	w.Chunks[stream] = chunks[1:]
	return chunk, nil
}

// Spawn records req and returns PID or SpawnErr.
func (w *World) Spawn(req world.SpawnRequest) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Clock.Advance(w.SpawnElapse)
	if w.SpawnErr != nil {
		return 0, w.SpawnErr
	}
	w.spawns = append(w.spawns, req)
	if r, ok := w.writerOf[req.LogFD]; ok {
		w.streamOf[r] = Log
	}
	if r, ok := w.writerOf[req.ResultFD]; ok {
		w.streamOf[r] = Result
	}
	return w.PID, nil
}

// Kill records the signalled pid.
func (w *World) Kill(pid int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.kills = append(w.kills, pid)
	return nil
}

// Wait consumes the next WaitStep. An exhausted script reports a running child.
func (w *World) Wait(pid int) (outcome.ExitStatus, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waitCalls++
	if len(w.Waits) == 0 {
		return outcome.ExitStatus{}, false, nil
	}
	step := w.Waits[0]
	w.Waits = w.Waits[1:]
	return step.Status, step.OK, step.Err
}

// Abort records err and panics with Aborted.
func (w *World) Abort(err error) {
	w.mu.Lock()
	w.aborted = err
	w.mu.Unlock()
	panic(Aborted{Err: err})
}

// Encode is a helper for scripting result chunks.
func (w *World) Encode(v any) []byte {
	data, err := w.Codec.Encode(v)
	if err != nil {
		panic(err)
	}
	return data
}

// Spawns returns every successful spawn request.
func (w *World) Spawns() []world.SpawnRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]world.SpawnRequest(nil), w.spawns...)
}

// PollTimeouts returns the timeout of every Poll call.
func (w *World) PollTimeouts() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.pollTimeouts...)
}

// Reads returns the number of Read calls.
func (w *World) Reads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reads
}

// Kills returns the pids passed to Kill.
func (w *World) Kills() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.kills...)
}

// WaitCalls returns the number of Wait calls.
func (w *World) WaitCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waitCalls
}

// AbortErr returns the error passed to Abort, if any.
func (w *World) AbortErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.aborted
}

// Descriptors returns every descriptor handed out by Pipe.
func (w *World) Descriptors() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	fds := make([]int, 0, len(w.open))
	for fd := 10; fd < w.nextFD; fd++ {
		fds = append(fds, fd)
	}
	return fds
}

// CloseCount returns how many times fd was closed.
func (w *World) CloseCount(fd int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeCounts[fd]
}

// AssertClosedOnce reports every descriptor not closed exactly once.
func (w *World) AssertClosedOnce() error {
	for _, fd := range w.Descriptors() {
		if n := w.CloseCount(fd); n != 1 {
			return fmt.Errorf("descriptor %d closed %d times", fd, n)
		}
	}
	return nil
}
