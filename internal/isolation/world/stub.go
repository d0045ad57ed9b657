//go:build !linux

package world

import (
	"fmt"
	"time"

	"isolator/internal/isolation/child"
	"isolator/internal/isolation/clock"
	"isolator/internal/isolation/codec"
	"isolator/internal/isolation/outcome"
)

// LinuxConfig controls how children are started.
type LinuxConfig struct {
	Executable string
	Args       []string
	Hardening  child.Hardening
}

var errUnsupported = fmt.Errorf("isolation is only supported on linux")

// Linux returns a world whose descriptors and processes are unavailable.
func Linux(cfg LinuxConfig) (World, error) {
	return World{
		Clock:   clock.Real(),
		IO:      stubIO{},
		Process: stubProcess{},
		Codec:   codec.Default(),
	}, nil
}

type stubIO struct{}

func (stubIO) Pipe() (int, int, error)                       { return -1, -1, errUnsupported }
func (stubIO) Close(fd int) error                            { return errUnsupported }
func (stubIO) Poll(fds []int, t time.Duration) ([]int, error) { return nil, errUnsupported }
func (stubIO) Read(fd int, size int) ([]byte, error)          { return nil, errUnsupported }

type stubProcess struct{}

func (stubProcess) Spawn(req SpawnRequest) (int, error) { return 0, errUnsupported }
func (stubProcess) Kill(pid int) error                  { return errUnsupported }
func (stubProcess) Wait(pid int) (outcome.ExitStatus, bool, error) {
	return outcome.ExitStatus{}, false, errUnsupported
}
func (stubProcess) Abort(err error) { panic(err) }
