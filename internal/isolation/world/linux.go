//go:build linux

package world

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"isolator/internal/isolation/child"
	"isolator/internal/isolation/clock"
	"isolator/internal/isolation/codec"
	"isolator/internal/isolation/outcome"
	pkgerrors "isolator/pkg/errors"
	"isolator/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// abortExitCode is EX_SOFTWARE from sysexits.h.
const abortExitCode = 70

// LinuxConfig controls how children are started.
type LinuxConfig struct {
	// Executable is re-entered as the child. Defaults to os.Executable().
	Executable string
	// Args are passed after argv[0].
	Args []string
	// Hardening is forwarded to every child.
	Hardening child.Hardening
}

// Linux returns the production world.
func Linux(cfg LinuxConfig) (World, error) {
	if cfg.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return World{}, pkgerrors.Wrapf(err, pkgerrors.SpawnFailed, "resolve executable")
		}
		cfg.Executable = exe
	}
	return World{
		Clock:   clock.Real(),
		IO:      linuxIO{},
		Process: &linuxProcess{cfg: cfg},
		Codec:   codec.Default(),
	}, nil
}

type linuxIO struct{}

func (linuxIO) Pipe() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func (linuxIO) Close(fd int) error {
	return unix.Close(fd)
}

func (linuxIO) Poll(fds []int, timeout time.Duration) ([]int, error) {
	pollFds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pollFds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	var until time.Time
	if timeout >= 0 {
		until = time.Now().Add(timeout)
	}
	for {
		ms := -1
		if timeout >= 0 {
			ms = millisCeil(time.Until(until))
		}
		n, err := unix.Poll(pollFds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		ready := make([]int, 0, n)
		for i, pfd := range pollFds {
			if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
				ready = append(ready, fds[i])
			}
		}
		return ready, nil
	}
}

func millisCeil(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

func (linuxIO) Read(fd int, size int) ([]byte, error) {
	buf := make([]byte, size)
	for {
		n, err := unix.Read(fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
}

type linuxProcess struct {
	cfg LinuxConfig
}

func (p *linuxProcess) Spawn(req SpawnRequest) (int, error) {
	payload, err := child.EncodeInit(child.InitRequest{
		Computation: req.Computation,
		Hardening:   p.cfg.Hardening,
	})
	if err != nil {
		return 0, err
	}

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	argv := append([]string{p.cfg.Executable}, p.cfg.Args...)
	attr := &syscall.ProcAttr{
		Env: append(os.Environ(), child.InitEnv+"="+payload),
		// Order fixes the child's descriptor numbers: child.LogFD and child.ResultFD.
		Files: []uintptr{
			devNull.Fd(),
			os.Stdout.Fd(),
			os.Stderr.Fd(),
			uintptr(req.LogFD),
			uintptr(req.ResultFD),
		},
		Sys: &syscall.SysProcAttr{
			Setpgid:   true,
			Pdeathsig: syscall.SIGKILL,
		},
	}
	pid, err := syscall.ForkExec(p.cfg.Executable, argv, attr)
	if err != nil {
		return 0, pkgerrors.Wrap(err, pkgerrors.SpawnFailed)
	}
	return pid, nil
}

// Kill signals the child's process group so grandchildren go too.
func (p *linuxProcess) Kill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err == nil {
		return nil
	}
	return unix.Kill(pid, unix.SIGKILL)
}

func (p *linuxProcess) Wait(pid int) (outcome.ExitStatus, bool, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return outcome.ExitStatus{}, false, err
		}
		if wpid == 0 {
			return outcome.ExitStatus{}, false, nil
		}
		switch {
		case ws.Signaled():
			return outcome.Killed(ws.Signal()), true, nil
		case ws.Exited():
			return outcome.Exited(ws.ExitStatus()), true, nil
		default:
			return outcome.ExitStatus{}, false, nil
		}
	}
}

func (p *linuxProcess) Abort(err error) {
	logger.Error(context.Background(), "isolated child cannot be reaped, aborting", zap.Error(err))
	_ = logger.Sync()
	_, _ = fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	os.Exit(abortExitCode)
}
