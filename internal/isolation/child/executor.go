package child

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"isolator/internal/isolation/codec"
)

// Encoder serializes a computation result.
type Encoder interface {
	Encode(v any) ([]byte, error)
}

// Executor runs one computation inside the child process.
type Executor struct {
	Registry *Registry
	Codec    Encoder
	// Redirect points standard output and standard error at the log writer.
	Redirect func(logFD int) error
	// Harden applies rlimits and seccomp.
	Harden func(Hardening) error
	// Diagnostics receives one-line failure reports. After Redirect this is
	// the log channel.
	Diagnostics io.Writer
}

// Execute runs req and returns the exit code for the process. The result
// writer is closed on every path; failures never write to it.
func (e *Executor) Execute(req InitRequest, logFD int, result io.WriteCloser) int {
	closed := false
	defer func() {
		if !closed {
			_ = result.Close()
		}
	}()

	if err := e.Redirect(logFD); err != nil {
		e.report("redirect output: %v", err)
		return ExitSetupFailed
	}
	if !req.Hardening.Empty() {
		if err := e.Harden(req.Hardening); err != nil {
			e.report("harden child: %v", err)
			return ExitSetupFailed
		}
	}

	fn, ok := e.Registry.Lookup(req.Computation)
	if !ok {
		e.report("computation %q is not registered", req.Computation)
		return ExitUnknownComputation
	}

	value, err := invoke(fn)
	if err != nil {
		e.report("computation %q failed: %v", req.Computation, err)
		return ExitComputationFailed
	}

	data, err := e.Codec.Encode(value)
	if err != nil {
		e.report("encode result of %q: %v", req.Computation, err)
		return ExitEncodeFailed
	}
	if _, err := result.Write(data); err != nil {
		e.report("write result: %v", err)
		return ExitEncodeFailed
	}
	closed = true
	if err := result.Close(); err != nil {
		e.report("close result channel: %v", err)
		return ExitEncodeFailed
	}
	return ExitOK
}

func (e *Executor) report(format string, args ...any) {
	if e.Diagnostics == nil {
		return
	}
	_, _ = fmt.Fprintf(e.Diagnostics, "isolate: "+format+"\n", args...)
}

// invoke runs fn, turning a panic into an error.
func invoke(fn Computation) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

// rejectInit reports an unusable init request on the log writer, which is
// what the supervisor collects, and closes both channel ends.
func rejectInit(err error, log io.WriteCloser, result io.Closer) int {
	_, _ = fmt.Fprintf(log, "isolate: %v\n", err)
	_ = log.Close()
	_ = result.Close()
	return ExitSetupFailed
}

// Main runs the executor for the current process and exits. Binaries that
// register computations call it at the top of main when IsChild is true.
func Main() {
	raw := os.Getenv(InitEnv)
	_ = os.Unsetenv(InitEnv)

	result := os.NewFile(ResultFD, "isolate-result")
	req, err := DecodeInit(raw)
	if err != nil {
		os.Exit(rejectInit(err, os.NewFile(LogFD, "isolate-log"), result))
	}

	e := &Executor{
		Registry:    Default,
		Codec:       codec.Default(),
		Redirect:    redirectStdio,
		Harden:      harden,
		Diagnostics: os.Stderr,
	}
	os.Exit(e.Execute(req, LogFD, result))
}
