// Package outcome defines the closed set of results an isolated call can
// produce and the rule for composing independently discovered results.
package outcome

import (
	"fmt"
	"strings"
	"syscall"
	"time"
)

// Outcome is one of Success, Timeout, DecodeFailure, ChildFailure,
// SpawnFailure or Chain. The set is closed: only this package can
// implement it.
type Outcome interface {
	fmt.Stringer
	isOutcome()
}

// Success means both channels drained and the result decoded.
type Success struct {
	Value any
	Log   []byte
}

// Timeout means the deadline elapsed before both channels reached end-of-stream.
type Timeout struct {
	Allowed time.Duration
}

// DecodeFailure means result bytes arrived but could not be decoded.
type DecodeFailure struct {
	Err error
}

// ChildFailure means the child exited with a non-success status.
type ChildFailure struct {
	Status ExitStatus
	Log    []byte
}

// SpawnFailure means no child process was ever created.
type SpawnFailure struct{}

// Chain keeps two outcomes; Primary is the more recently discovered one.
type Chain struct {
	Primary   Outcome
	Secondary Outcome
}

func (Success) isOutcome()       {}
func (Timeout) isOutcome()       {}
func (DecodeFailure) isOutcome() {}
func (ChildFailure) isOutcome()  {}
func (SpawnFailure) isOutcome()  {}
func (Chain) isOutcome()         {}

func (o Success) String() string {
	return fmt.Sprintf("success(value=%v, log=%d bytes)", o.Value, len(o.Log))
}

func (o Timeout) String() string {
	return fmt.Sprintf("timeout(allowed=%s)", o.Allowed)
}

func (o DecodeFailure) String() string {
	return fmt.Sprintf("decode failure(%v)", o.Err)
}

func (o ChildFailure) String() string {
	return fmt.Sprintf("child failure(%s, log=%d bytes)", o.Status, len(o.Log))
}

func (SpawnFailure) String() string {
	return "spawn failure"
}

func (o Chain) String() string {
	parts := Flatten(o)
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.String()
	}
	return strings.Join(names, " <- ")
}

// Append records next on top of existing. The first recorded outcome is
// returned as is; later ones become the Primary of a Chain.
func Append(existing, next Outcome) Outcome {
	if existing == nil {
		return next
	}
	return Chain{Primary: next, Secondary: existing}
}

// Flatten lists the leaves of o, most recently discovered first.
func Flatten(o Outcome) []Outcome {
	if o == nil {
		return nil
	}
	if c, ok := o.(Chain); ok {
		return append(Flatten(c.Primary), Flatten(c.Secondary)...)
	}
	return []Outcome{o}
}

// Kind names the variant of o.
func Kind(o Outcome) string {
	switch o.(type) {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case DecodeFailure:
		return "decode_failure"
	case ChildFailure:
		return "child_failure"
	case SpawnFailure:
		return "spawn_failure"
	case Chain:
		return "chain"
	default:
		return "none"
	}
}

// Visitor handles every variant. Adding a variant breaks every Visitor at
// compile time.
type Visitor interface {
	Success(Success)
	Timeout(Timeout)
	DecodeFailure(DecodeFailure)
	ChildFailure(ChildFailure)
	SpawnFailure(SpawnFailure)
	Chain(Chain)
}

// Visit dispatches o to the matching Visitor method.
func Visit(o Outcome, v Visitor) {
	switch o := o.(type) {
	case Success:
		v.Success(o)
	case Timeout:
		v.Timeout(o)
	case DecodeFailure:
		v.DecodeFailure(o)
	case ChildFailure:
		v.ChildFailure(o)
	case SpawnFailure:
		v.SpawnFailure(o)
	case Chain:
		v.Chain(o)
	}
}

// ExitStatus is how a child process ended.
type ExitStatus struct {
	Code   int
	Signal syscall.Signal
}

// Exited builds the status of a process that returned code.
func Exited(code int) ExitStatus {
	return ExitStatus{Code: code}
}

// Killed builds the status of a process terminated by sig.
func Killed(sig syscall.Signal) ExitStatus {
	return ExitStatus{Code: -1, Signal: sig}
}

// Signaled reports whether a signal ended the process.
func (s ExitStatus) Signaled() bool {
	return s.Signal != 0
}

// Success reports a clean zero exit.
func (s ExitStatus) Success() bool {
	return !s.Signaled() && s.Code == 0
}

func (s ExitStatus) String() string {
	if s.Signaled() {
		return fmt.Sprintf("signal %s", s.Signal)
	}
	return fmt.Sprintf("exit code %d", s.Code)
}
