//go:build linux

package isolation_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"isolator/internal/isolation"
	"isolator/internal/isolation/child"
	"isolator/internal/isolation/deadline"
	"isolator/internal/isolation/outcome"
	"isolator/internal/isolation/world"
)

func TestMain(m *testing.M) {
	child.Register("answer", func() (any, error) {
		fmt.Println("computing")
		return 42, nil
	})
	child.Register("record", func() (any, error) {
		return map[string]any{"name": "isolate", "tags": []any{"a", "b"}}, nil
	})
	child.Register("spin", func() (any, error) {
		for {
			time.Sleep(time.Hour)
		}
	})
	child.Register("fail", func() (any, error) {
		return nil, errors.New("boom")
	})
	child.Register("crash", func() (any, error) {
		os.Exit(9)
		return nil, nil
	})
	child.Register("kill-self", func() (any, error) {
		_ = syscall.Kill(os.Getpid(), syscall.SIGKILL)
		select {}
	})

	if child.IsChild() {
		child.Main()
	}
	os.Exit(m.Run())
}

func newIsolator(t *testing.T) *isolation.Isolator {
	t.Helper()
	w, err := world.Linux(world.LinuxConfig{})
	if err != nil {
		t.Fatalf("Linux: %v", err)
	}
	return isolation.New(w, isolation.Config{Registry: child.Default})
}

func call(t *testing.T, name string, budget deadline.Budget) outcome.Outcome {
	t.Helper()
	got, err := newIsolator(t).Call(context.Background(), name, budget)
	if err != nil {
		t.Fatalf("Call(%q): %v", name, err)
	}
	return got
}

func TestIsolatedSuccess(t *testing.T) {
	got := call(t, "answer", deadline.Within(10*time.Second))
	s, ok := got.(outcome.Success)
	if !ok {
		t.Fatalf("outcome = %v, want Success", got)
	}
	if s.Value != int64(42) {
		t.Errorf("value = %#v, want int64(42)", s.Value)
	}
	if string(s.Log) != "computing\n" {
		t.Errorf("log = %q", s.Log)
	}
}

func TestIsolatedStructuredValue(t *testing.T) {
	got := call(t, "record", deadline.Unlimited())
	s, ok := got.(outcome.Success)
	if !ok {
		t.Fatalf("outcome = %v, want Success", got)
	}
	m, ok := s.Value.(map[string]any)
	if !ok || m["name"] != "isolate" {
		t.Errorf("value = %#v", s.Value)
	}
}

func TestIsolatedTimeout(t *testing.T) {
	start := time.Now()
	got := call(t, "spin", deadline.Within(200*time.Millisecond))
	if got != (outcome.Timeout{Allowed: 200 * time.Millisecond}) {
		t.Fatalf("outcome = %v, want Timeout", got)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestIsolatedComputationError(t *testing.T) {
	got := call(t, "fail", deadline.Within(10*time.Second))
	chain, ok := got.(outcome.Chain)
	if !ok {
		t.Fatalf("outcome = %v, want Chain", got)
	}
	cf, ok := chain.Primary.(outcome.ChildFailure)
	if !ok || cf.Status != outcome.Exited(child.ExitComputationFailed) {
		t.Fatalf("primary = %v", chain.Primary)
	}
	if !strings.Contains(string(cf.Log), "boom") {
		t.Errorf("log = %q, want the failure diagnostic", cf.Log)
	}
	if _, ok := chain.Secondary.(outcome.DecodeFailure); !ok {
		t.Errorf("secondary = %v, want DecodeFailure", chain.Secondary)
	}
}

func TestIsolatedExit(t *testing.T) {
	got := call(t, "crash", deadline.Within(10*time.Second))
	parts := outcome.Flatten(got)
	if len(parts) != 2 {
		t.Fatalf("outcome = %v, want two parts", got)
	}
	if cf, ok := parts[0].(outcome.ChildFailure); !ok || cf.Status != outcome.Exited(9) {
		t.Errorf("primary = %v, want exit code 9", parts[0])
	}
}

func TestIsolatedSignal(t *testing.T) {
	got := call(t, "kill-self", deadline.Within(10*time.Second))
	parts := outcome.Flatten(got)
	cf, ok := parts[0].(outcome.ChildFailure)
	if !ok || cf.Status != outcome.Killed(syscall.SIGKILL) {
		t.Fatalf("outcome = %v, want SIGKILL child failure", got)
	}
}

func TestIsolatedConcurrentCalls(t *testing.T) {
	iso := newIsolator(t)
	errs := make(chan error, 8)
	for i := 0; i < cap(errs); i++ {
		go func() {
			got, err := iso.Call(context.Background(), "answer", deadline.Within(10*time.Second))
			if err == nil {
				if _, ok := got.(outcome.Success); !ok {
					err = fmt.Errorf("outcome = %v", got)
				}
			}
			errs <- err
		}()
	}
	for i := 0; i < cap(errs); i++ {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
}
