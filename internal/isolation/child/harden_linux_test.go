//go:build linux

package child

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

func TestParseSeccompAction(t *testing.T) {
	cases := []struct {
		in      string
		want    seccomp.ScmpAction
		wantErr bool
	}{
		{"SCMP_ACT_ALLOW", seccomp.ActAllow, false},
		{"scmp_act_kill", seccomp.ActKillProcess, false},
		{"SCMP_ACT_KILL_PROCESS", seccomp.ActKillProcess, false},
		{"SCMP_ACT_TRACE", seccomp.ActKillProcess, true},
	}
	for _, tc := range cases {
		got, err := parseSeccompAction(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseSeccompAction(%q) err = %v", tc.in, err)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("parseSeccompAction(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLoadSeccompConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.json")
	profile := `{"defaultAction":"SCMP_ACT_ALLOW","syscalls":[{"names":["ptrace","mount"],"action":"SCMP_ACT_ERRNO"}]}`
	if err := os.WriteFile(path, []byte(profile), 0644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	cfg, err := loadSeccompConfig(path)
	if err != nil {
		t.Fatalf("loadSeccompConfig: %v", err)
	}
	if cfg.DefaultAction != "SCMP_ACT_ALLOW" || len(cfg.Syscalls) != 1 || len(cfg.Syscalls[0].Names) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if _, err := loadSeccompConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("missing profile loaded")
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0644); err != nil {
		t.Fatalf("write bad profile: %v", err)
	}
	if _, err := loadSeccompConfig(bad); err == nil {
		t.Fatal("malformed profile loaded")
	}
}

func TestOnLockedThreadStaysOnOneThread(t *testing.T) {
	want := errors.New("filter rejected")
	err := onLockedThread(func() error {
		tid := unix.Gettid()
		for i := 0; i < 100; i++ {
			runtime.Gosched()
			if got := unix.Gettid(); got != tid {
				t.Errorf("thread changed from %d to %d", tid, got)
				break
			}
		}
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("onLockedThread err = %v, want %v", err, want)
	}
}
