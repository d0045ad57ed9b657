package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"isolator/internal/isolation/deadline"
	pkgerrors "isolator/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "isolate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfig(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: debug
  format: json
isolation:
  readChunkBytes: 1024
  joinAttempts: 5
  joinInterval: 20ms
  killGrace: 1s
  pollSlice: 50ms
  defaultBudget: 3s
child:
  limits:
    cpuTimeSec: 2
    memoryMB: 256
batch:
  concurrency: 8
`)

	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("loadAppConfig: %v", err)
	}
	if cfg.Logger.Level != "debug" || cfg.Logger.Format != "json" {
		t.Errorf("logger = %+v", cfg.Logger)
	}
	sup := cfg.Isolation.Supervisor
	if sup.ReadChunk != 1024 || sup.JoinAttempts != 5 || sup.JoinInterval != 20*time.Millisecond || sup.KillGrace != time.Second || sup.PollSlice != 50*time.Millisecond {
		t.Errorf("supervisor = %+v", sup)
	}
	if cfg.Isolation.DefaultBudget != 3*time.Second {
		t.Errorf("defaultBudget = %s", cfg.Isolation.DefaultBudget)
	}
	if cfg.Child.Limits.CPUTimeSec != 2 || cfg.Child.Limits.MemoryMB != 256 {
		t.Errorf("child limits = %+v", cfg.Child.Limits)
	}
	if cfg.Batch.Concurrency != 8 {
		t.Errorf("concurrency = %d", cfg.Batch.Concurrency)
	}
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig("")
	if err != nil {
		t.Fatalf("loadAppConfig: %v", err)
	}
	if cfg.Logger.Level != defaultLogLevel {
		t.Errorf("level = %q", cfg.Logger.Level)
	}
	if cfg.Batch.Concurrency != defaultConcurrency {
		t.Errorf("concurrency = %d", cfg.Batch.Concurrency)
	}
	if !cfg.Child.Empty() {
		t.Errorf("child hardening = %+v, want none", cfg.Child)
	}
}

func TestLoadAppConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		code pkgerrors.ErrorCode
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.yaml") },
			code: pkgerrors.ConfigLoadFailed,
		},
		{
			name: "bad yaml",
			path: func(t *testing.T) string { return writeConfig(t, "isolation: [") },
			code: pkgerrors.ConfigLoadFailed,
		},
		{
			name: "negative budget",
			path: func(t *testing.T) string { return writeConfig(t, "isolation:\n  defaultBudget: -1s\n") },
			code: pkgerrors.ConfigInvalid,
		},
		{
			name: "negative concurrency",
			path: func(t *testing.T) string { return writeConfig(t, "batch:\n  concurrency: -2\n") },
			code: pkgerrors.ConfigInvalid,
		},
		{
			name: "missing seccomp profile",
			path: func(t *testing.T) string { return writeConfig(t, "child:\n  seccompProfile: /nonexistent/profile.json\n") },
			code: pkgerrors.ConfigInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadAppConfig(tt.path(t))
			if !pkgerrors.Is(err, tt.code) {
				t.Fatalf("loadAppConfig err = %v, want code %d", err, tt.code)
			}
		})
	}
}

func TestBudget(t *testing.T) {
	tests := []struct {
		name     string
		cfg      IsolationConfig
		flag     time.Duration
		want     deadline.Budget
		wantFail bool
	}{
		{name: "flag wins", cfg: IsolationConfig{DefaultBudget: time.Second}, flag: 2 * time.Second, want: deadline.Within(2 * time.Second)},
		{name: "config default", cfg: IsolationConfig{DefaultBudget: time.Second}, want: deadline.Within(time.Second)},
		{name: "unlimited", want: deadline.Unlimited()},
		{name: "negative flag", flag: -time.Second, wantFail: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.budget(tt.flag)
			if tt.wantFail {
				if err == nil {
					t.Fatal("budget succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("budget: %v", err)
			}
			if got != tt.want {
				t.Errorf("budget = %s, want %s", got, tt.want)
			}
		})
	}
}
