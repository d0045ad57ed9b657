package main

import (
	"fmt"
	"os"
	"time"

	"isolator/internal/isolation/child"
	"isolator/internal/isolation/deadline"
	"isolator/internal/isolation/supervisor"
	pkgerrors "isolator/pkg/errors"
	"isolator/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultConcurrency = 4
	defaultLogLevel    = "info"
)

// IsolationConfig holds supervisor settings and the default call budget.
type IsolationConfig struct {
	Supervisor supervisor.Config `yaml:",inline"`
	// DefaultBudget applies when -budget is not given. Zero is unlimited.
	DefaultBudget time.Duration `yaml:"defaultBudget"`
}

// BatchConfig holds batch runner settings.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// AppConfig holds isolate config.
type AppConfig struct {
	Logger    logger.Config   `yaml:"logger"`
	Isolation IsolationConfig `yaml:"isolation"`
	Child     child.Hardening `yaml:"child"`
	Batch     BatchConfig     `yaml:"batch"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.ConfigLoadFailed, "read config file %s", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.ConfigLoadFailed, "parse config file %s", path)
	}
	return nil
}

// loadAppConfig reads path, or starts from defaults when path is empty.
func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func validate(cfg *AppConfig) error {
	if cfg.Isolation.DefaultBudget < 0 {
		return pkgerrors.Newf(pkgerrors.ConfigInvalid, "isolation.defaultBudget must not be negative")
	}
	if cfg.Batch.Concurrency < 0 {
		return pkgerrors.Newf(pkgerrors.ConfigInvalid, "batch.concurrency must not be negative")
	}
	if p := cfg.Child.SeccompProfile; p != "" {
		if _, err := os.Stat(p); err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.ConfigInvalid, "child.seccompProfile %s", p)
		}
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = defaultLogLevel
	}
	if cfg.Batch.Concurrency == 0 {
		cfg.Batch.Concurrency = defaultConcurrency
	}
}

// budget picks the flag value when set, else the configured default.
func (c IsolationConfig) budget(flagValue time.Duration) (deadline.Budget, error) {
	switch {
	case flagValue < 0:
		return deadline.Budget{}, fmt.Errorf("budget must not be negative: %s", flagValue)
	case flagValue > 0:
		return deadline.Within(flagValue), nil
	case c.DefaultBudget > 0:
		return deadline.Within(c.DefaultBudget), nil
	default:
		return deadline.Unlimited(), nil
	}
}
