// Package config loads and validates sidekick runtime configuration.
//
// Configuration comes from an optional YAML file plus environment variable
// overrides; every field has a sensible default so a bare environment with
// only an API key set is enough to run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in model configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Defaults.
const (
	DefaultWorkerModel    = "gpt-4o-mini"
	DefaultEvaluatorModel = "gpt-4o-mini"
	DefaultProvider       = ProviderOpenAI

	DefaultMaxRetries   = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 60 * time.Second

	DefaultToolTimeout = 60 * time.Second
	DefaultSandboxRoot = "sandbox"
	DefaultMaxCycles   = 0 // unlimited

	DefaultMetricsAddr  = ""
	DefaultEventLogPath = ""
)

// Duration is a time.Duration that unmarshals from YAML strings like "500ms"
// or "30s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ModelConfig selects a provider and model for one role.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// RetrySettings is the YAML shape of retry configuration.
type RetrySettings struct {
	MaxRetries   int      `yaml:"max_retries"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
}

// ToolSettings configures tool execution.
type ToolSettings struct {
	// Timeout bounds a single tool execution.
	Timeout Duration `yaml:"timeout"`
	// SandboxRoot is the directory file tools are confined to.
	SandboxRoot string `yaml:"sandbox_root"`
	// SerperEndpoint overrides the web search API endpoint (tests).
	SerperEndpoint string `yaml:"serper_endpoint"`
	// PushoverEndpoint overrides the push notification API endpoint (tests).
	PushoverEndpoint string `yaml:"pushover_endpoint"`
}

// Config is the full runtime configuration.
type Config struct {
	Worker    ModelConfig   `yaml:"worker"`
	Evaluator ModelConfig   `yaml:"evaluator"`
	Retry     RetrySettings `yaml:"retry"`
	Tools     ToolSettings  `yaml:"tools"`

	// MaxCycles caps worker/evaluator cycles per turn; 0 means unlimited.
	MaxCycles int `yaml:"max_cycles"`

	// MetricsAddr, when non-empty, serves Prometheus metrics on this address.
	MetricsAddr string `yaml:"metrics_addr"`

	// EventLogPath, when non-empty, records turn events to a SQLite file.
	EventLogPath string `yaml:"event_log_path"`

	// API keys come from the environment only, never from YAML.
	OpenAIKey    string `yaml:"-"`
	AnthropicKey string `yaml:"-"`
	SerperKey    string `yaml:"-"`
	PushoverKey  string `yaml:"-"`
	PushoverUser string `yaml:"-"`
}

// Load reads configuration from the YAML file at path (which may be empty or
// missing), applies environment overrides, fills defaults, and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	c.SerperKey = os.Getenv("SERPER_API_KEY")
	c.PushoverKey = os.Getenv("PUSHOVER_TOKEN")
	c.PushoverUser = os.Getenv("PUSHOVER_USER")

	if v := os.Getenv("SIDEKICK_WORKER_MODEL"); v != "" {
		c.Worker.Model = v
	}
	if v := os.Getenv("SIDEKICK_WORKER_PROVIDER"); v != "" {
		c.Worker.Provider = v
	}
	if v := os.Getenv("SIDEKICK_EVALUATOR_MODEL"); v != "" {
		c.Evaluator.Model = v
	}
	if v := os.Getenv("SIDEKICK_EVALUATOR_PROVIDER"); v != "" {
		c.Evaluator.Provider = v
	}
	if v := os.Getenv("SIDEKICK_SANDBOX_ROOT"); v != "" {
		c.Tools.SandboxRoot = v
	}
	if v := os.Getenv("SIDEKICK_MAX_CYCLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.MaxCycles = n
		}
	}
	if v := os.Getenv("SIDEKICK_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("SIDEKICK_EVENT_LOG"); v != "" {
		c.EventLogPath = v
	}
}

func (c *Config) applyDefaults() {
	if c.Worker.Provider == "" {
		c.Worker.Provider = DefaultProvider
	}
	if c.Worker.Model == "" {
		c.Worker.Model = DefaultWorkerModel
	}
	if c.Evaluator.Provider == "" {
		c.Evaluator.Provider = DefaultProvider
	}
	if c.Evaluator.Model == "" {
		c.Evaluator.Model = DefaultEvaluatorModel
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Retry.InitialDelay <= 0 {
		c.Retry.InitialDelay = Duration(DefaultInitialDelay)
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = Duration(DefaultMaxDelay)
	}
	if c.Tools.Timeout <= 0 {
		c.Tools.Timeout = Duration(DefaultToolTimeout)
	}
	if c.Tools.SandboxRoot == "" {
		c.Tools.SandboxRoot = DefaultSandboxRoot
	}
}

// Validate checks configuration consistency, including that an API key is
// present for each configured provider.
func (c *Config) Validate() error {
	for _, mc := range []struct {
		role string
		cfg  ModelConfig
	}{
		{"worker", c.Worker},
		{"evaluator", c.Evaluator},
	} {
		switch mc.cfg.Provider {
		case ProviderOpenAI:
			if c.OpenAIKey == "" {
				return fmt.Errorf("%s uses provider %q but OPENAI_API_KEY is not set", mc.role, mc.cfg.Provider)
			}
		case ProviderAnthropic:
			if c.AnthropicKey == "" {
				return fmt.Errorf("%s uses provider %q but ANTHROPIC_API_KEY is not set", mc.role, mc.cfg.Provider)
			}
		default:
			return fmt.Errorf("%s has unknown provider %q (want %q or %q)",
				mc.role, mc.cfg.Provider, ProviderOpenAI, ProviderAnthropic)
		}
		if mc.cfg.Model == "" {
			return fmt.Errorf("%s model must not be empty", mc.role)
		}
	}

	if c.Retry.MaxDelay < c.Retry.InitialDelay {
		return fmt.Errorf("retry max_delay (%v) must be >= initial_delay (%v)", c.Retry.MaxDelay.Std(), c.Retry.InitialDelay.Std())
	}
	if c.MaxCycles < 0 {
		return fmt.Errorf("max_cycles must be >= 0, got %d", c.MaxCycles)
	}
	return nil
}
