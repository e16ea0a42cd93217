package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Worker.Provider)
	assert.Equal(t, DefaultWorkerModel, cfg.Worker.Model)
	assert.Equal(t, DefaultMaxRetries, cfg.Retry.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.Retry.InitialDelay.Std())
	assert.Equal(t, 60*time.Second, cfg.Retry.MaxDelay.Std())
	assert.Equal(t, DefaultSandboxRoot, cfg.Tools.SandboxRoot)
	assert.Equal(t, 0, cfg.MaxCycles)
}

func TestLoadYAMLFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
worker:
  provider: anthropic
  model: claude-sonnet-4-0
evaluator:
  provider: openai
  model: gpt-4o
retry:
  max_retries: 5
  initial_delay: 500ms
  max_delay: 30s
tools:
  sandbox_root: /tmp/work
max_cycles: 8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Worker.Provider)
	assert.Equal(t, "claude-sonnet-4-0", cfg.Worker.Model)
	assert.Equal(t, "gpt-4o", cfg.Evaluator.Model)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialDelay.Std())
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay.Std())
	assert.Equal(t, "/tmp/work", cfg.Tools.SandboxRoot)
	assert.Equal(t, 8, cfg.MaxCycles)
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SIDEKICK_WORKER_MODEL", "gpt-4.1")
	t.Setenv("SIDEKICK_MAX_CYCLES", "3")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker:\n  model: gpt-4o-mini\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", cfg.Worker.Model)
	assert.Equal(t, 3, cfg.MaxCycles)
}

func TestValidateMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestValidateUnknownProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker:\n  provider: llamacpp\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestValidateDelayOrdering(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  initial_delay: 10s\n  max_delay: 1s\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_delay")
}

func TestMissingFileIsFine(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "no-such.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkerModel, cfg.Worker.Model)
}
