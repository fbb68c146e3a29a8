package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codearchitect/internal/llm"
	"codearchitect/internal/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ARCHITECT_API_KEY", "ARCHITECT_PROVIDER", "ARCHITECT_MODEL", "ARCHITECT_BASE_URL", "ARCHITECT_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "architect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, 20*time.Second, cfg.Retry.Delay)
	assert.Equal(t, "python", cfg.Generation.Language)
	assert.True(t, cfg.Generation.SectionHeaders)
	assert.Equal(t, 30, cfg.Generation.MaxSections)
	assert.Equal(t, 300, cfg.Memory.ExcerptChars)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "architect.db", cfg.Storage.Path)
	assert.Equal(t, llm.DefaultGeminiModel, cfg.ModelName())
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
ai:
  provider: openai
  base_url: http://localhost:11434/v1
  timeout: 30s
retry:
  max_attempts: 4
  delay: 500ms
  multiplier: 2
generation:
  language: go
  section_headers: false
memory:
  verbosity: full
  max_chars: 4000
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Equal(t, llm.DefaultOpenAIModel, cfg.ModelName())
	assert.Equal(t, "go", cfg.Generation.Language)
	assert.False(t, cfg.Generation.SectionHeaders)
	// untouched keys keep their defaults
	assert.Equal(t, 30, cfg.Generation.MaxSections)
	assert.Equal(t, 60*time.Second, cfg.Retry.MaxDelay)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 4, policy.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, policy.Delay)
	assert.Equal(t, 2.0, policy.Multiplier)

	mem := cfg.MemoryOptions()
	assert.Equal(t, memory.VerbosityFull, mem.Verbosity)
	assert.Equal(t, 4000, mem.MaxChars)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "ai:\n  provider: gemini\n  api_key: from-file\n")
	t.Setenv("ARCHITECT_API_KEY", "from-env")
	t.Setenv("ARCHITECT_PROVIDER", "openai")
	t.Setenv("ARCHITECT_MODEL", "gpt-4o")
	t.Setenv("ARCHITECT_BASE_URL", "http://proxy")
	t.Setenv("ARCHITECT_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.AI.APIKey)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "gpt-4o", cfg.ModelName())
	assert.Equal(t, "http://proxy", cfg.AI.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "ai: [unclosed")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"provider":  func(c *Config) { c.AI.Provider = "llama" },
		"attempts":  func(c *Config) { c.Retry.MaxAttempts = 0 },
		"delay":     func(c *Config) { c.Retry.Delay = -time.Second },
		"verbosity": func(c *Config) { c.Memory.Verbosity = "loud" },
		"sections":  func(c *Config) { c.Generation.MaxSections = -1 },
		"format":    func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLLMOptions_KeyOverride(t *testing.T) {
	cfg := Default()
	cfg.AI.APIKey = "configured"
	cfg.RateLimit.PerSecond = 0.5
	cfg.RateLimit.Burst = 2

	opts := cfg.LLMOptions("")
	assert.Equal(t, "configured", opts.APIKey)
	assert.Equal(t, 0.5, opts.RatePerSecond)
	assert.Equal(t, 2, opts.RateBurst)

	assert.Equal(t, "per-request", cfg.LLMOptions("per-request").APIKey)
}
