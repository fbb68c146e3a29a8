package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"codearchitect/internal/llm"
	"codearchitect/internal/memory"
	"codearchitect/internal/retry"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "architect.yaml"

type Config struct {
	AI struct {
		Provider string        `yaml:"provider"`
		Model    string        `yaml:"model"`
		APIKey   string        `yaml:"api_key"`
		BaseURL  string        `yaml:"base_url"` // OpenAI-compatible endpoints only
		Timeout  time.Duration `yaml:"timeout"`  // per provider call
	} `yaml:"ai"`
	Retry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Delay       time.Duration `yaml:"delay"`
		Multiplier  float64       `yaml:"multiplier"`
		MaxDelay    time.Duration `yaml:"max_delay"`
	} `yaml:"retry"`
	RateLimit struct {
		PerSecond float64 `yaml:"per_sec"`
		Burst     int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Generation struct {
		Language       string `yaml:"language"`
		SectionHeaders bool   `yaml:"section_headers"`
		MaxSections    int    `yaml:"max_sections"`
	} `yaml:"generation"`
	Memory struct {
		Verbosity    string `yaml:"verbosity"`
		ExcerptChars int    `yaml:"excerpt_chars"`
		MaxChars     int    `yaml:"max_chars"`
	} `yaml:"memory"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.AI.Provider = "gemini"
	cfg.AI.Timeout = 90 * time.Second
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.Delay = 20 * time.Second
	cfg.Retry.Multiplier = 1
	cfg.Retry.MaxDelay = 60 * time.Second
	cfg.Generation.Language = "python"
	cfg.Generation.SectionHeaders = true
	cfg.Generation.MaxSections = 30
	cfg.Memory.Verbosity = string(memory.VerbositySummary)
	cfg.Memory.ExcerptChars = memory.DefaultExcerptChars
	cfg.Server.Addr = ":8080"
	cfg.Storage.Path = "architect.db"
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	return &cfg
}

// LoadConfig layers defaults, the YAML file at path, and environment
// variables (a .env file in the working directory is loaded first).
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config over the defaults
	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	// 3. Override with Environment Variables if present
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if apiKey := os.Getenv("ARCHITECT_API_KEY"); apiKey != "" {
		c.AI.APIKey = apiKey
	}
	if provider := os.Getenv("ARCHITECT_PROVIDER"); provider != "" {
		c.AI.Provider = provider
	}
	if model := os.Getenv("ARCHITECT_MODEL"); model != "" {
		c.AI.Model = model
	}
	if baseURL := os.Getenv("ARCHITECT_BASE_URL"); baseURL != "" {
		c.AI.BaseURL = baseURL
	}
	if level := os.Getenv("ARCHITECT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.AI.Provider) {
	case "", "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("ai.provider: unsupported provider %q", c.AI.Provider))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.Delay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}
	if _, err := memory.ParseVerbosity(c.Memory.Verbosity); err != nil {
		errs = append(errs, fmt.Errorf("memory.verbosity: %w", err))
	}
	if c.Generation.MaxSections < 0 {
		errs = append(errs, errors.New("generation.max_sections must not be negative"))
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: want json or console, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ModelName returns the configured model or the provider's default.
func (c *Config) ModelName() string {
	if c.AI.Model != "" {
		return c.AI.Model
	}
	if strings.EqualFold(c.AI.Provider, "openai") {
		return llm.DefaultOpenAIModel
	}
	return llm.DefaultGeminiModel
}

// LLMOptions builds provider options. A non-empty apiKey replaces the
// configured key.
func (c *Config) LLMOptions(apiKey string) llm.Options {
	if apiKey == "" {
		apiKey = c.AI.APIKey
	}
	return llm.Options{
		Provider:      c.AI.Provider,
		APIKey:        apiKey,
		Model:         c.ModelName(),
		BaseURL:       c.AI.BaseURL,
		Timeout:       c.AI.Timeout,
		RatePerSecond: c.RateLimit.PerSecond,
		RateBurst:     c.RateLimit.Burst,
	}
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		Delay:       c.Retry.Delay,
		Multiplier:  c.Retry.Multiplier,
		MaxDelay:    c.Retry.MaxDelay,
	}
}

func (c *Config) MemoryOptions() memory.Options {
	v, _ := memory.ParseVerbosity(c.Memory.Verbosity)
	return memory.Options{
		Verbosity:    v,
		ExcerptChars: c.Memory.ExcerptChars,
		MaxChars:     c.Memory.MaxChars,
	}
}
