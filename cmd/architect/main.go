package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"codearchitect/internal/config"
	"codearchitect/internal/llm"
	"codearchitect/internal/logging"
	"codearchitect/internal/orchestrator"
	"codearchitect/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

var (
	rootCmd = &cobra.Command{
		Use:           "architect",
		Short:         "Plan a single-file program, then write it one section at a time",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath string
	dbPath     string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the run archive (SQLite); overrides storage.path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides log.level")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}

// app bundles what every command needs once config is loaded.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	// limiter is shared by every client this process builds; nil when
	// rate_limit.per_second is unset.
	limiter *rate.Limiter
}

func loadApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	logger.Debug("config loaded",
		zap.String("path", configPath),
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", cfg.ModelName()),
		zap.String("api_key", logging.Redact(cfg.AI.APIKey)),
	)
	return &app{
		cfg:     cfg,
		logger:  logger,
		limiter: llm.NewLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// orchestratorConfig maps file config onto run settings.
func (a *app) orchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Provider:       a.cfg.AI.Provider,
		Model:          a.cfg.ModelName(),
		Retry:          a.cfg.RetryPolicy(),
		Memory:         a.cfg.MemoryOptions(),
		MaxSections:    a.cfg.Generation.MaxSections,
		SectionHeaders: a.cfg.Generation.SectionHeaders,
		Language:       a.cfg.Generation.Language,
	}
}

// newGenerator builds the provider client throttled by the process-wide
// limiter. apiKey, when set, replaces the configured key.
func (a *app) newGenerator(ctx context.Context, apiKey string) (llm.Generator, error) {
	opts := a.cfg.LLMOptions(apiKey)
	opts.Limiter = a.limiter
	return llm.NewGenerator(ctx, opts)
}

// newClient builds an unthrottled provider client for callers that apply
// the shared limiter themselves.
func (a *app) newClient(ctx context.Context, apiKey string) (llm.Generator, error) {
	opts := a.cfg.LLMOptions(apiKey)
	opts.RatePerSecond = 0
	return llm.NewGenerator(ctx, opts)
}

// ensureAPIKey asks for the key on the terminal when none is configured.
func (a *app) ensureAPIKey() error {
	if a.cfg.AI.APIKey != "" {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("AI API key not configured (set ARCHITECT_API_KEY or ai.api_key)")
	}
	fmt.Fprintf(os.Stderr, "🔑 Enter your %s API key: ", a.cfg.AI.Provider)
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	a.cfg.AI.APIKey = strings.TrimSpace(string(key))
	if a.cfg.AI.APIKey == "" {
		return errors.New("no API key entered")
	}
	return nil
}

func (a *app) openStore() (*storage.SQLiteStore, error) {
	store, err := storage.NewSQLiteStore(a.cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run archive %s: %w", a.cfg.Storage.Path, err)
	}
	return store, nil
}

// readPrompt takes the prompt from args, a file, or piped stdin, in that
// order.
func readPrompt(args []string, file string) (string, error) {
	var prompt string
	switch {
	case len(args) > 0:
		prompt = strings.Join(args, " ")
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		prompt = string(b)
	case !term.IsTerminal(int(os.Stdin.Fd())):
		b, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		prompt = string(b)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("no prompt given: pass it as an argument, with --file, or on stdin")
	}
	return prompt, nil
}
