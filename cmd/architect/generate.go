package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codearchitect/internal/generator"
	"codearchitect/internal/metrics"
	"codearchitect/internal/orchestrator"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	promptFile string
	outPath    string
	reportPath string
	language   string
	noHeaders  bool
	noSave     bool
)

func init() {
	for _, cmd := range []*cobra.Command{generateCmd, planCmd} {
		cmd.Flags().StringVarP(&promptFile, "file", "f", "", "Read the prompt from a file")
		cmd.Flags().StringVarP(&language, "language", "l", "", "Target language (default from generation.language)")
	}
	generateCmd.Flags().StringVarP(&outPath, "out", "o", "", `Where to write the script ("-" for stdout; default generated_app.<ext>)`)
	generateCmd.Flags().StringVar(&reportPath, "report", "", "Also write the run report as JSON to this path")
	generateCmd.Flags().BoolVar(&noHeaders, "no-headers", false, "Do not prefix sections with header comments")
	generateCmd.Flags().BoolVar(&noSave, "no-save", false, "Do not archive the run")
}

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Plan and write a single-file program",
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(args, promptFile)
		if err != nil {
			return err
		}
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.ensureAPIKey(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gen, err := a.newGenerator(ctx, "")
		if err != nil {
			return fmt.Errorf("failed to create provider client: %w", err)
		}

		cfg := a.orchestratorConfig()
		if noHeaders {
			cfg.SectionHeaders = false
		}
		orch := orchestrator.New(gen, cfg,
			orchestrator.WithLogger(a.logger),
			orchestrator.WithMetrics(metrics.New()),
			orchestrator.WithObserver(func(e orchestrator.Event) {
				fmt.Fprintln(os.Stderr, orchestrator.FormatProgress(e))
			}),
		)

		fmt.Fprintf(os.Stderr, "🚀 Generating with %s (%s)...\n", cfg.Provider, cfg.Model)
		res, runErr := orch.Run(ctx, generator.Request{Prompt: prompt, Language: language})

		if res != nil && !noSave {
			archive(a, res)
		}
		if res != nil && reportPath != "" && res.Report != nil {
			if err := res.Report.Save(reportPath); err != nil {
				a.logger.Warn("failed to write run report", zap.String("path", reportPath), zap.Error(err))
			}
		}
		if runErr != nil {
			return runErr
		}

		return writeScript(res)
	},
}

func archive(a *app, res *orchestrator.Result) {
	store, err := a.openStore()
	if err != nil {
		a.logger.Warn("run not archived", zap.Error(err))
		return
	}
	defer store.Close()
	if err := store.SaveRun(context.Background(), res); err != nil {
		a.logger.Warn("run not archived", zap.String("run_id", res.ID), zap.Error(err))
		return
	}
	fmt.Fprintf(os.Stderr, "💾 Run %s archived in %s\n", res.ID, a.cfg.Storage.Path)
}

func writeScript(res *orchestrator.Result) error {
	path := outPath
	if path == "" {
		path = generator.LookupLanguage(res.Request.Language).FileName()
	}
	if path == "-" {
		_, err := fmt.Fprint(os.Stdout, res.Script)
		return err
	}
	if err := os.WriteFile(path, []byte(res.Script), 0o644); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}
	fmt.Fprintf(os.Stderr, "🎉 Wrote %d sections to %s\n", len(res.Sections), path)
	return nil
}

var planCmd = &cobra.Command{
	Use:   "plan [prompt]",
	Short: "Run only the planning phase and print the plan as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(args, promptFile)
		if err != nil {
			return err
		}
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.ensureAPIKey(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gen, err := a.newGenerator(ctx, "")
		if err != nil {
			return fmt.Errorf("failed to create provider client: %w", err)
		}
		orch := orchestrator.New(gen, a.orchestratorConfig(), orchestrator.WithLogger(a.logger))

		fmt.Fprintln(os.Stderr, "🧭 Planning script structure...")
		plan, err := orch.Plan(ctx, generator.Request{Prompt: prompt, Language: language})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	},
}
