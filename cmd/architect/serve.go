package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codearchitect/internal/mcptools"
	"codearchitect/internal/metrics"
	"codearchitect/internal/orchestrator"
	"codearchitect/internal/server"
	"codearchitect/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from server.addr)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()
		if serveAddr != "" {
			a.cfg.Server.Addr = serveAddr
		}

		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		srv, err := server.NewServer(server.Deps{
			NewGenerator: a.newClient,
			Orchestrator: a.orchestratorConfig(),
			Store:        store,
			Metrics:      metrics.New(),
			Limiter:      a.limiter,
		}, a.logger, &server.Config{Addr: a.cfg.Server.Addr})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		fmt.Fprintf(os.Stderr, "🌐 Listening on %s\n", a.cfg.Server.Addr)
		return g.Wait()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve plan_script and generate_script as MCP tools on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()
		if a.cfg.AI.APIKey == "" {
			return errors.New("AI API key not configured (set ARCHITECT_API_KEY or ai.api_key)")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gen, err := a.newGenerator(ctx, "")
		if err != nil {
			return fmt.Errorf("failed to create provider client: %w", err)
		}

		// MCP clients own stdout, so archive failures are logged only.
		var store storage.RunStore
		if s, err := a.openStore(); err != nil {
			a.logger.Warn("runs will not be archived", zap.Error(err))
		} else {
			defer s.Close()
			store = s
		}
		orch := orchestrator.New(gen, a.orchestratorConfig(), orchestrator.WithLogger(a.logger))
		svc := mcptools.NewService(orch, store, a.logger)

		return mcptools.RunStdio(ctx, mcptools.NewMCPServer(svc))
	},
}
