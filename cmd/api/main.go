package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	httpadapter "github.com/kirillkom/coactivo-intake/internal/adapters/http"
	mcpadapter "github.com/kirillkom/coactivo-intake/internal/adapters/mcp"
	"github.com/kirillkom/coactivo-intake/internal/bootstrap"
	"github.com/kirillkom/coactivo-intake/internal/config"
	"github.com/kirillkom/coactivo-intake/internal/observability/logging"
	"github.com/kirillkom/coactivo-intake/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:  "api",
		Registry: httpMetrics.Registry(),
		Logger:   logger,
	})
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	var mcpHandler http.Handler
	if cfg.MCPEnabled {
		mcpHandler = mcpadapter.NewHandler(mcpadapter.NewServer(mcpadapter.Dependencies{
			Submitter: app.SubmitUC,
			Reader:    app.ReadUC,
			Remover:   app.DeleteUC,
			Metrics:   httpMetrics,
			Logger:    logger,
		}))
	}

	router, err := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Submitter: app.SubmitUC,
		Reader:    app.ReadUC,
		Remover:   app.DeleteUC,
		Exporter:  app.ExportUC,
		Metrics:   httpMetrics,
		MCP:       mcpHandler,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("router_error", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.DispatchMode == config.DispatchInProc {
		// No separate worker in this mode: runs and the sweeper live here.
		g.Go(func() error { return app.RunCaseConsumer(gctx) })
		g.Go(func() error { return app.RunStaleSweeper(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("api_stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("api_stopped")
}
