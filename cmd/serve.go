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

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/ai-gateway/config"
	"github.com/angeloszaimis/ai-gateway/internal/gateway"
	"github.com/angeloszaimis/ai-gateway/internal/handler"
	"github.com/angeloszaimis/ai-gateway/internal/healthcheck"
	"github.com/angeloszaimis/ai-gateway/internal/httpserver"
	"github.com/angeloszaimis/ai-gateway/internal/metrics"
	"github.com/angeloszaimis/ai-gateway/internal/middleware"
	"github.com/angeloszaimis/ai-gateway/internal/provider"
	"github.com/angeloszaimis/ai-gateway/internal/telemetry"
	"github.com/angeloszaimis/ai-gateway/pkg/circuitbreaker"
	"github.com/angeloszaimis/ai-gateway/pkg/logger"
)

const metricsBufferSize = 1000

var errMissingAPIKey = errors.New("provider.api_key (or GEMINI_API_KEY) is required")

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// app holds the long-lived components shared by the HTTP routes.
type app struct {
	cfg       *config.Config
	registry  *circuitbreaker.Registry
	collector *metrics.Collector
	monitor   *healthcheck.Monitor
	auth      *middleware.APIKeyAuthenticator
	ai        *handler.AIHandler
	log       *slog.Logger
}

func newApp(cfg *config.Config, completer provider.Completer, log *slog.Logger) *app {
	registry := circuitbreaker.NewRegistry(cfg.Breaker.FailureThreshold, cfg.Breaker.CooldownDuration())
	collector := metrics.NewCollector(metricsBufferSize, log)
	svc := gateway.NewService(completer, log, cfg.Provider.TimeoutDuration())

	return &app{
		cfg:       cfg,
		registry:  registry,
		collector: collector,
		monitor:   healthcheck.NewMonitor(registry, cfg.Monitor.IntervalDuration(), log, collector),
		auth:      middleware.NewAPIKeyAuthenticator(cfg.Auth.APIKeys),
		ai:        handler.NewAIHandler(svc, registry, cfg.Breaker.ServiceName, log, collector),
		log:       log,
	}
}

// start runs the background workers until ctx is cancelled.
func (a *app) start(ctx context.Context) {
	a.collector.Start(ctx)
	go a.monitor.Run(ctx)
}

func (a *app) reloadKeys(cfg *config.Config) {
	a.auth.SetKeys(cfg.Auth.APIKeys)
	a.log.Info("API keys reloaded", slog.Int("count", a.auth.KeyCount()))
}

func runServe(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}

	loader := config.NewLoader(opts.configPaths...)
	cfg, err := loader.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		return err
	}

	if cfg.Provider.APIKey == "" {
		slog.Error("missing provider credentials", slog.Any("err", errMissingAPIKey))
		return errMissingAPIKey
	}

	log := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		Environment: cfg.Server.Environment,
		Service:     cfg.Telemetry.ServiceName,
		AddSource:   cfg.Server.Environment != config.EnvProd,
	})

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Error("Failed to initialize tracing", slog.Any("err", err))
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("Failed to flush traces", slog.Any("err", err))
		}
	}()

	completer, err := provider.New(ctx, provider.Settings{
		Kind:    cfg.Provider.Kind,
		Model:   cfg.Provider.Model,
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
	})
	if err != nil {
		log.Error("Failed to create provider", slog.String("kind", cfg.Provider.Kind), slog.Any("err", err))
		return err
	}

	a := newApp(cfg, completer, log)
	a.start(ctx)

	if len(cfg.Auth.APIKeys) == 0 {
		log.Warn("No API keys configured, /api/ai/generate will reject every caller")
	}
	loader.Watch(log, a.reloadKeys)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(a),
		httpserver.WithWriteTimeout(cfg.Provider.TimeoutDuration()+10*time.Second))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		return err
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("AI gateway listening",
		slog.String("address", cfg.Server.Address),
		slog.String("provider", completer.Name()),
		slog.String("model", cfg.Provider.Model),
		slog.String("breaker", cfg.Breaker.ServiceName))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Error during shutdown", slog.Any("err", err))
			return err
		}
		return nil
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting AI gateway", slog.Any("err", err))
		}
		return err
	}
}
