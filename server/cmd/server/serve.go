package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/livefeed/livefeed/server/internal/api"
	"github.com/livefeed/livefeed/server/internal/config"
	"github.com/livefeed/livefeed/server/internal/gateway"
	"github.com/livefeed/livefeed/server/internal/generator"
	"github.com/livefeed/livefeed/server/internal/metrics"
	"github.com/livefeed/livefeed/server/internal/store"
	"github.com/livefeed/livefeed/server/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the service",
	Long: `Start the livefeed service.

The server will:
  - Load configuration from the given YAML file (defaults if omitted)
  - Populate the store with the warm-up dataset
  - Serve GET /data, GET /healthz, GET /metrics and WebSocket upgrades on /data
  - Apply a random batch of inserts, mutations and deletes on every tick

Generator parameters and the log level are reloaded when the config file
changes. The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  livefeed serve
  livefeed serve -c config.yaml --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file")
	serveCmd.Flags().Int("port", 0, "override server.http_port")
	serveCmd.Flags().Int("warmup", -1, "override generator.warmup_count")
}

// app is the assembled service, ready to warm up and serve.
type app struct {
	store   store.Store
	hub     *ws.Hub
	gen     *generator.Generator
	handler http.Handler
	fatal   chan error
}

// newApp wires the store, hub, generator and HTTP surface described by cfg.
func newApp(cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.Store, cfg.Generator.Seed)
	if err != nil {
		return nil, err
	}

	reg := metrics.NewRegistry()
	hubMetrics := metrics.NewHubMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	hub := ws.New(cfg.Hub, hubMetrics)
	gen := generator.New(st, hub, generator.ParamsFromConfig(cfg.Generator),
		metrics.NewGeneratorMetrics(reg), generator.WithSeed(cfg.Generator.Seed))

	a := &app{store: st, hub: hub, gen: gen, fatal: make(chan error, 1)}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.Handle("/", httpMetrics.Instrument(api.New(st, hub, a.onFatal)))
	a.handler = gateway.New(cfg.Hub.Path, hub, mux, hubMetrics)

	return a, nil
}

// onFatal records the first fatal store error seen by the query API.
func (a *app) onFatal(err error) {
	select {
	case a.fatal <- err:
	default:
	}
}

// loadConfig returns defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runServe(cmd *cobra.Command, args []string) error {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.HTTPPort = port
	}
	if n, _ := cmd.Flags().GetInt("warmup"); n >= 0 {
		cfg.Generator.WarmupCount = n
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	level.Set(cfg.Server.Level())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"store", cfg.Store.Backend,
		"warmup_count", cfg.Generator.WarmupCount,
		"tick_interval", cfg.Generator.TickInterval,
		"hub_path", cfg.Hub.Path,
	)

	a, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer a.store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listeners open only after the initial dataset exists.
	if err := a.gen.Warmup(ctx, cfg.Generator.WarmupCount); err != nil {
		return fmt.Errorf("warm-up failed: %w", err)
	}

	if configFile != "" {
		go func() {
			err := config.Watch(ctx, configFile, func(next *config.Config) {
				level.Set(next.Server.Level())
				a.gen.SetParams(generator.ParamsFromConfig(next.Generator))
			})
			if err != nil {
				slog.Warn("config watcher stopped", "err", err)
			}
		}()
	}

	go a.hub.Run(ctx)

	genErr := make(chan error, 1)
	go func() { genErr <- a.gen.Run(ctx) }()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: a.handler,
	}
	srvErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("livefeed shutting down")
	case err := <-genErr:
		runErr = err
	case err := <-a.fatal:
		runErr = err
	case err := <-srvErr:
		runErr = fmt.Errorf("http server: %w", err)
	}
	if runErr != nil {
		slog.Error("fatal error, shutting down", "err", runErr)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown timed out", "timeout", cfg.Server.ShutdownTimeout, "err", err)
	}
	slog.Info("shutdown complete")
	return runErr
}
