// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/fmschema/internal/api"
	"github.com/starford/fmschema/internal/index"
	"github.com/starford/fmschema/internal/mcpserver"
	"github.com/starford/fmschema/internal/pipeline"
	"github.com/starford/fmschema/internal/sse"
	"github.com/starford/fmschema/internal/storage"
)

// runtime is the wired application shared by every run mode.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  storage.Provider
	cache  *index.DB
	svc    *pipeline.Service
}

func setup(opts []Option, extra ...pipeline.Option) (*runtime, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("input_path", absPath(cfg.Input.Path)),
		slog.String("pattern", cfg.Input.Pattern),
		slog.String("schema_path", cfg.Schema.Path),
		slog.String("output_path", cfg.Output.Path),
		slog.Bool("cache_enabled", cfg.Cache.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewFS(cfg.Input.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, store: store}
	popts := append([]pipeline.Option{pipeline.WithLogger(logger)}, extra...)

	if cfg.Cache.Enabled {
		db, err := index.Open(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		rt.cache = db
		popts = append(popts, pipeline.WithCache(db))
	}

	rt.svc, err = pipeline.NewService(cfg.Pipeline(), store, popts...)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			rt.logger.Warn("close cache failed", slog.String("error", err.Error()))
		}
	}
}

// watch rebuilds on every debounced batch of input, schema or template
// changes until ctx is cancelled. onChange, if set, sees each batch first.
func (rt *runtime) watch(ctx context.Context, onChange func([]string)) error {
	extra := append([]string{rt.cfg.Schema.Path}, rt.svc.TemplateFiles()...)
	var ignore []string
	if rt.cfg.Output.Path != "" {
		ignore = append(ignore, rt.cfg.Output.Path)
	}
	if rt.cfg.Cache.Enabled {
		for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
			ignore = append(ignore, rt.cfg.Cache.Path+suffix)
		}
	}

	return index.Watch(ctx, index.WatchOptions{
		Root:    rt.cfg.Input.Path,
		Pattern: rt.cfg.Input.Pattern,
		Extra:   extra,
		Ignore:  ignore,
	}, rt.logger, func(ctx context.Context, changed []string) {
		if onChange != nil {
			onChange(changed)
		}
		// Failures are logged and published by the service.
		_, _ = rt.svc.Build(ctx)
	})
}

// Build runs the pipeline once.
func Build(ctx context.Context, opts ...Option) (*pipeline.Build, error) {
	rt, err := setup(opts)
	if err != nil {
		return nil, err
	}
	defer rt.close()
	return rt.svc.Build(ctx)
}

// Render builds once and resolves tmpl against the aggregate using the
// configured resolution options.
func Render(ctx context.Context, tmpl string, opts ...Option) (string, error) {
	rt, err := setup(opts)
	if err != nil {
		return "", err
	}
	defer rt.close()
	if _, err := rt.svc.Build(ctx); err != nil {
		return "", err
	}
	res, err := rt.svc.Render(tmpl, rt.svc.Config().Resolve)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Watch builds once and then rebuilds on change until ctx is cancelled or a
// shutdown signal arrives.
func Watch(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _ = rt.svc.Build(ctx)
	return rt.watch(ctx, nil)
}

// ServeMCP builds once and serves the MCP tools over stdio.
func ServeMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := rt.svc.Build(ctx); err != nil {
		rt.logger.Warn("initial build failed", slog.String("error", err.Error()))
	}
	return mcpserver.New(rt.svc, rt.store).ServeStdio()
}

// newHandler builds the HTTP handler: health checks plus the API under /api.
func newHandler(rt *runtime, broker *sse.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, ok := rt.svc.Last(); !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"building"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	var events http.Handler
	if broker != nil {
		events = broker
	}
	r.Mount("/api", api.NewRouter(rt.svc, rt.cfg.Auth.AuthEnabled(), rt.cfg.Auth.Token, events))
	return r
}

// buildEvents publishes every build attempt to the SSE broker.
func buildEvents(broker *sse.Broker) pipeline.Notifier {
	return func(b *pipeline.Build, err error) {
		if err != nil {
			broker.PublishBuildEvent(sse.KindFailed, map[string]string{"error": err.Error()})
			return
		}
		broker.PublishBuildEvent(sse.KindCompleted, b.Stats)
	}
}

// Run starts the HTTP server with the watcher and blocks until shutdown.
func Run(ctx context.Context, opts ...Option) error {
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := setup(opts, pipeline.WithNotifier(buildEvents(broker)))
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	logger := rt.logger

	if _, err := rt.svc.Build(ctx); err != nil {
		logger.Warn("initial build failed", slog.String("error", err.Error()))
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHandler(rt, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		return rt.watch(gCtx, broker.PublishChanges)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
