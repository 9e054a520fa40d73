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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/projectvak/contracthub/internal/api"
	"github.com/projectvak/contracthub/internal/contracts"
	"github.com/projectvak/contracthub/internal/contractservice"
	"github.com/projectvak/contracthub/internal/crm"
	"github.com/projectvak/contracthub/internal/index"
	"github.com/projectvak/contracthub/internal/matcher"
	"github.com/projectvak/contracthub/internal/mcpserver"
	"github.com/projectvak/contracthub/internal/push"
	"github.com/projectvak/contracthub/internal/scheduler"
	"github.com/projectvak/contracthub/internal/sse"
	"github.com/projectvak/contracthub/internal/storage"
)

const defaultVersion = "dev"

// components bundles what every command shares.
type components struct {
	cfg     *Config
	app     *application
	logger  *slog.Logger
	catalog storage.Provider
	db      *index.DB
	svc     *contractservice.Service
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: defaultVersion, logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// setup initialises logging, storage, the index and the contract service.
// notifier may be nil.
func setup(app *application, notifier contractservice.Notifier) (*components, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("catalog_path", cfg.Catalog.Path),
		slog.String("store_path", cfg.Store.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("crm_configured", cfg.CRM.Configured()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	for _, dir := range []string{cfg.Catalog.Path, cfg.Store.Path} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	catalog, err := storage.NewFS(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}
	storeFS, err := storage.NewFS(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	store := contracts.NewFileStore(storeFS, logger)

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	// A nil target makes every push fail as not configured.
	var target push.Target
	if cfg.CRM.Configured() {
		target = crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.Token, crm.WithTimeout(cfg.CRM.Timeout))
	}
	pusher := push.New(store, target, logger,
		push.WithThresholds(cfg.Push.Thresholds()),
		push.WithSource(cfg.Push.Source))

	svc := contractservice.New(contractservice.Config{
		Store: store,
		Index: db,
		Matcher: matcher.New(db, logger,
			matcher.WithLimit(cfg.Matcher.Limit),
			matcher.WithBroadLimit(cfg.Matcher.BroadLimit)),
		Pusher:     pusher,
		Thresholds: cfg.Push.Thresholds(),
		Notifier:   notifier,
		Logger:     logger,
	})

	return &components{cfg: cfg, app: app, logger: logger, catalog: catalog, db: db, svc: svc}, nil
}

func (rt *components) syncIndex(ctx context.Context) {
	stats, err := index.Sync(ctx, rt.db, rt.catalog, rt.cfg.Catalog.Include, rt.logger)
	if err != nil {
		rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
		return
	}
	rt.logger.Info("Document index synced",
		slog.Int("indexed", stats.Indexed),
		slog.Int("removed", stats.Removed),
		slog.Int("unchanged", stats.Unchanged))
}

// Run starts the HTTP server, the catalog watcher and the sweep scheduler.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := setup(app, broker)
	if err != nil {
		return err
	}
	defer rt.db.Close()
	logger := rt.logger

	rt.syncIndex(ctx)

	sched, err := scheduler.New(cfg.Push.Schedule, rt.svc, logger)
	if err != nil {
		return err
	}

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.db.Count(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"index unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api, SSE included.
	r.Mount("/api", api.NewRouter(rt.svc, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the document index in step with the catalog.
	if cfg.Catalog.Watch {
		g.Go(func() error {
			if err := index.Watch(gCtx, rt.db, rt.catalog, cfg.Catalog.Include, logger, broker.DocumentEvent); err != nil {
				logger.Warn("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Scheduled sweeps.
	if sched != nil {
		g.Go(func() error {
			return sched.Run(gCtx)
		})
	}

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
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunSweep performs a single push sweep and returns its result.
func RunSweep(ctx context.Context, opts ...Option) (push.SweepResult, error) {
	app, err := newApplication(opts)
	if err != nil {
		return push.SweepResult{}, err
	}
	rt, err := setup(app, nil)
	if err != nil {
		return push.SweepResult{}, err
	}
	defer rt.db.Close()
	return rt.svc.Sweep(ctx)
}

// RunLink refreshes the document index and links one contract to its PDF.
func RunLink(ctx context.Context, filename string, opts ...Option) (*contractservice.LinkResult, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	rt, err := setup(app, nil)
	if err != nil {
		return nil, err
	}
	defer rt.db.Close()
	rt.syncIndex(ctx)
	return rt.svc.LinkPDF(ctx, filename)
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	rt, err := setup(app, nil)
	if err != nil {
		return err
	}
	defer rt.db.Close()
	rt.syncIndex(ctx)

	return mcpserver.New(rt.svc, app.version).ServeStdio()
}
