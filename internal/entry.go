// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/stash/internal/api"
	"github.com/starford/stash/internal/blob"
	"github.com/starford/stash/internal/folders"
	"github.com/starford/stash/internal/identity"
	"github.com/starford/stash/internal/inbox"
	"github.com/starford/stash/internal/mcpserver"
	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/query"
	"github.com/starford/stash/internal/resources"
	"github.com/starford/stash/internal/sqlstore"
	"github.com/starford/stash/internal/sse"
	"github.com/starford/stash/internal/stats"
)

// core is the storage and service layer shared by the HTTP and MCP servers.
type core struct {
	db        *sqlstore.DB
	folders   *folders.Service
	resources *resources.Service
	query     *query.Engine
	stats     *stats.Aggregator
	blobs     *blob.Store
}

func newCore(cfg *Config, logger *slog.Logger) (*core, error) {
	db, err := sqlstore.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	blobs, err := blob.NewStore(cfg.Files.Path, cfg.Files.URLPrefix, cfg.Files.MaxBytes())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}
	fs := folders.NewService(db, logger)
	return &core{
		db:        db,
		folders:   fs,
		resources: resources.NewService(db, fs, logger),
		query:     query.NewEngine(db, logger),
		stats:     stats.NewAggregator(db),
		blobs:     blobs,
	}, nil
}

func setup(opts []Option, defaultOut io.Writer) (*application, *slog.Logger, error) {
	app := &application{logOutput: defaultOut}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app, logger, nil
}

func authProvider(cfg AuthConfig) identity.Provider {
	if cfg.AuthEnabled() {
		return identity.Tokens(cfg.Tokens)
	}
	return identity.Static{User: cfg.DefaultUser}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}

// Run starts the HTTP server, and the inbox importer when enabled, until ctx
// is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts, os.Stdout)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("files_path", cfg.Files.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.db.Close()

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.StatsThrottle)
	defer broker.Close()

	h := api.NewHandler(api.Deps{
		Folders:   c.folders,
		Resources: c.resources,
		Query:     c.query,
		Stats:     c.stats,
		Blobs:     c.blobs,
		Events:    broker,
		Logger:    logger,
	})
	apiRouter := api.NewRouter(h, authProvider(cfg.Auth), broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := c.db.Ping(pingCtx); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	// Stored files are content-addressed and served without authentication.
	r.Get(cfg.Files.URLPrefix+"/{name}", h.ServeFile)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start the inbox importer; each import is pushed to the owner's event stream.
	if cfg.Inbox.Enabled {
		importer, err := inbox.New(cfg.Inbox.Path, cfg.Inbox.UserID, c.resources, logger,
			inbox.WithOnImport(func(res *models.Resource) {
				broker.PublishChange(res.UserID, sse.ResourceCreated, res)
			}))
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		g.Go(func() error {
			return importer.Run(gCtx)
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

		// Open event streams never finish on their own.
		broker.Close()

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

// errShutdown cancels the group context so the inbox watcher stops along
// with the HTTP server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdin/stdout for cfg.MCP.UserID. Logs go
// to stderr because stdout carries the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app, logger, err := setup(opts, os.Stderr)
	if err != nil {
		return err
	}
	cfg := app.config

	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.db.Close()

	srv := mcpserver.New(cfg.MCP.UserID, mcpserver.Deps{
		Folders:   c.folders,
		Resources: c.resources,
		Query:     c.query,
		Stats:     c.stats,
		Blobs:     c.blobs,
		Logger:    logger,
	})

	logger.Info("MCP server starting",
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("user", cfg.MCP.UserID))
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
