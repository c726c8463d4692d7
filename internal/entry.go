// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/evolve/internal/api"
	"github.com/starford/evolve/internal/authgate"
	"github.com/starford/evolve/internal/dashboard"
	"github.com/starford/evolve/internal/encoder"
	"github.com/starford/evolve/internal/imagecrypt"
	"github.com/starford/evolve/internal/source"
	"github.com/starford/evolve/internal/sse"
	"github.com/starford/evolve/internal/storage"
	"github.com/starford/evolve/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("images_dir", cfg.Images.Dir),
		slog.String("input_dir", cfg.Images.InputDir),
		slog.String("clients_url", cfg.ClientsURL()),
		slog.String("image_base_url", cfg.ImageBaseURL()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	res, err := openResources(cfg)
	if err != nil {
		return err
	}
	defer res.db.Close()

	// SSE broker.
	broker := sse.NewBroker(500 * time.Millisecond)
	defer broker.Close()

	dash := newDashboard(cfg, broker, logger)
	sessions := authgate.NewSessions()

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	var ready atomic.Bool

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	api.Mount(r, api.Deps{
		Dashboard:    dash,
		Sessions:     sessions,
		PasswordHash: cfg.Dashboard.AdminPasswordHash,
		SecureCookie: cfg.App.HTTP.SecureCookie,
		Clients:      res.db,
		Images:       res.images,
		Events:       broker,
	})

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Listen before the initial reload so a self-hosted record source answers.
	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", httpServer.Addr, err)
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Initial table load.
	g.Go(func() error {
		defer ready.Store(true)
		n, err := dash.Reload(gCtx)
		if err != nil {
			logger.Warn("initial reload failed", slog.String("error", err.Error()))
			return nil
		}
		logger.Info("clients loaded", slog.Int("count", n))
		return nil
	})

	// Encrypt avatars dropped into the input directory and reload the table
	// when new blobs appear.
	if cfg.Encoder.Workers > 0 {
		enc, err := newEncoder(cfg, res, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			err := enc.Watch(gCtx, cfg.Images.InputDir, cfg.Encoder.Debounce, func(rep *encoder.Report, err error) {
				if err != nil || len(rep.Encrypted) == 0 {
					return
				}
				if _, err := dash.Reload(gCtx); err != nil {
					logger.Warn("reload after encode failed", slog.String("error", err.Error()))
				}
			})
			if err != nil {
				logger.Warn("avatar watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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
		// SSE streams only end when the broker closes.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Unblock the watcher and the reload.
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	dash.WaitAvatars()
	logger.Info("Server stopped successfully")
	return nil
}

type resources struct {
	db     *store.DB
	images *storage.FS
	inputs *storage.FS
}

func openResources(cfg *Config) (*resources, error) {
	for _, dir := range []string{cfg.Images.Dir, cfg.Images.InputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	images, err := storage.NewFS(cfg.Images.Dir)
	if err != nil {
		return nil, fmt.Errorf("init image storage: %w", err)
	}
	inputs, err := storage.NewFS(cfg.Images.InputDir)
	if err != nil {
		return nil, fmt.Errorf("init input storage: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return &resources{db: db, images: images, inputs: inputs}, nil
}

func newDashboard(cfg *Config, events dashboard.Publisher, logger *slog.Logger) *dashboard.Service {
	pipeline := imagecrypt.NewPipeline(
		imagecrypt.NewHTTPFetcher(cfg.Source.Timeout),
		imagecrypt.NewObjectStore(),
		logger,
	)
	return dashboard.NewService(
		source.New(cfg.ClientsURL(), cfg.Source.Timeout),
		pipeline,
		events,
		dashboard.Options{HexKey: cfg.Dashboard.HexKey, ImageBaseURL: cfg.ImageBaseURL()},
		logger,
	)
}

func newEncoder(cfg *Config, res *resources, logger *slog.Logger) (*encoder.Encoder, error) {
	enc, err := encoder.New(res.inputs, res.images, res.db, cfg.Dashboard.HexKey, cfg.Encoder.Workers, logger)
	if err != nil {
		return nil, fmt.Errorf("init encoder: %w", err)
	}
	return enc, nil
}
