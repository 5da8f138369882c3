package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sophialabs/expectmock/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/expectmock/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/expectmock/internal/infrastructure/wiring"
)

// App is the thin lifecycle manager that delegates dependency construction to wiring.Container.
type App struct {
	cfg        Config
	container  *wiring.Container
	httpServer *http.Server
}

// New constructs the application by creating a logger, wiring infrastructure
// components via the container, and setting up the HTTP server.
func New(cfg Config) (*App, error) {
	logger := logging.NewText(os.Stdout, cfg.LogLevel)

	container, err := wiring.New(wiring.Params{
		InitializerPath:      cfg.InitializerPath,
		TraceSize:            cfg.TraceSize,
		RateLimiterTTL:       cfg.RateLimiterTTL,
		ActionTimeout:        cfg.ActionTimeout,
		MaxDelay:             cfg.MaxDelay,
		ForwardRateLimit:     cfg.ForwardRateLimit,
		ForwardBurst:         cfg.ForwardBurst,
		PurgeExhausted:       cfg.PurgeExhausted,
		DefaultJSONMatchType: cfg.DefaultJSONMatchType,
		CallbackPath:         cfg.CallbackPath,
		Logger:               logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wire infrastructure: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      container.Server(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		container:  container,
		httpServer: httpServer,
	}, nil
}

// Container exposes the wired components, e.g. to register class callbacks
// before Run.
func (a *App) Container() *wiring.Container {
	return a.container
}

// Run executes the full application lifecycle: load the initializer files,
// start the watcher, serve HTTP, and handle graceful shutdown on SIGINT/SIGTERM
// or context cancellation.
func (a *App) Run(ctx context.Context) error {
	defer a.container.Close()

	logger := a.container.Logger()

	if loadUC := a.container.LoadExpectationsUseCase(); loadUC != nil {
		if _, err := loadUC.Execute(ctx); err != nil {
			return fmt.Errorf("failed to load expectations: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watcher := a.setupWatcher(); watcher != nil {
		defer watcher.Stop()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting expectmock server", "addr", a.httpServer.Addr, "initializer", a.cfg.InitializerPath)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func (a *App) setupWatcher() *filesystem.Watcher {
	repo := a.container.Repository()
	if !a.cfg.Watch || repo == nil {
		return nil
	}

	logger := a.container.Logger()
	loadUC := a.container.LoadExpectationsUseCase()

	watcher, err := filesystem.NewWatcher(repo, a.cfg.WatcherDebounce, logger, func() {
		result, err := loadUC.Execute(context.Background())
		if err != nil {
			logger.Error("hot reload failed", "error", err)
			return
		}
		logger.Info("hot reload complete", "loaded", result.Loaded, "failed", result.Failed, "removed", result.Removed)
	})
	if err != nil {
		logger.Warn("file watcher not available", "error", err)
		return nil
	}

	watcher.Start()
	logger.Info("file watcher started", "root", repo.Root())
	return watcher
}
