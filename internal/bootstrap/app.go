package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yanqian/daily-advisor/internal/infra/config"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
)

// Purger is implemented by KV backends that keep expired rows until swept.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// App encapsulates the HTTP server lifecycle.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	server *http.Server
	purger Purger
}

// NewApp is used by Wire to build the runnable app. purger may be nil.
func NewApp(cfg *config.Config, logger *slog.Logger, server *http.Server, purger Purger) *App {
	return &App{cfg: cfg, logger: logger.With("component", "bootstrap"), server: server, purger: purger}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("http server starting", "address", a.cfg.HTTP.Address, "store", a.cfg.Store.Driver, "provider", a.cfg.LLM.Provider)
		if err := a.server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	if a.purger != nil {
		go a.runJanitor(janitorCtx, purgeInterval)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutdown signal received")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) runJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.purgeOnce(ctx)
		}
	}
}

func (a *App) purgeOnce(ctx context.Context) {
	removed, err := a.purger.PurgeExpired(ctx)
	if err != nil {
		a.logger.Warn("expired entry purge failed", "error", err)
		return
	}
	if removed > 0 {
		a.logger.Debug("expired entries purged", "removed", removed)
	}
}
