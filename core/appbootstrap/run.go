package appbootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"aquatrace/api"
	"aquatrace/config"
	"aquatrace/core/store"
	"aquatrace/core/utils"
)

// Run boots the full application: database, migrations, seed, workers,
// HTTP server. It blocks until ctx is cancelled, then shuts everything
// down in reverse order.
func Run(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) error {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	comp, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return fmt.Errorf("compose runtime: %w", err)
	}

	if err := EnsureDefaultAdmin(ctx, comp.users, cfg, logger); err != nil {
		return fmt.Errorf("ensure default admin: %w", err)
	}
	if cfg.IsDemoMode() {
		if err := SeedDemoData(ctx, comp.users, comp.master, comp.incidents, cfg, logger); err != nil {
			logger.Errorf("seed demo data: %v", err)
		}
	}

	for _, w := range comp.workers {
		if err := w.Start(); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
	}
	defer func() {
		for _, w := range comp.workers {
			w.Stop()
		}
	}()

	server := api.NewServer(cfg, comp.serverDeps, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
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
