// Package app wires the service graph and owns the process lifecycle.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"sigtrade/internal/api"
	"sigtrade/internal/config"
	"sigtrade/internal/engine"
	"sigtrade/internal/logger"
	"sigtrade/internal/store/gormstore"
)

type App struct {
	watcher *config.Watcher
	store   *gormstore.GormStore
	engine  *engine.Engine
	api     *api.Server
}

// New builds the application from a watched config file (does not start).
func New(configPath string) (*App, error) {
	watcher, err := config.Watch(configPath)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(watcher.Current().App.LogLevel)
	return build(watcher)
}

// Run starts the reconcile loop and the HTTP server and blocks until the
// context is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.store.Close()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		a.engine.Run(ctx)
		return nil
	})
	group.Go(func() error {
		if err := a.api.Start(ctx); err != nil {
			return fmt.Errorf("api server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}
