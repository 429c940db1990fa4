package app

import (
	"context"
	"errors"

	"github.com/bassista/plannerd/internal/config"
	"github.com/bassista/plannerd/internal/logger"
	"github.com/bassista/plannerd/internal/storage"
)

// App is the application container (immutable dependencies + lifecycle context).
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config  *config.Config
	Session *storage.Session

	BaseCtx context.Context
	Cancel  context.CancelFunc
}

func New(cfg *config.Config, sess *storage.Session) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if sess == nil {
		return nil, errors.New("session is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Config:  cfg,
		Session: sess,
		BaseCtx: ctx,
		Cancel:  cancel,
	}, nil
}

// Shutdown flushes any pending save, then stops background work.
func (a *App) Shutdown() {
	if a == nil {
		return
	}
	if a.Session != nil {
		if err := a.Session.Close(); err != nil {
			logger.WithComponent("main").Errorf("error closing session: %v", err)
		}
	}
	if a.Cancel != nil {
		a.Cancel()
	}
}

// StartWatchers starts the external-file watcher when a save target exists
// on a platform that can read it directly. A missing target is not an error;
// the watcher can only attach after the user picks a location.
func (a *App) StartWatchers() {
	if !a.Session.HasFileLocation() || !a.Session.IsFileSystemAvailable() {
		logger.WithComponent("main").Debug("no watchable save target, skipping file watcher")
		return
	}
	if err := a.Session.StartTargetWatcher(a.BaseCtx, a.Config.Data.WatchDebounce); err != nil {
		logger.WithComponent("main").Warnf("cannot start save target watcher: %v", err)
	}
}
