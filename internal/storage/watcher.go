package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bassista/plannerd/internal/filetarget"
	"github.com/bassista/plannerd/internal/logger"
	"github.com/bassista/plannerd/internal/session"
)

// StartTargetWatcher listens for external edits to the save target and
// reconciles them into the cache after a debounce window. It watches the
// parent directory (not the file) so atomic replace sequences (temp+rename)
// are still observed. The caller owns the context: cancel it to stop the
// goroutine and close the watcher cleanly.
func (s *Session) StartTargetWatcher(ctx context.Context, debounce time.Duration) error {
	target := s.meta.Target()
	if target == nil {
		return errors.New("no save target to watch")
	}
	if !s.registry.Capabilities().SupportsNativeFileHandles {
		return errors.New("target watching requires native file handles")
	}

	dir := filepath.Dir(target.DisplayPath)
	base := filepath.Base(target.DisplayPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	onChange := s.makeReconcileCallback()

	go func() {
		defer watcher.Close()

		// debounce coalesces bursty fsnotify events (write+chmod/rename)
		// into a single reconcile pass.
		var timer *time.Timer
		schedule := func() {
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			timer = time.AfterFunc(debounce, onChange)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) != 0 {
					schedule()
					continue
				}
				// Remove/Rename indicates the file was moved or replaced;
				// wait for the next Create.
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					schedule()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithComponent("watch").Warnf("watcher error: %v", err)
			}
		}
	}()

	logger.WithComponent("watch").Debugf("watching %s for external edits", target.DisplayPath)
	return nil
}

// makeReconcileCallback returns a callback that pulls the external file into
// the cache when it is genuinely newer.
func (s *Session) makeReconcileCallback() func() {
	return func() {
		rres := s.registry.ReadDocument()
		if rres.Status != filetarget.StatusOK {
			if rres.Err != nil {
				logger.WithComponent("watch").Warnf("reconcile read failed: %v", rres.Err)
			}
			return
		}
		fileDoc := rres.Document

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		cached, ok, err := s.cache.Get(ctx, s.meta.SnapshotKey())
		if err != nil {
			logger.WithComponent("watch").Warnf("reconcile cache read failed: %v", err)
			return
		}

		if ok && fileDoc.Metadata.LastUpdate < cached.Metadata.LastUpdate {
			logger.WithComponent("watch").Debugf("file is not newer than cache (file=%d cache=%d)",
				fileDoc.Metadata.LastUpdate, cached.Metadata.LastUpdate)
			return
		}

		if s.autosaver.Pending() {
			// The pending save will overwrite the file shortly anyway.
			logger.WithComponent("watch").Warnf("file is newer but a save is pending; skipping reload")
			return
		}

		if ok && session.Equal(cached, fileDoc) {
			return
		}

		if err := s.cache.Put(ctx, s.meta.SnapshotKey(), fileDoc); err != nil {
			logger.WithComponent("watch").Warnf("reconcile cache write failed: %v", err)
			return
		}
		s.autosaver.RecordSaved(fileDoc)
		logger.WithComponent("watch").Info("cache reloaded from newer file version")
	}
}
