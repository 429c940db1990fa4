package storage

import (
	"context"
	"time"

	"github.com/bassista/plannerd/internal/cachestore"
	"github.com/bassista/plannerd/internal/filetarget"
	"github.com/bassista/plannerd/internal/logger"
	"github.com/bassista/plannerd/internal/metastore"
	"github.com/bassista/plannerd/internal/session"
)

// Orchestrator decides which backends a save is written to and which backend
// a load is read from. It is the only code allowed to branch on the
// SaveTarget and SyncMode state.
type Orchestrator struct {
	cache    *cachestore.Store
	meta     *metastore.Store
	registry *filetarget.Registry
}

// NewOrchestrator wires the three persistence collaborators together.
func NewOrchestrator(cache *cachestore.Store, meta *metastore.Store, registry *filetarget.Registry) *Orchestrator {
	return &Orchestrator{cache: cache, meta: meta, registry: registry}
}

// Save persists the document. The cache write always happens first: it is
// the non-negotiable backstop, and only its failure can make the overall
// result unsuccessful. The external file write, when applicable, upgrades
// the reported method; its failure degrades softly to needsReacquire.
func (o *Orchestrator) Save(ctx context.Context, doc *session.Document) SaveResult {
	doc.Touch(time.Now())

	cacheErr := o.cache.Put(ctx, o.meta.SnapshotKey(), doc)
	if cacheErr != nil {
		logger.WithComponent("storage").Errorf("cache write failed: %v", cacheErr)
	}

	target := o.meta.Target()

	// No location chosen yet: saving silently to cache is the expected state.
	if target == nil {
		if cacheErr != nil {
			return SaveResult{Success: false, Method: MethodCache, Path: DefaultPathLabel, Error: cacheErr.Error()}
		}
		o.markSaved()
		return SaveResult{Success: true, Method: MethodCache, Path: DefaultPathLabel}
	}

	// Manual-sync platform: the external file is only ever updated by an
	// explicit export, so cache is the steady state, not degradation.
	if !o.registry.Capabilities().SupportsNativeFileHandles || o.meta.SyncMode() == metastore.SyncModeManual {
		if cacheErr != nil {
			return SaveResult{Success: false, Method: MethodCache, Path: target.DisplayPath, Error: cacheErr.Error()}
		}
		o.markSaved()
		return SaveResult{Success: true, Method: MethodCache, Path: target.DisplayPath}
	}

	wres := o.registry.WriteDocument(doc)
	switch wres.Status {
	case filetarget.StatusOK:
		if cacheErr != nil {
			// Data is on disk even though the backstop misfired; report the
			// file save and let the cache catch up next round.
			logger.WithComponent("storage").Warnf("file saved but cache backstop failed: %v", cacheErr)
		}
		o.markSaved()
		return SaveResult{Success: true, Method: MethodFile, Path: wres.Path}
	case filetarget.StatusNeedsReacquire:
		if cacheErr != nil {
			return SaveResult{Success: false, Method: MethodCache, Path: target.DisplayPath, NeedsReacquire: true, Error: cacheErr.Error()}
		}
		o.markSaved()
		return SaveResult{Success: true, Method: MethodCache, Path: target.DisplayPath, NeedsReacquire: true}
	default:
		logger.WithComponent("storage").Errorf("file write failed: %v", wres.Err)
		if cacheErr != nil {
			return SaveResult{Success: false, Method: MethodCache, Path: target.DisplayPath, Error: cacheErr.Error()}
		}
		o.markSaved()
		res := SaveResult{Success: true, Method: MethodCache, Path: target.DisplayPath}
		if wres.Err != nil {
			res.Error = wres.Err.Error()
		}
		return res
	}
}

// Load reconstructs the document at startup. The cache always wins when
// present: after a restart it is at least as fresh as the external file.
// Re-acquisition only happens when the cache is empty, and a declined or
// failed re-acquisition is the single path that surfaces a blocking
// needsReacquire to the caller.
func (o *Orchestrator) Load(ctx context.Context, picker filetarget.Picker) LoadResult {
	target := o.meta.Target()

	doc, ok, err := o.cache.Get(ctx, o.meta.SnapshotKey())
	if err != nil {
		logger.WithComponent("storage").Errorf("cache read failed: %v", err)
	}
	if ok {
		path := DefaultPathLabel
		if target != nil {
			path = target.DisplayPath
		}
		return LoadResult{Document: doc, Path: path, Method: MethodCache}
	}

	if target == nil {
		return LoadResult{IsNewSession: true}
	}

	if !o.registry.Capabilities().SupportsNativeFileHandles {
		// Manual-sync platform with an empty cache: only a manual import can
		// bring the data back.
		return LoadResult{Path: target.DisplayPath, NeedsReacquire: true}
	}

	rres := o.registry.Reacquire(ctx, picker)
	if rres.Status == filetarget.StatusOK {
		if putErr := o.cache.Put(ctx, o.meta.SnapshotKey(), rres.Document); putErr != nil {
			logger.WithComponent("storage").Warnf("failed to backfill cache from file: %v", putErr)
		}
		return LoadResult{Document: rres.Document, Path: rres.Path, Method: MethodFile}
	}

	if rres.Err != nil {
		logger.WithComponent("storage").Warnf("file reacquisition failed: %v", rres.Err)
	}
	return LoadResult{Path: target.DisplayPath, NeedsReacquire: true}
}

func (o *Orchestrator) markSaved() {
	if err := o.meta.MarkSaved(time.Now()); err != nil {
		logger.WithComponent("storage").Warnf("failed to record save time: %v", err)
	}
}
