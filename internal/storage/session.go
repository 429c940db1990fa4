package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bassista/plannerd/internal/cachestore"
	"github.com/bassista/plannerd/internal/config"
	"github.com/bassista/plannerd/internal/filetarget"
	"github.com/bassista/plannerd/internal/logger"
	"github.com/bassista/plannerd/internal/metastore"
	"github.com/bassista/plannerd/internal/session"
)

// InitResult is what the UI receives once at startup.
type InitResult struct {
	LoadResult
	NeedsLocation bool    `json:"needsLocation,omitempty"`
	SyncMode      string  `json:"syncMode,omitempty"`
	LastSavedAt   *string `json:"lastSavedAt,omitempty"`
}

// Session is the single-instance storage facade the UI layer talks to. It
// owns the one live handle (through the registry), the one debounce timer
// (through the auto-saver), and the watcher lifecycle, so the "exactly one
// of each" invariants are structural rather than conventional.
type Session struct {
	cfg       config.DataConfig
	meta      *metastore.Store
	cache     *cachestore.Store
	registry  *filetarget.Registry
	orch      *Orchestrator
	autosaver *AutoSaver
}

// NewSession wires the full subsystem from configuration. The metadata layer
// is read synchronously here; the cache store opens lazily on first use.
func NewSession(cfg *config.Config) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	meta, err := metastore.Open(cfg.Data.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	caps := filetarget.DetectCapabilities(cfg.Misc.FileAccessMode)
	cache := cachestore.New(cfg.Data.StateDir)
	registry := filetarget.NewRegistry(caps, meta, cfg.Data.DefaultFileName)
	orch := NewOrchestrator(cache, meta, registry)

	return &Session{
		cfg:       cfg.Data,
		meta:      meta,
		cache:     cache,
		registry:  registry,
		orch:      orch,
		autosaver: NewAutoSaver(orch, cfg.Data.DebounceInterval),
	}, nil
}

// Initialize loads startup state. Re-acquisition is never interactive at
// startup: when the cache is empty and a file location is remembered, the
// result carries needsReacquire and the UI presents the reopen affordance.
func (s *Session) Initialize(ctx context.Context) InitResult {
	res := s.orch.Load(ctx, declinePicker{})

	if res.Document != nil {
		s.autosaver.RecordSaved(res.Document)
	}

	init := InitResult{
		LoadResult:  res,
		SyncMode:    string(s.meta.SyncMode()),
		LastSavedAt: s.meta.Meta().LastSavedAt,
	}
	if res.IsNewSession && s.registry.Capabilities().SupportsNativeFileHandles {
		init.NeedsLocation = true
	}
	return init
}

// AutoSave schedules a debounced save of the mutated document.
func (s *Session) AutoSave(doc *session.Document, onComplete func(SaveResult)) {
	s.autosaver.Schedule(doc, onComplete)
}

// SaveNow saves immediately, bypassing the debounce.
func (s *Session) SaveNow(ctx context.Context, doc *session.Document) SaveResult {
	res := s.orch.Save(ctx, doc)
	if res.Success {
		s.autosaver.RecordSaved(doc)
	}
	return res
}

// ChooseLocation runs the location setup flow. On the manual-sync path the
// imported document is cached immediately so it survives even if the user
// never exports.
func (s *Session) ChooseLocation(ctx context.Context, picker filetarget.Picker, current *session.Document) filetarget.ChooseResult {
	res := s.registry.ChooseLocation(ctx, picker, current)
	if res.Status != filetarget.StatusOK {
		return res
	}

	if res.Document != nil {
		if err := s.cache.Put(ctx, s.meta.SnapshotKey(), res.Document); err != nil {
			logger.WithComponent("storage").Warnf("failed to cache imported document: %v", err)
		} else {
			s.autosaver.RecordSaved(res.Document)
		}
	}
	if current != nil && res.Document == nil {
		// Native path seeded the file with the current document; keep the
		// backstop aligned with it.
		if err := s.cache.Put(ctx, s.meta.SnapshotKey(), current); err != nil {
			logger.WithComponent("storage").Warnf("failed to cache current document: %v", err)
		} else {
			s.autosaver.RecordSaved(current)
		}
	}
	return res
}

// ChangeSaveLocation is the explicit user-initiated variant of the setup
// flow. Cancellation leaves the previous location fully intact.
func (s *Session) ChangeSaveLocation(ctx context.Context, picker filetarget.Picker, current *session.Document) filetarget.ChooseResult {
	return s.ChooseLocation(ctx, picker, current)
}

// ReacquireLocation restores a lost handle from a user-picked path and
// returns the file's contents.
func (s *Session) ReacquireLocation(ctx context.Context, picker filetarget.Picker) filetarget.ReadResult {
	res := s.registry.Reacquire(ctx, picker)
	if res.Status == filetarget.StatusOK && res.Document != nil {
		if err := s.cache.Put(ctx, s.meta.SnapshotKey(), res.Document); err != nil {
			logger.WithComponent("storage").Warnf("failed to backfill cache: %v", err)
		} else {
			s.autosaver.RecordSaved(res.Document)
		}
	}
	return res
}

// ForgetLocation clears the save target; used from the explicit
// change-location UI only.
func (s *Session) ForgetLocation() error {
	return s.registry.ForgetLocation()
}

// LoadFromFileInput parses a manually selected file. Malformed input reports
// session.ErrParse and leaves all stored state untouched; valid input is
// cached immediately.
func (s *Session) LoadFromFileInput(ctx context.Context, r io.Reader) (*session.Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	doc, err := session.Deserialize(raw)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, s.meta.SnapshotKey(), doc); err != nil {
		logger.WithComponent("storage").Warnf("failed to cache imported document: %v", err)
	} else {
		s.autosaver.RecordSaved(doc)
	}
	return doc, nil
}

// CurrentDocument returns the latest cached snapshot, if any.
func (s *Session) CurrentDocument(ctx context.Context) (*session.Document, bool, error) {
	return s.cache.Get(ctx, s.meta.SnapshotKey())
}

// ExportDocument writes the latest snapshot as pretty JSON, the manual-sync
// platform's outbound half.
func (s *Session) ExportDocument(ctx context.Context, w io.Writer) error {
	doc, ok, err := s.cache.Get(ctx, s.meta.SnapshotKey())
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no snapshot to export")
	}
	text, err := session.Serialize(doc)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, text); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// ExportFileName suggests a dated download name for manual exports.
func (s *Session) ExportFileName(now time.Time) string {
	return fmt.Sprintf("conquer-session-%s.json", now.UTC().Format("2006-01-02"))
}

// GetCurrentSavePath reports where saves currently land, for UI display.
func (s *Session) GetCurrentSavePath() string {
	if target := s.meta.Target(); target != nil {
		return target.DisplayPath
	}
	return DefaultPathLabel
}

// HasFileLocation reports whether an external save target has been chosen.
func (s *Session) HasFileLocation() bool {
	return s.meta.Target() != nil
}

// IsFileSystemAvailable reports whether direct file writes are possible on
// this platform.
func (s *Session) IsFileSystemAvailable() bool {
	return s.registry.Capabilities().SupportsNativeFileHandles
}

// SyncMode exposes the persisted sync mode for UI branching.
func (s *Session) SyncMode() metastore.SyncMode {
	return s.meta.SyncMode()
}

// LastSavedAt exposes the last successful save timestamp.
func (s *Session) LastSavedAt() *string {
	return s.meta.Meta().LastSavedAt
}

// Close flushes any pending auto-save and releases the cache connection.
func (s *Session) Close() error {
	s.autosaver.Flush()
	return s.cache.Close()
}

// declinePicker declines every prompt; used for non-interactive startup.
type declinePicker struct{}

func (declinePicker) PickSaveTarget(context.Context, string) (string, error) {
	return "", filetarget.ErrCancelled
}

func (declinePicker) PickOpenTarget(context.Context) (string, error) {
	return "", filetarget.ErrCancelled
}

func (declinePicker) ConfirmDifferentFile(context.Context, string, string) bool {
	return false
}
