package filetarget

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/bassista/plannerd/internal/logger"
	"github.com/bassista/plannerd/internal/metastore"
	"github.com/bassista/plannerd/internal/session"
)

// Status tags every registry result.
type Status int

const (
	StatusOK Status = iota
	StatusCancelled
	StatusNeedsReacquire
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCancelled:
		return "cancelled"
	case StatusNeedsReacquire:
		return "needs_reacquire"
	default:
		return "failure"
	}
}

// ChooseResult reports the outcome of a location setup flow. On manual-sync
// platforms Document carries the contents of the selected file.
type ChooseResult struct {
	Status   Status
	Target   *metastore.SaveTarget
	Document *session.Document
	Path     string
	Err      error
}

// WriteResult reports a direct file write attempt.
type WriteResult struct {
	Status Status
	Path   string
	Err    error
}

// ReadResult reports a direct file read attempt.
type ReadResult struct {
	Status   Status
	Document *session.Document
	Path     string
	Err      error
}

// Registry owns the single live handle and the persisted save target, and
// mediates every read and write against the external file. All callers go
// through it, so there is exactly one writer path to the target.
type Registry struct {
	caps        Capabilities
	meta        *metastore.Store
	defaultName string

	mu     sync.Mutex
	handle *Handle
}

// NewRegistry creates a registry with no live handle. Even when a save
// target was remembered from a previous run, the handle must be re-acquired
// through a picker: the hasLiveHandle flag in the metadata is only a hint.
// defaultName is the file name suggested when picking a fresh target.
func NewRegistry(caps Capabilities, meta *metastore.Store, defaultName string) *Registry {
	return &Registry{caps: caps, meta: meta, defaultName: defaultName}
}

// suggestedName prefers the remembered file name over the configured default.
func (r *Registry) suggestedName() string {
	if target := r.meta.Target(); target != nil && target.FileName != "" {
		return target.FileName
	}
	return r.defaultName
}

// Capabilities returns the platform capabilities the registry was built with.
func (r *Registry) Capabilities() Capabilities {
	return r.caps
}

// HasLiveHandle reports whether an in-memory handle currently exists.
func (r *Registry) HasLiveHandle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle != nil
}

// Target returns the persisted save target, if any.
func (r *Registry) Target() *metastore.SaveTarget {
	return r.meta.Target()
}

// ChooseLocation runs the location setup flow.
//
// With native file handles the picker selects a save destination, the
// initial document (if given) seeds the new file immediately, and the target
// is persisted with hasLiveHandle=true. Without native handles the picker
// selects an existing file to import, its contents become the document, and
// the target is persisted as a manual-export marker. Cancellation at any
// step leaves all prior state untouched.
func (r *Registry) ChooseLocation(ctx context.Context, picker Picker, initial *session.Document) ChooseResult {
	if r.caps.SupportsNativeFileHandles {
		return r.chooseNative(ctx, picker, initial)
	}
	return r.chooseManual(ctx, picker)
}

func (r *Registry) chooseNative(ctx context.Context, picker Picker, initial *session.Document) ChooseResult {
	path, err := picker.PickSaveTarget(ctx, r.suggestedName())
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return ChooseResult{Status: StatusCancelled}
		}
		return ChooseResult{Status: StatusFailure, Err: err}
	}

	handle, err := NewHandle(path)
	if err != nil {
		return ChooseResult{Status: StatusFailure, Err: err}
	}
	if err := handle.RequestPermission(); err != nil {
		return ChooseResult{Status: StatusFailure, Err: err}
	}

	if initial != nil {
		text, err := session.Serialize(initial)
		if err != nil {
			return ChooseResult{Status: StatusFailure, Err: err}
		}
		if err := handle.Write([]byte(text)); err != nil {
			return ChooseResult{Status: StatusFailure, Err: err}
		}
	}

	target := metastore.SaveTarget{
		FileName:      handle.Name(),
		DisplayPath:   handle.Path(),
		Location:      metastore.LocationFileSystem,
		HasLiveHandle: true,
	}
	if err := r.meta.SetTarget(target, metastore.SyncModeAuto); err != nil {
		return ChooseResult{Status: StatusFailure, Err: err}
	}

	r.mu.Lock()
	r.handle = handle
	r.mu.Unlock()

	logger.WithComponent("target").Infof("save location set to %s", handle.Path())
	return ChooseResult{Status: StatusOK, Target: &target, Path: handle.Path()}
}

func (r *Registry) chooseManual(ctx context.Context, picker Picker) ChooseResult {
	path, err := picker.PickOpenTarget(ctx)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return ChooseResult{Status: StatusCancelled}
		}
		return ChooseResult{Status: StatusFailure, Err: err}
	}

	handle, err := NewHandle(path)
	if err != nil {
		return ChooseResult{Status: StatusFailure, Err: err}
	}
	raw, err := handle.Read()
	if err != nil {
		return ChooseResult{Status: StatusFailure, Err: err}
	}
	doc, err := session.Deserialize(raw)
	if err != nil {
		return ChooseResult{Status: StatusFailure, Err: err}
	}

	// No live handle can be retained: the file is a manual import/export
	// target and the user must re-export to keep it current.
	target := metastore.SaveTarget{
		FileName:      handle.Name(),
		DisplayPath:   handle.Path(),
		Location:      metastore.LocationFileSystem,
		HasLiveHandle: false,
	}
	if err := r.meta.SetTarget(target, metastore.SyncModeManual); err != nil {
		return ChooseResult{Status: StatusFailure, Err: err}
	}

	logger.WithComponent("target").Infof("manual-sync target set to %s", handle.Path())
	return ChooseResult{Status: StatusOK, Target: &target, Document: doc, Path: handle.Path()}
}

// WriteDocument writes the document to the external file through the live
// handle. A revoked permission is re-requested once; if still denied the
// handle is dropped and the caller must fall back to the cache.
func (r *Registry) WriteDocument(doc *session.Document) WriteResult {
	if !r.caps.SupportsNativeFileHandles {
		return WriteResult{Status: StatusNeedsReacquire}
	}

	r.mu.Lock()
	handle := r.handle
	r.mu.Unlock()
	if handle == nil {
		return WriteResult{Status: StatusNeedsReacquire}
	}

	if err := handle.RequestPermission(); err != nil {
		// one retry, then give the handle up
		if err := handle.RequestPermission(); err != nil {
			r.dropHandle()
			logger.WithComponent("target").Warnf("write permission lost for %s: %v", handle.Path(), err)
			return WriteResult{Status: StatusNeedsReacquire, Path: handle.Path()}
		}
	}

	text, err := session.Serialize(doc)
	if err != nil {
		return WriteResult{Status: StatusFailure, Err: err}
	}
	if err := handle.Write([]byte(text)); err != nil {
		if errors.Is(err, ErrPermission) {
			r.dropHandle()
			return WriteResult{Status: StatusNeedsReacquire, Path: handle.Path()}
		}
		return WriteResult{Status: StatusFailure, Path: handle.Path(), Err: err}
	}

	// A successful write confirms the target identity.
	if err := r.meta.SetTarget(metastore.SaveTarget{
		FileName:      handle.Name(),
		DisplayPath:   handle.Path(),
		Location:      metastore.LocationFileSystem,
		HasLiveHandle: true,
	}, metastore.SyncModeAuto); err != nil {
		logger.WithComponent("target").Warnf("failed to persist target metadata: %v", err)
	}

	return WriteResult{Status: StatusOK, Path: handle.Path()}
}

// ReadDocument reads the external file through the live handle, with the
// same permission semantics as WriteDocument.
func (r *Registry) ReadDocument() ReadResult {
	if !r.caps.SupportsNativeFileHandles {
		return ReadResult{Status: StatusNeedsReacquire}
	}

	r.mu.Lock()
	handle := r.handle
	r.mu.Unlock()
	if handle == nil {
		return ReadResult{Status: StatusNeedsReacquire}
	}

	raw, err := handle.Read()
	if err != nil {
		if errors.Is(err, ErrPermission) {
			r.dropHandle()
			return ReadResult{Status: StatusNeedsReacquire, Path: handle.Path()}
		}
		return ReadResult{Status: StatusFailure, Path: handle.Path(), Err: err}
	}

	doc, err := session.Deserialize(raw)
	if err != nil {
		return ReadResult{Status: StatusFailure, Path: handle.Path(), Err: err}
	}
	return ReadResult{Status: StatusOK, Document: doc, Path: handle.Path()}
}

// Reacquire restores a live handle after a restart by letting the user pick
// the file again. When the picked file's name differs from the remembered
// one the user confirms through the picker; declining cancels.
func (r *Registry) Reacquire(ctx context.Context, picker Picker) ReadResult {
	if !r.caps.SupportsNativeFileHandles {
		return ReadResult{Status: StatusNeedsReacquire}
	}
	target := r.meta.Target()
	if target == nil {
		return ReadResult{Status: StatusFailure, Err: errors.New("no save target recorded")}
	}

	path, err := picker.PickOpenTarget(ctx)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return ReadResult{Status: StatusCancelled}
		}
		return ReadResult{Status: StatusFailure, Err: err}
	}

	if filepath.Base(path) != target.FileName {
		if !picker.ConfirmDifferentFile(ctx, target.FileName, filepath.Base(path)) {
			return ReadResult{Status: StatusCancelled}
		}
	}

	handle, err := NewHandle(path)
	if err != nil {
		return ReadResult{Status: StatusFailure, Err: err}
	}
	raw, err := handle.Read()
	if err != nil {
		return ReadResult{Status: StatusFailure, Path: handle.Path(), Err: err}
	}
	doc, err := session.Deserialize(raw)
	if err != nil {
		return ReadResult{Status: StatusFailure, Path: handle.Path(), Err: err}
	}

	if err := r.meta.SetTarget(metastore.SaveTarget{
		FileName:      handle.Name(),
		DisplayPath:   handle.Path(),
		Location:      metastore.LocationFileSystem,
		HasLiveHandle: true,
	}, metastore.SyncModeAuto); err != nil {
		return ReadResult{Status: StatusFailure, Err: err}
	}

	r.mu.Lock()
	r.handle = handle
	r.mu.Unlock()

	logger.WithComponent("target").Infof("reacquired handle for %s", handle.Path())
	return ReadResult{Status: StatusOK, Document: doc, Path: handle.Path()}
}

// ForgetLocation clears the live handle and the persisted target. Used only
// when the user explicitly changes location.
func (r *Registry) ForgetLocation() error {
	r.mu.Lock()
	r.handle = nil
	r.mu.Unlock()
	if err := r.meta.ClearTarget(); err != nil {
		return fmt.Errorf("clear save target: %w", err)
	}
	return nil
}

// DropHandle discards the in-memory handle without touching the persisted
// target, simulating what a process restart does naturally.
func (r *Registry) DropHandle() {
	r.dropHandle()
}

func (r *Registry) dropHandle() {
	r.mu.Lock()
	r.handle = nil
	r.mu.Unlock()
	if err := r.meta.SetHandleHint(false); err != nil {
		logger.WithComponent("target").Warnf("failed to persist handle hint: %v", err)
	}
}
