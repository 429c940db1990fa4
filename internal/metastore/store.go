package metastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bassista/plannerd/internal/logger"
)

const metaFileName = "meta.json"

// Location says where a save target physically lives.
type Location string

const (
	LocationFileSystem Location = "filesystem"
	LocationLocalCache Location = "cache"
)

// SyncMode records whether the platform keeps the external file continuously
// in sync or requires manual export. Set once after the first completed
// location setup and consulted on every save without re-probing.
type SyncMode string

const (
	SyncModeUnset  SyncMode = ""
	SyncModeAuto   SyncMode = "auto"
	SyncModeManual SyncMode = "manual"
)

// SaveTarget is the persisted description of the user's chosen external file.
// HasLiveHandle is only a hint: the in-memory handle does not survive a
// restart, so the flag may be true while no handle exists.
type SaveTarget struct {
	FileName      string   `json:"fileName"`
	DisplayPath   string   `json:"displayPath"`
	Location      Location `json:"location"`
	HasLiveHandle bool     `json:"hasLiveHandle"`
}

// Meta is everything the subsystem needs to read synchronously at startup,
// before the async cache store opens.
type Meta struct {
	UserID      string      `json:"userId"`
	SaveTarget  *SaveTarget `json:"saveTarget"`
	SyncMode    SyncMode    `json:"syncMode"`
	CreatedAt   string      `json:"createdAt"`
	LastSavedAt *string     `json:"lastSavedAt"`
}

// Store is the file-backed metadata layer. All reads are served from memory;
// every mutation is written through atomically.
type Store struct {
	path string
	dir  string
	base string

	mu   sync.Mutex
	meta Meta
}

// Open reads (or creates) the metadata file under stateDir. A missing or
// corrupt file starts a fresh identity rather than failing startup.
func Open(stateDir string) (*Store, error) {
	if stateDir == "" {
		return nil, errors.New("state dir is required")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	path := filepath.Join(stateDir, metaFileName)
	s := &Store{path: path, dir: stateDir, base: metaFileName}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, &s.meta); jsonErr != nil {
			logger.WithComponent("meta").Warnf("metadata file unreadable, starting fresh: %v", jsonErr)
			s.meta = Meta{}
		}
	case errors.Is(err, os.ErrNotExist):
		// first run
	default:
		return nil, fmt.Errorf("read metadata file: %w", err)
	}

	if s.meta.UserID == "" {
		s.meta.UserID = uuid.NewString()
		s.meta.CreatedAt = time.Now().UTC().Format(time.RFC3339)
		if err := s.persistUnlocked(); err != nil {
			return nil, err
		}
		logger.WithComponent("meta").Infof("created new user identity %s", s.meta.UserID)
	}

	return s, nil
}

// Meta returns a copy of the current metadata.
func (s *Store) Meta() Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meta
	if s.meta.SaveTarget != nil {
		t := *s.meta.SaveTarget
		m.SaveTarget = &t
	}
	return m
}

// UserID returns the stable per-user identity.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.UserID
}

// SnapshotKey is the cache-store key namespacing snapshots per end user.
func (s *Store) SnapshotKey() string {
	return "planner:" + s.UserID()
}

// Target returns a copy of the persisted save target, or nil if none is set.
func (s *Store) Target() *SaveTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta.SaveTarget == nil {
		return nil
	}
	t := *s.meta.SaveTarget
	return &t
}

// SetTarget persists a new save target together with the sync mode derived
// from it.
func (s *Store) SetTarget(target SaveTarget, mode SyncMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := target
	s.meta.SaveTarget = &t
	s.meta.SyncMode = mode
	return s.persistUnlocked()
}

// SetHandleHint flips the hasLiveHandle hint on the stored target, if any.
func (s *Store) SetHandleHint(has bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta.SaveTarget == nil {
		return nil
	}
	s.meta.SaveTarget.HasLiveHandle = has
	return s.persistUnlocked()
}

// ClearTarget forgets the save target and sync mode. Used only when the user
// explicitly changes location.
func (s *Store) ClearTarget() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.SaveTarget = nil
	s.meta.SyncMode = SyncModeUnset
	return s.persistUnlocked()
}

// SyncMode returns the persisted sync mode.
func (s *Store) SyncMode() SyncMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.SyncMode
}

// MarkSaved records the timestamp of the last successful save.
func (s *Store) MarkSaved(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := now.UTC().Format(time.RFC3339)
	s.meta.LastSavedAt = &ts
	return s.persistUnlocked()
}

// persistUnlocked writes the metadata atomically (caller must hold the lock).
func (s *Store) persistUnlocked() error {
	payload, err := json.MarshalIndent(&s.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.dir, s.base+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.Write(payload); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), s.path); err != nil {
		return fmt.Errorf("replace metadata file: %w", err)
	}

	return nil
}
