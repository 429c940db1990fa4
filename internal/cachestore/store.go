package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bassista/plannerd/internal/session"
)

const dbFileName = "cache.db"

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// Store is the durable snapshot backstop. It opens its SQLite connection
// lazily on first use and caches it for the process lifetime. Failures are
// reported as errors the caller treats as "did not persist this round",
// never as process-fatal conditions.
type Store struct {
	dir string

	mu sync.Mutex
	db *sql.DB
}

// New creates a store rooted at stateDir without touching the filesystem.
func New(stateDir string) *Store {
	return &Store{dir: stateDir}
}

// conn returns the cached connection, opening the database on first call.
func (s *Store) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	dbPath := filepath.Join(s.dir, dbFileName)

	// WAL mode for concurrent readers during writes
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}

	s.db = db
	return db, nil
}

// Put stores the document under key, replacing any previous snapshot.
func (s *Store) Put(ctx context.Context, key string, doc *session.Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}

	payload, err := session.Serialize(doc)
	if err != nil {
		return err
	}

	db, err := s.conn()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO snapshots (key, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, payload, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Get returns the snapshot stored under key. The second return is false when
// no snapshot exists.
func (s *Store) Get(ctx context.Context, key string) (*session.Document, bool, error) {
	db, err := s.conn()
	if err != nil {
		return nil, false, err
	}

	var payload string
	row := db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE key = ?`, key)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}

	doc, err := session.Deserialize([]byte(payload))
	if err != nil {
		return nil, false, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return doc, true, nil
}

// Delete removes the snapshot under key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Close releases the cached connection, if one was opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
