package storage

import "github.com/bassista/plannerd/internal/session"

// DefaultPathLabel is what GetCurrentSavePath reports before the user has
// chosen an external save location.
const DefaultPathLabel = "Local Cache (not set)"

// SaveMethod says which backend actually holds the freshest copy.
type SaveMethod string

const (
	MethodFile  SaveMethod = "file"
	MethodCache SaveMethod = "cache"
)

// SaveResult describes what a save attempt actually did. A lost file handle
// is soft degradation, not failure: Success stays true as long as the cache
// backstop holds the data, and NeedsReacquire tells the UI the external file
// is momentarily behind.
type SaveResult struct {
	Success        bool       `json:"success"`
	Method         SaveMethod `json:"method,omitempty"`
	Path           string     `json:"path,omitempty"`
	NeedsReacquire bool       `json:"needsReacquire,omitempty"`
	Skipped        bool       `json:"skipped,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// LoadResult describes where startup state came from.
type LoadResult struct {
	Document       *session.Document `json:"data"`
	Path           string            `json:"path,omitempty"`
	Method         SaveMethod        `json:"method,omitempty"`
	NeedsReacquire bool              `json:"needsReacquire,omitempty"`
	IsNewSession   bool              `json:"isNewSession,omitempty"`
}
