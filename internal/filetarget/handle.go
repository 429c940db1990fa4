package filetarget

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrPermission marks a handle whose target can no longer be read or
// written. The registry converts it into a needs-reacquire result.
var ErrPermission = errors.New("filetarget: permission denied")

// Handle is the in-memory capability for one external file. It is never
// persisted; after a process restart the registry starts without one and the
// user must re-acquire it through a picker.
type Handle struct {
	path string
}

// NewHandle wraps an absolute path in a live handle.
func NewHandle(path string) (*Handle, error) {
	if path == "" {
		return nil, errors.New("handle path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	return &Handle{path: abs}, nil
}

// Name returns the file's base name, the identity shown to the user.
func (h *Handle) Name() string {
	return filepath.Base(h.path)
}

// Path returns the absolute target path.
func (h *Handle) Path() string {
	return h.path
}

// RequestPermission probes whether the target can currently be written.
// An existing file must be openable for writing; a missing file needs a
// writable parent directory.
func (h *Handle) RequestPermission() error {
	info, err := os.Stat(h.path)
	switch {
	case err == nil:
		if info.IsDir() {
			return fmt.Errorf("%w: %s is a directory", ErrPermission, h.path)
		}
		f, openErr := os.OpenFile(h.path, os.O_WRONLY, 0)
		if openErr != nil {
			return fmt.Errorf("%w: %v", ErrPermission, openErr)
		}
		return f.Close()
	case errors.Is(err, os.ErrNotExist):
		probe, probeErr := os.CreateTemp(filepath.Dir(h.path), ".plannerd-probe-")
		if probeErr != nil {
			return fmt.Errorf("%w: %v", ErrPermission, probeErr)
		}
		probe.Close()
		os.Remove(probe.Name())
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
}

// Read returns the file's current contents.
func (h *Handle) Read() ([]byte, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return nil, fmt.Errorf("read target file: %w", err)
	}
	return data, nil
}

// Write replaces the file's contents atomically via a temp file and rename,
// so a crash mid-write never leaves a truncated target.
func (h *Handle) Write(payload []byte) error {
	dir := filepath.Dir(h.path)
	base := filepath.Base(h.path)

	tmpFile, err := os.CreateTemp(dir, base+".tmp-")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermission, err)
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
	if err := os.Rename(tmpFile.Name(), h.path); err != nil {
		return fmt.Errorf("replace target file: %w", err)
	}

	return nil
}
