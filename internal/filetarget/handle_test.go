package filetarget

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewHandle_EmptyPath(t *testing.T) {
	if _, err := NewHandle(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestHandle_Name(t *testing.T) {
	h, err := NewHandle(filepath.Join(t.TempDir(), "plan.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Name() != "plan.json" {
		t.Errorf("expected name plan.json, got %s", h.Name())
	}
}

func TestHandle_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	h, _ := NewHandle(path)

	payload := []byte(`{"metadata":{"schemaVersion":"1.0.0"}}`)
	if err := h.Write(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := h.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("unexpected contents: %s", got)
	}
}

func TestHandle_Write_Atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")
	h, _ := NewHandle(path)

	if err := h.Write([]byte("first")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Write([]byte("second")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file in dir, got %d entries", len(entries))
	}
}

func TestHandle_RequestPermission_NewFileInWritableDir(t *testing.T) {
	h, _ := NewHandle(filepath.Join(t.TempDir(), "new.json"))
	if err := h.RequestPermission(); err != nil {
		t.Errorf("expected permission granted, got: %v", err)
	}
}

func TestHandle_RequestPermission_MissingDir(t *testing.T) {
	h, _ := NewHandle(filepath.Join(t.TempDir(), "does", "not", "exist", "plan.json"))
	err := h.RequestPermission()
	if err == nil {
		t.Fatal("expected error for missing parent directory")
	}
	if !errors.Is(err, ErrPermission) {
		t.Errorf("expected ErrPermission, got %v", err)
	}
}

func TestHandle_RequestPermission_TargetIsDirectory(t *testing.T) {
	dir := t.TempDir()
	h, _ := NewHandle(dir)
	err := h.RequestPermission()
	if !errors.Is(err, ErrPermission) {
		t.Errorf("expected ErrPermission for directory target, got %v", err)
	}
}

func TestHandle_Read_Missing(t *testing.T) {
	h, _ := NewHandle(filepath.Join(t.TempDir(), "gone.json"))
	_, err := h.Read()
	if !errors.Is(err, ErrPermission) {
		t.Errorf("expected ErrPermission for missing file, got %v", err)
	}
}

func TestHandle_Write_MissingDir(t *testing.T) {
	h, _ := NewHandle(filepath.Join(t.TempDir(), "nope", "plan.json"))
	err := h.Write([]byte("x"))
	if !errors.Is(err, ErrPermission) {
		t.Errorf("expected ErrPermission for missing dir, got %v", err)
	}
}
