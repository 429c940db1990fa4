package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bassista/plannerd/internal/config"
	"github.com/bassista/plannerd/internal/filetarget"
	"github.com/bassista/plannerd/internal/session"
)

func newTestSession(t *testing.T, mode string) *Session {
	t.Helper()
	cfg := &config.Config{
		Data: config.DataConfig{
			StateDir:         t.TempDir(),
			DefaultFileName:  "conquer-session.json",
			DebounceInterval: 10 * time.Millisecond,
			WatchDebounce:    20 * time.Millisecond,
		},
		Misc: config.MiscConfig{FileAccessMode: mode},
	}
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func docWithGoals(t *testing.T, goals string) *session.Document {
	t.Helper()
	doc := session.NewEmptyDocument(time.UnixMilli(1000))
	if goals != "" {
		doc.CurrentState.Goals = []json.RawMessage{json.RawMessage(goals)}
	}
	return doc
}

func cacheContent(t *testing.T, s *Session) (*session.Document, bool) {
	t.Helper()
	doc, ok, err := s.cache.Get(context.Background(), s.meta.SnapshotKey())
	if err != nil {
		t.Fatalf("unexpected cache error: %v", err)
	}
	return doc, ok
}

func TestSave_NoLocation_CacheOnly(t *testing.T) {
	s := newTestSession(t, "native")
	doc := docWithGoals(t, `{"goals":[]}`)

	res := s.orch.Save(context.Background(), doc)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Method != MethodCache {
		t.Errorf("expected method cache, got %s", res.Method)
	}
	if res.Path != DefaultPathLabel {
		t.Errorf("expected default path label, got %s", res.Path)
	}

	cached, ok := cacheContent(t, s)
	if !ok {
		t.Fatal("expected cache to hold the snapshot")
	}
	if !session.Equal(doc, cached) {
		t.Error("expected cache content to equal saved document")
	}

	if s.GetCurrentSavePath() != DefaultPathLabel {
		t.Errorf("expected default save path, got %s", s.GetCurrentSavePath())
	}
}

func TestSave_WithLiveHandle_WritesFile(t *testing.T) {
	s := newTestSession(t, "native")
	path := filepath.Join(t.TempDir(), "plan.json")
	doc := docWithGoals(t, `{"id":1}`)

	if res := s.ChooseLocation(context.Background(), filetarget.StaticPicker{Path: path}, doc); res.Status != filetarget.StatusOK {
		t.Fatalf("setup failed: %v", res.Err)
	}

	doc2 := docWithGoals(t, `{"id":2}`)
	res := s.orch.Save(context.Background(), doc2)
	if !res.Success || res.Method != MethodFile {
		t.Fatalf("expected file save, got %+v", res)
	}
	if res.Path != path {
		t.Errorf("expected path %s, got %s", path, res.Path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	onDisk, err := session.Deserialize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.Equal(doc2, onDisk) {
		t.Error("expected file content to equal saved document")
	}

	// Cache backstop was written too
	cached, ok := cacheContent(t, s)
	if !ok || !session.Equal(doc2, cached) {
		t.Error("expected cache backstop to match saved document")
	}
}

func TestSave_LostHandle_DegradesToCache(t *testing.T) {
	s := newTestSession(t, "native")
	path := filepath.Join(t.TempDir(), "plan.json")

	if res := s.ChooseLocation(context.Background(), filetarget.StaticPicker{Path: path}, docWithGoals(t, "")); res.Status != filetarget.StatusOK {
		t.Fatalf("setup failed: %v", res.Err)
	}

	// Simulate a restart: hint still says a handle existed, but none does.
	s.registry.DropHandle()

	doc := docWithGoals(t, `{"id":1}`)
	res := s.orch.Save(context.Background(), doc)

	if !res.Success {
		t.Fatalf("lost handle must not fail the save: %+v", res)
	}
	if res.Method != MethodCache {
		t.Errorf("expected method cache, got %s", res.Method)
	}
	if !res.NeedsReacquire {
		t.Error("expected needsReacquire flag")
	}

	cached, ok := cacheContent(t, s)
	if !ok || !session.Equal(doc, cached) {
		t.Error("expected cache to hold the latest document")
	}
}

func TestSave_ManualMode_CacheIsSteadyState(t *testing.T) {
	s := newTestSession(t, "manual")

	// Import a file to establish a manual-sync target.
	path := filepath.Join(t.TempDir(), "exported.json")
	text, _ := session.Serialize(docWithGoals(t, `{"id":9}`))
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if res := s.ChooseLocation(context.Background(), filetarget.StaticPicker{Path: path}, nil); res.Status != filetarget.StatusOK {
		t.Fatalf("setup failed: %v", res.Err)
	}

	doc := docWithGoals(t, `{"id":10}`)
	res := s.orch.Save(context.Background(), doc)
	if !res.Success || res.Method != MethodCache {
		t.Fatalf("expected cache save in manual mode, got %+v", res)
	}
	if res.NeedsReacquire {
		t.Error("manual mode steady state must not flag needsReacquire")
	}
	if res.Path != path {
		t.Errorf("expected stored path %s, got %s", path, res.Path)
	}

	// The external file is only updated by explicit export.
	raw, _ := os.ReadFile(path)
	onDisk, _ := session.Deserialize(raw)
	if session.Equal(doc, onDisk) {
		t.Error("manual mode must not write the external file automatically")
	}
}

func TestCacheIsBackstop_AcrossSaveSequence(t *testing.T) {
	s := newTestSession(t, "native")
	path := filepath.Join(t.TempDir(), "plan.json")
	if res := s.ChooseLocation(context.Background(), filetarget.StaticPicker{Path: path}, nil); res.Status != filetarget.StatusOK {
		t.Fatalf("setup failed: %v", res.Err)
	}

	docs := []*session.Document{
		docWithGoals(t, `{"id":1}`),
		docWithGoals(t, `{"id":2}`),
		docWithGoals(t, `{"id":3}`),
	}
	for i, doc := range docs {
		if i == 1 {
			// Lose the handle mid-sequence; the backstop must keep up anyway.
			s.registry.DropHandle()
		}
		s.orch.Save(context.Background(), doc)

		cached, ok := cacheContent(t, s)
		if !ok || !session.Equal(doc, cached) {
			t.Errorf("after save %d: cache does not match most recent document", i)
		}
	}
}

func TestLoad_FreshInstall(t *testing.T) {
	s := newTestSession(t, "native")

	res := s.orch.Load(context.Background(), filetarget.StaticPicker{})
	if !res.IsNewSession {
		t.Error("expected isNewSession on fresh install")
	}
	if res.Document != nil {
		t.Error("expected nil document on fresh install")
	}
}

func TestLoad_PrefersCacheOverFile(t *testing.T) {
	s := newTestSession(t, "native")
	path := filepath.Join(t.TempDir(), "plan.json")

	fileDoc := docWithGoals(t, `{"id":"stale"}`)
	if res := s.ChooseLocation(context.Background(), filetarget.StaticPicker{Path: path}, fileDoc); res.Status != filetarget.StatusOK {
		t.Fatalf("setup failed: %v", res.Err)
	}

	// Cache moves ahead of the file.
	cacheDoc := docWithGoals(t, `{"id":"fresh"}`)
	if err := s.cache.Put(context.Background(), s.meta.SnapshotKey(), cacheDoc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := s.orch.Load(context.Background(), filetarget.StaticPicker{Path: path})
	if res.Method != MethodCache {
		t.Fatalf("expected cache load, got %s", res.Method)
	}
	if !session.Equal(cacheDoc, res.Document) {
		t.Error("expected the cache's content to win")
	}
}

func TestLoad_EmptyCache_ReacquiresFile(t *testing.T) {
	s := newTestSession(t, "native")
	path := filepath.Join(t.TempDir(), "plan.json")
	fileDoc := docWithGoals(t, `{"id":"from-file"}`)

	if res := s.ChooseLocation(context.Background(), filetarget.StaticPicker{Path: path}, fileDoc); res.Status != filetarget.StatusOK {
		t.Fatalf("setup failed: %v", res.Err)
	}

	// Simulate restart with a wiped cache.
	s.registry.DropHandle()
	if err := s.cache.Delete(context.Background(), s.meta.SnapshotKey()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := s.orch.Load(context.Background(), filetarget.StaticPicker{Path: path})
	if res.Method != MethodFile {
		t.Fatalf("expected file load, got %+v", res)
	}
	if !session.Equal(fileDoc, res.Document) {
		t.Error("expected the file's content")
	}

	// The read backfilled the cache.
	cached, ok := cacheContent(t, s)
	if !ok || !session.Equal(fileDoc, cached) {
		t.Error("expected cache backfilled from file")
	}
}

func TestLoad_ReacquireDeclined_NeedsReacquire(t *testing.T) {
	s := newTestSession(t, "native")
	path := filepath.Join(t.TempDir(), "plan.json")

	if res := s.ChooseLocation(context.Background(), filetarget.StaticPicker{Path: path}, docWithGoals(t, "")); res.Status != filetarget.StatusOK {
		t.Fatalf("setup failed: %v", res.Err)
	}
	s.registry.DropHandle()
	if err := s.cache.Delete(context.Background(), s.meta.SnapshotKey()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Declining picker: the one legitimately blocking outcome.
	res := s.orch.Load(context.Background(), filetarget.StaticPicker{})
	if res.Document != nil {
		t.Error("expected no document")
	}
	if !res.NeedsReacquire {
		t.Error("expected needsReacquire")
	}
	if res.Path != path {
		t.Errorf("expected remembered path %s, got %s", path, res.Path)
	}
}

func TestScenario_LocationChosenThenRestart(t *testing.T) {
	s := newTestSession(t, "native")
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")

	choose := s.ChooseLocation(context.Background(), filetarget.StaticPicker{Path: path}, session.NewEmptyDocument(time.Now()))
	if choose.Status != filetarget.StatusOK {
		t.Fatalf("choose failed: %v", choose.Err)
	}
	if choose.Path != path {
		t.Errorf("expected path %s, got %s", path, choose.Path)
	}

	// restart
	s.registry.DropHandle()

	doc := docWithGoals(t, `{"id":1}`)
	res := s.orch.Save(context.Background(), doc)
	if !res.Success || res.Method != MethodCache || !res.NeedsReacquire {
		t.Fatalf("expected soft degradation, got %+v", res)
	}

	cached, ok := cacheContent(t, s)
	if !ok || !session.Equal(doc, cached) {
		t.Error("expected cache to hold {goals:[{id:1}]}")
	}
}
