package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bassista/plannerd/internal/logger"
	"github.com/bassista/plannerd/internal/session"
)

// Saver is the minimal save contract the auto-saver needs.
type Saver interface {
	Save(ctx context.Context, doc *session.Document) SaveResult
}

// AutoSaver debounces rapid document mutations into a single save after a
// quiet period. Each Schedule call re-arms the timer; when it fires, the
// serialized document is compared against the last successfully saved text
// and identical documents are skipped without touching any backend.
//
// A mutation arriving while a save is in flight re-arms the timer for the
// next cycle; the in-flight save is never cancelled.
type AutoSaver struct {
	saver Saver
	quiet time.Duration

	mu          sync.Mutex
	timer       *time.Timer
	pendingDoc  *session.Document
	pendingDone func(SaveResult)
	lastSaved   string
}

// NewAutoSaver creates a scheduler with the given quiet period.
func NewAutoSaver(saver Saver, quiet time.Duration) *AutoSaver {
	return &AutoSaver{saver: saver, quiet: quiet}
}

// Schedule registers a mutated document for saving after the quiet period.
// onComplete receives the eventual result; it may be nil.
func (a *AutoSaver) Schedule(doc *session.Document, onComplete func(SaveResult)) {
	snapshot, err := doc.Clone()
	if err != nil {
		logger.WithComponent("autosave").Errorf("failed to snapshot document: %v", err)
		if onComplete != nil {
			onComplete(SaveResult{Success: false, Error: err.Error()})
		}
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		// Re-arm. If the timer already fired its save proceeds and this
		// schedule starts the next cycle.
		a.timer.Stop()
	}
	a.pendingDoc = snapshot
	a.pendingDone = onComplete
	a.timer = time.AfterFunc(a.quiet, a.fire)
}

// fire runs the armed save from the timer goroutine.
func (a *AutoSaver) fire() {
	a.mu.Lock()
	doc, done := a.pendingDoc, a.pendingDone
	a.timer = nil
	a.pendingDoc = nil
	a.pendingDone = nil
	a.mu.Unlock()

	if doc != nil {
		a.flush(doc, done)
	}
}

// Pending reports whether a debounced save is currently armed.
func (a *AutoSaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timer != nil
}

// Flush runs any armed save immediately. Called on shutdown so a pending
// mutation is not lost.
func (a *AutoSaver) Flush() {
	a.mu.Lock()
	timer := a.timer
	doc, done := a.pendingDoc, a.pendingDone
	armed := timer != nil && timer.Stop()
	if armed {
		a.timer = nil
		a.pendingDoc = nil
		a.pendingDone = nil
	}
	a.mu.Unlock()

	if armed && doc != nil {
		a.flush(doc, done)
	}
}

// RecordSaved updates the skip-comparison value after a save performed
// outside the scheduler (an explicit save-now or export seed).
func (a *AutoSaver) RecordSaved(doc *session.Document) {
	text, err := session.Serialize(doc)
	if err != nil {
		return
	}
	a.mu.Lock()
	a.lastSaved = text
	a.mu.Unlock()
}

func (a *AutoSaver) flush(doc *session.Document, onComplete func(SaveResult)) {
	text, err := session.Serialize(doc)
	if err != nil {
		logger.WithComponent("autosave").Errorf("failed to serialize document: %v", err)
		if onComplete != nil {
			onComplete(SaveResult{Success: false, Error: err.Error()})
		}
		return
	}

	a.mu.Lock()
	unchanged := text == a.lastSaved
	a.mu.Unlock()

	if unchanged {
		logger.WithComponent("autosave").Debugf("document unchanged, skipping save")
		if onComplete != nil {
			onComplete(SaveResult{Success: true, Skipped: true})
		}
		return
	}

	res := a.saver.Save(context.Background(), doc)
	if res.Success {
		a.mu.Lock()
		a.lastSaved = text
		a.mu.Unlock()
	}
	if onComplete != nil {
		onComplete(res)
	}
}
