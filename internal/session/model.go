package session

import (
	"encoding/json"
	"reflect"
	"time"
)

// SchemaVersion is stamped on every newly created document.
const SchemaVersion = "1.0.0"

// MaxHistoryEvents caps the history log; oldest events are dropped first.
const MaxHistoryEvents = 1000

// Metadata holds versioning info for the document, including the lastUpdate
// timestamp used for optimistic reconciliation between cache and file.
type Metadata struct {
	SchemaVersion string  `json:"schemaVersion" validate:"required"`
	CreatedAt     string  `json:"createdAt"`
	LastSavedAt   *string `json:"lastSavedAt"`
	LastUpdate    int64   `json:"lastUpdate"` // Unix timestamp in milliseconds
}

// Journal holds dated free-form entries and reviews. Values are opaque to the
// storage layer beyond JSON round-tripping.
type Journal struct {
	Entries        map[string]json.RawMessage `json:"entries"`
	WeeklyReviews  map[string]json.RawMessage `json:"weeklyReviews"`
	MonthlyReviews map[string]json.RawMessage `json:"monthlyReviews"`
}

// Focus holds the user's framing statements.
type Focus struct {
	Vision10        string `json:"vision10"`
	FocusWord       string `json:"focusWord"`
	WeeklyMantra    string `json:"weeklyMantra"`
	CelebrationPlan string `json:"celebrationPlan"`
}

// Metrics holds derived progress counters.
type Metrics struct {
	Streak        int     `json:"streak"`
	LastEntryDate *string `json:"lastEntryDate"`
}

// CurrentState is the live planner state. Goals are opaque objects owned by
// the UI layer.
type CurrentState struct {
	Goals   []json.RawMessage `json:"goals"`
	Journal Journal           `json:"journal"`
	Focus   Focus             `json:"focus"`
	Metrics Metrics           `json:"metrics"`
}

// HistoryEvent records a single state transition for the audit trail.
type HistoryEvent struct {
	Type      string          `json:"type" validate:"required"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// Document is the full persisted session.
type Document struct {
	Metadata     Metadata       `json:"metadata"`
	CurrentState CurrentState   `json:"currentState"`
	History      []HistoryEvent `json:"history" validate:"dive"`
}

// NewEmptyDocument creates a fresh session document for a first run.
func NewEmptyDocument(now time.Time) *Document {
	doc := &Document{
		Metadata: Metadata{
			SchemaVersion: SchemaVersion,
			CreatedAt:     now.UTC().Format(time.RFC3339),
			LastUpdate:    now.UnixMilli(),
		},
	}
	doc.ApplyDefaults()
	return doc
}

// ApplyDefaults sets fallback values after decode so callers never see nil
// maps or slices.
func (d *Document) ApplyDefaults() {
	if d.Metadata.SchemaVersion == "" {
		d.Metadata.SchemaVersion = SchemaVersion
	}
	if d.CurrentState.Goals == nil {
		d.CurrentState.Goals = []json.RawMessage{}
	}
	d.CurrentState.Journal.applyDefaults()
	if d.History == nil {
		d.History = []HistoryEvent{}
	}
}

func (j *Journal) applyDefaults() {
	if j.Entries == nil {
		j.Entries = map[string]json.RawMessage{}
	}
	if j.WeeklyReviews == nil {
		j.WeeklyReviews = map[string]json.RawMessage{}
	}
	if j.MonthlyReviews == nil {
		j.MonthlyReviews = map[string]json.RawMessage{}
	}
}

// Touch updates the optimistic-lock timestamp and the last-saved marker.
func (d *Document) Touch(now time.Time) {
	ts := now.UTC().Format(time.RFC3339)
	d.Metadata.LastSavedAt = &ts
	d.Metadata.LastUpdate = now.UnixMilli()
}

// AddHistoryEvent appends an event, dropping the oldest entries once the cap
// is reached.
func (d *Document) AddHistoryEvent(eventType string, data json.RawMessage, now time.Time) {
	d.History = append(d.History, HistoryEvent{
		Type:      eventType,
		Data:      data,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
	if len(d.History) > MaxHistoryEvents {
		d.History = d.History[len(d.History)-MaxHistoryEvents:]
	}
}

// MergeCurrentState overwrites the goal list and journal sections with the
// given values, leaving everything else untouched. Nil sections are skipped.
func (d *Document) MergeCurrentState(goals []json.RawMessage, journal *Journal) {
	if goals != nil {
		d.CurrentState.Goals = goals
	}
	if journal != nil {
		if journal.Entries != nil {
			d.CurrentState.Journal.Entries = journal.Entries
		}
		if journal.WeeklyReviews != nil {
			d.CurrentState.Journal.WeeklyReviews = journal.WeeklyReviews
		}
		if journal.MonthlyReviews != nil {
			d.CurrentState.Journal.MonthlyReviews = journal.MonthlyReviews
		}
	}
}

// Clone deep-copies the document via a JSON round-trip to avoid shared slices
// and maps between cache and callers.
func (d *Document) Clone() (*Document, error) {
	bytes, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var copy Document
	if err := json.Unmarshal(bytes, &copy); err != nil {
		return nil, err
	}
	return &copy, nil
}

// Equal compares two documents ignoring Metadata.
// Uses JSON serialization for flexible comparison (order-independent for object keys).
func Equal(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}

	aBytes, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bBytes, err := json.Marshal(b)
	if err != nil {
		return false
	}

	var aMap, bMap map[string]interface{}
	if err := json.Unmarshal(aBytes, &aMap); err != nil {
		return false
	}
	if err := json.Unmarshal(bBytes, &bMap); err != nil {
		return false
	}

	// Remove volatile metadata from comparison
	delete(aMap, "metadata")
	delete(bMap, "metadata")

	return reflect.DeepEqual(aMap, bMap)
}
