// Package profile implements the layered, confidence-weighted user profile.
//
// Every profile entry is identified by (user, layer, key). Writes arrive
// through two paths: direct writes overwrite unconditionally and append a
// history record, while observations and reflections pass through the
// confidence gate implemented by Merge.
//
// The gated paths read the stored row and then write the merged result as two
// statements. Two concurrent observations of the same key may both read the
// old confidence and both write; the unique (user, layer, key) constraint
// keeps the row single, but the surviving value depends on scheduling.
package profile

import (
	"encoding/json"
	"time"
)

const (
	// LayerContext is the default layer for observations. Entries written
	// to it without an explicit expiry expire after ContextTTL.
	LayerContext = "context"

	// ContextTTL is the default lifetime of context layer observations.
	ContextTTL = 24 * time.Hour

	// DefaultObservationConfidence applies to observations without a confidence.
	DefaultObservationConfidence = 0.5

	// DefaultDirectConfidence applies to direct writes without a confidence.
	DefaultDirectConfidence = 1.0

	// SourceAdmin stamps entries written through the admin surface.
	SourceAdmin = "admin"

	// SourceReflect stamps every entry touched by a reflection merge.
	SourceReflect = "reflect"
)

// Entry is the merged state of one profile key.
type Entry struct {
	Value      json.RawMessage `json:"value"`
	Confidence float64         `json:"confidence"`
	Source     string          `json:"source"`
	Tags       []string        `json:"tags"`
	ExpiresAt  *time.Time      `json:"expiresAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Row is a stored entry together with its identity within the user.
type Row struct {
	Layer string `json:"layer"`
	Key   string `json:"key"`
	Entry
}

// Profile groups live entries by layer, then key.
type Profile map[string]map[string]Entry

// Filter narrows Get. Layer matches exactly, Tag matches as a substring of
// the stored tag list.
type Filter struct {
	Layer string
	Tag   string
}

// Write is one entry of a direct write.
type Write struct {
	Key        string
	Value      json.RawMessage
	Confidence *float64
	Tags       []string
	ExpiresAt  *time.Time
}

// Observation is a candidate fact submitted through the confidence gate.
// A nil Tags slice means "no tags supplied"; an empty non-nil slice clears
// the stored tags.
type Observation struct {
	Layer      string          `json:"layer,omitempty"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	Confidence *float64        `json:"confidence,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
	ExpiresAt  *time.Time      `json:"expiresAt,omitempty"`
}

// Candidate is the normalized input of Merge.
type Candidate struct {
	Value      json.RawMessage
	Confidence float64
	Source     string
	Tags       []string
	ExpiresAt  *time.Time
}

// HistoryRecord captures one direct mutation of a profile entry. OldValue is
// nil when the entry did not exist; NewValue is nil when it was deleted.
type HistoryRecord struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Layer     string          `json:"layer"`
	Key       string          `json:"key"`
	OldValue  json.RawMessage `json:"old_value"`
	NewValue  json.RawMessage `json:"new_value"`
	Source    string          `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
}

// HistoryFilter narrows History.
type HistoryFilter struct {
	Layer string
	Key   string
	Limit int
}
