// Package memory is the append-only memory log of a user and its search
// engine.
//
// Search runs in one of three shapes. Without a query text the log is
// filtered by tag, type, entity and creation time. A lexical query uses the
// backend's ranked full-text index over content, tags, entities and key,
// except that any query containing CJK characters falls back to substring
// matching on content because the tokenizers cannot segment CJK text. A
// semantic query embeds the query text and ranks every embedded memory of
// the user by cosine similarity. The ranking is brute force over all
// embedded rows of one user, so its cost grows linearly with the tenant's
// memory count.
package memory

import (
	"regexp"
	"time"
)

// Known memory types. The set is open: callers may store any other type.
const (
	TypeObservation = "observation"
	TypeFact        = "fact"
	TypePreference  = "preference"
	TypeExperience  = "experience"
)

// DefaultImportance is stored when a write carries no importance.
const DefaultImportance = 0.5

// Mode selects the search pipeline used for a query text.
type Mode string

const (
	// ModeLexical is the default full-text mode.
	ModeLexical Mode = ""

	// ModeSemantic ranks by embedding similarity.
	ModeSemantic Mode = "semantic"
)

// Memory is one stored memory. The embedding is never exposed.
type Memory struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Key        string    `json:"key,omitempty"`
	Content    string    `json:"content"`
	Source     string    `json:"source"`
	Tags       []string  `json:"tags"`
	Entities   []string  `json:"entities"`
	Type       string    `json:"type"`
	Importance float64   `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`

	// Score is the cosine similarity of a semantic search hit.
	Score *float64 `json:"score,omitempty"`
}

// Input is a memory write.
type Input struct {
	Key        string
	Content    string
	Tags       []string
	Entities   []string
	Type       string
	Importance *float64
}

// Query describes a search. Tag, Type, Entity and Since only narrow
// searches without Text.
type Query struct {
	Text   string
	Mode   Mode
	Tag    string
	Type   string
	Entity string
	Since  *time.Time
	Limit  int
}

var cjk = regexp.MustCompile(`[\x{4e00}-\x{9fff}\x{3040}-\x{309f}\x{30a0}-\x{30ff}]`)

// HasCJK reports whether s contains a CJK ideograph or kana.
func HasCJK(s string) bool {
	return cjk.MatchString(s)
}
