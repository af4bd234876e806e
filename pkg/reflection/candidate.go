package reflection

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Candidate is one extracted profile update.
type Candidate struct {
	Layer      string          `json:"layer"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	Confidence float64         `json:"confidence"`
}

// UpdateRef names a profile entry touched by a reflection.
type UpdateRef struct {
	Layer string `json:"layer"`
	Key   string `json:"key"`
}

// ErrNoJSONArray is returned when an LLM reply holds no JSON array.
var ErrNoJSONArray = errors.New("no JSON array in reply")

// defaultLLMConfidence applies to LLM candidates that omit a confidence.
const defaultLLMConfidence = 0.5

// Dedupe keeps the last candidate for every (layer, key), in the order the
// survivors first appeared.
func Dedupe(candidates []Candidate) []Candidate {
	last := make(map[UpdateRef]int, len(candidates))
	for i, c := range candidates {
		last[UpdateRef{c.Layer, c.Key}] = i
	}

	out := make([]Candidate, 0, len(last))
	seen := make(map[UpdateRef]bool, len(last))
	for _, c := range candidates {
		ref := UpdateRef{c.Layer, c.Key}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, candidates[last[ref]])
	}
	return out
}

// ParseCandidates reads the JSON array of an LLM reply. Text around the
// array, such as prose or markdown fences, is ignored: the first
// array is decoded. Entries without a layer, key or value
// are dropped.
func ParseCandidates(reply string) ([]Candidate, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return nil, ErrNoJSONArray
	}

	var raw []struct {
		Layer      string          `json:"layer"`
		Key        string          `json:"key"`
		Value      json.RawMessage `json:"value"`
		Confidence *float64        `json:"confidence"`
	}

	if err := json.NewDecoder(strings.NewReader(reply[start:])).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding extracted updates: %w", err)
	}

	out := make([]Candidate, 0, len(raw))
	for _, r := range raw {
		layer := strings.TrimSpace(r.Layer)
		key := strings.TrimSpace(r.Key)
		if layer == "" || key == "" || len(r.Value) == 0 || string(r.Value) == "null" {
			continue
		}
		c := Candidate{Layer: layer, Key: key, Value: r.Value, Confidence: defaultLLMConfidence}
		if r.Confidence != nil {
			c.Confidence = *r.Confidence
		}
		out = append(out, c)
	}
	return out, nil
}
