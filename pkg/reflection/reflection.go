// Package reflection turns a user's recent memories into profile updates.
//
// Candidates come from an LLM extraction call when one is configured and
// from fixed rules otherwise, or whenever the LLM call fails for any reason.
// Candidates are deduplicated by (layer, key), keeping the last one, and
// merged into the profile through the confidence gate with the source
// stamped "reflect".
package reflection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/swarm/pkg/llm"
	"github.com/papercomputeco/swarm/pkg/memory"
	"github.com/papercomputeco/swarm/pkg/profile"
)

// Extraction methods reported in a Result.
const (
	MethodLLM   = "llm"
	MethodRules = "rules"
)

const (
	defaultWindow = 7 * 24 * time.Hour
	defaultLimit  = 100
)

// SystemPrompt constrains the extraction reply to a JSON array.
const SystemPrompt = `You extract durable facts about a user from their memory log.
Reply with ONLY a JSON array. Each element is an object:
{"layer": "identity" | "preferences" | "context", "key": "snake_case_name", "value": <any JSON>, "confidence": <number>}
Use confidence 0.8 to 1.0 for facts the user stated explicitly and 0.3 to 0.5 for facts you inferred.
Use "identity" for who the user is, "preferences" for likes and working style, "context" for current projects and situations.
Reply with [] when nothing durable can be extracted.`

// Memories reads the memory log.
type Memories interface {
	Recent(ctx context.Context, userID string, since time.Time, limit int) ([]memory.Memory, error)
}

// Profiles merges reflected candidates.
type Profiles interface {
	ApplyReflection(ctx context.Context, userID, layer, key string, c profile.Candidate) (profile.Entry, error)
}

// Options narrows the memories a reflection reads.
type Options struct {
	// Since defaults to seven days before the call.
	Since *time.Time

	// Limit defaults to 100.
	Limit int
}

// Result summarizes one reflection.
type Result struct {
	Reflected int         `json:"reflected"`
	Updates   []UpdateRef `json:"updates"`
	Method    string      `json:"method,omitempty"`
}

// Config configures an Engine.
type Config struct {
	Memories Memories
	Profiles Profiles

	// Call is the LLM extraction caller; nil uses the rules only.
	Call llm.CallFunc

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine runs reflections.
type Engine struct {
	memories Memories
	profiles Profiles
	call     llm.CallFunc
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates a reflection engine.
func NewEngine(c Config) *Engine {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		memories: c.Memories,
		profiles: c.Profiles,
		call:     c.Call,
		logger:   c.Logger,
		now:      now,
	}
}

// Reflect reads the user's recent memories, extracts candidates and merges
// them into the profile.
func (e *Engine) Reflect(ctx context.Context, userID string, opts Options) (Result, error) {
	since := e.now().Add(-defaultWindow)
	if opts.Since != nil {
		since = *opts.Since
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	memories, err := e.memories.Recent(ctx, userID, since, limit)
	if err != nil {
		return Result{}, err
	}
	if len(memories) == 0 {
		return Result{Reflected: 0, Updates: []UpdateRef{}}, nil
	}

	candidates, method := e.extract(ctx, userID, memories)
	candidates = Dedupe(candidates)

	updates := make([]UpdateRef, 0, len(candidates))
	for _, c := range candidates {
		_, err := e.profiles.ApplyReflection(ctx, userID, c.Layer, c.Key, profile.Candidate{
			Value:      c.Value,
			Confidence: c.Confidence,
			Source:     profile.SourceReflect,
		})
		if err != nil {
			return Result{}, fmt.Errorf("merging reflected %s/%s: %w", c.Layer, c.Key, err)
		}
		updates = append(updates, UpdateRef{Layer: c.Layer, Key: c.Key})
	}

	e.logger.Info("reflection complete",
		"user_id", userID,
		"reflected", len(memories),
		"updates", len(updates),
		"method", method,
	)

	return Result{Reflected: len(memories), Updates: updates, Method: method}, nil
}

// extract tries the LLM first and falls back to the rules on any failure.
func (e *Engine) extract(ctx context.Context, userID string, memories []memory.Memory) ([]Candidate, string) {
	if e.call == nil {
		return ExtractRules(memories), MethodRules
	}

	reply, err := e.call(ctx, SystemPrompt, Prompt(memories))
	if err == nil {
		var candidates []Candidate
		candidates, err = ParseCandidates(reply)
		if err == nil {
			return candidates, MethodLLM
		}
	}

	e.logger.Warn("llm extraction failed, using rules",
		"user_id", userID,
		"error", err,
	)
	return ExtractRules(memories), MethodRules
}

// Prompt enumerates the memory batch for the extraction call.
func Prompt(memories []memory.Memory) string {
	var b strings.Builder
	b.WriteString("Memories:\n")
	for i, m := range memories {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, m.Type, m.Content)
	}
	return b.String()
}
