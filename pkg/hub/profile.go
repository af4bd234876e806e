package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/papercomputeco/swarm/pkg/audit"
	"github.com/papercomputeco/swarm/pkg/auth"
	"github.com/papercomputeco/swarm/pkg/profile"
	"github.com/papercomputeco/swarm/pkg/utils"
)

// Tags decodes either a JSON array of strings or a comma separated string.
type Tags []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tags) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = nil
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = utils.SplitSet(utils.JoinSet(list))
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("%w: tags must be a list or a comma separated string", ErrValidation)
	}
	*t = utils.SplitSet(joined)
	return nil
}

type entryEnvelope struct {
	Value      json.RawMessage `json:"value"`
	Confidence *float64        `json:"confidence"`
	Tags       Tags            `json:"tags"`
	ExpiresAt  *time.Time      `json:"expiresAt"`
}

// DecodeEntries turns the direct write body {key: value | {value,
// confidence, tags, expiresAt}} into writes ordered by key. A nil map
// decodes to nil so the write can reject it; an empty map decodes to an
// empty batch.
func DecodeEntries(raw map[string]json.RawMessage) ([]profile.Write, error) {
	if raw == nil {
		return nil, nil
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writes := make([]profile.Write, 0, len(raw))
	for _, key := range keys {
		value := raw[key]
		w := profile.Write{Key: key, Value: value}

		var probe map[string]json.RawMessage
		if json.Unmarshal(value, &probe) == nil {
			if _, ok := probe["value"]; ok {
				var env entryEnvelope
				if err := json.Unmarshal(value, &env); err != nil {
					return nil, fmt.Errorf("%w: entry %q: %w", ErrValidation, key, err)
				}
				w.Value = env.Value
				w.Confidence = env.Confidence
				w.Tags = env.Tags
				w.ExpiresAt = env.ExpiresAt
			}
		}
		if len(w.Value) == 0 {
			w.Value = json.RawMessage("null")
		}
		writes = append(writes, w)
	}
	return writes, nil
}

// ReadProfile returns the caller's live profile.
func (h *Hub) ReadProfile(ctx context.Context, p auth.Principal, f profile.Filter) (_ profile.Profile, err error) {
	defer h.observe("profile.read", time.Now(), &err)

	if err := p.Require(auth.PermRead); err != nil {
		return nil, err
	}
	return h.profiles.Get(ctx, p.UserID, f)
}

// WriteProfile is the direct write path: every entry overwrites the stored
// one and is recorded in the history.
func (h *Hub) WriteProfile(ctx context.Context, p auth.Principal, layer string, entries []profile.Write) (err error) {
	defer h.observe("profile.update", time.Now(), &err)

	if err := p.Require(auth.PermWrite); err != nil {
		return err
	}
	layer = strings.TrimSpace(layer)
	if layer == "" {
		return missing("layer")
	}
	if entries == nil {
		return missing("entries")
	}
	for _, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			return missing("entry key")
		}
	}

	if err := h.profiles.Set(ctx, p.UserID, layer, entries, p.Source()); err != nil {
		return err
	}

	return h.record(ctx, audit.Record{
		UserID:     p.UserID,
		AgentID:    p.ActingAgent(),
		Action:     "profile.update",
		TargetType: "profile",
		TargetID:   layer,
		Detail:     fmt.Sprintf("%d entries", len(entries)),
	})
}

// Observe merges observations through the confidence gate and returns how
// many were processed.
func (h *Hub) Observe(ctx context.Context, p auth.Principal, observations []profile.Observation) (_ int, err error) {
	defer h.observe("profile.observe", time.Now(), &err)

	if err := p.Require(auth.PermWrite); err != nil {
		return 0, err
	}
	if observations == nil {
		return 0, missing("observations")
	}
	for i, o := range observations {
		if strings.TrimSpace(o.Key) == "" {
			return 0, missing(fmt.Sprintf("observations[%d].key", i))
		}
		if len(o.Value) == 0 {
			return 0, missing(fmt.Sprintf("observations[%d].value", i))
		}
	}

	count, err := h.profiles.Observe(ctx, p.UserID, observations, p.Source())
	if err != nil {
		return 0, err
	}

	err = h.record(ctx, audit.Record{
		UserID:     p.UserID,
		AgentID:    p.ActingAgent(),
		Action:     "profile.observe",
		TargetType: "profile",
		Detail:     fmt.Sprintf("%d observations", count),
	})
	return count, err
}

// DeleteProfileEntry removes one entry and reports whether it existed.
func (h *Hub) DeleteProfileEntry(ctx context.Context, p auth.Principal, layer, key string) (_ bool, err error) {
	defer h.observe("profile.delete", time.Now(), &err)

	if err := p.Require(auth.PermWrite); err != nil {
		return false, err
	}
	if strings.TrimSpace(layer) == "" {
		return false, missing("layer")
	}
	if strings.TrimSpace(key) == "" {
		return false, missing("key")
	}

	removed, err := h.profiles.Delete(ctx, p.UserID, layer, key, p.Source())
	if err != nil || !removed {
		return removed, err
	}

	return true, h.record(ctx, audit.Record{
		UserID:     p.UserID,
		AgentID:    p.ActingAgent(),
		Action:     "profile.delete",
		TargetType: "profile",
		TargetID:   layer + "/" + key,
	})
}

// CleanupExpired removes expired profile entries without an audit entry. An
// empty userID sweeps every user. The sweeper and the CLI call it directly.
func (h *Hub) CleanupExpired(ctx context.Context, userID string) (_ int64, err error) {
	defer h.observe("cleanup", time.Now(), &err)

	removed, err := h.profiles.CleanupExpired(ctx, userID)
	if err != nil {
		return 0, err
	}
	h.metrics.Expired(removed)
	h.logger.Debug("expired profile entries removed", "user_id", userID, "count", removed)
	return removed, nil
}
