package hub

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/swarm/pkg/audit"
	"github.com/papercomputeco/swarm/pkg/auth"
	"github.com/papercomputeco/swarm/pkg/enrich"
	"github.com/papercomputeco/swarm/pkg/memory"
	"github.com/papercomputeco/swarm/pkg/reflection"
)

// WriteMemory stores a memory attributed to the calling agent. The
// embedding is attached later by the enrichment pool; the call never waits
// for it.
func (h *Hub) WriteMemory(ctx context.Context, p auth.Principal, in memory.Input) (_ memory.Memory, err error) {
	defer h.observe("memory.write", time.Now(), &err)

	if err := p.Require(auth.PermWrite); err != nil {
		return memory.Memory{}, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return memory.Memory{}, missing("content")
	}

	m, err := h.memories.Write(ctx, p.UserID, p.Source(), in)
	if err != nil {
		return memory.Memory{}, err
	}

	if h.pool != nil {
		h.pool.Enqueue(enrich.Job{MemoryID: m.ID, UserID: m.UserID, Content: m.Content})
	}

	err = h.record(ctx, audit.Record{
		UserID:     p.UserID,
		AgentID:    p.ActingAgent(),
		Action:     "memory.write",
		TargetType: "memory",
		TargetID:   strconv.FormatInt(m.ID, 10),
		Detail:     m.Type,
	})
	return m, err
}

// SearchMemory runs q over the caller's memories.
func (h *Hub) SearchMemory(ctx context.Context, p auth.Principal, q memory.Query) (_ []memory.Memory, err error) {
	defer h.observe("memory.search", time.Now(), &err)

	if err := p.Require(auth.PermRead); err != nil {
		return nil, err
	}
	return h.memories.Search(ctx, p.UserID, q)
}

// DeleteMemory removes one of the caller's memories. Ids of other users'
// memories are a no-op and report false.
func (h *Hub) DeleteMemory(ctx context.Context, p auth.Principal, id int64) (_ bool, err error) {
	defer h.observe("memory.delete", time.Now(), &err)

	if err := p.Require(auth.PermWrite); err != nil {
		return false, err
	}
	if id <= 0 {
		return false, missing("memory id")
	}

	removed, err := h.memories.Delete(ctx, p.UserID, id)
	if err != nil {
		return false, err
	}

	return removed, h.record(ctx, audit.Record{
		UserID:     p.UserID,
		AgentID:    p.ActingAgent(),
		Action:     "memory.delete",
		TargetType: "memory",
		TargetID:   strconv.FormatInt(id, 10),
	})
}

// Reflect derives profile updates from the caller's recent memories.
func (h *Hub) Reflect(ctx context.Context, p auth.Principal, opts reflection.Options) (_ reflection.Result, err error) {
	defer h.observe("reflect", time.Now(), &err)

	if err := p.Require(auth.PermWrite); err != nil {
		return reflection.Result{}, err
	}
	if opts.Limit < 0 {
		return reflection.Result{}, fmt.Errorf("%w: limit must not be negative", ErrValidation)
	}

	res, err := h.reflector.Reflect(ctx, p.UserID, opts)
	if err != nil {
		return reflection.Result{}, err
	}
	if res.Reflected == 0 {
		return res, nil
	}
	h.metrics.Reflection(res.Method)

	return res, h.record(ctx, audit.Record{
		UserID:     p.UserID,
		AgentID:    p.ActingAgent(),
		Action:     "reflect",
		TargetType: "profile",
		Detail:     fmt.Sprintf("%d updates from %d memories (%s)", len(res.Updates), res.Reflected, res.Method),
	})
}
