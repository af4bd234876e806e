package hub_test

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/swarm/pkg/agents"
	"github.com/papercomputeco/swarm/pkg/audit"
	"github.com/papercomputeco/swarm/pkg/auth"
	"github.com/papercomputeco/swarm/pkg/hub"
	"github.com/papercomputeco/swarm/pkg/logger"
	"github.com/papercomputeco/swarm/pkg/memory"
	"github.com/papercomputeco/swarm/pkg/metrics"
	"github.com/papercomputeco/swarm/pkg/profile"
	"github.com/papercomputeco/swarm/pkg/reflection"
	"github.com/papercomputeco/swarm/pkg/storage"
	testutils "github.com/papercomputeco/swarm/pkg/utils/test"
)

func raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	return b
}

func conf(v float64) *float64 { return &v }

var _ = Describe("Hub", func() {
	var (
		ctx      context.Context
		db       *storage.DB
		clock    *testutils.Clock
		embedder *testutils.MockEmbedder
		h        *hub.Hub
		admin    auth.Principal
		writer   auth.Principal
		reader   auth.Principal
	)

	newAgent := func(id string, perms ...string) auth.Principal {
		created, err := h.CreateAgent(ctx, admin, agents.CreateInput{ID: id, Permissions: perms})
		Expect(err).NotTo(HaveOccurred())
		p, err := h.AuthenticateAgent(ctx, created.APIKey)
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	auditActions := func() []string {
		records, err := h.Audit(ctx, admin, audit.Filter{})
		Expect(err).NotTo(HaveOccurred())
		actions := []string{}
		for _, r := range records {
			actions = append(actions, r.Action)
		}
		return actions
	}

	memoryCount := func() int {
		found, err := h.SearchMemory(ctx, admin, memory.Query{})
		Expect(err).NotTo(HaveOccurred())
		return len(found)
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, _, err = testutils.NewSQLiteDB(ctx)
		Expect(err).NotTo(HaveOccurred())

		clock = testutils.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
		embedder = testutils.NewMockEmbedder()
		h, err = hub.New(ctx, hub.Config{
			DB:       db,
			Embedder: embedder,
			Metrics:  metrics.New(),
			Settings: hub.Settings{Listen: ":3777"},
			Logger:   logger.Nop(),
			Now:      clock.Now,
		})
		Expect(err).NotTo(HaveOccurred())

		admin, err = h.AuthenticateAdmin(ctx, auth.DefaultAdminToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(admin.Admin).To(BeTrue())

		writer = newAgent("writer")
		reader = newAgent("reader", auth.PermRead)
	})

	AfterEach(func() {
		h.Close()
		db.Close()
	})

	Describe("New", func() {
		It("requires a database and a logger", func() {
			_, err := hub.New(ctx, hub.Config{Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("database is required")))

			_, err = hub.New(ctx, hub.Config{DB: db})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})
	})

	Describe("observe", func() {
		It("keeps the most confident value and raises nothing on weaker observations", func() {
			for _, o := range []profile.Observation{
				{Layer: "preferences", Key: "lang", Value: raw("Rust"), Confidence: conf(0.4)},
				{Layer: "preferences", Key: "lang", Value: raw("Go"), Confidence: conf(0.9)},
			} {
				n, err := h.Observe(ctx, writer, []profile.Observation{o})
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(1))
			}

			p, err := h.ReadProfile(ctx, reader, profile.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(p["preferences"]["lang"].Value).To(MatchJSON(`"Go"`))
			Expect(p["preferences"]["lang"].Confidence).To(Equal(0.9))

			_, err = h.Observe(ctx, writer, []profile.Observation{
				{Layer: "preferences", Key: "lang", Value: raw("Python"), Confidence: conf(0.3)},
			})
			Expect(err).NotTo(HaveOccurred())

			p, err = h.ReadProfile(ctx, reader, profile.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(p["preferences"]["lang"].Value).To(MatchJSON(`"Go"`))
			Expect(p["preferences"]["lang"].Confidence).To(Equal(0.9))
			Expect(p["preferences"]["lang"].Source).To(Equal("writer"))
		})

		It("writes one audit entry per batch", func() {
			_, err := h.Observe(ctx, writer, []profile.Observation{
				{Key: "mood", Value: raw("focused")},
				{Key: "task", Value: raw("refactor")},
			})
			Expect(err).NotTo(HaveOccurred())

			records, err := h.Audit(ctx, admin, audit.Filter{Action: "profile.observe"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].AgentID).To(Equal("writer"))
			Expect(records[0].Detail).To(Equal("2 observations"))
		})

		It("rejects a missing batch and entries without keys before writing", func() {
			_, err := h.Observe(ctx, writer, nil)
			Expect(err).To(MatchError(hub.ErrValidation))

			_, err = h.Observe(ctx, writer, []profile.Observation{{Value: raw(1)}})
			Expect(err).To(MatchError(hub.ErrValidation))

			rows, err := h.ProfileRows(ctx, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(BeEmpty())
			Expect(auditActions()).To(BeEmpty())
		})

		It("denies read-only agents", func() {
			_, err := h.Observe(ctx, reader, []profile.Observation{{Key: "k", Value: raw(1)}})
			Expect(err).To(MatchError(auth.ErrPermissionDenied))
		})
	})

	Describe("direct profile writes", func() {
		It("overwrites regardless of confidence and records history", func() {
			_, err := h.Observe(ctx, writer, []profile.Observation{
				{Layer: "identity", Key: "name", Value: raw("Ada"), Confidence: conf(0.9)},
			})
			Expect(err).NotTo(HaveOccurred())

			writes, err := hub.DecodeEntries(map[string]json.RawMessage{
				"name": raw(map[string]any{"value": "Grace", "confidence": 0.2, "tags": "bio, core"}),
				"city": raw("Paris"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.WriteProfile(ctx, writer, "identity", writes)).To(Succeed())

			p, err := h.ReadProfile(ctx, reader, profile.Filter{Layer: "identity"})
			Expect(err).NotTo(HaveOccurred())
			Expect(p["identity"]["name"].Value).To(MatchJSON(`"Grace"`))
			Expect(p["identity"]["name"].Confidence).To(Equal(0.2))
			Expect(p["identity"]["name"].Tags).To(Equal([]string{"bio", "core"}))
			Expect(p["identity"]["city"].Confidence).To(Equal(profile.DefaultDirectConfidence))

			history, err := h.History(ctx, admin, profile.HistoryFilter{Layer: "identity"})
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(2))

			records, err := h.Audit(ctx, admin, audit.Filter{Action: "profile.update"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].TargetID).To(Equal("identity"))
			Expect(records[0].Detail).To(Equal("2 entries"))
		})

		It("requires a layer and entries", func() {
			Expect(h.WriteProfile(ctx, writer, "", []profile.Write{})).To(MatchError(hub.ErrValidation))
			Expect(h.WriteProfile(ctx, writer, "identity", nil)).To(MatchError(hub.ErrValidation))
			Expect(auditActions()).To(BeEmpty())
		})

		It("deletes entries with a history record", func() {
			writes, err := hub.DecodeEntries(map[string]json.RawMessage{"editor": raw("vim")})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.WriteProfile(ctx, writer, "preferences", writes)).To(Succeed())

			removed, err := h.DeleteProfileEntry(ctx, writer, "preferences", "editor")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeTrue())

			removed, err = h.DeleteProfileEntry(ctx, writer, "preferences", "editor")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeFalse())

			history, err := h.History(ctx, admin, profile.HistoryFilter{Key: "editor"})
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(2))
			Expect(history[0].NewValue).To(BeNil())
		})

		It("writes admin entries with the admin source", func() {
			Expect(h.PutProfile(ctx, admin, []hub.AdminEntry{
				{Layer: "identity", Key: "role", Value: raw("engineer")},
				{Layer: "preferences", Key: "tz", Value: raw("UTC")},
			})).To(Succeed())

			rows, err := h.ProfileRows(ctx, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].Layer).To(Equal("identity"))
			Expect(rows[0].Source).To(Equal(profile.SourceAdmin))
		})
	})

	Describe("memories", func() {
		It("writes memories and enriches them in the background", func() {
			embedder.Embeddings["likes tea"] = []float32{1, 0, 0}
			embedder.Embeddings["drinks"] = []float32{1, 0.1, 0}

			m, err := h.WriteMemory(ctx, writer, memory.Input{Content: "likes tea", Tags: []string{"food"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Source).To(Equal("writer"))
			Expect(m.Type).To(Equal(memory.TypeObservation))

			Eventually(func() []memory.Memory {
				found, err := h.SearchMemory(ctx, reader, memory.Query{Text: "drinks", Mode: memory.ModeSemantic})
				Expect(err).NotTo(HaveOccurred())
				return found
			}).Should(HaveLen(1))

			records, err := h.Audit(ctx, admin, audit.Filter{Action: "memory.write"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].TargetID).To(Equal(fmt.Sprint(m.ID)))
		})

		It("creates no row for empty content", func() {
			_, err := h.WriteMemory(ctx, writer, memory.Input{Content: "   "})
			Expect(err).To(MatchError(hub.ErrValidation))
			Expect(memoryCount()).To(BeZero())
			Expect(auditActions()).To(BeEmpty())
		})

		It("creates no row without write permission", func() {
			_, err := h.WriteMemory(ctx, reader, memory.Input{Content: "sneaky"})
			Expect(err).To(MatchError(auth.ErrPermissionDenied))
			Expect(memoryCount()).To(BeZero())
			Expect(auditActions()).To(BeEmpty())
		})

		It("matches CJK queries by substring", func() {
			_, err := h.WriteMemory(ctx, writer, memory.Input{Content: "東京に住んでいる"})
			Expect(err).NotTo(HaveOccurred())

			found, err := h.SearchMemory(ctx, reader, memory.Query{Text: "東"})
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(1))
		})

		It("scopes deletes to the owner and audits them", func() {
			m, err := h.WriteMemory(ctx, writer, memory.Input{Content: "temporary"})
			Expect(err).NotTo(HaveOccurred())

			removed, err := h.DeleteMemory(ctx, writer, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeTrue())
			Expect(memoryCount()).To(BeZero())

			_, err = h.DeleteMemory(ctx, reader, m.ID)
			Expect(err).To(MatchError(auth.ErrPermissionDenied))

			records, err := h.Audit(ctx, admin, audit.Filter{Action: "memory.delete"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
		})
	})

	Describe("reflect", func() {
		It("turns preference memories into reflected profile entries", func() {
			m, err := h.WriteMemory(ctx, writer, memory.Input{Content: "I prefer dark mode", Type: memory.TypePreference})
			Expect(err).NotTo(HaveOccurred())

			res, err := h.Reflect(ctx, writer, reflection.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reflected).To(Equal(1))
			Expect(res.Method).To(Equal(reflection.MethodRules))

			key := fmt.Sprintf("pref_%d", m.ID)
			Expect(res.Updates).To(ContainElement(reflection.UpdateRef{Layer: "preferences", Key: key}))

			p, err := h.ReadProfile(ctx, reader, profile.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(p["preferences"][key].Source).To(Equal(profile.SourceReflect))
			Expect(p["preferences"][key].Value).To(MatchJSON(`"I prefer dark mode"`))

			records, err := h.Audit(ctx, admin, audit.Filter{Action: "reflect"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Detail).To(ContainSubstring("from 1 memories (rules)"))
		})

		It("returns an empty result without memories", func() {
			res, err := h.Reflect(ctx, writer, reflection.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reflected).To(BeZero())
			Expect(res.Updates).To(BeEmpty())
			Expect(auditActions()).To(BeEmpty())
		})

		It("requires write permission", func() {
			_, err := h.Reflect(ctx, reader, reflection.Options{})
			Expect(err).To(MatchError(auth.ErrPermissionDenied))
		})
	})

	Describe("cleanup", func() {
		It("removes expired entries exactly once", func() {
			_, err := h.Observe(ctx, writer, []profile.Observation{{Key: "mood", Value: raw("tired")}})
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(25 * time.Hour)

			p, err := h.ReadProfile(ctx, reader, profile.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(p).NotTo(HaveKey(profile.LayerContext))

			removed, err := h.Cleanup(ctx, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(1)))

			removed, err = h.Cleanup(ctx, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeZero())

			records, err := h.Audit(ctx, admin, audit.Filter{Action: "cleanup"})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[1].Detail).To(Equal("1 expired entries removed"))
		})

		It("is admin only", func() {
			_, err := h.Cleanup(ctx, writer)
			Expect(err).To(MatchError(auth.ErrPermissionDenied))
		})
	})

	Describe("agents and personas", func() {
		It("revokes deleted agent keys immediately", func() {
			created, err := h.CreateAgent(ctx, admin, agents.CreateInput{ID: "temp"})
			Expect(err).NotTo(HaveOccurred())
			_, err = h.AuthenticateAgent(ctx, created.APIKey)
			Expect(err).NotTo(HaveOccurred())

			Expect(h.DeleteAgent(ctx, admin, "temp")).To(Succeed())

			_, err = h.AuthenticateAgent(ctx, created.APIKey)
			Expect(err).To(MatchError(auth.ErrUnauthenticated))
		})

		It("rejects unknown permissions", func() {
			_, err := h.CreateAgent(ctx, admin, agents.CreateInput{Permissions: []string{"root"}})
			Expect(err).To(MatchError(hub.ErrValidation))
		})

		It("updates and reads personas", func() {
			persona := raw(map[string]any{"tone": "terse"})
			name := "Writer Bot"
			Expect(h.UpdateAgent(ctx, admin, hub.AgentUpdate{ID: "writer", Persona: &persona, Name: &name})).To(Succeed())

			own, err := h.ReadPersona(ctx, writer)
			Expect(err).NotTo(HaveOccurred())
			Expect(own.Name).To(Equal("Writer Bot"))
			Expect(own.Persona).To(MatchJSON(`{"tone":"terse"}`))
			Expect(own.Permissions).To(ConsistOf("read", "write"))

			sibling, err := h.ReadAgentPersona(ctx, reader, "writer")
			Expect(err).NotTo(HaveOccurred())
			Expect(sibling.ID).To(Equal("writer"))
			Expect(sibling.Permissions).To(BeNil())

			_, err = h.ReadAgentPersona(ctx, reader, "ghost")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("reports unknown agents on update", func() {
			name := "x"
			err := h.UpdateAgent(ctx, admin, hub.AgentUpdate{ID: "ghost", Name: &name})
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("keeps the admin surface away from agents", func() {
			_, err := h.ListAgents(ctx, writer)
			Expect(err).To(MatchError(auth.ErrPermissionDenied))
		})
	})

	Describe("export and settings", func() {
		It("exports without keys or embeddings", func() {
			_, err := h.WriteMemory(ctx, writer, memory.Input{Content: "exported"})
			Expect(err).NotTo(HaveOccurred())

			out, err := h.Export(ctx, admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.ExportedAt).To(Equal(clock.Now()))
			Expect(out.Agents).To(HaveLen(2))
			Expect(out.Memories).To(HaveLen(1))

			body, err := json.Marshal(out)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).NotTo(ContainSubstring("swarm_"))
			Expect(string(body)).NotTo(ContainSubstring("embedding"))
		})

		It("reports which providers are enabled", func() {
			s, err := h.Settings(admin)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Listen).To(Equal(":3777"))
			Expect(s.Embedding.Enabled).To(BeTrue())
			Expect(s.Reflection.Enabled).To(BeFalse())
		})
	})
})
