package agents_test

import (
	"context"
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/swarm/pkg/agents"
	"github.com/papercomputeco/swarm/pkg/logger"
	"github.com/papercomputeco/swarm/pkg/storage"
	testutils "github.com/papercomputeco/swarm/pkg/utils/test"
)

var _ = Describe("Registry", func() {
	var (
		ctx      context.Context
		db       *storage.DB
		registry *agents.Registry
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, _, err = testutils.NewSQLiteDB(ctx)
		Expect(err).NotTo(HaveOccurred())
		registry = agents.NewRegistry(db, agents.Config{Logger: logger.Nop()})
	})

	AfterEach(func() {
		db.Close()
	})

	It("creates agents with generated ids, keys and default permissions", func() {
		created, err := registry.Create(ctx, "u1", agents.CreateInput{})
		Expect(err).NotTo(HaveOccurred())
		Expect(created.ID).To(HaveLen(12))
		Expect(created.APIKey).To(HavePrefix(agents.KeyPrefix))
		Expect(strings.TrimPrefix(created.APIKey, agents.KeyPrefix)).To(HaveLen(32))
		Expect(created.Permissions).To(Equal([]string{"read", "write"}))

		a, err := registry.Get(ctx, "u1", created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Name).To(Equal(created.ID))
		Expect(a.Persona).To(BeNil())
	})

	It("resolves keys into principals", func() {
		created, err := registry.Create(ctx, "u1", agents.CreateInput{ID: "reader", Permissions: []string{"read"}})
		Expect(err).NotTo(HaveOccurred())

		p, err := registry.AgentByKey(ctx, created.APIKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.AgentID).To(Equal("reader"))
		Expect(p.UserID).To(Equal("u1"))
		Expect(p.Permissions).To(Equal([]string{"read"}))

		_, err = registry.AgentByKey(ctx, "swarm_unknown")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("refuses duplicate ids", func() {
		_, err := registry.Create(ctx, "u1", agents.CreateInput{ID: "dup"})
		Expect(err).NotTo(HaveOccurred())
		_, err = registry.Create(ctx, "u2", agents.CreateInput{ID: "dup"})
		Expect(err).To(MatchError(agents.ErrExists))
	})

	It("scopes reads, updates and deletes to the owner", func() {
		created, err := registry.Create(ctx, "u1", agents.CreateInput{ID: "a1", Name: "Scout"})
		Expect(err).NotTo(HaveOccurred())

		_, err = registry.Get(ctx, "u2", "a1")
		Expect(storage.IsNotFound(err)).To(BeTrue())

		ok, err := registry.SetName(ctx, "u2", "a1", "Hijacked")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		_, err = registry.Delete(ctx, "u2", "a1")
		Expect(storage.IsNotFound(err)).To(BeTrue())

		deleted, err := registry.Delete(ctx, "u1", "a1")
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted.APIKey()).To(Equal(created.APIKey))

		list, err := registry.List(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(BeEmpty())
	})

	It("stores and clears personas", func() {
		_, err := registry.Create(ctx, "u1", agents.CreateInput{ID: "a1"})
		Expect(err).NotTo(HaveOccurred())

		ok, err := registry.SetPersona(ctx, "u1", "a1", json.RawMessage(`{"tone":"terse","traits":["curious"]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		a, err := registry.Get(ctx, "u1", "a1")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Persona).To(MatchJSON(`{"tone":"terse","traits":["curious"]}`))

		out, err := json.Marshal(a)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).NotTo(ContainSubstring(agents.KeyPrefix))

		_, err = registry.SetPersona(ctx, "u1", "a1", json.RawMessage(`null`))
		Expect(err).NotTo(HaveOccurred())
		a, err = registry.Get(ctx, "u1", "a1")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Persona).To(BeNil())
	})

	It("lists a user's agents", func() {
		for _, id := range []string{"a", "b"} {
			_, err := registry.Create(ctx, "u1", agents.CreateInput{ID: id})
			Expect(err).NotTo(HaveOccurred())
		}
		_, err := registry.Create(ctx, "u2", agents.CreateInput{ID: "c"})
		Expect(err).NotTo(HaveOccurred())

		list, err := registry.List(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(2))
	})
})
