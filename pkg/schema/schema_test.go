package schema_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/swarm/pkg/logger"
	"github.com/papercomputeco/swarm/pkg/schema"
	"github.com/papercomputeco/swarm/pkg/storage"
	"github.com/papercomputeco/swarm/pkg/storage/sqlite"
)

var _ = Describe("Manager", func() {
	var (
		db      *storage.DB
		manager *schema.Manager
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = sqlite.NewDB(ctx, ":memory:")
		Expect(err).NotTo(HaveOccurred())
		manager = schema.NewManager(db, logger.Nop())
	})

	AfterEach(func() {
		db.Close()
	})

	It("creates every relation", func() {
		_, err := manager.Ensure(ctx)
		Expect(err).NotTo(HaveOccurred())

		for _, table := range []string{"users", "agents", "profiles", "memories", "profile_history", "audit_log"} {
			rows, err := db.Prepare("SELECT * FROM " + table + " WHERE 1 = 0").All(ctx)
			Expect(err).NotTo(HaveOccurred(), table)
			Expect(rows.Close()).To(Succeed())
		}
	})

	It("is idempotent", func() {
		first, err := manager.Ensure(ctx)
		Expect(err).NotTo(HaveOccurred())

		second, err := manager.Ensure(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("adds columns missing from older databases", func() {
		Expect(db.Exec(ctx, `CREATE TABLE memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			key TEXT,
			content TEXT NOT NULL,
			source TEXT,
			tags TEXT,
			created_at TIMESTAMP
		)`)).To(Succeed())

		_, err := manager.Ensure(ctx)
		Expect(err).NotTo(HaveOccurred())

		rows, err := db.Prepare("SELECT type, importance, entities, embedding FROM memories").All(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows.Close()).To(Succeed())
	})

	It("enforces one profile row per user, layer and key", func() {
		_, err := manager.Ensure(ctx)
		Expect(err).NotTo(HaveOccurred())

		insert := db.Prepare("INSERT INTO profiles (user_id, layer, key, value) VALUES (?, ?, ?, ?)")
		_, err = insert.Run(ctx, "u1", "identity", "name", `"a"`)
		Expect(err).NotTo(HaveOccurred())
		_, err = insert.Run(ctx, "u1", "identity", "name", `"b"`)
		Expect(err).To(HaveOccurred())
	})
})
