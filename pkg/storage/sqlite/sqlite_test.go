package sqlite_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/swarm/pkg/storage"
	"github.com/papercomputeco/swarm/pkg/storage/sqlite"
)

var _ = Describe("SQLite", func() {
	var (
		db  *storage.DB
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = sqlite.NewDB(ctx, ":memory:")
		Expect(err).NotTo(HaveOccurred())

		Expect(db.Exec(ctx, `CREATE TABLE items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			score DOUBLE PRECISION,
			seen_at TIMESTAMP
		)`)).To(Succeed())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("NewDB", func() {
		It("creates a file database", func() {
			dbPath := filepath.Join(GinkgoT().TempDir(), "test.db")

			fileDB, err := sqlite.NewDB(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer fileDB.Close()

			Expect(fileDB.Ping(ctx)).To(Succeed())
			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Stmt", func() {
		It("runs writes and reports affected rows", func() {
			insert := db.Prepare("INSERT INTO items (name, score) VALUES (?, ?)")

			res, err := insert.Run(ctx, "a", 0.5)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RowsAffected).To(Equal(int64(1)))
		})

		It("returns generated ids through RETURNING", func() {
			insert := db.Prepare("INSERT INTO items (name) VALUES (?) RETURNING id")

			var first, second int64
			Expect(insert.Get(ctx, "a").Scan(&first)).To(Succeed())
			Expect(insert.Get(ctx, "b").Scan(&second)).To(Succeed())
			Expect(second).To(Equal(first + 1))
		})

		It("reports ErrNoRows for empty single-row lookups", func() {
			var name string
			err := db.Prepare("SELECT name FROM items WHERE id = ?").Get(ctx, 42).Scan(&name)
			Expect(errors.Is(err, storage.ErrNoRows)).To(BeTrue())
		})

		It("iterates every row", func() {
			insert := db.Prepare("INSERT INTO items (name, score) VALUES (?, ?)")
			for i, name := range []string{"a", "b", "c"} {
				_, err := insert.Run(ctx, name, float64(i))
				Expect(err).NotTo(HaveOccurred())
			}

			rows, err := db.Prepare("SELECT name FROM items ORDER BY score DESC").All(ctx)
			Expect(err).NotTo(HaveOccurred())
			defer rows.Close()

			var names []string
			for rows.Next() {
				var name string
				Expect(rows.Scan(&name)).To(Succeed())
				names = append(names, name)
			}
			Expect(rows.Err()).NotTo(HaveOccurred())
			Expect(names).To(Equal([]string{"c", "b", "a"}))
		})

		It("round-trips timestamps", func() {
			seen := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
			_, err := db.Prepare("INSERT INTO items (name, seen_at) VALUES (?, ?)").Run(ctx, "a", seen)
			Expect(err).NotTo(HaveOccurred())

			var got time.Time
			Expect(db.Prepare("SELECT seen_at FROM items WHERE name = ?").Get(ctx, "a").Scan(&got)).To(Succeed())
			Expect(got.Equal(seen)).To(BeTrue())
		})

		It("upserts through excluded references", func() {
			upsert := db.Prepare(`INSERT INTO items (name, score) VALUES (?, ?)
				ON CONFLICT(name) DO UPDATE SET score = excluded.score`)
			_, err := upsert.Run(ctx, "a", 0.1)
			Expect(err).NotTo(HaveOccurred())
			_, err = upsert.Run(ctx, "a", 0.9)
			Expect(err).NotTo(HaveOccurred())

			var score float64
			Expect(db.Prepare("SELECT score FROM items WHERE name = ?").Get(ctx, "a").Scan(&score)).To(Succeed())
			Expect(score).To(Equal(0.9))
		})

		It("wraps failures as storage errors", func() {
			_, err := db.Prepare("INSERT INTO missing (x) VALUES (?)").Run(ctx, 1)
			Expect(errors.Is(err, storage.ErrStorage)).To(BeTrue())
		})
	})
})

var _ = Describe("MatchExpression", func() {
	It("quotes every term", func() {
		Expect(sqlite.MatchExpression("fix auth bug")).To(Equal(`"fix" "auth" "bug"`))
	})

	It("neutralizes FTS syntax", func() {
		Expect(sqlite.MatchExpression(`say "hi" OR -x`)).To(Equal(`"say" """hi""" "OR" "-x"`))
	})
})
