// Package sqlite provides the SQLite backend for the storage layer.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/swarm/pkg/storage"
)

// NewDB opens a SQLite database. The dbPath can be a file path or ":memory:"
// for an in-memory database.
func NewDB(ctx context.Context, dbPath string) (*storage.DB, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection also keeps ":memory:"
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	// Wrap the database connection with ent's SQL driver
	drv := entsql.OpenDB(dialect.SQLite, db)
	return storage.New(drv, Dialect{}), nil
}

// Dialect is the SQLite flavor of storage.Dialect. Query templates are
// already written in SQLite syntax, so Translate is the identity.
type Dialect struct{}

func (Dialect) Name() string { return dialect.SQLite }

func (Dialect) Translate(query string) string { return query }

func (Dialect) AutoIncrementKey() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (Dialect) TimestampType() string { return "TIMESTAMP" }

func (Dialect) FullTextSchema() []string {
	return []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			content, tags, entities, key,
			content='memories', content_rowid='id'
		)`,
		`CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, content, tags, entities, key)
			VALUES (new.id, new.content, new.tags, new.entities, new.key);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content, tags, entities, key)
			VALUES ('delete', old.id, old.content, old.tags, old.entities, old.key);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE OF content, tags, entities, key ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content, tags, entities, key)
			VALUES ('delete', old.id, old.content, old.tags, old.entities, old.key);
			INSERT INTO memories_fts(rowid, content, tags, entities, key)
			VALUES (new.id, new.content, new.tags, new.entities, new.key);
		END`,
	}
}

func (Dialect) FullTextQuery(columns []string, userID, query string, limit int) (string, []any) {
	q := "SELECT " + strings.Join(columns, ", ") + `
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.rowid
		WHERE m.user_id = ? AND memories_fts MATCH ?
		ORDER BY memories_fts.rank
		LIMIT ?`
	return q, []any{userID, MatchExpression(query), limit}
}

// MatchExpression quotes every term so FTS5 treats the query as plain words
// rather than its query syntax. "fix auth bug" becomes `"fix" "auth" "bug"`.
func MatchExpression(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.ReplaceAll(w, `"`, `""`)
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}
