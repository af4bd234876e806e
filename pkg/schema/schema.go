// Package schema creates and migrates the swarm relations. Every statement is
// idempotent, so Ensure may run at every process start (and as often as the
// caller likes) against a fresh or an existing database.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/swarm/pkg/storage"
)

// Capabilities describes optional backend features discovered by Ensure.
type Capabilities struct {
	// FullText is true when the lexical memory index exists. Without it,
	// lexical search degrades to substring matching.
	FullText bool
}

// Manager owns the schema of one database.
type Manager struct {
	db     *storage.DB
	logger *slog.Logger
}

// NewManager creates a schema manager for db.
func NewManager(db *storage.DB, logger *slog.Logger) *Manager {
	return &Manager{db: db, logger: logger}
}

type column struct {
	table      string
	name       string
	definition string
}

// additive columns introduced after the first release; older databases get
// them through Ensure.
var columns = []column{
	{"users", "email", "TEXT"},
	{"users", "password_hash", "TEXT"},
	{"users", "role", "TEXT DEFAULT 'user'"},
	{"agents", "persona", "TEXT"},
	{"memories", "type", "TEXT DEFAULT 'observation'"},
	{"memories", "importance", "DOUBLE PRECISION DEFAULT 0.5"},
	{"memories", "entities", "TEXT"},
	{"memories", "embedding", "TEXT"},
}

// Ensure creates every relation, index and full-text structure that does not
// exist yet and adds missing columns.
func (m *Manager) Ensure(ctx context.Context) (Capabilities, error) {
	for _, stmt := range m.tables() {
		if err := m.db.Exec(ctx, stmt); err != nil {
			return Capabilities{}, fmt.Errorf("creating schema: %w", err)
		}
	}

	for _, c := range columns {
		if err := m.addColumn(ctx, c); err != nil {
			return Capabilities{}, err
		}
	}

	for _, stmt := range indexes {
		if err := m.db.Exec(ctx, stmt); err != nil {
			return Capabilities{}, fmt.Errorf("creating index: %w", err)
		}
	}

	caps := Capabilities{FullText: true}
	for _, stmt := range m.db.Dialect().FullTextSchema() {
		if err := m.db.Exec(ctx, stmt); err != nil {
			m.logger.Warn("full-text index unavailable, lexical search falls back to substring matching",
				"dialect", m.db.Dialect().Name(),
				"error", err,
			)
			caps.FullText = false
			break
		}
	}

	return caps, nil
}

// addColumn adds c unless a probe select proves it is already there.
func (m *Manager) addColumn(ctx context.Context, c column) error {
	probe := m.db.Prepare("SELECT " + c.name + " FROM " + c.table + " WHERE 1 = 0")
	rows, err := probe.All(ctx)
	if err == nil {
		return rows.Close()
	}

	m.logger.Info("adding column", "table", c.table, "column", c.name)
	if err := m.db.Exec(ctx, "ALTER TABLE "+c.table+" ADD COLUMN "+c.name+" "+c.definition); err != nil {
		return fmt.Errorf("adding column %s.%s: %w", c.table, c.name, err)
	}
	return nil
}

func (m *Manager) tables() []string {
	d := m.db.Dialect()
	r := strings.NewReplacer(
		"{{id}}", d.AutoIncrementKey(),
		"{{timestamp}}", d.TimestampType(),
	)

	stmts := make([]string, len(tables))
	for i, t := range tables {
		stmts[i] = r.Replace(t)
	}
	return stmts
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT,
		email         TEXT,
		password_hash TEXT,
		role          TEXT DEFAULT 'user',
		created_at    {{timestamp}}
	)`,
	`CREATE TABLE IF NOT EXISTS agents (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		name        TEXT NOT NULL,
		api_key     TEXT NOT NULL UNIQUE,
		permissions TEXT NOT NULL DEFAULT 'read',
		persona     TEXT,
		created_at  {{timestamp}}
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id         {{id}},
		user_id    TEXT NOT NULL,
		layer      TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		source     TEXT,
		tags       TEXT,
		expires_at {{timestamp}},
		updated_at {{timestamp}},
		UNIQUE (user_id, layer, key)
	)`,
	`CREATE TABLE IF NOT EXISTS memories (
		id         {{id}},
		user_id    TEXT NOT NULL,
		key        TEXT,
		content    TEXT NOT NULL,
		source     TEXT,
		tags       TEXT,
		type       TEXT DEFAULT 'observation',
		importance DOUBLE PRECISION DEFAULT 0.5,
		entities   TEXT,
		embedding  TEXT,
		created_at {{timestamp}}
	)`,
	`CREATE TABLE IF NOT EXISTS profile_history (
		id         {{id}},
		user_id    TEXT NOT NULL,
		layer      TEXT NOT NULL,
		key        TEXT NOT NULL,
		old_value  TEXT,
		new_value  TEXT,
		source     TEXT,
		created_at {{timestamp}}
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id          {{id}},
		user_id     TEXT NOT NULL,
		agent_id    TEXT,
		action      TEXT NOT NULL,
		target_type TEXT,
		target_id   TEXT,
		detail      TEXT,
		created_at  {{timestamp}}
	)`,
}

var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
	`CREATE INDEX IF NOT EXISTS idx_agents_user ON agents(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_profiles_user_layer ON profiles(user_id, layer)`,
	`CREATE INDEX IF NOT EXISTS idx_profiles_expires ON profiles(expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_history_user_created ON profile_history(user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_user_created ON audit_log(user_id, created_at)`,
}
