// Package audit is the append-only event ledger written by the profile,
// memory and reflection paths.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/swarm/pkg/eventstream"
	"github.com/papercomputeco/swarm/pkg/storage"
	"github.com/papercomputeco/swarm/pkg/utils"
)

const (
	defaultListLimit = 50

	// MaxDetailLen caps the stored detail; longer details end in "...".
	MaxDetailLen = 512
)

// Record is one audit entry. AgentID is empty for actions without an acting
// agent (admin operations, scheduled cleanup).
type Record struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	AgentID    string    `json:"agent_id,omitempty"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type,omitempty"`
	TargetID   string    `json:"target_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter narrows List.
type Filter struct {
	Action  string
	AgentID string
	Limit   int
}

// Config configures a Log.
type Config struct {
	// Publisher receives every appended record. Optional.
	Publisher eventstream.Publisher

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Log appends and lists audit records.
type Log struct {
	db        *storage.DB
	publisher eventstream.Publisher
	logger    *slog.Logger
	now       func() time.Time

	insert *storage.Stmt
}

// NewLog prepares the audit statements against db.
func NewLog(db *storage.DB, c Config) *Log {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Log{
		db:        db,
		publisher: c.Publisher,
		logger:    c.Logger,
		now:       now,
		insert: db.Prepare(`INSERT INTO audit_log (user_id, agent_id, action, target_type, target_id, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
	}
}

// Append writes r. Publishing to the event stream is best effort: a publish
// failure is logged and does not fail the append.
func (l *Log) Append(ctx context.Context, r Record) error {
	r.CreatedAt = l.now().UTC()
	r.Detail = utils.Truncate(r.Detail, MaxDetailLen)

	_, err := l.insert.Run(ctx,
		r.UserID,
		nullable(r.AgentID),
		r.Action,
		nullable(r.TargetType),
		nullable(r.TargetID),
		nullable(r.Detail),
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}

	if l.publisher != nil {
		event := &eventstream.AuditEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeAuditRecorded,
			EventID:       uuid.NewString(),
			EmittedAt:     r.CreatedAt,
			UserID:        r.UserID,
			AgentID:       r.AgentID,
			Action:        r.Action,
			TargetType:    r.TargetType,
			TargetID:      r.TargetID,
			Detail:        r.Detail,
		}
		if err := l.publisher.PublishAudit(ctx, event); err != nil {
			l.logger.Warn("failed to publish audit event",
				"action", r.Action,
				"user_id", r.UserID,
				"error", err,
			)
		}
	}

	return nil
}

// List returns the newest records of one user first.
func (l *Log) List(ctx context.Context, userID string, f Filter) ([]Record, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}

	query := `SELECT id, user_id, agent_id, action, target_type, target_id, detail, created_at
		FROM audit_log WHERE user_id = ?`
	args := []any{userID}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, f.AgentID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := l.db.Prepare(query).All(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r                                     Record
			agentID, targetType, targetID, detail sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.UserID, &agentID, &r.Action, &targetType, &targetID, &detail, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.AgentID = agentID.String
		r.TargetType = targetType.String
		r.TargetID = targetID.String
		r.Detail = detail.String
		records = append(records, r)
	}
	return records, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
