package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/swarm/pkg/storage"
	"github.com/papercomputeco/swarm/pkg/utils"
)

const defaultHistoryLimit = 50

// Config configures a Store.
type Config struct {
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Store persists profiles through the storage layer.
type Store struct {
	db     *storage.DB
	logger *slog.Logger
	now    func() time.Time

	selectEntry   *storage.Stmt
	upsert        *storage.Stmt
	deleteEntry   *storage.Stmt
	insertHistory *storage.Stmt
	listRows      *storage.Stmt
	cleanupUser   *storage.Stmt
	cleanupAll    *storage.Stmt
}

// NewStore prepares the profile statements against db.
func NewStore(db *storage.DB, c Config) *Store {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		db:     db,
		logger: c.Logger,
		now:    now,

		selectEntry: db.Prepare(`SELECT value, confidence, source, tags, expires_at, updated_at
			FROM profiles WHERE user_id = ? AND layer = ? AND key = ?`),
		upsert: db.Prepare(`INSERT INTO profiles (user_id, layer, key, value, confidence, source, tags, expires_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, layer, key) DO UPDATE SET
				value = excluded.value,
				confidence = excluded.confidence,
				source = excluded.source,
				tags = excluded.tags,
				expires_at = excluded.expires_at,
				updated_at = excluded.updated_at`),
		deleteEntry: db.Prepare(`DELETE FROM profiles WHERE user_id = ? AND layer = ? AND key = ?`),
		insertHistory: db.Prepare(`INSERT INTO profile_history (user_id, layer, key, old_value, new_value, source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
		listRows: db.Prepare(`SELECT layer, key, value, confidence, source, tags, expires_at, updated_at
			FROM profiles WHERE user_id = ? ORDER BY layer, key`),
		cleanupUser: db.Prepare(`DELETE FROM profiles
			WHERE user_id = ? AND expires_at IS NOT NULL AND expires_at <= ?`),
		cleanupAll: db.Prepare(`DELETE FROM profiles
			WHERE expires_at IS NOT NULL AND expires_at <= ?`),
	}
}

// Get returns the live entries of a user grouped by layer then key.
func (s *Store) Get(ctx context.Context, userID string, f Filter) (Profile, error) {
	query := `SELECT layer, key, value, confidence, source, tags, expires_at, updated_at
		FROM profiles WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)`
	args := []any{userID, s.now().UTC()}
	if f.Layer != "" {
		query += " AND layer = ?"
		args = append(args, f.Layer)
	}
	if f.Tag != "" {
		query += ` AND tags LIKE ? ESCAPE '\'`
		args = append(args, storage.Contains(f.Tag))
	}
	query += " ORDER BY layer, key"

	rows, err := s.queryRows(ctx, s.db.Prepare(query), args...)
	if err != nil {
		return nil, err
	}

	profile := Profile{}
	for _, r := range rows {
		if profile[r.Layer] == nil {
			profile[r.Layer] = map[string]Entry{}
		}
		profile[r.Layer][r.Key] = r.Entry
	}
	return profile, nil
}

// Rows returns every stored entry of a user, expired ones included, ordered
// by layer then key.
func (s *Store) Rows(ctx context.Context, userID string) ([]Row, error) {
	return s.queryRows(ctx, s.listRows, userID)
}

// Lookup returns the stored entry for (user, layer, key), expired or not,
// or nil when no row exists.
func (s *Store) Lookup(ctx context.Context, userID, layer, key string) (*Entry, error) {
	var (
		e         Entry
		value     string
		source    sql.NullString
		tags      sql.NullString
		expiresAt sql.NullTime
		updatedAt sql.NullTime
	)

	err := s.selectEntry.Get(ctx, userID, layer, key).Scan(&value, &e.Confidence, &source, &tags, &expiresAt, &updatedAt)
	if errors.Is(err, storage.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile entry %s/%s: %w", layer, key, err)
	}

	e.Value = json.RawMessage(value)
	e.Source = source.String
	e.Tags = utils.SplitSet(tags.String)
	e.ExpiresAt = timePtr(expiresAt)
	e.UpdatedAt = updatedAt.Time
	return &e, nil
}

// Set is the direct write path: each entry overwrites value, confidence,
// source, tags and expiry unconditionally, and the prior value is recorded in
// the history first.
func (s *Store) Set(ctx context.Context, userID, layer string, writes []Write, source string) error {
	for _, w := range writes {
		prior, err := s.Lookup(ctx, userID, layer, w.Key)
		if err != nil {
			return err
		}

		confidence := DefaultDirectConfidence
		if w.Confidence != nil {
			confidence = *w.Confidence
		}

		now := s.now().UTC()
		entry := Entry{
			Value:      w.Value,
			Confidence: confidence,
			Source:     source,
			Tags:       w.Tags,
			ExpiresAt:  utcPtr(w.ExpiresAt),
			UpdatedAt:  now,
		}

		var old json.RawMessage
		if prior != nil {
			old = prior.Value
		}
		if err := s.appendHistory(ctx, userID, layer, w.Key, old, w.Value, source, now); err != nil {
			return err
		}
		if err := s.store(ctx, userID, layer, w.Key, entry); err != nil {
			return err
		}
	}

	return nil
}

// Observe merges each observation through the confidence gate and returns
// the number of observations processed. It writes no history.
func (s *Store) Observe(ctx context.Context, userID string, observations []Observation, source string) (int, error) {
	for _, o := range observations {
		now := s.now().UTC()
		layer, candidate := ObservationCandidate(o, source, now)
		candidate.ExpiresAt = utcPtr(candidate.ExpiresAt)

		existing, err := s.Lookup(ctx, userID, layer, o.Key)
		if err != nil {
			return 0, err
		}

		merged := Merge(existing, candidate, now)
		if err := s.store(ctx, userID, layer, o.Key, merged); err != nil {
			return 0, err
		}

		s.logger.Debug("observation merged",
			"user_id", userID,
			"layer", layer,
			"key", o.Key,
			"confidence", merged.Confidence,
		)
	}

	return len(observations), nil
}

// ApplyReflection merges reflected candidates through the confidence gate,
// stamping every touched entry with SourceReflect.
func (s *Store) ApplyReflection(ctx context.Context, userID, layer, key string, c Candidate) (Entry, error) {
	now := s.now().UTC()

	existing, err := s.Lookup(ctx, userID, layer, key)
	if err != nil {
		return Entry{}, err
	}

	merged := MergeReflection(existing, c, now)
	if err := s.store(ctx, userID, layer, key, merged); err != nil {
		return Entry{}, err
	}
	return merged, nil
}

// Delete removes one entry and records the removal in the history. It
// reports whether a row existed.
func (s *Store) Delete(ctx context.Context, userID, layer, key, source string) (bool, error) {
	prior, err := s.Lookup(ctx, userID, layer, key)
	if err != nil {
		return false, err
	}
	if prior == nil {
		return false, nil
	}

	if _, err := s.deleteEntry.Run(ctx, userID, layer, key); err != nil {
		return false, fmt.Errorf("deleting profile entry %s/%s: %w", layer, key, err)
	}
	if err := s.appendHistory(ctx, userID, layer, key, prior.Value, nil, source, s.now().UTC()); err != nil {
		return true, err
	}
	return true, nil
}

// CleanupExpired physically removes expired entries and returns how many
// were removed. An empty userID sweeps every user.
func (s *Store) CleanupExpired(ctx context.Context, userID string) (int64, error) {
	now := s.now().UTC()

	var (
		res storage.Result
		err error
	)
	if userID == "" {
		res, err = s.cleanupAll.Run(ctx, now)
	} else {
		res, err = s.cleanupUser.Run(ctx, userID, now)
	}
	if err != nil {
		return 0, fmt.Errorf("removing expired profile entries: %w", err)
	}

	return res.RowsAffected, nil
}

// History lists direct mutations newest first.
func (s *Store) History(ctx context.Context, userID string, f HistoryFilter) ([]HistoryRecord, error) {
	if f.Limit <= 0 {
		f.Limit = defaultHistoryLimit
	}

	query := `SELECT id, user_id, layer, key, old_value, new_value, source, created_at
		FROM profile_history WHERE user_id = ?`
	args := []any{userID}
	if f.Layer != "" {
		query += " AND layer = ?"
		args = append(args, f.Layer)
	}
	if f.Key != "" {
		query += " AND key = ?"
		args = append(args, f.Key)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.db.Prepare(query).All(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("listing profile history: %w", err)
	}
	defer rows.Close()

	records := []HistoryRecord{}
	for rows.Next() {
		var (
			h                  HistoryRecord
			oldValue, newValue sql.NullString
			source             sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.UserID, &h.Layer, &h.Key, &oldValue, &newValue, &source, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.OldValue = rawOrNil(oldValue)
		h.NewValue = rawOrNil(newValue)
		h.Source = source.String
		records = append(records, h)
	}
	return records, rows.Err()
}

func (s *Store) store(ctx context.Context, userID, layer, key string, e Entry) error {
	var tags any
	if e.Tags != nil {
		tags = utils.JoinSet(e.Tags)
	}

	var expires any
	if e.ExpiresAt != nil {
		expires = e.ExpiresAt.UTC()
	}

	_, err := s.upsert.Run(ctx,
		userID, layer, key,
		string(e.Value),
		e.Confidence,
		e.Source,
		tags,
		expires,
		e.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing profile entry %s/%s: %w", layer, key, err)
	}
	return nil
}

func (s *Store) appendHistory(ctx context.Context, userID, layer, key string, oldValue, newValue json.RawMessage, source string, at time.Time) error {
	_, err := s.insertHistory.Run(ctx, userID, layer, key, rawArg(oldValue), rawArg(newValue), source, at)
	if err != nil {
		return fmt.Errorf("recording profile history %s/%s: %w", layer, key, err)
	}
	return nil
}

func (s *Store) queryRows(ctx context.Context, stmt *storage.Stmt, args ...any) ([]Row, error) {
	rows, err := stmt.All(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var (
			r         Row
			value     string
			source    sql.NullString
			tags      sql.NullString
			expiresAt sql.NullTime
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&r.Layer, &r.Key, &value, &r.Confidence, &source, &tags, &expiresAt, &updatedAt); err != nil {
			return nil, err
		}
		r.Value = json.RawMessage(value)
		r.Source = source.String
		r.Tags = utils.SplitSet(tags.String)
		r.ExpiresAt = timePtr(expiresAt)
		r.UpdatedAt = updatedAt.Time
		out = append(out, r)
	}
	return out, rows.Err()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func rawArg(v json.RawMessage) any {
	if v == nil {
		return nil
	}
	return string(v)
}

func rawOrNil(s sql.NullString) json.RawMessage {
	if !s.Valid {
		return nil
	}
	return json.RawMessage(s.String)
}
