package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/swarm/pkg/embeddings"
	"github.com/papercomputeco/swarm/pkg/storage"
	"github.com/papercomputeco/swarm/pkg/utils"
	"github.com/papercomputeco/swarm/pkg/vector"
)

const defaultLimit = 50

var columns = []string{
	"m.id", "m.user_id", "m.key", "m.content", "m.source", "m.tags",
	"m.entities", "m.type", "m.importance", "m.created_at",
}

var selectColumns = strings.Join(columns, ", ")

// Config configures a Store.
type Config struct {
	Logger *slog.Logger

	// Embedder embeds semantic queries. Semantic searches fall back to the
	// lexical pipeline when it is nil.
	Embedder embeddings.Embedder

	// FullText reports whether the backend's full-text index exists. Without
	// it lexical queries match every term with LIKE.
	FullText bool

	// Now defaults to time.Now.
	Now func() time.Time
}

// Store persists and searches memories.
type Store struct {
	db       *storage.DB
	logger   *slog.Logger
	embedder embeddings.Embedder
	fullText bool
	now      func() time.Time

	insert         *storage.Stmt
	deleteOwned    *storage.Stmt
	setEmbedding   *storage.Stmt
	selectCJK      *storage.Stmt
	selectEmbedded *storage.Stmt
	selectSince    *storage.Stmt
	selectAll      *storage.Stmt
	countUser      *storage.Stmt
}

// NewStore prepares the memory statements against db.
func NewStore(db *storage.DB, c Config) *Store {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		db:       db,
		logger:   c.Logger,
		embedder: c.Embedder,
		fullText: c.FullText,
		now:      now,

		insert: db.Prepare(`INSERT INTO memories (user_id, key, content, source, tags, type, importance, entities, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		deleteOwned:  db.Prepare(`DELETE FROM memories WHERE id = ? AND user_id = ?`),
		setEmbedding: db.Prepare(`UPDATE memories SET embedding = ? WHERE id = ?`),
		selectCJK: db.Prepare(`SELECT ` + selectColumns + ` FROM memories m
			WHERE m.user_id = ? AND m.content LIKE ? ESCAPE '\'
			ORDER BY m.created_at DESC, m.id DESC LIMIT ?`),
		selectEmbedded: db.Prepare(`SELECT ` + selectColumns + `, m.embedding FROM memories m
			WHERE m.user_id = ? AND m.embedding IS NOT NULL`),
		selectSince: db.Prepare(`SELECT ` + selectColumns + ` FROM memories m
			WHERE m.user_id = ? AND m.created_at >= ?
			ORDER BY m.created_at DESC, m.id DESC LIMIT ?`),
		selectAll: db.Prepare(`SELECT ` + selectColumns + ` FROM memories m
			WHERE m.user_id = ? ORDER BY m.created_at DESC, m.id DESC`),
		countUser: db.Prepare(`SELECT COUNT(*) FROM memories WHERE user_id = ?`),
	}
}

// Write inserts a memory without an embedding and returns the stored row.
func (s *Store) Write(ctx context.Context, userID, source string, in Input) (Memory, error) {
	m := Memory{
		UserID:     userID,
		Key:        in.Key,
		Content:    in.Content,
		Source:     source,
		Tags:       utils.SplitSet(utils.JoinSet(in.Tags)),
		Entities:   utils.SplitSet(utils.JoinSet(in.Entities)),
		Type:       in.Type,
		Importance: DefaultImportance,
		CreatedAt:  s.now().UTC(),
	}
	if m.Type == "" {
		m.Type = TypeObservation
	}
	if in.Importance != nil {
		m.Importance = *in.Importance
	}

	err := s.insert.Get(ctx,
		userID,
		nullString(m.Key),
		m.Content,
		source,
		nullString(utils.JoinSet(m.Tags)),
		m.Type,
		m.Importance,
		nullString(utils.JoinSet(m.Entities)),
		m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return Memory{}, fmt.Errorf("writing memory: %w", err)
	}

	s.logger.Debug("memory written",
		"user_id", userID,
		"memory_id", m.ID,
		"type", m.Type,
	)
	return m, nil
}

// SetEmbedding attaches an embedding to the memory with the given id.
func (s *Store) SetEmbedding(ctx context.Context, id int64, embedding []float32) error {
	encoded, err := vector.Encode(embedding)
	if err != nil {
		return err
	}
	if _, err := s.setEmbedding.Run(ctx, encoded, id); err != nil {
		return fmt.Errorf("storing embedding for memory %d: %w", id, err)
	}
	return nil
}

// Delete removes the memory with the given id when it belongs to userID. It
// reports whether a row was removed; another user's id is not an error.
func (s *Store) Delete(ctx context.Context, userID string, id int64) (bool, error) {
	res, err := s.deleteOwned.Run(ctx, id, userID)
	if err != nil {
		return false, fmt.Errorf("deleting memory %d: %w", id, err)
	}
	return res.RowsAffected > 0, nil
}

// Recent returns memories created at or after since, newest first.
func (s *Store) Recent(ctx context.Context, userID string, since time.Time, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	return s.collect(ctx, s.selectSince, userID, since.UTC(), limit)
}

// All returns every memory of a user, newest first.
func (s *Store) All(ctx context.Context, userID string) ([]Memory, error) {
	return s.collect(ctx, s.selectAll, userID)
}

// Count returns how many memories a user has.
func (s *Store) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := s.countUser.Get(ctx, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting memories: %w", err)
	}
	return n, nil
}

// Search runs q against the memories of userID.
func (s *Store) Search(ctx context.Context, userID string, q Query) ([]Memory, error) {
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}

	text := strings.TrimSpace(q.Text)
	switch {
	case text == "":
		return s.filter(ctx, userID, q)
	case q.Mode == ModeSemantic:
		results, err := s.semantic(ctx, userID, text, q.Limit)
		if err == nil {
			return results, nil
		}
		s.logger.Warn("semantic search unavailable, using lexical search",
			"user_id", userID,
			"error", err,
		)
		return s.lexical(ctx, userID, text, q.Limit)
	default:
		return s.lexical(ctx, userID, text, q.Limit)
	}
}

func (s *Store) filter(ctx context.Context, userID string, q Query) ([]Memory, error) {
	query := `SELECT ` + selectColumns + ` FROM memories m WHERE m.user_id = ?`
	args := []any{userID}
	if q.Tag != "" {
		query += ` AND m.tags LIKE ? ESCAPE '\'`
		args = append(args, storage.Contains(q.Tag))
	}
	if q.Type != "" {
		query += " AND m.type = ?"
		args = append(args, q.Type)
	}
	if q.Entity != "" {
		query += ` AND m.entities LIKE ? ESCAPE '\'`
		args = append(args, storage.Contains(q.Entity))
	}
	if q.Since != nil {
		query += " AND m.created_at >= ?"
		args = append(args, q.Since.UTC())
	}
	query += " ORDER BY m.created_at DESC, m.id DESC LIMIT ?"
	args = append(args, q.Limit)

	return s.collect(ctx, s.db.Prepare(query), args...)
}

func (s *Store) lexical(ctx context.Context, userID, text string, limit int) ([]Memory, error) {
	if HasCJK(text) {
		return s.collect(ctx, s.selectCJK, userID, storage.Contains(text), limit)
	}

	if s.fullText {
		query, args := s.db.Dialect().FullTextQuery(columns, userID, text, limit)
		return s.collect(ctx, s.db.Prepare(query), args...)
	}

	query := `SELECT ` + selectColumns + ` FROM memories m WHERE m.user_id = ?`
	args := []any{userID}
	for _, term := range strings.Fields(text) {
		query += ` AND (m.content LIKE ? ESCAPE '\' OR m.tags LIKE ? ESCAPE '\'
			OR m.entities LIKE ? ESCAPE '\' OR m.key LIKE ? ESCAPE '\')`
		p := storage.Contains(term)
		args = append(args, p, p, p, p)
	}
	query += " ORDER BY m.created_at DESC, m.id DESC LIMIT ?"
	args = append(args, limit)

	return s.collect(ctx, s.db.Prepare(query), args...)
}

func (s *Store) semantic(ctx context.Context, userID, text string, limit int) ([]Memory, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", vector.ErrEmbedding)
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	rows, err := s.selectEmbedded.All(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading embedded memories: %w", err)
	}
	defer rows.Close()

	byID := map[int64]Memory{}
	docs := []vector.Document{}
	for rows.Next() {
		var encoded sql.NullString
		m, err := scanMemory(rows, &encoded)
		if err != nil {
			return nil, err
		}

		doc, err := vector.Decode(encoded.String)
		if err != nil || len(doc) == 0 {
			s.logger.Debug("skipping undecodable embedding", "memory_id", m.ID)
			continue
		}
		byID[m.ID] = m
		docs = append(docs, vector.Document{ID: m.ID, Embedding: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ranked := vector.Rank(embedding, docs, limit)
	out := make([]Memory, 0, len(ranked))
	for _, r := range ranked {
		m := byID[r.ID]
		score := r.Score
		m.Score = &score
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) collect(ctx context.Context, stmt *storage.Stmt, args ...any) ([]Memory, error) {
	rows, err := stmt.All(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("reading memories: %w", err)
	}
	defer rows.Close()

	out := []Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMemory(rows *storage.Rows, extra ...any) (Memory, error) {
	var (
		m                       Memory
		key, source             sql.NullString
		tags, entities, memType sql.NullString
		importance              sql.NullFloat64
		createdAt               sql.NullTime
	)

	dest := append([]any{&m.ID, &m.UserID, &key, &m.Content, &source, &tags, &entities, &memType, &importance, &createdAt}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return Memory{}, err
	}

	m.Key = key.String
	m.Source = source.String
	m.Tags = utils.SplitSet(tags.String)
	m.Entities = utils.SplitSet(entities.String)
	m.Type = memType.String
	m.Importance = importance.Float64
	m.CreatedAt = createdAt.Time.UTC()
	return m, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
