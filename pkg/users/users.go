// Package users manages tenants: the lazily created default user and
// email/password accounts that sign in with session tokens.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/swarm/pkg/auth"
	"github.com/papercomputeco/swarm/pkg/storage"
)

const (
	// DefaultUserID is the id of the user created when nobody registered.
	DefaultUserID = "default"

	defaultUserName = "Default User"
	roleUser        = "user"
)

var (
	// ErrEmailTaken is returned when registering an email twice.
	ErrEmailTaken = errors.New("email already registered")

	// ErrMissingCredentials is returned when email or password is empty.
	ErrMissingCredentials = errors.New("missing email or password")

	errNoTokens = errors.New("session tokens not configured")
)

// Session is the result of register and login.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

// Config configures a Service.
type Config struct {
	Tokens *auth.Tokens
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service manages users.
type Service struct {
	tokens *auth.Tokens
	logger *slog.Logger
	now    func() time.Time

	firstUser   *storage.Stmt
	insert      *storage.Stmt
	byEmail     *storage.Stmt
	insertFirst *storage.Stmt
}

// NewService prepares the user statements against db.
func NewService(db *storage.DB, c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		tokens: c.Tokens,
		logger: c.Logger,
		now:    now,

		firstUser: db.Prepare(`SELECT id FROM users ORDER BY created_at, id LIMIT 1`),
		insert: db.Prepare(`INSERT INTO users (id, name, email, password_hash, role, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
		insertFirst: db.Prepare(`INSERT INTO users (id, name, role, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`),
		byEmail: db.Prepare(`SELECT id, name, password_hash FROM users WHERE email = ?`),
	}
}

// EnsureDefaultUser returns the oldest user, creating the default user when
// the table is empty.
func (s *Service) EnsureDefaultUser(ctx context.Context) (string, error) {
	var id string
	err := s.firstUser.Get(ctx).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, storage.ErrNoRows) {
		return "", fmt.Errorf("reading default user: %w", err)
	}

	if _, err := s.insertFirst.Run(ctx, DefaultUserID, defaultUserName, roleUser, s.now().UTC()); err != nil {
		return "", fmt.Errorf("creating default user: %w", err)
	}
	s.logger.Info("default user created", "user_id", DefaultUserID)
	return DefaultUserID, nil
}

// Register creates an account and signs a session token for it. The name
// defaults to the local part of the email.
func (s *Service) Register(ctx context.Context, email, password, name string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}
	if s.tokens == nil {
		return Session{}, errNoTokens
	}

	if _, _, _, err := s.lookup(ctx, email); err == nil {
		return Session{}, ErrEmailTaken
	} else if !storage.IsNotFound(err) {
		return Session{}, err
	}

	if name = strings.TrimSpace(name); name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing password: %w", err)
	}

	id := "u_" + uuid.NewString()[:12]
	if _, err := s.insert.Run(ctx, id, name, email, hash, roleUser, s.now().UTC()); err != nil {
		return Session{}, fmt.Errorf("registering user: %w", err)
	}

	token, err := s.tokens.Sign(id, email)
	if err != nil {
		return Session{}, fmt.Errorf("signing session: %w", err)
	}

	s.logger.Info("user registered", "user_id", id)
	return Session{Token: token, UserID: id}, nil
}

// Login checks the credentials and signs a session token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}
	if s.tokens == nil {
		return Session{}, errNoTokens
	}

	id, name, hash, err := s.lookup(ctx, email)
	if storage.IsNotFound(err) {
		return Session{}, fmt.Errorf("%w: invalid credentials", auth.ErrUnauthenticated)
	}
	if err != nil {
		return Session{}, err
	}
	if hash == "" || !auth.CheckPassword(hash, password) {
		return Session{}, fmt.Errorf("%w: invalid credentials", auth.ErrUnauthenticated)
	}

	token, err := s.tokens.Sign(id, email)
	if err != nil {
		return Session{}, fmt.Errorf("signing session: %w", err)
	}
	return Session{Token: token, UserID: id, Name: name}, nil
}

func (s *Service) lookup(ctx context.Context, email string) (id, name, hash string, err error) {
	var n, h sql.NullString
	err = s.byEmail.Get(ctx, email).Scan(&id, &n, &h)
	if errors.Is(err, storage.ErrNoRows) {
		return "", "", "", storage.NotFoundError{Kind: "user", ID: email}
	}
	if err != nil {
		return "", "", "", fmt.Errorf("reading user: %w", err)
	}
	return id, n.String, h.String, nil
}
