package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

var sessionSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token_hash TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions (user_id)`,
}

// PostgresSessionStore stores hashed session tokens and resolves them to users
type PostgresSessionStore struct {
	db        *sql.DB
	generator *TokenGenerator
	clock     clockwork.Clock
}

// NewPostgresSessionStore creates a session store. clock may be nil.
func NewPostgresSessionStore(db *sql.DB, clock clockwork.Clock) *PostgresSessionStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PostgresSessionStore{db: db, generator: NewTokenGenerator(), clock: clock}
}

// EnsureSchema creates the users and sessions tables if they do not exist
func (s *PostgresSessionStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sessionSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply session schema: %w", err)
		}
	}
	return nil
}

// CreateSession issues a token for userID valid for ttl. The plaintext token
// is returned once and never stored.
func (s *PostgresSessionStore) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	token, hash, err := s.generator.GenerateToken()
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	query := `
		INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.db.ExecContext(ctx, query, hash, userID, now, now.Add(ttl)); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return token, nil
}

// Lookup resolves a token to its user. Unknown, expired and revoked sessions
// return ErrInvalidToken.
func (s *PostgresSessionStore) Lookup(ctx context.Context, token string) (*Identity, error) {
	if err := s.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	query := `
		SELECT u.id, u.email, u.full_name, u.status
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1
			AND s.revoked_at IS NULL
			AND s.expires_at > $2
	`

	var identity Identity
	err := s.db.QueryRowContext(ctx, query, s.generator.HashToken(token), s.clock.Now()).
		Scan(&identity.ID, &identity.Email, &identity.FullName, &identity.Status)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	return &identity, nil
}

// Revoke ends a session. Revoking an unknown token is not an error.
func (s *PostgresSessionStore) Revoke(ctx context.Context, token string) error {
	query := `UPDATE sessions SET revoked_at = $2 WHERE token_hash = $1 AND revoked_at IS NULL`
	if _, err := s.db.ExecContext(ctx, query, s.generator.HashToken(token), s.clock.Now()); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// PruneExpired deletes sessions that expired or were revoked before cutoff
func (s *PostgresSessionStore) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < $1 OR revoked_at < $1`
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return result.RowsAffected()
}
