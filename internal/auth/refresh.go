package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrRefreshRevoked = errors.New("refresh token revoked or unknown")

// RefreshStore persists issued refresh tokens for rotation checks.
type RefreshStore struct {
	db *sqlx.DB
}

// NewRefreshStore creates a store.
func NewRefreshStore(db *sqlx.DB) *RefreshStore {
	return &RefreshStore{db: db}
}

// Save stores a refresh token.
func (s *RefreshStore) Save(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES (?, ?, ?)
	`), userID, token, expiresAt.UTC())
	return err
}

// Consume revokes token and fails unless it was live.
func (s *RefreshStore) Consume(ctx context.Context, token string) error {
	var revoked bool
	err := s.db.GetContext(ctx, &revoked, s.db.Rebind(`SELECT revoked FROM refresh_tokens WHERE token = ?`), token)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRefreshRevoked
	}
	if err != nil {
		return err
	}
	if revoked {
		return ErrRefreshRevoked
	}
	return s.Revoke(ctx, token)
}

// Revoke marks a token revoked.
func (s *RefreshStore) Revoke(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE refresh_tokens SET revoked = ? WHERE token = ?`), true, token)
	return err
}
