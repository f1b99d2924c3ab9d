// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftboard/driftboard/internal/auth"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool poolIface
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool poolIface) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`,
		session.ID,
		session.UserID.String(),
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// ReplaceForUser deletes every session the user holds and inserts the new one
// in a single transaction.
func (r *SessionRepository) ReplaceForUser(ctx context.Context, userID ulid.ULID, session *auth.Session) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("SESSION_REPLACE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID.String()); err != nil {
		return oops.Code("SESSION_REPLACE_FAILED").
			With("operation", "delete user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`, session.ID, session.UserID.String(), session.ExpiresAt, session.CreatedAt); err != nil {
		return oops.Code("SESSION_REPLACE_FAILED").
			With("operation", "insert replacement session").
			With("user_id", userID.String()).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("SESSION_REPLACE_FAILED").
			With("operation", "commit transaction").
			Wrap(err)
	}
	return nil
}

// GetWithUser retrieves a session joined with its owning user in one round trip.
func (r *SessionRepository) GetWithUser(ctx context.Context, id string) (*auth.Session, *auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT s.id, s.user_id, s.expires_at, s.created_at,
		       u.id, u.email, u.email_verified, u.hashed_password, u.external_id, u.created_at, u.updated_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1
	`, id)

	var (
		session       auth.Session
		user          auth.User
		sessionUserID string
		userID        string
	)
	err := row.Scan(
		&session.ID,
		&sessionUserID,
		&session.ExpiresAt,
		&session.CreatedAt,
		&userID,
		&user.Email,
		&user.EmailVerified,
		&user.HashedPassword,
		&user.ExternalID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session with user").
			Wrap(err)
	}

	parsed, err := ulid.Parse(userID)
	if err != nil {
		return nil, nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "parse user id").
			Wrap(err)
	}
	session.UserID = parsed
	user.ID = parsed
	return &session, &user, nil
}

// UpdateExpiry extends a session's expiry.
func (r *SessionRepository) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET expires_at = $2 WHERE id = $1
	`, id, expiresAt)
	if err != nil {
		return oops.Code("SESSION_UPDATE_EXPIRY_FAILED").
			With("operation", "update session expiry").
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes all sessions for a user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes expired sessions and returns how many were dropped.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
