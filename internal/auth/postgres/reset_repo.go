// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftboard/driftboard/internal/auth"
)

// PasswordResetTokenRepository implements auth.PasswordResetTokenRepository
// using PostgreSQL. The token value is the primary key.
type PasswordResetTokenRepository struct {
	pool poolIface
}

// NewPasswordResetTokenRepository creates a new PasswordResetTokenRepository.
func NewPasswordResetTokenRepository(pool poolIface) *PasswordResetTokenRepository {
	return &PasswordResetTokenRepository{pool: pool}
}

// Replace deletes every token the user holds and inserts the new one in a
// single transaction.
func (r *PasswordResetTokenRepository) Replace(ctx context.Context, token *auth.PasswordResetToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("RESET_TOKEN_REPLACE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE user_id = $1
	`, token.UserID.String()); err != nil {
		return oops.Code("RESET_TOKEN_REPLACE_FAILED").
			With("operation", "delete outstanding tokens").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO password_reset_tokens (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`, token.ID, token.UserID.String(), token.ExpiresAt, token.CreatedAt); err != nil {
		return oops.Code("RESET_TOKEN_REPLACE_FAILED").
			With("operation", "insert token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("RESET_TOKEN_REPLACE_FAILED").
			With("operation", "commit transaction").
			Wrap(err)
	}
	return nil
}

// Consume atomically fetches and deletes a token by value.
func (r *PasswordResetTokenRepository) Consume(ctx context.Context, token string) (*auth.PasswordResetToken, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM password_reset_tokens
		WHERE token = $1
		RETURNING token, user_id, expires_at, created_at
	`, token)

	var (
		rt     auth.PasswordResetToken
		userID string
	)
	err := row.Scan(&rt.ID, &userID, &rt.ExpiresAt, &rt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_TOKEN_CONSUME_FAILED").
			With("operation", "consume token").
			Wrap(err)
	}

	parsed, err := ulid.Parse(userID)
	if err != nil {
		return nil, oops.Code("RESET_TOKEN_SCAN_FAILED").
			With("operation", "parse user id").
			Wrap(err)
	}
	rt.UserID = parsed
	return &rt, nil
}

// Compile-time interface check.
var _ auth.PasswordResetTokenRepository = (*PasswordResetTokenRepository)(nil)
