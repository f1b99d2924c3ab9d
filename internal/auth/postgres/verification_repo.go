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

// VerificationCodeRepository implements auth.VerificationCodeRepository using
// PostgreSQL. user_id is the primary key, which enforces the one-outstanding-
// code invariant in the schema itself.
type VerificationCodeRepository struct {
	pool poolIface
}

// NewVerificationCodeRepository creates a new VerificationCodeRepository.
func NewVerificationCodeRepository(pool poolIface) *VerificationCodeRepository {
	return &VerificationCodeRepository{pool: pool}
}

// Replace deletes any outstanding code for the user and inserts the new one
// in a single transaction.
func (r *VerificationCodeRepository) Replace(ctx context.Context, code *auth.VerificationCode) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("VERIFY_CODE_REPLACE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM email_verification_codes WHERE user_id = $1
	`, code.UserID.String()); err != nil {
		return oops.Code("VERIFY_CODE_REPLACE_FAILED").
			With("operation", "delete outstanding code").
			With("user_id", code.UserID.String()).
			Wrap(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO email_verification_codes (user_id, email, code, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, code.UserID.String(), code.Email, code.Code, code.ExpiresAt, code.CreatedAt); err != nil {
		return oops.Code("VERIFY_CODE_REPLACE_FAILED").
			With("operation", "insert code").
			With("user_id", code.UserID.String()).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("VERIFY_CODE_REPLACE_FAILED").
			With("operation", "commit transaction").
			Wrap(err)
	}
	return nil
}

// GetByUser retrieves the user's outstanding code without consuming it.
func (r *VerificationCodeRepository) GetByUser(ctx context.Context, userID ulid.ULID) (*auth.VerificationCode, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, email, code, expires_at, created_at
		FROM email_verification_codes
		WHERE user_id = $1
	`, userID.String())

	code, err := scanVerificationCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("VERIFY_CODE_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("VERIFY_CODE_GET_FAILED").
			With("operation", "get code by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return code, nil
}

// ConsumeByUser atomically fetches and deletes the user's outstanding code.
// DELETE ... RETURNING hands the row to exactly one of any concurrent callers.
func (r *VerificationCodeRepository) ConsumeByUser(ctx context.Context, userID ulid.ULID) (*auth.VerificationCode, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM email_verification_codes
		WHERE user_id = $1
		RETURNING user_id, email, code, expires_at, created_at
	`, userID.String())

	code, err := scanVerificationCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("VERIFY_CODE_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("VERIFY_CODE_CONSUME_FAILED").
			With("operation", "consume code by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return code, nil
}

func scanVerificationCode(row pgx.Row) (*auth.VerificationCode, error) {
	var (
		code   auth.VerificationCode
		userID string
	)
	if err := row.Scan(&userID, &code.Email, &code.Code, &code.ExpiresAt, &code.CreatedAt); err != nil {
		return nil, err
	}

	parsed, err := ulid.Parse(userID)
	if err != nil {
		return nil, oops.Code("VERIFY_CODE_SCAN_FAILED").
			With("operation", "parse user id").
			Wrap(err)
	}
	code.UserID = parsed
	return &code, nil
}

// Compile-time interface check.
var _ auth.VerificationCodeRepository = (*VerificationCodeRepository)(nil)
