// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/auth"
)

func testVerificationCode(userID ulid.ULID) *auth.VerificationCode {
	now := time.Now().Truncate(time.Microsecond)
	return &auth.VerificationCode{
		UserID:    userID,
		Email:     "alice@example.com",
		Code:      "ABCD2345",
		ExpiresAt: now.Add(auth.VerificationCodeTTL),
		CreatedAt: now,
	}
}

func TestVerificationCodeRepository_Replace(t *testing.T) {
	userID := ulid.Make()
	code := testVerificationCode(userID)

	mock := newMockPool(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM email_verification_codes`).
		WithArgs(userID.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO email_verification_codes`).
		WithArgs(userID.String(), code.Email, code.Code, code.ExpiresAt, code.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := NewVerificationCodeRepository(mock)
	require.NoError(t, repo.Replace(context.Background(), code))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerificationCodeRepository_GetByUser(t *testing.T) {
	userID := ulid.Make()
	code := testVerificationCode(userID)

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		rows := pgxmock.NewRows([]string{"user_id", "email", "code", "expires_at", "created_at"}).
			AddRow(userID.String(), code.Email, code.Code, code.ExpiresAt, code.CreatedAt)
		mock.ExpectQuery(`SELECT .+ FROM email_verification_codes`).
			WithArgs(userID.String()).
			WillReturnRows(rows)

		repo := NewVerificationCodeRepository(mock)
		got, err := repo.GetByUser(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, code.Code, got.Code)
		assert.Equal(t, userID, got.UserID)
	})

	t.Run("absent maps to ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM email_verification_codes`).
			WithArgs(userID.String()).
			WillReturnError(pgx.ErrNoRows)

		repo := NewVerificationCodeRepository(mock)
		_, err := repo.GetByUser(context.Background(), userID)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestVerificationCodeRepository_ConsumeByUser(t *testing.T) {
	userID := ulid.Make()
	code := testVerificationCode(userID)

	t.Run("fetches and deletes in one statement", func(t *testing.T) {
		mock := newMockPool(t)
		rows := pgxmock.NewRows([]string{"user_id", "email", "code", "expires_at", "created_at"}).
			AddRow(userID.String(), code.Email, code.Code, code.ExpiresAt, code.CreatedAt)
		mock.ExpectQuery(`DELETE FROM email_verification_codes`).
			WithArgs(userID.String()).
			WillReturnRows(rows)

		repo := NewVerificationCodeRepository(mock)
		got, err := repo.ConsumeByUser(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, code.Code, got.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent maps to ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`DELETE FROM email_verification_codes`).
			WithArgs(userID.String()).
			WillReturnError(pgx.ErrNoRows)

		repo := NewVerificationCodeRepository(mock)
		_, err := repo.ConsumeByUser(context.Background(), userID)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})
}
