// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/auth"
)

func testSession(userID ulid.ULID) *auth.Session {
	now := time.Now().Truncate(time.Microsecond)
	return &auth.Session{
		ID:        "abcdefghijklmnopqrstuvwxyz23456722222222",
		UserID:    userID,
		ExpiresAt: now.Add(auth.DefaultSessionLifetime),
		CreatedAt: now,
	}
}

func TestSessionRepository_Create(t *testing.T) {
	session := testSession(ulid.Make())

	mock := newMockPool(t)
	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(session.ID, session.UserID.String(), session.ExpiresAt, session.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewSessionRepository(mock)
	require.NoError(t, repo.Create(context.Background(), session))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_ReplaceForUser(t *testing.T) {
	userID := ulid.Make()
	session := testSession(userID)

	t.Run("delete and insert commit together", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM sessions WHERE user_id`).
			WithArgs(userID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mock.ExpectExec(`INSERT INTO sessions`).
			WithArgs(session.ID, userID.String(), session.ExpiresAt, session.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		repo := NewSessionRepository(mock)
		require.NoError(t, repo.ReplaceForUser(context.Background(), userID, session))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back the delete", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM sessions WHERE user_id`).
			WithArgs(userID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mock.ExpectExec(`INSERT INTO sessions`).
			WithArgs(session.ID, userID.String(), session.ExpiresAt, session.CreatedAt).
			WillReturnError(errors.New("insert failed"))
		mock.ExpectRollback()

		repo := NewSessionRepository(mock)
		require.Error(t, repo.ReplaceForUser(context.Background(), userID, session))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_GetWithUser(t *testing.T) {
	userID := ulid.Make()
	session := testSession(userID)
	now := time.Now().Truncate(time.Microsecond)
	hash := "aa:bb"

	t.Run("joins session and owner", func(t *testing.T) {
		mock := newMockPool(t)
		rows := pgxmock.NewRows([]string{
			"id", "user_id", "expires_at", "created_at",
			"id", "email", "email_verified", "hashed_password", "external_id", "created_at", "updated_at",
		}).AddRow(
			session.ID, userID.String(), session.ExpiresAt, session.CreatedAt,
			userID.String(), "alice@example.com", true, &hash, nil, now, now,
		)
		mock.ExpectQuery(`SELECT .+ FROM sessions s`).
			WithArgs(session.ID).
			WillReturnRows(rows)

		repo := NewSessionRepository(mock)
		gotSession, gotUser, err := repo.GetWithUser(context.Background(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.ID, gotSession.ID)
		assert.Equal(t, userID, gotSession.UserID)
		assert.Equal(t, userID, gotUser.ID)
		assert.Equal(t, "alice@example.com", gotUser.Email)
		assert.True(t, gotUser.EmailVerified)
	})

	t.Run("absent maps to ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM sessions s`).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		repo := NewSessionRepository(mock)
		_, _, err := repo.GetWithUser(context.Background(), "missing")
		require.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository_UpdateExpiry(t *testing.T) {
	session := testSession(ulid.Make())
	newExpiry := session.ExpiresAt.Add(24 * time.Hour)

	t.Run("extends", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE sessions SET expires_at`).
			WithArgs(session.ID, newExpiry).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewSessionRepository(mock)
		require.NoError(t, repo.UpdateExpiry(context.Background(), session.ID, newExpiry))
	})

	t.Run("absent maps to ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`UPDATE sessions SET expires_at`).
			WithArgs("missing", newExpiry).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewSessionRepository(mock)
		err := repo.UpdateExpiry(context.Background(), "missing", newExpiry)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository_Delete(t *testing.T) {
	t.Run("deletes", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE id`).
			WithArgs("livesession").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		repo := NewSessionRepository(mock)
		require.NoError(t, repo.Delete(context.Background(), "livesession"))
	})

	t.Run("absent maps to ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM sessions WHERE id`).
			WithArgs("missing").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		repo := NewSessionRepository(mock)
		err := repo.Delete(context.Background(), "missing")
		require.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at`).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	repo := NewSessionRepository(mock)
	n, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
