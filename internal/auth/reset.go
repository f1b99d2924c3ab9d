// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ResetTokenTTL is the validity window of a password-reset link.
const ResetTokenTTL = 2 * time.Hour

// PasswordResetToken is a single-use bearer secret embedded in a reset URL.
// The token itself is the primary key; a user has at most the tokens of their
// latest request (issuing supersedes all prior ones).
type PasswordResetToken struct {
	ID        string
	UserID    ulid.ULID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt reports whether the token is expired at the given time.
func (t *PasswordResetToken) IsExpiredAt(at time.Time) bool {
	return !at.Before(t.ExpiresAt)
}

// PasswordResetTokenRepository manages reset token persistence.
type PasswordResetTokenRepository interface {
	// Replace deletes every token the user holds and stores the new one as a
	// single atomic unit.
	Replace(ctx context.Context, token *PasswordResetToken) error

	// Consume atomically fetches and deletes a token by value. Returns
	// ErrNotFound (wrapped) if absent. Of two concurrent calls at most one
	// receives the row.
	Consume(ctx context.Context, token string) (*PasswordResetToken, error)
}

// PasswordResetService issues and redeems password-reset tokens.
type PasswordResetService struct {
	tokens   PasswordResetTokenRepository
	users    UserRepository
	sessions *SessionManager
	hasher   PasswordHasher

	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

// NewPasswordResetService creates a PasswordResetService.
func NewPasswordResetService(
	tokens PasswordResetTokenRepository,
	users UserRepository,
	sessions *SessionManager,
	hasher PasswordHasher,
) *PasswordResetService {
	return &PasswordResetService{
		tokens:   tokens,
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		Now:      time.Now,
	}
}

// Issue supersedes any outstanding tokens for the user and returns a fresh
// plaintext token for embedding in a reset link. Like verification codes,
// Issue must not be retried blindly.
func (s *PasswordResetService) Issue(ctx context.Context, userID ulid.ULID) (string, error) {
	token, err := NewResetToken()
	if err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "generate token").
			Wrap(err)
	}

	rt := &PasswordResetToken{
		ID:        token,
		UserID:    userID,
		ExpiresAt: s.Now().Add(ResetTokenTTL),
		CreatedAt: s.Now(),
	}
	if err := s.tokens.Replace(ctx, rt); err != nil {
		return "", oops.Code("RESET_ISSUE_FAILED").
			With("operation", "persist token").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return token, nil
}

// Redeem consumes the token and, if it was valid, revokes every session the
// owning user holds, stores the new password, marks the account verified (a
// reset completed via a mailed link proves mailbox ownership), and returns a
// fresh session. The token is deleted whether or not the expiry check passes,
// so an expired or reused token can never be retried.
func (s *PasswordResetService) Redeem(ctx context.Context, token, newPassword string) (*Session, error) {
	if len(newPassword) < MinPasswordLength || len(newPassword) > MaxPasswordLength {
		return nil, oops.Code("AUTH_PASSWORD_LENGTH").Wrap(ErrPasswordLength)
	}

	stored, err := s.tokens.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrTokenInvalid)
		}
		return nil, oops.Code("RESET_REDEEM_FAILED").
			With("operation", "consume token").
			Wrap(err)
	}
	if stored.IsExpiredAt(s.Now()) {
		return nil, oops.Code("RESET_TOKEN_EXPIRED").Wrap(ErrTokenExpired)
	}

	// Revoke before the password changes: the whole point of a reset is to
	// kill any session an attacker may hold.
	if err := s.sessions.InvalidateAll(ctx, stored.UserID); err != nil {
		return nil, oops.Code("RESET_REDEEM_FAILED").
			With("operation", "invalidate sessions").
			With("user_id", stored.UserID.String()).
			Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, oops.Code("RESET_REDEEM_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}
	if err := s.users.UpdatePassword(ctx, stored.UserID, hash); err != nil {
		return nil, oops.Code("RESET_REDEEM_FAILED").
			With("operation", "update password").
			With("user_id", stored.UserID.String()).
			Wrap(err)
	}
	if err := s.users.MarkEmailVerified(ctx, stored.UserID); err != nil {
		return nil, oops.Code("RESET_REDEEM_FAILED").
			With("operation", "mark email verified").
			With("user_id", stored.UserID.String()).
			Wrap(err)
	}

	session, err := s.sessions.Create(ctx, stored.UserID, false)
	if err != nil {
		return nil, oops.Code("RESET_REDEEM_FAILED").
			With("operation", "create session").
			With("user_id", stored.UserID.String()).
			Wrap(err)
	}
	return session, nil
}
