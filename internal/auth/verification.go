// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// VerificationCodeTTL is the validity window of an emailed code.
const VerificationCodeTTL = 10 * time.Minute

// VerificationCode is a single-use proof of mailbox ownership. At most one
// outstanding code exists per user. Email records the address the code was
// mailed to, which may differ from the account's current address if it
// changed mid-flow.
type VerificationCode struct {
	UserID    ulid.ULID
	Email     string
	Code      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt reports whether the code is expired at the given time.
func (c *VerificationCode) IsExpiredAt(t time.Time) bool {
	return !t.Before(c.ExpiresAt)
}

// VerificationCodeRepository manages verification code persistence.
type VerificationCodeRepository interface {
	// Replace deletes any outstanding code for the user and stores the new
	// one as a single atomic unit.
	Replace(ctx context.Context, code *VerificationCode) error

	// GetByUser retrieves the user's outstanding code without consuming it.
	// Returns ErrNotFound (wrapped) if absent.
	GetByUser(ctx context.Context, userID ulid.ULID) (*VerificationCode, error)

	// ConsumeByUser atomically fetches and deletes the user's outstanding
	// code. Returns ErrNotFound (wrapped) if absent. Of two concurrent calls
	// at most one receives the row.
	ConsumeByUser(ctx context.Context, userID ulid.ULID) (*VerificationCode, error)
}

// VerificationService issues and redeems email-verification codes.
type VerificationService struct {
	codes    VerificationCodeRepository
	users    UserRepository
	sessions *SessionManager

	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

// NewVerificationService creates a VerificationService.
func NewVerificationService(codes VerificationCodeRepository, users UserRepository, sessions *SessionManager) *VerificationService {
	return &VerificationService{
		codes:    codes,
		users:    users,
		sessions: sessions,
		Now:      time.Now,
	}
}

// Issue supersedes any outstanding code for the user and returns a fresh
// plaintext code. The plaintext exists nowhere but the return value and the
// store; it is mailed, never logged. Issue must not be retried blindly: each
// call invalidates the previous code.
func (s *VerificationService) Issue(ctx context.Context, userID ulid.ULID, email string) (string, error) {
	code, err := NewVerificationCode()
	if err != nil {
		return "", oops.Code("VERIFY_ISSUE_FAILED").
			With("operation", "generate code").
			Wrap(err)
	}

	vc := &VerificationCode{
		UserID:    userID,
		Email:     NormalizeEmail(email),
		Code:      code,
		ExpiresAt: s.Now().Add(VerificationCodeTTL),
		CreatedAt: s.Now(),
	}
	if err := s.codes.Replace(ctx, vc); err != nil {
		return "", oops.Code("VERIFY_ISSUE_FAILED").
			With("operation", "persist code").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return code, nil
}

// ResendAvailableIn returns how long the caller must wait before a new code
// may be issued. Zero means issuance is allowed. A code still within its TTL
// blocks reissue so double-submitting "resend" cannot invalidate a code
// mid-delivery.
func (s *VerificationService) ResendAvailableIn(ctx context.Context, userID ulid.ULID) (time.Duration, error) {
	outstanding, err := s.codes.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, oops.Code("VERIFY_RESEND_CHECK_FAILED").
			With("operation", "get outstanding code").
			Wrap(err)
	}
	if wait := outstanding.ExpiresAt.Sub(s.Now()); wait > 0 {
		return wait, nil
	}
	return 0, nil
}

// Redeem consumes the user's outstanding code and, if every check passes,
// marks the account verified, revokes all existing sessions, and returns the
// replacement session. The code is consumed even when a check fails, so a
// value can never be tried twice.
//
// Checks, in order: a code exists, the submitted value matches, the code is
// unexpired, and the code was issued for the account's current email.
func (s *VerificationService) Redeem(ctx context.Context, user *User, submitted string) (*Session, error) {
	stored, err := s.codes.ConsumeByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("VERIFY_CODE_INVALID").Wrap(ErrCodeInvalid)
		}
		return nil, oops.Code("VERIFY_REDEEM_FAILED").
			With("operation", "consume code").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if subtle.ConstantTimeCompare([]byte(stored.Code), []byte(submitted)) != 1 {
		return nil, oops.Code("VERIFY_CODE_INVALID").Wrap(ErrCodeInvalid)
	}
	if stored.IsExpiredAt(s.Now()) {
		return nil, oops.Code("VERIFY_CODE_EXPIRED").Wrap(ErrCodeExpired)
	}
	if stored.Email != NormalizeEmail(user.Email) {
		return nil, oops.Code("VERIFY_EMAIL_MISMATCH").Wrap(ErrEmailMismatch)
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return nil, oops.Code("VERIFY_REDEEM_FAILED").
			With("operation", "mark email verified").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	// Verification is a re-authentication event: any session created before
	// it must not survive it.
	session, err := s.sessions.Create(ctx, user.ID, true)
	if err != nil {
		return nil, oops.Code("VERIFY_REDEEM_FAILED").
			With("operation", "rotate sessions").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return session, nil
}
