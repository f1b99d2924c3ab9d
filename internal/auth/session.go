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

// DefaultSessionLifetime is the validity of a freshly created or renewed session.
const DefaultSessionLifetime = 30 * 24 * time.Hour

// Session proves a browser has authenticated. The ID is the opaque bearer
// value stored in the cookie; it has no internal structure.
type Session struct {
	ID        string
	UserID    ulid.ULID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpiredAt reports whether the session is expired at the given time.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// ReplaceForUser deletes every session the user holds and stores the new
	// one as a single atomic unit, so no session created before the call can
	// survive it.
	ReplaceForUser(ctx context.Context, userID ulid.ULID, session *Session) error

	// GetWithUser retrieves a session joined with its owning user.
	// Returns ErrNotFound (wrapped) if absent.
	GetWithUser(ctx context.Context, id string) (*Session, *User, error)

	// UpdateExpiry extends a session's expiry.
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error

	// Delete removes a session. Returns ErrNotFound (wrapped) if absent.
	Delete(ctx context.Context, id string) error

	// DeleteByUser removes all sessions for a user. Absence is not an error.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteExpired removes expired sessions and returns the count. Offered
	// for operational cleanup; the core never calls it on a request path.
	DeleteExpired(ctx context.Context) (int64, error)
}

// Validation is the outcome of a successful session validation. Fresh is true
// when the expiry was extended and the caller must rewrite the cookie.
type Validation struct {
	Session *Session
	User    *User
	Fresh   bool
}

// SessionManager creates, validates, rotates, and invalidates sessions.
type SessionManager struct {
	sessions SessionRepository
	lifetime time.Duration

	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

// NewSessionManager creates a SessionManager. A non-positive lifetime falls
// back to DefaultSessionLifetime.
func NewSessionManager(sessions SessionRepository, lifetime time.Duration) *SessionManager {
	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}
	return &SessionManager{
		sessions: sessions,
		lifetime: lifetime,
		Now:      time.Now,
	}
}

// Lifetime returns the configured session lifetime.
func (m *SessionManager) Lifetime() time.Duration {
	return m.lifetime
}

// Create generates a session for the user. When revokeExisting is true every
// session the user already holds is deleted in the same atomic unit; reset
// and verification flows use this, login does not.
func (m *SessionManager) Create(ctx context.Context, userID ulid.ULID, revokeExisting bool) (*Session, error) {
	id, err := NewSessionID()
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate session id").
			Wrap(err)
	}

	now := m.Now()
	session := &Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(m.lifetime),
		CreatedAt: now,
	}

	if revokeExisting {
		err = m.sessions.ReplaceForUser(ctx, userID, session)
	} else {
		err = m.sessions.Create(ctx, session)
	}
	if err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return session, nil
}

// Validate looks up a session and its owner. An absent or expired session
// yields a nil Validation with no error; expired sessions are deleted on
// sight. A session in the back half of its lifetime has its expiry extended
// to now+lifetime and is reported Fresh.
func (m *SessionManager) Validate(ctx context.Context, id string) (*Validation, error) {
	if id == "" {
		return nil, nil
	}

	session, user, err := m.sessions.GetWithUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session with user").
			Wrap(err)
	}

	now := m.Now()
	if session.IsExpiredAt(now) {
		if err := m.sessions.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_VALIDATE_FAILED").
				With("operation", "delete expired session").
				Wrap(err)
		}
		return nil, nil
	}

	v := &Validation{Session: session, User: user}

	// Renewal window: the back half of the lifetime. Renewing only then
	// bounds writes to one per lifetime/2 of continuous activity.
	renewAt := session.ExpiresAt.Add(-m.lifetime / 2)
	if !now.Before(renewAt) {
		newExpiry := now.Add(m.lifetime)
		if err := m.sessions.UpdateExpiry(ctx, id, newExpiry); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_VALIDATE_FAILED").
				With("operation", "extend session expiry").
				Wrap(err)
		}
		session.ExpiresAt = newExpiry
		v.Fresh = true
	}

	return v, nil
}

// Invalidate deletes a session. Deleting an absent session is a no-op.
func (m *SessionManager) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.sessions.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_INVALIDATE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// InvalidateAll deletes every session the user holds.
func (m *SessionManager) InvalidateAll(ctx context.Context, userID ulid.ULID) error {
	if err := m.sessions.DeleteByUser(ctx, userID); err != nil {
		return oops.Code("SESSION_INVALIDATE_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}
