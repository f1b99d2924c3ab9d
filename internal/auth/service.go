// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/driftboard/driftboard/pkg/errutil"
)

// Mailer delivers outbound auth mail. It is an external collaborator; the
// facade treats sends as fire-and-forget on non-critical paths.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// dummyStoredHash is verified against when no account (or no password)
// matches a login attempt, so the failure path costs a KDF derivation either
// way. It is a well-formed salt:key value that no password derives to.
const dummyStoredHash = "00000000000000000000000000000000:" +
	"0000000000000000000000000000000000000000000000000000000000000000" +
	"0000000000000000000000000000000000000000000000000000000000000000"

// LoginResult is the outcome of an operation that establishes a session.
type LoginResult struct {
	User    *User
	Session *Session
}

// Service is the auth facade: the only component the route layer invokes.
// Expected failures are returned as wrapped sentinel errors (see errors.go);
// infrastructure failures propagate so the transport can answer 5xx.
type Service struct {
	users        UserRepository
	sessions     *SessionManager
	verification *VerificationService
	resets       *PasswordResetService
	hasher       PasswordHasher
	mailer       Mailer
	logger       *slog.Logger
}

// ServiceDeps collects the facade's collaborators.
type ServiceDeps struct {
	Users        UserRepository
	Sessions     *SessionManager
	Verification *VerificationService
	Resets       *PasswordResetService
	Hasher       PasswordHasher
	Mailer       Mailer
	Logger       *slog.Logger
}

// NewService creates the auth facade.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:        deps.Users,
		sessions:     deps.Sessions,
		verification: deps.Verification,
		resets:       deps.Resets,
		hasher:       deps.Hasher,
		mailer:       deps.Mailer,
		logger:       logger,
	}
}

// Login authenticates a password credential and creates a session. Prior
// sessions are left alone. Unknown email, wrong password, and external-only
// accounts all fail with the identical ErrInvalidCredentials, and each path
// performs a KDF derivation so timing does not distinguish them either.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))

	targetHash := dummyStoredHash
	accountUsable := false
	if err == nil {
		if pw, ok := user.AuthMethod().(PasswordAuth); ok {
			targetHash = pw.Hash
			accountUsable = true
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	valid, err := s.hasher.Verify(password, targetHash)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !accountUsable || !valid {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	session, err := s.sessions.Create(ctx, user.ID, false)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Session: session}, nil
}

// LoginExternal is the OAuth handoff: the route layer has already exchanged
// the provider code and verified the subject. An account is looked up by
// provider subject and created on first login. emailVerified carries the
// provider's claim about the address.
func (s *Service) LoginExternal(ctx context.Context, providerID, email string, emailVerified bool) (*LoginResult, error) {
	user, err := s.users.GetByExternalID(ctx, providerID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by external id").
				Wrap(err)
		}
		user, err = s.createExternalUser(ctx, providerID, email, emailVerified)
		if err != nil {
			return nil, err
		}
	}

	session, err := s.sessions.Create(ctx, user.ID, false)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Session: session}, nil
}

func (s *Service) createExternalUser(ctx context.Context, providerID, email string, emailVerified bool) (*User, error) {
	user, err := NewUser(email, nil, &providerID)
	if err != nil {
		return nil, err
	}
	user.EmailVerified = emailVerified
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			// The address already belongs to a password account. Refuse
			// rather than silently linking credentials.
			return nil, oops.Code("AUTH_EMAIL_TAKEN").Wrap(ErrEmailTaken)
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create external user").
			Wrap(err)
	}
	return user, nil
}

// Signup registers a password account, mails a verification code, and
// creates a session. The email-taken failure is race-safe: the store's
// unique constraint decides, not a pre-check.
func (s *Service) Signup(ctx context.Context, email, password string) (*LoginResult, error) {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return nil, oops.Code("AUTH_PASSWORD_LENGTH").Wrap(ErrPasswordLength)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(email, &hash, nil)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code("AUTH_EMAIL_TAKEN").Wrap(ErrEmailTaken)
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	code, err := s.verification.Issue(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	// Mail is best effort here: the account exists and the user can resend.
	if err := s.mailer.SendVerificationCode(ctx, user.Email, code); err != nil {
		errutil.LogError(s.logger, "verification mail failed", err)
	}

	session, err := s.sessions.Create(ctx, user.ID, false)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Session: session}, nil
}

// Logout invalidates a session. Logging out an absent or already invalid
// session is a no-op.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Invalidate(ctx, sessionID)
}

// ValidateSession resolves a session identifier to its session and owner.
// Invalid, absent, and expired identifiers all yield (nil, nil).
func (s *Service) ValidateSession(ctx context.Context, sessionID string) (*Validation, error) {
	return s.sessions.Validate(ctx, sessionID)
}

// IssueVerification issues (or re-issues) a verification code for the user
// and mails it. While a prior code is still live the call is refused with a
// throttle error carrying the wait; callers surface it as "wait N seconds".
func (s *Service) IssueVerification(ctx context.Context, userID ulid.ULID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_INVALID").Wrap(ErrNoSession)
		}
		return oops.Code("VERIFY_ISSUE_FAILED").
			With("operation", "get user").
			Wrap(err)
	}
	if user.EmailVerified {
		return oops.Code("VERIFY_ALREADY_DONE").Wrap(ErrAlreadyVerified)
	}

	wait, err := s.verification.ResendAvailableIn(ctx, userID)
	if err != nil {
		return err
	}
	if wait > 0 {
		return Throttled(wait)
	}

	code, err := s.verification.Issue(ctx, userID, user.Email)
	if err != nil {
		return err
	}
	// Unlike signup, delivery is the entire point of an explicit resend, so
	// a send failure surfaces.
	if err := s.mailer.SendVerificationCode(ctx, user.Email, code); err != nil {
		return oops.Code("VERIFY_MAIL_FAILED").
			With("operation", "send verification mail").
			Wrap(err)
	}
	return nil
}

// RedeemVerification redeems a submitted code for the user. On success the
// account is verified, all prior sessions are revoked, and the replacement
// session is returned.
func (s *Service) RedeemVerification(ctx context.Context, userID ulid.ULID, code string) (*LoginResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_INVALID").Wrap(ErrNoSession)
		}
		return nil, oops.Code("VERIFY_REDEEM_FAILED").
			With("operation", "get user").
			Wrap(err)
	}

	session, err := s.verification.Redeem(ctx, user, code)
	if err != nil {
		return nil, err
	}
	user.EmailVerified = true
	return &LoginResult{User: user, Session: session}, nil
}

// RequestPasswordReset issues a reset token and mails the link. The outcome
// is success-shaped whether or not the email exists, to avoid enumeration;
// mail failures are logged, not surfaced.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	token, err := s.resets.Issue(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		errutil.LogError(s.logger, "password reset mail failed", err)
	}
	return nil
}

// ResetPassword redeems a reset token, replacing the password and every
// session the owner held, and returns the fresh session.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (*LoginResult, error) {
	session, err := s.resets.Redeem(ctx, token, newPassword)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, oops.Code("RESET_REDEEM_FAILED").
			With("operation", "get user").
			Wrap(err)
	}
	return &LoginResult{User: user, Session: session}, nil
}
