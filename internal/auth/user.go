// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Password length bounds enforced at signup and reset. Complexity beyond
// length is deliberately not policed.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 255
)

// User represents an account. Exactly one active account exists per email
// (case-insensitive). HashedPassword is nil for accounts created through an
// external OAuth provider that never set a password; ExternalID is nil for
// password-only accounts.
type User struct {
	ID             ulid.ULID
	Email          string
	EmailVerified  bool
	HashedPassword *string
	ExternalID     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AuthMethod is the tagged view of how an account authenticates. Login does a
// type switch on it instead of null-checking columns.
type AuthMethod interface {
	isAuthMethod()
}

// PasswordAuth authenticates with a stored password hash.
type PasswordAuth struct {
	Hash string
}

// ExternalAuth authenticates through an external OAuth provider; the account
// has no usable password.
type ExternalAuth struct {
	ProviderID string
}

func (PasswordAuth) isAuthMethod() {}
func (ExternalAuth) isAuthMethod() {}

// AuthMethod returns the account's authentication method. An account holding
// both a password and a provider link reports PasswordAuth: once a password
// exists it is always usable for login.
func (u *User) AuthMethod() AuthMethod {
	if u.HashedPassword != nil && *u.HashedPassword != "" {
		return PasswordAuth{Hash: *u.HashedPassword}
	}
	if u.ExternalID != nil && *u.ExternalID != "" {
		return ExternalAuth{ProviderID: *u.ExternalID}
	}
	// An account row always carries at least one credential; treat a corrupt
	// row as external-only so login fails generically.
	return ExternalAuth{}
}

// NewUser creates a validated User with a fresh ULID.
func NewUser(email string, hashedPassword, externalID *string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	now := time.Now()
	return &User{
		ID:             ulid.Make(),
		Email:          email,
		EmailVerified:  false,
		HashedPassword: hashedPassword,
		ExternalID:     externalID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NormalizeEmail lowercases and trims an address. All lookups and stores go
// through this so email uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserRepository manages account persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrEmailTaken (wrapped) if the email
	// is already registered, enforced by the store's unique constraint rather
	// than a pre-check so concurrent signups cannot both succeed.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email. Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByExternalID retrieves a user by external provider subject.
	// Returns ErrNotFound if absent.
	GetByExternalID(ctx context.Context, externalID string) (*User, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, hashedPassword string) error

	// MarkEmailVerified sets email_verified to true. The flag is monotonic;
	// there is no operation that clears it.
	MarkEmailVerified(ctx context.Context, id ulid.ULID) error
}
