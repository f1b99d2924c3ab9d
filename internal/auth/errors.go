// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package auth

import (
	"errors"
	"time"

	"github.com/samber/oops"
)

// ErrNotFound is returned by repositories when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Expected, user-facing failures. Services wrap these with oops codes at the
// return site; callers discriminate with errors.Is and the messages stay
// deliberately generic where account existence is involved.
var (
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// external-only accounts alike so login failures are indistinguishable.
	ErrInvalidCredentials = errors.New("incorrect email or password")

	// ErrEmailTaken is returned when signup targets an already registered email.
	ErrEmailTaken = errors.New("cannot create account with that email")

	// ErrPasswordLength is returned when a password is outside the accepted
	// length bounds.
	ErrPasswordLength = errors.New("password must be between 8 and 255 characters")

	// ErrNoSession is returned by operations that require an authenticated session.
	ErrNoSession = errors.New("no active session")

	// ErrCodeInvalid is returned when a verification code is absent, consumed,
	// or mismatched.
	ErrCodeInvalid = errors.New("invalid verification code")

	// ErrCodeExpired is returned when a verification code exists but has
	// expired. The code is consumed regardless, so a retry yields ErrCodeInvalid.
	ErrCodeExpired = errors.New("verification code expired")

	// ErrEmailMismatch is returned when a code was issued for an address the
	// account no longer uses. The message matches ErrCodeInvalid so a prober
	// cannot tell the two apart.
	ErrEmailMismatch = errors.New("invalid verification code")

	// ErrAlreadyVerified is returned when issuing a code for a verified account.
	ErrAlreadyVerified = errors.New("email is already verified")

	// ErrResendThrottled is returned while a previously issued code is still
	// within its TTL. Use Throttled to build one and RetryAfter to read the wait.
	ErrResendThrottled = errors.New("a verification code was sent recently")

	// ErrTokenInvalid is returned when a reset token is absent or consumed.
	ErrTokenInvalid = errors.New("invalid password reset link")

	// ErrTokenExpired is returned when a reset token exists but has expired.
	// The token is consumed regardless, so a retry yields ErrTokenInvalid.
	ErrTokenExpired = errors.New("password reset link expired")
)

// Throttled wraps ErrResendThrottled with the wait the caller must observe,
// rounded up to whole seconds.
func Throttled(wait time.Duration) error {
	secs := int64(wait / time.Second)
	if wait%time.Second > 0 {
		secs++
	}
	return oops.Code("VERIFY_RESEND_THROTTLED").
		With("retry_after_seconds", secs).
		Wrap(ErrResendThrottled)
}

// RetryAfter extracts the retry_after_seconds context from a throttle error.
// The second return is false if err is not a throttle error.
func RetryAfter(err error) (time.Duration, bool) {
	if !errors.Is(err, ErrResendThrottled) {
		return 0, false
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if v, ok := oopsErr.Context()["retry_after_seconds"].(int64); ok {
			return time.Duration(v) * time.Second, true
		}
	}
	return 0, true
}
