// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

// Package auth implements the authentication core of Driftboard: session
// issuance and sliding renewal, password credential hashing, single-use
// email-verification codes, and single-use password-reset tokens.
//
// # Domain Types
//
// Domain types (User, Session, VerificationCode, PasswordResetToken) are
// persisted through the repository contracts declared in this package. The
// production implementation lives in the postgres subpackage; authtest holds
// in-memory implementations for tests. Repository implementations must honor
// the atomicity notes on each contract: consume operations are single
// fetch-and-delete units and supersede operations are delete-then-insert
// units. Two concurrent redemptions of the same secret must never both
// succeed.
//
// # Services
//
// Service types coordinate domain operations:
//   - SessionManager - create, validate, rotate, and invalidate sessions
//   - VerificationService - issue and redeem email-verification codes
//   - PasswordResetService - issue and redeem password-reset tokens
//   - Service - the facade composed by the transport layer
//
// Expiry is checked lazily at read time; there is no background sweeper.
//
// The 8-character verification code assumes a transport-level rate limiter
// in front of the redeem endpoint in production. The facade's resend
// throttle is a self-throttle, not a substitute for that.
package auth
