// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package auth

import (
	"crypto/rand"
	"encoding/base32"
	"strings"

	"github.com/samber/oops"
)

// Secret sizing. Session IDs and reset tokens travel as bearer credentials
// (cookie and URL respectively) and need high entropy; the verification code
// is short because it is single-use, short-lived, and throttled.
const (
	SessionIDBytes         = 25 // base32-encoded to 40 chars
	VerificationCodeLength = 8
	ResetTokenLength       = 40
)

const (
	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// base32Lower encodes without padding; the session ID must be cookie- and
// URL-safe with no internal structure.
var base32Lower = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// NewSessionID generates an opaque session identifier from SessionIDBytes of
// entropy, encoded to a lowercase base32 alphabet.
func NewSessionID() (string, error) {
	buf := make([]byte, SessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("AUTH_RANDOM_FAILED").
			With("operation", "generate session id").
			Wrap(err)
	}
	return base32Lower.EncodeToString(buf), nil
}

// NewVerificationCode generates a short single-use code from an uppercase
// alphanumeric alphabet.
func NewVerificationCode() (string, error) {
	return randomString(VerificationCodeLength, codeAlphabet)
}

// NewResetToken generates a long URL-safe bearer token for reset links.
func NewResetToken() (string, error) {
	return randomString(ResetTokenLength, tokenAlphabet)
}

// randomString draws n characters uniformly from alphabet using rejection
// sampling, avoiding modulo bias.
func randomString(n int, alphabet string) (string, error) {
	// Largest multiple of len(alphabet) that fits in a byte.
	limit := 256 - 256%len(alphabet)

	var b strings.Builder
	b.Grow(n)

	buf := make([]byte, n)
	for b.Len() < n {
		if _, err := rand.Read(buf); err != nil {
			return "", oops.Code("AUTH_RANDOM_FAILED").
				With("operation", "generate random string").
				Wrap(err)
		}
		for _, c := range buf {
			if int(c) >= limit {
				continue
			}
			b.WriteByte(alphabet[int(c)%len(alphabet)])
			if b.Len() == n {
				break
			}
		}
	}
	return b.String(), nil
}
