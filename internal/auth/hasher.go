// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

// scrypt parameters, tuned so derivation takes tens of milliseconds.
const (
	scryptN       = 16384 // CPU/memory cost
	scryptR       = 16    // block size
	scryptP       = 1     // parallelism
	scryptSaltLen = 16    // salt length in bytes
	scryptKeyLen  = 64    // derived key length in bytes
)

// PasswordHasher provides one-way password hashing and verification.
type PasswordHasher interface {
	// Hash derives a key from the password with a fresh random salt and
	// returns it in saltHex:keyHex form.
	Hash(password string) (string, error)

	// Verify re-derives with the stored salt and compares in constant time.
	// Returns (false, nil) on mismatch or malformed stored values; an error
	// only on KDF failure.
	Verify(password, stored string) (bool, error)
}

// ScryptHasher implements PasswordHasher using scrypt.
//
// Passwords are NFKC-normalized before derivation so visually identical
// unicode input hashes identically on both paths.
type ScryptHasher struct{}

// NewScryptHasher creates a new ScryptHasher.
func NewScryptHasher() *ScryptHasher {
	return &ScryptHasher{}
}

// Hash derives a scrypt key from the password.
func (h *ScryptHasher) Hash(password string) (string, error) {
	salt := make([]byte, scryptSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key, err := scrypt.Key([]byte(norm.NFKC.String(password)), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", oops.Code("AUTH_KDF_FAILED").Wrap(err)
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// Verify checks the password against a stored saltHex:keyHex value.
func (h *ScryptHasher) Verify(password, stored string) (bool, error) {
	saltHex, keyHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false, nil
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return false, nil
	}
	expected, err := hex.DecodeString(keyHex)
	if err != nil || len(expected) == 0 {
		return false, nil
	}

	key, err := scrypt.Key([]byte(norm.NFKC.String(password)), salt, scryptN, scryptR, scryptP, len(expected))
	if err != nil {
		return false, oops.Code("AUTH_KDF_FAILED").Wrap(err)
	}

	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

// Compile-time interface check.
var _ PasswordHasher = (*ScryptHasher)(nil)
