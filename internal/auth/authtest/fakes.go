// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

// Package authtest provides in-memory fakes for the auth repositories and the
// mailer. The fakes honor the repository contracts, including atomic replace
// and consume semantics, so service tests exercise the same race behavior the
// real store provides.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftboard/driftboard/internal/auth"
)

// UserRepo is an in-memory auth.UserRepository.
type UserRepo struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.User

	// Err, when set, is returned by every method.
	Err error
}

// NewUserRepo creates an empty UserRepo.
func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[ulid.ULID]*auth.User)}
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	if u.HashedPassword != nil {
		h := *u.HashedPassword
		c.HashedPassword = &h
	}
	if u.ExternalID != nil {
		e := *u.ExternalID
		c.ExternalID = &e
	}
	return &c
}

func (r *UserRepo) Create(_ context.Context, user *auth.User) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return auth.ErrEmailTaken
		}
	}
	r.users[user.ID] = copyUser(user)
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyUser(u), nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *UserRepo) GetByExternalID(_ context.Context, externalID string) (*auth.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			return copyUser(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *UserRepo) UpdatePassword(_ context.Context, id ulid.ULID, hashedPassword string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.HashedPassword = &hashedPassword
	u.UpdatedAt = time.Now()
	return nil
}

func (r *UserRepo) MarkEmailVerified(_ context.Context, id ulid.ULID) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.EmailVerified = true
	u.UpdatedAt = time.Now()
	return nil
}

// SessionRepo is an in-memory auth.SessionRepository.
type SessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*auth.Session
	users    *UserRepo

	// Err, when set, is returned by every method.
	Err error
}

// NewSessionRepo creates a SessionRepo. GetWithUser resolves owners against
// the given UserRepo, mirroring the store's join.
func NewSessionRepo(users *UserRepo) *SessionRepo {
	return &SessionRepo{sessions: make(map[string]*auth.Session), users: users}
}

func (r *SessionRepo) Create(_ context.Context, session *auth.Session) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *session
	r.sessions[session.ID] = &c
	return nil
}

func (r *SessionRepo) ReplaceForUser(_ context.Context, userID ulid.ULID, session *auth.Session) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	c := *session
	r.sessions[session.ID] = &c
	return nil
}

func (r *SessionRepo) GetWithUser(ctx context.Context, id string) (*auth.Session, *auth.User, error) {
	if r.Err != nil {
		return nil, nil, r.Err
	}
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil, nil, auth.ErrNotFound
	}
	c := *s
	r.mu.Unlock()

	user, err := r.users.GetByID(ctx, c.UserID)
	if err != nil {
		return nil, nil, err
	}
	return &c, user, nil
}

func (r *SessionRepo) UpdateExpiry(_ context.Context, id string, expiresAt time.Time) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	s.ExpiresAt = expiresAt
	return nil
}

func (r *SessionRepo) Delete(_ context.Context, id string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return auth.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *SessionRepo) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *SessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	if r.Err != nil {
		return 0, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var n int64
	for id, s := range r.sessions {
		if s.IsExpiredAt(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// CountForUser returns how many live sessions the user holds. Test helper.
func (r *SessionRepo) CountForUser(userID ulid.ULID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

// Has reports whether a session with the given ID exists. Test helper.
func (r *SessionRepo) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

// VerificationRepo is an in-memory auth.VerificationCodeRepository keyed by
// user, enforcing the one-outstanding-code invariant.
type VerificationRepo struct {
	mu    sync.Mutex
	codes map[ulid.ULID]*auth.VerificationCode

	// Err, when set, is returned by every method.
	Err error
}

// NewVerificationRepo creates an empty VerificationRepo.
func NewVerificationRepo() *VerificationRepo {
	return &VerificationRepo{codes: make(map[ulid.ULID]*auth.VerificationCode)}
}

func (r *VerificationRepo) Replace(_ context.Context, code *auth.VerificationCode) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *code
	r.codes[code.UserID] = &c
	return nil
}

func (r *VerificationRepo) GetByUser(_ context.Context, userID ulid.ULID) (*auth.VerificationCode, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cc := *c
	return &cc, nil
}

func (r *VerificationRepo) ConsumeByUser(_ context.Context, userID ulid.ULID) (*auth.VerificationCode, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	delete(r.codes, userID)
	cc := *c
	return &cc, nil
}

// ResetRepo is an in-memory auth.PasswordResetTokenRepository keyed by token
// value.
type ResetRepo struct {
	mu     sync.Mutex
	tokens map[string]*auth.PasswordResetToken

	// Err, when set, is returned by every method.
	Err error
}

// NewResetRepo creates an empty ResetRepo.
func NewResetRepo() *ResetRepo {
	return &ResetRepo{tokens: make(map[string]*auth.PasswordResetToken)}
}

func (r *ResetRepo) Replace(_ context.Context, token *auth.PasswordResetToken) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.UserID == token.UserID {
			delete(r.tokens, id)
		}
	}
	c := *token
	r.tokens[token.ID] = &c
	return nil
}

func (r *ResetRepo) Consume(_ context.Context, token string) (*auth.PasswordResetToken, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok {
		return nil, auth.ErrNotFound
	}
	delete(r.tokens, token)
	c := *t
	return &c, nil
}

// Count returns how many tokens are stored. Test helper.
func (r *ResetRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// SentMail records one delivery made through the Mailer fake.
type SentMail struct {
	Kind   string // "verification" or "reset"
	Email  string
	Secret string // the code or token
}

// Mailer is a recording auth.Mailer.
type Mailer struct {
	mu   sync.Mutex
	sent []SentMail

	// Err, when set, is returned by every send.
	Err error
}

// NewMailer creates an empty Mailer.
func NewMailer() *Mailer {
	return &Mailer{}
}

func (m *Mailer) SendVerificationCode(_ context.Context, email, code string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{Kind: "verification", Email: email, Secret: code})
	return nil
}

func (m *Mailer) SendPasswordReset(_ context.Context, email, token string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{Kind: "reset", Email: email, Secret: token})
	return nil
}

// Sent returns a copy of everything delivered so far.
func (m *Mailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// Last returns the most recent delivery, or a zero SentMail.
func (m *Mailer) Last() SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentMail{}
	}
	return m.sent[len(m.sent)-1]
}

// Compile-time interface checks.
var (
	_ auth.UserRepository               = (*UserRepo)(nil)
	_ auth.SessionRepository            = (*SessionRepo)(nil)
	_ auth.VerificationCodeRepository   = (*VerificationRepo)(nil)
	_ auth.PasswordResetTokenRepository = (*ResetRepo)(nil)
	_ auth.Mailer                       = (*Mailer)(nil)
)
