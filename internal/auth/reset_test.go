// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/auth"
	"github.com/driftboard/driftboard/internal/auth/authtest"
)

type resetFixture struct {
	users    *authtest.UserRepo
	sessions *authtest.SessionRepo
	tokens   *authtest.ResetRepo
	mgr      *auth.SessionManager
	hasher   *auth.ScryptHasher
	svc      *auth.PasswordResetService
	user     *auth.User
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()
	users := authtest.NewUserRepo()
	sessions := authtest.NewSessionRepo(users)
	tokens := authtest.NewResetRepo()
	mgr := auth.NewSessionManager(sessions, 0)
	hasher := auth.NewScryptHasher()
	svc := auth.NewPasswordResetService(tokens, users, mgr, hasher)
	return &resetFixture{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		mgr:      mgr,
		hasher:   hasher,
		svc:      svc,
		user:     seedUser(t, users),
	}
}

func TestPasswordResetService_Issue(t *testing.T) {
	f := newResetFixture(t)

	token, err := f.svc.Issue(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Len(t, token, auth.ResetTokenLength)
	assert.Equal(t, 1, f.tokens.Count())
}

func TestPasswordResetService_IssueSupersedes(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	first, err := f.svc.Issue(ctx, f.user.ID)
	require.NoError(t, err)
	second, err := f.svc.Issue(ctx, f.user.ID)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	assert.Equal(t, 1, f.tokens.Count(), "reissue replaces, never accumulates")

	_, err = f.svc.Redeem(ctx, first, "brand new password")
	require.ErrorIs(t, err, auth.ErrTokenInvalid)

	_, err = f.svc.Redeem(ctx, second, "brand new password")
	require.NoError(t, err)
}

func TestPasswordResetService_Redeem(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	attackerSession, err := f.mgr.Create(ctx, f.user.ID, false)
	require.NoError(t, err)

	token, err := f.svc.Issue(ctx, f.user.ID)
	require.NoError(t, err)

	session, err := f.svc.Redeem(ctx, token, "brand new password")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, f.user.ID, session.UserID)

	// Every pre-reset session is dead; only the fresh one lives.
	assert.False(t, f.sessions.Has(attackerSession.ID))
	assert.True(t, f.sessions.Has(session.ID))
	assert.Equal(t, 1, f.sessions.CountForUser(f.user.ID))

	updated, err := f.users.GetByID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.True(t, updated.EmailVerified, "a completed reset proves mailbox ownership")
	require.NotNil(t, updated.HashedPassword)
	valid, err := f.hasher.Verify("brand new password", *updated.HashedPassword)
	require.NoError(t, err)
	assert.True(t, valid)

	// Single use.
	_, err = f.svc.Redeem(ctx, token, "yet another password")
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestPasswordResetService_RedeemUnknownToken(t *testing.T) {
	f := newResetFixture(t)

	_, err := f.svc.Redeem(context.Background(), "nosuchtoken", "brand new password")
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestPasswordResetService_RedeemExpired(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.Now = func() time.Time { return issued }

	token, err := f.svc.Issue(ctx, f.user.ID)
	require.NoError(t, err)

	session, err := f.mgr.Create(ctx, f.user.ID, false)
	require.NoError(t, err)

	f.svc.Now = func() time.Time { return issued.Add(auth.ResetTokenTTL) }

	_, err = f.svc.Redeem(ctx, token, "brand new password")
	require.ErrorIs(t, err, auth.ErrTokenExpired)

	// The expired attempt consumed the token and touched nothing else.
	_, err = f.svc.Redeem(ctx, token, "brand new password")
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
	assert.True(t, f.sessions.Has(session.ID), "failed redeem leaves sessions alone")
}

func TestPasswordResetService_RedeemPasswordLength(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	token, err := f.svc.Issue(ctx, f.user.ID)
	require.NoError(t, err)

	_, err = f.svc.Redeem(ctx, token, "short")
	require.ErrorIs(t, err, auth.ErrPasswordLength)

	// Rejected before the token was touched; a proper retry still works.
	_, err = f.svc.Redeem(ctx, token, "long enough password")
	require.NoError(t, err)
}
