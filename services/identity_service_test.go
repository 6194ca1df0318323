package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/opti/models"
	"github.com/akinalp/opti/pkg"
	"github.com/akinalp/opti/pkg/logger"
)

func TestResolveValidToken(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, "a1")

	token, err := env.identity.IssueToken(a)
	require.NoError(t, err)

	got, err := env.identity.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	claims, err := env.identity.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, a, claims.UserID())
	assert.Equal(t, "opti", claims.Issuer)
}

func TestResolveRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a1")

	valid, err := env.identity.IssueToken(a)
	require.NoError(t, err)

	other := NewIdentityService(env.users, "other-secret", time.Hour, time.Second, logger.Nop())
	defer other.Close()
	foreign, err := other.IssueToken(a)
	require.NoError(t, err)

	stale := NewIdentityService(env.users, testSecret, -time.Minute, time.Second, logger.Nop())
	defer stale.Close()
	expired, err := stale.IssueToken(a)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &models.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: a},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	unknownUser, err := env.identity.IssueToken(uuid.NewString())
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"tampered":     valid + "x",
		"wrong secret": foreign,
		"expired":      expired,
		"alg none":     unsigned,
		"unknown user": unknownUser,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.identity.Resolve(ctx, token)
			assert.ErrorIs(t, err, pkg.ErrUnauthorized)
		})
	}
}

func TestResolveRejectsBlockedUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a1")

	token, err := env.identity.IssueToken(a)
	require.NoError(t, err)

	require.NoError(t, env.identity.SetBlocked(ctx, a, true))
	_, err = env.identity.Resolve(ctx, token)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	require.NoError(t, env.identity.SetBlocked(ctx, a, false))
	_, err = env.identity.Resolve(ctx, token)
	assert.NoError(t, err)
}

func TestIsValidCounterpartyIsCached(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.user(t, "b1")

	ok, err := env.identity.IsValidCounterparty(ctx, b)
	require.NoError(t, err)
	assert.True(t, ok)

	// Repository üzerinden doğrudan engelle: cache hâlâ eski sonucu verir
	require.NoError(t, env.users.SetBlocked(ctx, b, true))
	ok, err = env.identity.IsValidCounterparty(ctx, b)
	require.NoError(t, err)
	assert.True(t, ok)

	env.identity.Invalidate(b)
	ok, err = env.identity.IsValidCounterparty(ctx, b)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsValidCounterpartyUnknownAndMalformed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, id := range []string{uuid.NewString(), "", "not-a-uuid"} {
		ok, err := env.identity.IsValidCounterparty(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok, id)
	}
}

func TestCreateUserValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.identity.CreateUser(context.Background(), "   ")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = env.identity.IssueToken("nope")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	assert.ErrorIs(t, env.identity.SetBlocked(context.Background(), uuid.NewString(), true), pkg.ErrNotFound)
}

func TestIdentityServiceWithZeroCacheTTL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := env.user(t, "b1")

	var identity IdentityService
	require.NotPanics(t, func() {
		identity = NewIdentityService(env.users, "test-secret", time.Hour, 0, logger.Nop())
	})
	defer identity.Close()

	ok, err := identity.IsValidCounterparty(ctx, b)
	require.NoError(t, err)
	assert.True(t, ok)

	// Cache yok: engelleme bir sonraki kontrolde görünür
	require.NoError(t, env.users.SetBlocked(ctx, b, true))
	ok, err = identity.IsValidCounterparty(ctx, b)
	require.NoError(t, err)
	assert.False(t, ok)
}
