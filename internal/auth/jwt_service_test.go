package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusflow/internal/model"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestTokenService(t *testing.T, expiry time.Duration) (*TokenService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)}
	return NewTokenService("test-secret", expiry, WithClock(clock.Now)), clock
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc, _ := newTestTokenService(t, time.Hour)

	users := []*model.AuthenticatedUser{
		{ID: 1, Username: "user", Role: model.RoleUser},
		{ID: 2, Username: "admin", Role: model.RoleAdmin},
		{ID: 4242, Username: "Mixed.Case", Role: model.RoleUser},
	}

	for _, user := range users {
		t.Run(user.Username, func(t *testing.T) {
			token, err := svc.Issue(user)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			got := svc.Verify(token)
			require.NotNil(t, got)
			assert.Equal(t, user, got)
		})
	}
}

func TestTokenService_IssueRejectsInvalidUser(t *testing.T) {
	svc, _ := newTestTokenService(t, time.Hour)

	_, err := svc.Issue(&model.AuthenticatedUser{ID: 1, Username: "x", Role: "superuser"})
	assert.ErrorIs(t, err, model.ErrInvalidUserRecord)

	_, err = svc.Issue(nil)
	assert.ErrorIs(t, err, model.ErrInvalidUserRecord)
}

func TestTokenService_Expiry(t *testing.T) {
	svc, clock := newTestTokenService(t, time.Hour)
	issuedAt := clock.now

	token, err := svc.Issue(&model.AuthenticatedUser{ID: 1, Username: "user", Role: model.RoleUser})
	require.NoError(t, err)

	clock.now = issuedAt.Add(time.Hour - time.Second)
	assert.NotNil(t, svc.Verify(token), "one second before expiry")

	clock.now = issuedAt.Add(time.Hour)
	assert.Nil(t, svc.Verify(token), "exactly at expiry")

	clock.now = issuedAt.Add(2 * time.Hour)
	assert.Nil(t, svc.Verify(token), "after expiry")
}

func TestTokenService_ClaimsCarryTimestamps(t *testing.T) {
	svc, clock := newTestTokenService(t, 30*time.Minute)

	token, err := svc.Issue(&model.AuthenticatedUser{ID: 7, Username: "user", Role: model.RoleUser})
	require.NoError(t, err)

	claims, err := PeekClaims(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.ID)
	assert.Equal(t, clock.now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, clock.now.Add(30*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestTokenService_VerifyRejects(t *testing.T) {
	svc, clock := newTestTokenService(t, time.Hour)
	user := &model.AuthenticatedUser{ID: 1, Username: "user", Role: model.RoleUser}

	valid, err := svc.Issue(user)
	require.NoError(t, err)

	other := NewTokenService("other-secret", time.Hour, WithClock(clock.Now))
	foreign, err := other.Issue(user)
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	require.Len(t, parts, 3)
	tamperedPayload, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		ID: 1, Username: "user", Role: model.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour))},
	}).SigningString()
	require.NoError(t, err)
	tampered := tamperedPayload + "." + parts[2]

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		ID: 1, Username: "user", Role: model.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		ID: 1, Username: "user", Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour))},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		ID: 1, Username: "user", Role: model.RoleUser,
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: foreign},
		{name: "tampered payload", token: tampered},
		{name: "alg none", token: noneToken},
		{name: "unknown role", token: badRole},
		{name: "missing expiry", token: noExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, svc.Verify(tt.token))
		})
	}
}

func TestNewTokenService_DefaultExpiry(t *testing.T) {
	assert.Equal(t, DefaultTokenExpiry, NewTokenService("s", 0).Expiry())
}
