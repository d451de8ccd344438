package auth

import (
	"context"
	"testing"
	"time"

	"order-manager/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTAuthenticator_RoundTrip(t *testing.T) {
	a := NewJWTAuthenticator("s3cret")
	token, err := a.Issue(42, time.Minute)
	require.NoError(t, err)

	id, err := a.Authenticate(context.Background(), token)
	assert.NoError(t, err)
	assert.Equal(t, uint64(42), id)
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	a := NewJWTAuthenticator("s3cret")

	expired := NewJWTAuthenticator("s3cret")
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expiredToken, err := expired.Issue(1, time.Minute)
	require.NoError(t, err)

	otherSecret, err := NewJWTAuthenticator("other").Issue(1, time.Minute)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": 1}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"id":  1,
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		reason string
	}{
		{name: "missing", token: "", reason: "no token provided"},
		{name: "garbage", token: "not-a-jwt", reason: "invalid token"},
		{name: "expired", token: expiredToken, reason: "token expired"},
		{name: "wrong secret", token: otherSecret, reason: "invalid token"},
		{name: "no expiry", token: noExp, reason: "invalid token"},
		{name: "no id claim", token: noID, reason: "invalid token"},
		{name: "unexpected algorithm", token: hs512, reason: "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), tt.token)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("abc"))
	assert.Equal(t, "", BearerToken(""))
}
