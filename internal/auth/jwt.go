// Package auth verifies the bearer tokens issued by the user service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"order-manager/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

type Authenticator interface {
	// Authenticate returns the user id carried by token.
	Authenticate(ctx context.Context, token string) (uint64, error)
}

var _ Authenticator = (*JWTAuthenticator)(nil)

// JWTAuthenticator validates HS256 tokens whose "id" claim holds the user id.
type JWTAuthenticator struct {
	secret []byte
	now    func() time.Time
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), now: time.Now}
}

func unauthorized(reason string) error {
	return fmt.Errorf("%w: %s", domain.ErrUnauthorized, reason)
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (uint64, error) {
	if token == "" {
		return 0, unauthorized("no token provided")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, unauthorized("token expired")
		}
		return 0, unauthorized("invalid token")
	}

	id, ok := claims["id"].(float64)
	if !ok || id <= 0 || id != math.Trunc(id) {
		return 0, unauthorized("invalid token")
	}
	return uint64(id), nil
}

// Issue signs a token for userID valid for ttl.
func (a *JWTAuthenticator) Issue(userID uint64, ttl time.Duration) (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString(a.secret)
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
