package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-plaza/internal/types"
)

const (
	tokenCookieKey = "token"

	userIdClaim      = "user-id"
	displayNameClaim = "display-name"
	expClaim         = "exp"
)

type contextKey string

const identityKey contextKey = "identity"

var errNoToken = errors.New("no token")

func WithIdentity(ctx context.Context, identity types.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFrom(ctx context.Context) (types.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(types.Identity)
	return identity, ok
}

func UserId(ctx context.Context) (int64, bool) {
	identity, ok := IdentityFrom(ctx)
	return identity.UserId, ok
}

// NewToken signs an HS256 token carrying the identity. Tokens are issued by
// the account service; this is used by tooling and tests.
func NewToken(signingKey []byte, identity types.Identity, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim:      identity.UserId,
		displayNameClaim: identity.DisplayName,
		expClaim:         time.Now().Add(exp).Unix(),
	})

	return token.SignedString(signingKey)
}

func tokenFromRequest(r *http.Request) (string, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", errors.New("malformed authorization header")
		}
		return token, nil
	}

	cookie, err := r.Cookie(tokenCookieKey)
	if err != nil {
		return "", errNoToken
	}
	return cookie.Value, nil
}

func (s *GoPlazaApp) verifyToken(tokenString string) (types.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return types.Identity{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return types.Identity{}, errors.New("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok || userId <= 0 {
		return types.Identity{}, errors.New("invalid user id claim")
	}

	displayName, _ := claims[displayNameClaim].(string)
	return types.Identity{UserId: int64(userId), DisplayName: displayName}, nil
}

func (s *GoPlazaApp) authenticate(r *http.Request) (types.Identity, error) {
	tokenString, err := tokenFromRequest(r)
	if err != nil {
		return types.Identity{}, err
	}
	return s.verifyToken(tokenString)
}
