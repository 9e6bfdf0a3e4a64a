// Package auth resolves bearer credentials into member identities.
package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"shelterchat/backend/internal/apperr"

	jwt "github.com/golang-jwt/jwt/v5"
)

// AccessTokenCookie is the cookie consulted when no Authorization header is sent.
const AccessTokenCookie = "access_token"

// Identity is the authenticated principal of a request or connection.
type Identity struct {
	MemberID int64
	Role     string
}

// Resolver turns a raw credential into an Identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// Claims are the claims issued by the platform's auth service. The subject
// carries the member id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var errUnsupportedAlg = errors.New("unsupported signing method")

// JWTResolver validates HMAC-signed access tokens.
type JWTResolver struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTResolver(secret, issuer string) *JWTResolver {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTResolver{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

func (r *JWTResolver) Resolve(_ context.Context, raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, apperr.ErrTokenMissing
	}

	claims := &Claims{}
	_, err := r.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnsupportedAlg
		}
		return r.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, apperr.Wrap(apperr.ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable), errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return Identity{}, apperr.Wrap(apperr.ErrTokenUnsupported, err)
	default:
		return Identity{}, apperr.Wrap(apperr.ErrTokenMalformed, err)
	}

	memberID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || memberID <= 0 {
		return Identity{}, apperr.ErrTokenMalformed
	}
	return Identity{MemberID: memberID, Role: claims.Role}, nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", apperr.ErrTokenMissing
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", apperr.ErrTokenMalformed
	}
	return strings.TrimSpace(token), nil
}
