package auth

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims carries the subject (user id) and role of the caller.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HS256 token and returns its identity.
func ParseToken(raw string, secret []byte) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrMissingToken
	}
	if len(secret) == 0 {
		return Identity{}, errors.New("auth: empty secret")
	}
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}); err != nil {
		return Identity{}, errors.Wrapf(ErrInvalidToken, "parse: %v", err)
	}
	if claims.Subject == "" {
		return Identity{}, errors.Wrap(ErrInvalidToken, "missing subject")
	}
	role, ok := ParseRole(claims.Role)
	if !ok {
		return Identity{}, errors.Wrapf(ErrInvalidToken, "unknown role %q", claims.Role)
	}
	return Identity{Subject: claims.Subject, Role: role}, nil
}

// IssueToken signs an HS256 token for subject with role, valid for ttl.
func IssueToken(secret []byte, subject string, role Role, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth: empty secret")
	}
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
