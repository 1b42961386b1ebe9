// Package authn provides advisory decoding of bearer credentials.
//
// Decoding here is display/accounting convenience only and NEVER a
// trust boundary: signatures are not verified and no identity-bearing
// decision may rest on the decoded contents. The raw credential is
// passed through to downstream services, which re-derive identity
// authoritatively.
package authn

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// AccountClaims are the advisory claims decoded from a session token.
type AccountClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// DecodeUnverified decodes a JWT payload WITHOUT verifying its
// signature. The result is advisory only.
func DecodeUnverified(tokenString string) (*AccountClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser()
	claims := &AccountClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// EmailFromBearer extracts the account email from an "Authorization"
// header value ("Bearer <token>" or a bare token). Empty string when
// the credential is absent or undecodable.
func EmailFromBearer(header string) string {
	token := strings.TrimSpace(header)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	claims, err := DecodeUnverified(token)
	if err != nil {
		return ""
	}
	return claims.Email
}

// IsExpired reports whether the decoded token carries an exp in the
// past. Undecodable tokens count as expired.
func IsExpired(tokenString string) bool {
	claims, err := DecodeUnverified(tokenString)
	if err != nil || claims.ExpiresAt == nil {
		return true
	}
	return time.Now().UTC().After(claims.ExpiresAt.Time)
}
