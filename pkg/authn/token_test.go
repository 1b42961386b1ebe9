package authn

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, email string, expiresAt time.Time) string {
	t.Helper()
	claims := &AccountClaims{
		Email: email,
		Name:  "Test Account",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("any-secret"))
	if err != nil {
		t.Fatalf("signing test token failed: %v", err)
	}
	return signed
}

func TestDecodeUnverified(t *testing.T) {
	token := signedToken(t, "account@example.com", time.Now().UTC().Add(time.Hour))

	claims, err := DecodeUnverified(token)
	if err != nil {
		t.Fatalf("DecodeUnverified failed: %v", err)
	}
	if claims.Email != "account@example.com" {
		t.Errorf("Email = %s, want account@example.com", claims.Email)
	}
}

func TestDecodeUnverifiedIgnoresSignature(t *testing.T) {
	// Decoding is advisory; a token signed with any key decodes fine.
	token := signedToken(t, "a@b.c", time.Now().UTC().Add(time.Hour))
	tampered := token[:len(token)-4] + "AAAA"

	if _, err := DecodeUnverified(tampered); err != nil {
		t.Errorf("DecodeUnverified rejected altered signature: %v", err)
	}
}

func TestDecodeUnverifiedRejectsGarbage(t *testing.T) {
	if _, err := DecodeUnverified("not-a-jwt"); err == nil {
		t.Error("DecodeUnverified accepted garbage")
	}
	if _, err := DecodeUnverified(""); err == nil {
		t.Error("DecodeUnverified accepted empty string")
	}
}

func TestEmailFromBearer(t *testing.T) {
	token := signedToken(t, "account@example.com", time.Now().UTC().Add(time.Hour))

	if got := EmailFromBearer("Bearer " + token); got != "account@example.com" {
		t.Errorf("EmailFromBearer = %s", got)
	}
	if got := EmailFromBearer(token); got != "account@example.com" {
		t.Errorf("EmailFromBearer bare token = %s", got)
	}
	if got := EmailFromBearer(""); got != "" {
		t.Errorf("EmailFromBearer empty = %s, want empty", got)
	}
}

func TestIsExpired(t *testing.T) {
	fresh := signedToken(t, "a@b.c", time.Now().UTC().Add(time.Hour))
	stale := signedToken(t, "a@b.c", time.Now().UTC().Add(-time.Hour))

	if IsExpired(fresh) {
		t.Error("fresh token reported expired")
	}
	if !IsExpired(stale) {
		t.Error("stale token reported valid")
	}
	if !IsExpired("garbage") {
		t.Error("garbage token reported valid")
	}
}
