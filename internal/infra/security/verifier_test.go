package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestTokenVerifierVerify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	provider := StaticKeyProvider{"primary": &key.PublicKey}
	verifier := NewTokenVerifier(provider, "auth.thorbis.dev", "access-engine")

	now := time.Now().UTC()
	raw := signToken(t, key, "primary", bearerClaims{
		PrincipalID: "principal-1",
		SessionID:   "session-1",
		Kind:        "api_partner",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auth.thorbis.dev",
			Audience:  jwt.ClaimStrings{"access-engine"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})

	claims, err := verifier.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	if claims.PrincipalID != "principal-1" {
		t.Errorf("unexpected principal: %s", claims.PrincipalID)
	}
	if claims.SessionID != "session-1" {
		t.Errorf("unexpected session: %s", claims.SessionID)
	}
	if claims.Kind != domain.PrincipalAPIPartner {
		t.Errorf("unexpected kind: %s", claims.Kind)
	}
	if claims.Expired(now) {
		t.Error("token should not be expired")
	}
}

func TestTokenVerifierRejectsExpired(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	verifier := NewTokenVerifier(StaticKeyProvider{"primary": &key.PublicKey}, "", "")

	now := time.Now().UTC()
	raw := signToken(t, key, "primary", bearerClaims{
		PrincipalID: "principal-1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	})

	if _, err := verifier.Verify(context.Background(), raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenVerifierRejectsUnknownKid(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	verifier := NewTokenVerifier(StaticKeyProvider{}, "", "")

	raw := signToken(t, key, "rotated-away", bearerClaims{
		PrincipalID: "principal-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := verifier.Verify(context.Background(), raw); err == nil {
		t.Fatal("expected error for unknown kid")
	}
}

func TestTokenVerifierRejectsWrongIssuer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	verifier := NewTokenVerifier(StaticKeyProvider{"primary": &key.PublicKey}, "auth.thorbis.dev", "")

	raw := signToken(t, key, "primary", bearerClaims{
		PrincipalID: "principal-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := verifier.Verify(context.Background(), raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenVerifierFallsBackToSubject(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	verifier := NewTokenVerifier(StaticKeyProvider{"primary": &key.PublicKey}, "", "")

	raw := signToken(t, key, "primary", bearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "principal-from-sub",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := verifier.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.PrincipalID != "principal-from-sub" {
		t.Errorf("unexpected principal: %s", claims.PrincipalID)
	}
	if claims.Kind != domain.PrincipalUser {
		t.Errorf("expected default user kind, got %s", claims.Kind)
	}
}
