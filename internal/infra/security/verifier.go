package security

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
)

// ErrTokenInvalid indicates a token failed signature or claim validation.
var ErrTokenInvalid = errors.New("token invalid")

// ErrKeyIDMissing indicates the token header carries no kid.
var ErrKeyIDMissing = errors.New("missing key identifier")

// bearerClaims are the raw claims the authentication front door encodes.
type bearerClaims struct {
	PrincipalID string `json:"pid"`
	SessionID   string `json:"sid,omitempty"`
	Kind        string `json:"kind,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates RS256 bearer tokens against the key provider.
type TokenVerifier struct {
	provider KeyProvider
	issuer   string
	audience string
}

// NewTokenVerifier constructs a verifier. Issuer and audience checks are
// skipped when the corresponding value is empty.
func NewTokenVerifier(provider KeyProvider, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{provider: provider, issuer: issuer, audience: audience}
}

// Verify parses and validates a bearer token, returning its claims.
func (v *TokenVerifier) Verify(_ context.Context, raw string) (*domain.TokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	claims := &bearerClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyFunc, options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.PrincipalID == "" {
		claims.PrincipalID = claims.Subject
	}
	if claims.PrincipalID == "" {
		return nil, fmt.Errorf("%w: missing principal", ErrTokenInvalid)
	}

	kind := domain.PrincipalUser
	if claims.Kind == string(domain.PrincipalAPIPartner) {
		kind = domain.PrincipalAPIPartner
	}

	resolved := &domain.TokenClaims{
		PrincipalID: claims.PrincipalID,
		SessionID:   claims.SessionID,
		Kind:        kind,
	}
	if claims.IssuedAt != nil {
		resolved.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		resolved.ExpiresAt = claims.ExpiresAt.Time
	}

	return resolved, nil
}

func (v *TokenVerifier) keyFunc(token *jwt.Token) (any, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok || strings.TrimSpace(kid) == "" {
		return nil, ErrKeyIDMissing
	}
	return v.provider.GetVerificationKey(kid)
}

var _ port.TokenVerifier = (*TokenVerifier)(nil)
