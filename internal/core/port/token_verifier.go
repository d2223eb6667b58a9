package port

import (
	"context"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

// TokenVerifier validates bearer tokens issued by the authentication front
// door and extracts their claims.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*domain.TokenClaims, error)
}
