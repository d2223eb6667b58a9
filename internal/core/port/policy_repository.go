package port

import (
	"context"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

// PolicyRepository persists versioned policy documents keyed by
// (industry, version).
type PolicyRepository interface {
	Get(ctx context.Context, industry domain.IndustryVertical, version string) (*domain.PolicyDocument, error)
	ListCurrent(ctx context.Context) ([]domain.PolicyDocument, error)
	Store(ctx context.Context, doc domain.PolicyDocument) error
	MarkCurrent(ctx context.Context, industry domain.IndustryVertical, version string) error
	ListStatuses(ctx context.Context) ([]domain.PolicyStatus, error)
}
