package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/repository"
)

// PrincipalRepository implements port.PrincipalRepository for PostgreSQL.
type PrincipalRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPrincipalRepository constructs a PrincipalRepository.
func NewPrincipalRepository(exec pgExecutor) *PrincipalRepository {
	return &PrincipalRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByID returns a principal together with its tenant bindings.
func (r *PrincipalRepository) GetByID(ctx context.Context, principalID string) (*domain.Principal, error) {
	sql, args, err := r.builder.
		Select("id", "kind").
		From("access.principals").
		Where(squirrel.Eq{"id": principalID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select principal sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, sql, args...)

	var principal domain.Principal
	var kind string
	if err := row.Scan(&principal.ID, &kind); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}
	principal.Kind = domain.PrincipalKind(kind)

	bindings, err := r.ListBindings(ctx, principalID)
	if err != nil {
		return nil, err
	}
	principal.Bindings = bindings

	return &principal, nil
}

// ListBindings returns every tenant binding for the principal, revoked ones
// included; callers filter on RevokedAt.
func (r *PrincipalRepository) ListBindings(ctx context.Context, principalID string) ([]domain.TenantBinding, error) {
	sql, args, err := r.builder.
		Select("tenant_id", "base_role", "industry_role", "granted_at", "revoked_at").
		From("access.tenant_bindings").
		Where(squirrel.Eq{"principal_id": principalID}).
		OrderBy("granted_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list bindings sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query bindings: %w", err)
	}
	defer rows.Close()

	var bindings []domain.TenantBinding
	for rows.Next() {
		var binding domain.TenantBinding
		if err := rows.Scan(
			&binding.TenantID,
			&binding.BaseRole,
			&binding.IndustryRole,
			&binding.GrantedAt,
			&binding.RevokedAt,
		); err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		bindings = append(bindings, binding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bindings: %w", err)
	}

	return bindings, nil
}

// RevokeBinding stamps the binding revoked so future resolutions drop it.
func (r *PrincipalRepository) RevokeBinding(ctx context.Context, principalID, tenantID string) error {
	sql, args, err := r.builder.Update("access.tenant_bindings").
		Set("revoked_at", time.Now().UTC()).
		Where(squirrel.Eq{
			"principal_id": principalID,
			"tenant_id":    tenantID,
			"revoked_at":   nil,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke binding sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("revoke binding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.PrincipalRepository = (*PrincipalRepository)(nil)
