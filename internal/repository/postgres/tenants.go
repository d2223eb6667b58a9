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

// TenantRepository implements port.TenantRepository for PostgreSQL.
type TenantRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTenantRepository constructs a TenantRepository.
func NewTenantRepository(exec pgExecutor) *TenantRepository {
	return &TenantRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a tenant record.
func (r *TenantRepository) Create(ctx context.Context, tenant domain.Tenant) error {
	sql, args, err := r.builder.Insert("access.tenants").
		Columns("id", "name", "industry", "plan", "status", "created_at", "cancelled_at").
		Values(
			tenant.ID,
			tenant.Name,
			string(tenant.Industry),
			string(tenant.Plan),
			string(tenant.Status),
			tenant.CreatedAt,
			tenant.CancelledAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert tenant sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}

	return nil
}

// GetByID returns a tenant by identifier.
func (r *TenantRepository) GetByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	sql, args, err := r.builder.
		Select("id", "name", "industry", "plan", "status", "created_at", "cancelled_at").
		From("access.tenants").
		Where(squirrel.Eq{"id": tenantID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select tenant sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, sql, args...)

	var tenant domain.Tenant
	var industry, plan, status string
	if err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&industry,
		&plan,
		&status,
		&tenant.CreatedAt,
		&tenant.CancelledAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}

	tenant.Industry = domain.IndustryVertical(industry)
	tenant.Plan = domain.PlanTier(plan)
	tenant.Status = domain.TenantStatus(status)
	return &tenant, nil
}

// UpdateStatus transitions the tenant's lifecycle state. Cancellation
// stamps cancelled_at so retention windows can be computed later.
func (r *TenantRepository) UpdateStatus(ctx context.Context, tenantID string, status domain.TenantStatus) error {
	builder := r.builder.Update("access.tenants").
		Set("status", string(status)).
		Where(squirrel.Eq{"id": tenantID})

	if status == domain.TenantCancelled {
		builder = builder.Set("cancelled_at", time.Now().UTC())
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update tenant status sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.TenantRepository = (*TenantRepository)(nil)
