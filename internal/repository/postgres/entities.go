package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/repository"
)

var entityColumns = []string{
	"tenant_id",
	"entity_type",
	"id",
	"owner_id",
	"sensitivity",
	"attributes",
	"created_at",
	"updated_at",
	"deleted_at",
}

// EntityRepository implements port.EntityRepository for PostgreSQL. Every
// statement carries the tenant predicate the query supplies; there is no
// code path that touches rows across tenants.
type EntityRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewEntityRepository constructs an EntityRepository.
func NewEntityRepository(exec pgExecutor) *EntityRepository {
	return &EntityRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Select returns entity rows matching the query. Soft-deleted rows are
// excluded unless IncludeDeleted is set.
func (r *EntityRepository) Select(ctx context.Context, q port.EntityQuery) ([]domain.EntityRecord, error) {
	if q.TenantID == "" {
		return nil, fmt.Errorf("entity query missing tenant id")
	}

	builder := r.builder.
		Select(entityColumns...).
		From("access.entities").
		Where(squirrel.Eq{"tenant_id": q.TenantID}).
		OrderBy("created_at ASC")

	if q.Type != "" {
		builder = builder.Where(squirrel.Eq{"entity_type": q.Type})
	}
	if len(q.IDs) > 0 {
		builder = builder.Where(squirrel.Eq{"id": q.IDs})
	}
	if q.OwnerID != nil {
		builder = builder.Where(squirrel.Eq{"owner_id": *q.OwnerID})
	}
	if !q.IncludeDeleted {
		builder = builder.Where("deleted_at IS NULL")
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		builder = builder.Offset(uint64(q.Offset))
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select entities sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var records []domain.EntityRecord
	for rows.Next() {
		record, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}

	return records, nil
}

// Insert persists a new entity row.
func (r *EntityRepository) Insert(ctx context.Context, record domain.EntityRecord) error {
	attributes, err := marshalAttributes(record.Attributes)
	if err != nil {
		return err
	}

	sql, args, err := r.builder.Insert("access.entities").
		Columns(entityColumns...).
		Values(
			record.TenantID,
			record.Type,
			record.ID,
			record.OwnerID,
			int(record.Sensitivity),
			attributes,
			record.CreatedAt,
			record.UpdatedAt,
			record.DeletedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert entity sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}

	return nil
}

// Update rewrites an existing entity row in place, tenant predicate applied.
func (r *EntityRepository) Update(ctx context.Context, record domain.EntityRecord) error {
	attributes, err := marshalAttributes(record.Attributes)
	if err != nil {
		return err
	}

	sql, args, err := r.builder.Update("access.entities").
		Set("owner_id", record.OwnerID).
		Set("sensitivity", int(record.Sensitivity)).
		Set("attributes", attributes).
		Set("updated_at", record.UpdatedAt).
		Where(squirrel.Eq{
			"tenant_id":   record.TenantID,
			"entity_type": record.Type,
			"id":          record.ID,
		}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update entity sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SoftDelete stamps deleted_at. Returns false when the row does not exist
// in the tenant or is already deleted.
func (r *EntityRepository) SoftDelete(ctx context.Context, tenantID, entityType, entityID string) (bool, error) {
	sql, args, err := r.builder.Update("access.entities").
		Set("deleted_at", time.Now().UTC()).
		Where(squirrel.Eq{
			"tenant_id":   tenantID,
			"entity_type": entityType,
			"id":          entityID,
		}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build soft delete entity sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("soft delete entity: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func marshalAttributes(attributes map[string]any) ([]byte, error) {
	if len(attributes) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal entity attributes: %w", err)
	}
	return encoded, nil
}

func scanEntity(row pgx.Row) (*domain.EntityRecord, error) {
	var record domain.EntityRecord
	var sensitivity int
	var attributes []byte

	if err := row.Scan(
		&record.TenantID,
		&record.Type,
		&record.ID,
		&record.OwnerID,
		&sensitivity,
		&attributes,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.DeletedAt,
	); err != nil {
		return nil, err
	}

	record.Sensitivity = domain.SensitivityLevel(sensitivity)
	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &record.Attributes); err != nil {
			return nil, fmt.Errorf("decode entity attributes: %w", err)
		}
	}

	return &record, nil
}

var _ port.EntityRepository = (*EntityRepository)(nil)
