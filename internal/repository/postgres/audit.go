package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
)

var auditColumns = []string{
	"id",
	"tenant_id",
	"sequence",
	"at",
	"principal_id",
	"session_id",
	"resource_type",
	"resource_id",
	"action",
	"outcome",
	"rule_id",
	"reason",
	"policy_version",
	"severity",
	"request_id",
	"metadata",
}

// AuditRepository implements port.AuditRepository for PostgreSQL. The
// access.audit_log table is append-only; nothing here updates or deletes.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	var metadata []byte
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = encoded
	}

	sql, args, err := r.builder.Insert("access.audit_log").
		Columns(auditColumns...).
		Values(
			entry.ID,
			entry.TenantID,
			int64(entry.Sequence),
			entry.At,
			entry.PrincipalID,
			entry.SessionID,
			entry.ResourceType,
			entry.ResourceID,
			entry.Action,
			string(entry.Outcome),
			entry.RuleID,
			string(entry.Reason),
			entry.PolicyVersion,
			string(entry.Severity),
			entry.RequestID,
			metadata,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit entry sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

// MaxSequence returns the highest sequence recorded for the tenant, zero
// when the tenant has no entries yet.
func (r *AuditRepository) MaxSequence(ctx context.Context, tenantID string) (uint64, error) {
	sql, args, err := r.builder.
		Select("COALESCE(MAX(sequence), 0)").
		From("access.audit_log").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build max sequence sql: %w", err)
	}

	var max int64
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&max); err != nil {
		return 0, fmt.Errorf("query max sequence: %w", err)
	}

	return uint64(max), nil
}

// CountRange counts entries with sequence in [from, to] for gap detection.
func (r *AuditRepository) CountRange(ctx context.Context, tenantID string, from, to uint64) (int, error) {
	sql, args, err := r.builder.
		Select("COUNT(*)").
		From("access.audit_log").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Where(squirrel.GtOrEq{"sequence": int64(from)}).
		Where(squirrel.LtOrEq{"sequence": int64(to)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count range sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("query count range: %w", err)
	}

	return count, nil
}

// ListByTenant returns entries for the tenant in sequence order.
func (r *AuditRepository) ListByTenant(ctx context.Context, tenantID string, filter port.AuditFilter) ([]domain.AuditEntry, error) {
	builder := r.builder.
		Select(auditColumns...).
		From("access.audit_log").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		OrderBy("sequence ASC")

	if filter.PrincipalID != "" {
		builder = builder.Where(squirrel.Eq{"principal_id": filter.PrincipalID})
	}
	if filter.ResourceType != "" {
		builder = builder.Where(squirrel.Eq{"resource_type": filter.ResourceType})
	}
	if !filter.Since.IsZero() {
		builder = builder.Where(squirrel.GtOrEq{"at": filter.Since})
	}
	if !filter.Until.IsZero() {
		builder = builder.Where(squirrel.Lt{"at": filter.Until})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit entries sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}

func scanAuditEntry(row pgx.Row) (*domain.AuditEntry, error) {
	var entry domain.AuditEntry
	var sequence int64
	var outcome, reason, severity string
	var metadata []byte

	if err := row.Scan(
		&entry.ID,
		&entry.TenantID,
		&sequence,
		&entry.At,
		&entry.PrincipalID,
		&entry.SessionID,
		&entry.ResourceType,
		&entry.ResourceID,
		&entry.Action,
		&outcome,
		&entry.RuleID,
		&reason,
		&entry.PolicyVersion,
		&severity,
		&entry.RequestID,
		&metadata,
	); err != nil {
		return nil, err
	}

	entry.Sequence = uint64(sequence)
	entry.Outcome = domain.DecisionOutcome(outcome)
	entry.Reason = domain.ReasonCode(reason)
	entry.Severity = domain.AuditSeverity(severity)

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
	}

	return &entry, nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
