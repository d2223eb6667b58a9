package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/repository"
)

// PolicyRepository implements port.PolicyRepository for PostgreSQL. Policy
// documents are stored as JSONB; the engine compiles them into snapshots at
// load time, so the database never needs to understand role structure.
type PolicyRepository struct {
	exec    pgTxExecutor
	builder squirrel.StatementBuilderType
}

// NewPolicyRepository constructs a PolicyRepository.
func NewPolicyRepository(exec pgTxExecutor) *PolicyRepository {
	return &PolicyRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

type policyDocumentPayload struct {
	Roles         []domain.RoleDef         `json:"roles"`
	ResourceTypes []domain.ResourceTypeDef `json:"resource_types"`
}

// Get returns one policy document by industry and version.
func (r *PolicyRepository) Get(ctx context.Context, industry domain.IndustryVertical, version string) (*domain.PolicyDocument, error) {
	sql, args, err := r.builder.
		Select("industry", "version", "document", "published_at").
		From("access.policies").
		Where(squirrel.Eq{"industry": string(industry), "version": version}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select policy sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, sql, args...)
	doc, err := scanPolicy(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan policy: %w", err)
	}

	return doc, nil
}

// ListCurrent returns the current policy document for every industry.
func (r *PolicyRepository) ListCurrent(ctx context.Context) ([]domain.PolicyDocument, error) {
	sql, args, err := r.builder.
		Select("industry", "version", "document", "published_at").
		From("access.policies").
		Where(squirrel.Eq{"is_current": true}).
		OrderBy("industry").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list current policies sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query current policies: %w", err)
	}
	defer rows.Close()

	var docs []domain.PolicyDocument
	for rows.Next() {
		doc, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}

	return docs, nil
}

// Store inserts a policy document. Versions are immutable once written.
func (r *PolicyRepository) Store(ctx context.Context, doc domain.PolicyDocument) error {
	payload, err := json.Marshal(policyDocumentPayload{
		Roles:         doc.Roles,
		ResourceTypes: doc.ResourceTypes,
	})
	if err != nil {
		return fmt.Errorf("marshal policy document: %w", err)
	}

	sql, args, err := r.builder.Insert("access.policies").
		Columns("industry", "version", "document", "is_current", "published_at").
		Values(string(doc.Industry), doc.Version, payload, false, doc.PublishedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert policy sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}

	return nil
}

// MarkCurrent flips the current pointer for an industry to the given
// version inside one transaction.
func (r *PolicyRepository) MarkCurrent(ctx context.Context, industry domain.IndustryVertical, version string) error {
	tx, err := r.exec.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin mark current: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	clearSQL, clearArgs, err := r.builder.Update("access.policies").
		Set("is_current", false).
		Where(squirrel.Eq{"industry": string(industry), "is_current": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear current sql: %w", err)
	}
	if _, err := tx.Exec(ctx, clearSQL, clearArgs...); err != nil {
		return fmt.Errorf("clear current policy: %w", err)
	}

	setSQL, setArgs, err := r.builder.Update("access.policies").
		Set("is_current", true).
		Where(squirrel.Eq{"industry": string(industry), "version": version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set current sql: %w", err)
	}

	tag, err := tx.Exec(ctx, setSQL, setArgs...)
	if err != nil {
		return fmt.Errorf("set current policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit mark current: %w", err)
	}

	return nil
}

// ListStatuses returns publication status for every stored version.
func (r *PolicyRepository) ListStatuses(ctx context.Context) ([]domain.PolicyStatus, error) {
	sql, args, err := r.builder.
		Select("industry", "version", "is_current", "published_at").
		From("access.policies").
		OrderBy("industry", "published_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list policy statuses sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query policy statuses: %w", err)
	}
	defer rows.Close()

	var statuses []domain.PolicyStatus
	for rows.Next() {
		var status domain.PolicyStatus
		var industry string
		if err := rows.Scan(&industry, &status.Version, &status.Current, &status.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan policy status: %w", err)
		}
		status.Industry = domain.IndustryVertical(industry)
		statuses = append(statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policy statuses: %w", err)
	}

	return statuses, nil
}

func scanPolicy(row pgx.Row) (*domain.PolicyDocument, error) {
	var doc domain.PolicyDocument
	var industry string
	var payload []byte

	if err := row.Scan(&industry, &doc.Version, &payload, &doc.PublishedAt); err != nil {
		return nil, err
	}

	var decoded policyDocumentPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode policy document: %w", err)
	}

	doc.Industry = domain.IndustryVertical(industry)
	doc.Roles = decoded.Roles
	doc.ResourceTypes = decoded.ResourceTypes
	return &doc, nil
}

var _ port.PolicyRepository = (*PolicyRepository)(nil)
