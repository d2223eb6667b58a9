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

var sessionColumns = []string{
	"id",
	"principal_id",
	"tenant_id",
	"role",
	"state",
	"mfa_level",
	"device_trust",
	"region",
	"ip_first",
	"ip_last",
	"created_at",
	"last_activity_at",
	"expires_at",
	"terminated_at",
	"terminate_reason",
}

// SessionRepository implements port.SessionRepository for PostgreSQL.
type SessionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a session record.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	sql, args, err := r.builder.Insert("access.sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.PrincipalID,
			session.TenantID,
			session.Role,
			string(session.State),
			int(session.MFA),
			int(session.DeviceTrust),
			session.Region,
			session.IPFirst,
			session.IPLast,
			session.CreatedAt,
			session.LastActivityAt,
			session.ExpiresAt,
			session.TerminatedAt,
			session.TerminateReason,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByID returns a session by identifier.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	sql, args, err := r.builder.
		Select(sessionColumns...).
		From("access.sessions").
		Where(squirrel.Eq{"id": sessionID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session by id sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, sql, args...)
	session, err := scanSession(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session by id: %w", err)
	}

	return session, nil
}

// Touch refreshes last activity and observed IP for an active session.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, ip *string) error {
	now := time.Now().UTC()

	builder := r.builder.Update("access.sessions").
		Set("last_activity_at", now).
		Where(squirrel.Eq{"id": sessionID, "state": string(domain.SessionActive)})

	if ip != nil {
		builder = builder.
			Set("ip_last", *ip).
			Set("ip_first", squirrel.Expr("COALESCE(ip_first, ?)", *ip))
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return nil
}

// Terminate flips one session from Active to Terminated. The state predicate
// makes the update a compare-and-set: a session already terminated by a
// racing revocation reports false instead of being terminated twice.
func (r *SessionRepository) Terminate(ctx context.Context, sessionID string, reason string) (bool, error) {
	now := time.Now().UTC()

	sql, args, err := r.builder.Update("access.sessions").
		Set("state", string(domain.SessionTerminated)).
		Set("terminated_at", now).
		Set("terminate_reason", reason).
		Where(squirrel.Eq{"id": sessionID, "state": string(domain.SessionActive)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build terminate session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("terminate session: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// TerminateAllForPrincipal terminates every active session the principal
// holds in the tenant and returns how many changed state.
func (r *SessionRepository) TerminateAllForPrincipal(ctx context.Context, principalID, tenantID, reason string) (int, error) {
	now := time.Now().UTC()

	sql, args, err := r.builder.Update("access.sessions").
		Set("state", string(domain.SessionTerminated)).
		Set("terminated_at", now).
		Set("terminate_reason", reason).
		Where(squirrel.Eq{
			"principal_id": principalID,
			"tenant_id":    tenantID,
			"state":        string(domain.SessionActive),
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build terminate principal sessions sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("terminate principal sessions: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// TerminateAllForTenant terminates every active session in the tenant.
func (r *SessionRepository) TerminateAllForTenant(ctx context.Context, tenantID, reason string) (int, error) {
	now := time.Now().UTC()

	sql, args, err := r.builder.Update("access.sessions").
		Set("state", string(domain.SessionTerminated)).
		Set("terminated_at", now).
		Set("terminate_reason", reason).
		Where(squirrel.Eq{
			"tenant_id": tenantID,
			"state":     string(domain.SessionActive),
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build terminate tenant sessions sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("terminate tenant sessions: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// ListActiveByTenant returns active, unexpired sessions for the tenant.
func (r *SessionRepository) ListActiveByTenant(ctx context.Context, tenantID string) ([]domain.Session, error) {
	now := time.Now().UTC()

	sql, args, err := r.builder.
		Select(sessionColumns...).
		From("access.sessions").
		Where(squirrel.Eq{"tenant_id": tenantID, "state": string(domain.SessionActive)}).
		Where(squirrel.Gt{"expires_at": now}).
		OrderBy("last_activity_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list tenant sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query tenant sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant sessions: %w", err)
	}

	return sessions, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var session domain.Session
	var state string
	var mfa, deviceTrust int

	if err := row.Scan(
		&session.ID,
		&session.PrincipalID,
		&session.TenantID,
		&session.Role,
		&state,
		&mfa,
		&deviceTrust,
		&session.Region,
		&session.IPFirst,
		&session.IPLast,
		&session.CreatedAt,
		&session.LastActivityAt,
		&session.ExpiresAt,
		&session.TerminatedAt,
		&session.TerminateReason,
	); err != nil {
		return nil, err
	}

	session.State = domain.SessionState(state)
	session.MFA = domain.MFALevel(mfa)
	session.DeviceTrust = domain.DeviceTrustLevel(deviceTrust)
	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
