package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Policies   *PolicyRepository
	Sessions   *SessionRepository
	Audit      *AuditRepository
	Tenants    *TenantRepository
	Principals *PrincipalRepository
	Entities   *EntityRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Policies:   NewPolicyRepository(pool),
		Sessions:   NewSessionRepository(pool),
		Audit:      NewAuditRepository(pool),
		Tenants:    NewTenantRepository(pool),
		Principals: NewPrincipalRepository(pool),
		Entities:   NewEntityRepository(pool),
	}
}
