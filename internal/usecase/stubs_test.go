package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/repository"
)

// memAuditStore is an in-memory port.AuditRepository. failNext makes the
// next N Append calls fail, exercising the buffering and retry paths.
type memAuditStore struct {
	mu       sync.Mutex
	entries  []domain.AuditEntry
	failNext int
	onAppend func(domain.AuditEntry)
}

func (s *memAuditStore) Append(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return errors.New("audit store unavailable")
	}
	s.entries = append(s.entries, entry)
	if s.onAppend != nil {
		s.onAppend(entry)
	}
	return nil
}

func (s *memAuditStore) MaxSequence(_ context.Context, tenantID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max uint64
	for _, e := range s.entries {
		if e.TenantID == tenantID && e.Sequence > max {
			max = e.Sequence
		}
	}
	return max, nil
}

func (s *memAuditStore) CountRange(_ context.Context, tenantID string, from, to uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.entries {
		if e.TenantID == tenantID && e.Sequence >= from && e.Sequence <= to {
			count++
		}
	}
	return count, nil
}

func (s *memAuditStore) ListByTenant(_ context.Context, tenantID string, _ port.AuditFilter) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *memAuditStore) entriesFor(tenantID string) []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memAuditStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ port.AuditRepository = (*memAuditStore)(nil)

// memSessionRepo is an in-memory port.SessionRepository with the same CAS
// termination semantics as the postgres implementation.
type memSessionRepo struct {
	mu          sync.Mutex
	sessions    map[string]*domain.Session
	touchErr    error
	onTerminate func(string)
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *memSessionRepo) put(s domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := s
	r.sessions[s.ID] = &copied
}

func (r *memSessionRepo) Create(_ context.Context, session domain.Session) error {
	r.put(session)
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *memSessionRepo) Touch(_ context.Context, sessionID string, ip *string) error {
	if r.touchErr != nil {
		return r.touchErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	session.Touch(time.Now().UTC(), ip)
	return nil
}

func (r *memSessionRepo) Terminate(_ context.Context, sessionID, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if r.onTerminate != nil {
		r.onTerminate(sessionID)
	}
	if session.State != domain.SessionActive {
		return false, nil
	}
	now := time.Now().UTC()
	session.State = domain.SessionTerminated
	session.TerminatedAt = &now
	session.TerminateReason = &reason
	return true, nil
}

func (r *memSessionRepo) TerminateAllForPrincipal(_ context.Context, principalID, tenantID, reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onTerminate != nil {
		r.onTerminate(principalID)
	}
	count := 0
	now := time.Now().UTC()
	for _, session := range r.sessions {
		if session.PrincipalID == principalID && session.TenantID == tenantID && session.State == domain.SessionActive {
			session.State = domain.SessionTerminated
			session.TerminatedAt = &now
			session.TerminateReason = &reason
			count++
		}
	}
	return count, nil
}

func (r *memSessionRepo) TerminateAllForTenant(_ context.Context, tenantID, reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onTerminate != nil {
		r.onTerminate(tenantID)
	}
	count := 0
	now := time.Now().UTC()
	for _, session := range r.sessions {
		if session.TenantID == tenantID && session.State == domain.SessionActive {
			session.State = domain.SessionTerminated
			session.TerminatedAt = &now
			session.TerminateReason = &reason
			count++
		}
	}
	return count, nil
}

func (r *memSessionRepo) ListActiveByTenant(_ context.Context, tenantID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, session := range r.sessions {
		if session.TenantID == tenantID && session.State == domain.SessionActive {
			out = append(out, *session)
		}
	}
	return out, nil
}

var _ port.SessionRepository = (*memSessionRepo)(nil)

// memTenantRepo is an in-memory port.TenantRepository.
type memTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*domain.Tenant
}

func newMemTenantRepo(tenants ...domain.Tenant) *memTenantRepo {
	repo := &memTenantRepo{tenants: make(map[string]*domain.Tenant)}
	for _, t := range tenants {
		copied := t
		repo.tenants[t.ID] = &copied
	}
	return repo
}

func (r *memTenantRepo) Create(_ context.Context, tenant domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := tenant
	r.tenants[tenant.ID] = &copied
	return nil
}

func (r *memTenantRepo) GetByID(_ context.Context, tenantID string) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tenant, ok := r.tenants[tenantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *tenant
	return &copied, nil
}

func (r *memTenantRepo) UpdateStatus(_ context.Context, tenantID string, status domain.TenantStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tenant, ok := r.tenants[tenantID]
	if !ok {
		return repository.ErrNotFound
	}
	tenant.Status = status
	return nil
}

var _ port.TenantRepository = (*memTenantRepo)(nil)

// memPolicyRepo is an in-memory port.PolicyRepository.
type memPolicyRepo struct {
	mu      sync.Mutex
	docs    map[string]domain.PolicyDocument
	current map[domain.IndustryVertical]string
}

func newMemPolicyRepo(docs ...domain.PolicyDocument) *memPolicyRepo {
	repo := &memPolicyRepo{
		docs:    make(map[string]domain.PolicyDocument),
		current: make(map[domain.IndustryVertical]string),
	}
	for _, doc := range docs {
		repo.docs[policyKey(doc.Industry, doc.Version)] = doc
		repo.current[doc.Industry] = doc.Version
	}
	return repo
}

func policyKey(industry domain.IndustryVertical, version string) string {
	return fmt.Sprintf("%s@%s", industry, version)
}

func (r *memPolicyRepo) add(doc domain.PolicyDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[policyKey(doc.Industry, doc.Version)] = doc
}

func (r *memPolicyRepo) Get(_ context.Context, industry domain.IndustryVertical, version string) (*domain.PolicyDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[policyKey(industry, version)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &doc, nil
}

func (r *memPolicyRepo) ListCurrent(_ context.Context) ([]domain.PolicyDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PolicyDocument
	for industry, version := range r.current {
		if doc, ok := r.docs[policyKey(industry, version)]; ok {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Industry < out[j].Industry })
	return out, nil
}

func (r *memPolicyRepo) Store(_ context.Context, doc domain.PolicyDocument) error {
	r.add(doc)
	return nil
}

func (r *memPolicyRepo) MarkCurrent(_ context.Context, industry domain.IndustryVertical, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[policyKey(industry, version)]; !ok {
		return repository.ErrNotFound
	}
	r.current[industry] = version
	return nil
}

func (r *memPolicyRepo) ListStatuses(_ context.Context) ([]domain.PolicyStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PolicyStatus
	for _, doc := range r.docs {
		out = append(out, domain.PolicyStatus{
			Industry:    doc.Industry,
			Version:     doc.Version,
			Current:     r.current[doc.Industry] == doc.Version,
			PublishedAt: doc.PublishedAt,
		})
	}
	return out, nil
}

var _ port.PolicyRepository = (*memPolicyRepo)(nil)

// memEntityRepo is an in-memory port.EntityRepository. extraRows simulates
// a broken predicate by returning rows outside the requested tenant.
type memEntityRepo struct {
	mu        sync.Mutex
	records   map[string]*domain.EntityRecord
	extraRows []domain.EntityRecord
	inserted  []domain.EntityRecord
	updated   []domain.EntityRecord
}

func newMemEntityRepo(records ...domain.EntityRecord) *memEntityRepo {
	repo := &memEntityRepo{records: make(map[string]*domain.EntityRecord)}
	for _, record := range records {
		copied := record
		repo.records[entityKey(record.TenantID, record.Type, record.ID)] = &copied
	}
	return repo
}

func entityKey(tenantID, entityType, id string) string {
	return tenantID + "/" + entityType + "/" + id
}

func (r *memEntityRepo) Select(_ context.Context, q port.EntityQuery) ([]domain.EntityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.EntityRecord
	for _, record := range r.records {
		if record.TenantID != q.TenantID {
			continue
		}
		if q.Type != "" && record.Type != q.Type {
			continue
		}
		if !q.IncludeDeleted && record.DeletedAt != nil {
			continue
		}
		out = append(out, *record)
	}
	out = append(out, r.extraRows...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memEntityRepo) Insert(_ context.Context, record domain.EntityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := record
	r.records[entityKey(record.TenantID, record.Type, record.ID)] = &copied
	r.inserted = append(r.inserted, record)
	return nil
}

func (r *memEntityRepo) Update(_ context.Context, record domain.EntityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entityKey(record.TenantID, record.Type, record.ID)
	if _, ok := r.records[key]; !ok {
		return repository.ErrNotFound
	}
	copied := record
	r.records[key] = &copied
	r.updated = append(r.updated, record)
	return nil
}

func (r *memEntityRepo) SoftDelete(_ context.Context, tenantID, entityType, entityID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[entityKey(tenantID, entityType, entityID)]
	if !ok || record.DeletedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	record.DeletedAt = &now
	return true, nil
}

var _ port.EntityRepository = (*memEntityRepo)(nil)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu        sync.Mutex
	decisions []domain.DecisionRecordedEvent
	revoked   []domain.SessionRevokedEvent
	policies  []domain.PolicyPublishedEvent
	lifecycle []domain.TenantLifecycleEvent
	facts     []domain.DomainFactEvent
}

func (p *capturePublisher) PublishDecisionRecorded(_ context.Context, event domain.DecisionRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decisions = append(p.decisions, event)
	return nil
}

func (p *capturePublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, event)
	return nil
}

func (p *capturePublisher) PublishPolicyPublished(_ context.Context, event domain.PolicyPublishedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policies = append(p.policies, event)
	return nil
}

func (p *capturePublisher) PublishTenantLifecycle(_ context.Context, event domain.TenantLifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lifecycle = append(p.lifecycle, event)
	return nil
}

func (p *capturePublisher) PublishDomainFact(_ context.Context, event domain.DomainFactEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.facts = append(p.facts, event)
	return nil
}

var _ port.EventPublisher = (*capturePublisher)(nil)

// memSessionCache is an in-memory port.SessionCache.
type memSessionCache struct {
	mu            sync.Mutex
	revoked       map[string]bool
	tenantCutoffs map[string]time.Time
}

func newMemSessionCache() *memSessionCache {
	return &memSessionCache{
		revoked:       make(map[string]bool),
		tenantCutoffs: make(map[string]time.Time),
	}
}

func (c *memSessionCache) MarkRevoked(_ context.Context, sessionID string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[sessionID] = true
	return nil
}

func (c *memSessionCache) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revoked[sessionID], nil
}

func (c *memSessionCache) MarkTenantRevoked(_ context.Context, tenantID string, at time.Time, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenantCutoffs[tenantID] = at
	return nil
}

func (c *memSessionCache) TenantRevokedSince(_ context.Context, tenantID string) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.tenantCutoffs[tenantID]
	return at, ok, nil
}

var _ port.SessionCache = (*memSessionCache)(nil)

// stubVerifier returns canned claims for any token.
type stubVerifier struct {
	claims *domain.TokenClaims
	err    error
}

func (v stubVerifier) Verify(_ context.Context, _ string) (*domain.TokenClaims, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

var _ port.TokenVerifier = stubVerifier{}

// memPrincipalRepo is an in-memory port.PrincipalRepository.
type memPrincipalRepo struct {
	mu         sync.Mutex
	principals map[string]*domain.Principal
	bindings   map[string][]domain.TenantBinding
}

func newMemPrincipalRepo(principals ...domain.Principal) *memPrincipalRepo {
	repo := &memPrincipalRepo{
		principals: make(map[string]*domain.Principal),
		bindings:   make(map[string][]domain.TenantBinding),
	}
	for _, p := range principals {
		copied := p
		copied.Bindings = nil
		repo.principals[p.ID] = &copied
		repo.bindings[p.ID] = append(repo.bindings[p.ID], p.Bindings...)
	}
	return repo
}

func (r *memPrincipalRepo) GetByID(_ context.Context, principalID string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	principal, ok := r.principals[principalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *principal
	return &copied, nil
}

func (r *memPrincipalRepo) ListBindings(_ context.Context, principalID string) ([]domain.TenantBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TenantBinding(nil), r.bindings[principalID]...), nil
}

func (r *memPrincipalRepo) RevokeBinding(_ context.Context, principalID, tenantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for i := range r.bindings[principalID] {
		if r.bindings[principalID][i].TenantID == tenantID && r.bindings[principalID][i].RevokedAt == nil {
			r.bindings[principalID][i].RevokedAt = &now
			return nil
		}
	}
	return repository.ErrNotFound
}

var _ port.PrincipalRepository = (*memPrincipalRepo)(nil)
