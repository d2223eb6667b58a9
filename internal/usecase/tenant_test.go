package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

type tenantFixture struct {
	service   *TenantService
	tenants   *memTenantRepo
	sessions  *memSessionRepo
	publisher *capturePublisher
}

func newTenantFixture(t *testing.T, tenants ...domain.Tenant) *tenantFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	tenantRepo := newMemTenantRepo(tenants...)
	sessionRepo := newMemSessionRepo()
	publisher := &capturePublisher{}
	sessions := NewSessionService(sessionRepo, testRecorder(t, &memAuditStore{}, nil), publisher, SessionPolicy{}, logger)
	service := NewTenantService(tenantRepo, sessions, publisher, logger)

	return &tenantFixture{
		service:   service,
		tenants:   tenantRepo,
		sessions:  sessionRepo,
		publisher: publisher,
	}
}

func TestTenantProvision(t *testing.T) {
	f := newTenantFixture(t)

	tenant, err := f.service.Provision(context.Background(), ProvisionTenantInput{
		Name:     "  Ace Plumbing  ",
		Industry: domain.IndustryHomeServices,
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if tenant.ID == "" {
		t.Fatal("expected a generated tenant id")
	}
	if tenant.Name != "Ace Plumbing" {
		t.Fatalf("name = %q, want trimmed", tenant.Name)
	}
	if tenant.Status != domain.TenantActive {
		t.Fatalf("status = %q, want active", tenant.Status)
	}
	if tenant.Plan != domain.PlanStarter {
		t.Fatalf("plan = %q, want the starter default", tenant.Plan)
	}

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	if len(f.publisher.lifecycle) != 1 || f.publisher.lifecycle[0].Status != domain.TenantActive {
		t.Fatalf("lifecycle events = %+v, want a single active event", f.publisher.lifecycle)
	}
}

func TestTenantProvisionValidation(t *testing.T) {
	f := newTenantFixture(t)

	if _, err := f.service.Provision(context.Background(), ProvisionTenantInput{Industry: domain.IndustryRetail}); err == nil {
		t.Fatal("expected an error for a blank name")
	}
	_, err := f.service.Provision(context.Background(), ProvisionTenantInput{Name: "Acme", Industry: "carnival"})
	if !errors.Is(err, ErrUnknownIndustry) {
		t.Fatalf("err = %v, want ErrUnknownIndustry", err)
	}
}

func TestTenantSuspendRevokesSessions(t *testing.T) {
	f := newTenantFixture(t, domain.Tenant{
		ID: "t-1", Name: "Mario's", Industry: domain.IndustryRestaurant,
		Plan: domain.PlanProfessional, Status: domain.TenantActive,
	})
	now := time.Now().UTC()
	f.sessions.put(domain.Session{
		ID: "s-1", PrincipalID: "p-1", TenantID: "t-1", Role: "server",
		State: domain.SessionActive, CreatedAt: now, LastActivityAt: now, ExpiresAt: now.Add(time.Hour),
	})

	if err := f.service.Suspend(context.Background(), "t-1", "admin-1"); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	tenant, _ := f.tenants.GetByID(context.Background(), "t-1")
	if tenant.Status != domain.TenantSuspended {
		t.Fatalf("status = %q, want suspended", tenant.Status)
	}

	session, _ := f.sessions.GetByID(context.Background(), "s-1")
	if session.State != domain.SessionTerminated {
		t.Fatal("suspension must force-revoke the tenant's sessions")
	}

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	if len(f.publisher.lifecycle) != 1 || f.publisher.lifecycle[0].Status != domain.TenantSuspended {
		t.Fatalf("lifecycle events = %+v, want a suspended event", f.publisher.lifecycle)
	}
}

func TestTenantTransitionNoOpAndNotFound(t *testing.T) {
	f := newTenantFixture(t, domain.Tenant{
		ID: "t-1", Name: "Mario's", Industry: domain.IndustryRestaurant,
		Plan: domain.PlanProfessional, Status: domain.TenantSuspended,
	})

	// Already suspended: nothing changes, nothing is published.
	if err := f.service.Suspend(context.Background(), "t-1", "admin-1"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	f.publisher.mu.Lock()
	published := len(f.publisher.lifecycle)
	f.publisher.mu.Unlock()
	if published != 0 {
		t.Fatalf("lifecycle events = %d, want none for a no-op transition", published)
	}

	if err := f.service.Suspend(context.Background(), "t-ghost", "admin-1"); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("err = %v, want ErrTenantNotFound", err)
	}
}

func TestTenantCancelSoftDeletes(t *testing.T) {
	f := newTenantFixture(t, domain.Tenant{
		ID: "t-1", Name: "Mario's", Industry: domain.IndustryRestaurant,
		Plan: domain.PlanProfessional, Status: domain.TenantActive,
	})

	if err := f.service.Cancel(context.Background(), "t-1", "admin-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	tenant, err := f.tenants.GetByID(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("cancelled tenant row must survive for audit retention: %v", err)
	}
	if tenant.Status != domain.TenantCancelled {
		t.Fatalf("status = %q, want cancelled", tenant.Status)
	}
	if tenant.IsActive() {
		t.Fatal("cancelled tenants must not serve requests")
	}
}
