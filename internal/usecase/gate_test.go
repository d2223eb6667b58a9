package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

func gateSession(tenantID string) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		ID:             "s-1",
		PrincipalID:    "p-1",
		TenantID:       tenantID,
		Role:           "server",
		State:          domain.SessionActive,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(time.Hour),
	}
}

func allowDecision() domain.Decision {
	return domain.Decision{Outcome: domain.DecisionAllow, Reason: domain.ReasonGranted, RuleID: "g-1", Action: "read", ResourceType: "order"}
}

func readDeletedDecision() domain.Decision {
	return domain.Decision{Outcome: domain.DecisionAllow, Reason: domain.ReasonGranted, RuleID: "g-rd", Action: ActionReadDeleted, ResourceType: "order"}
}

func TestGateReadInjectsSessionTenant(t *testing.T) {
	entities := newMemEntityRepo(
		domain.EntityRecord{TenantID: "t-1", Type: "order", ID: "o-1", CreatedAt: time.Now().UTC()},
		domain.EntityRecord{TenantID: "t-2", Type: "order", ID: "o-2", CreatedAt: time.Now().UTC()},
	)
	gate := NewTenantIsolationGate(entities, nil, zaptest.NewLogger(t))

	records, err := gate.Read(context.Background(), gateSession("t-1"), GateQuery{Type: "order"}, allowDecision())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 1 || records[0].ID != "o-1" {
		t.Fatalf("records = %+v, want only the session tenant's row", records)
	}
}

func TestGateReadExcludesSoftDeletedByDefault(t *testing.T) {
	deletedAt := time.Now().UTC()
	entities := newMemEntityRepo(
		domain.EntityRecord{TenantID: "t-1", Type: "order", ID: "o-live", CreatedAt: deletedAt},
		domain.EntityRecord{TenantID: "t-1", Type: "order", ID: "o-gone", CreatedAt: deletedAt, DeletedAt: &deletedAt},
	)
	gate := NewTenantIsolationGate(entities, nil, zaptest.NewLogger(t))

	records, err := gate.Read(context.Background(), gateSession("t-1"), GateQuery{Type: "order"}, allowDecision())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 1 || records[0].ID != "o-live" {
		t.Fatalf("records = %+v, want the live row only", records)
	}

	elevated, err := gate.Read(context.Background(), gateSession("t-1"), GateQuery{Type: "order", IncludeDeleted: true}, readDeletedDecision())
	if err != nil {
		t.Fatalf("elevated read: %v", err)
	}
	if len(elevated) != 2 {
		t.Fatalf("elevated records = %d, want 2", len(elevated))
	}
}

func TestGateReadIncludeDeletedRequiresElevation(t *testing.T) {
	gate := NewTenantIsolationGate(newMemEntityRepo(), nil, zaptest.NewLogger(t))

	_, err := gate.Read(context.Background(), gateSession("t-1"), GateQuery{Type: "order", IncludeDeleted: true},
		domain.Decision{Outcome: domain.DecisionDeny, Reason: domain.ReasonNoGrant})
	if !errors.Is(err, ErrElevationRequired) {
		t.Fatalf("err = %v, want ErrElevationRequired", err)
	}

	// An allow for the ordinary read action is not enough; the decision
	// must have authorized read_deleted itself.
	_, err = gate.Read(context.Background(), gateSession("t-1"), GateQuery{Type: "order", IncludeDeleted: true}, allowDecision())
	if !errors.Is(err, ErrElevationRequired) {
		t.Fatalf("err = %v, want ErrElevationRequired for a plain read allow", err)
	}

	// Nor does a read_deleted allow for one entity type open another.
	otherType := readDeletedDecision()
	otherType.ResourceType = "invoice"
	_, err = gate.Read(context.Background(), gateSession("t-1"), GateQuery{Type: "order", IncludeDeleted: true}, otherType)
	if !errors.Is(err, ErrElevationRequired) {
		t.Fatalf("err = %v, want ErrElevationRequired for a mismatched entity type", err)
	}
}

func TestGateReadRejectsForeignTenantWithoutCrossTenantGrant(t *testing.T) {
	gate := NewTenantIsolationGate(newMemEntityRepo(), nil, zaptest.NewLogger(t))

	_, err := gate.Read(context.Background(), gateSession("t-1"), GateQuery{Type: "order", TenantOverride: "t-2"}, allowDecision())
	if !errors.Is(err, ErrTenantPredicate) {
		t.Fatalf("err = %v, want ErrTenantPredicate", err)
	}

	crossTenant := domain.Decision{Outcome: domain.DecisionAllow, Reason: domain.ReasonCrossTenant, CrossTenant: true}
	entities := newMemEntityRepo(domain.EntityRecord{TenantID: "t-2", Type: "order", ID: "o-2", CreatedAt: time.Now().UTC()})
	gate = NewTenantIsolationGate(entities, nil, zaptest.NewLogger(t))
	records, err := gate.Read(context.Background(), gateSession("t-1"), GateQuery{Type: "order", TenantOverride: "t-2"}, crossTenant)
	if err != nil {
		t.Fatalf("cross-tenant read: %v", err)
	}
	if len(records) != 1 || records[0].TenantID != "t-2" {
		t.Fatalf("records = %+v, want the granted tenant's row", records)
	}
}

func TestGateReadFiltersPredicateBreaches(t *testing.T) {
	entities := newMemEntityRepo(domain.EntityRecord{TenantID: "t-1", Type: "order", ID: "o-1", CreatedAt: time.Now().UTC()})
	// Simulate a repository bug returning a foreign row.
	entities.extraRows = []domain.EntityRecord{{TenantID: "t-evil", Type: "order", ID: "o-x"}}
	gate := NewTenantIsolationGate(entities, nil, zaptest.NewLogger(t))

	records, err := gate.Read(context.Background(), gateSession("t-1"), GateQuery{Type: "order"}, allowDecision())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, record := range records {
		if record.TenantID != "t-1" {
			t.Fatalf("foreign row leaked through the gate: %+v", record)
		}
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
}

func TestGateReadRequiresLiveSession(t *testing.T) {
	gate := NewTenantIsolationGate(newMemEntityRepo(), nil, zaptest.NewLogger(t))

	if _, err := gate.Read(context.Background(), nil, GateQuery{Type: "order"}, allowDecision()); !errors.Is(err, ErrSessionRequired) {
		t.Fatalf("err = %v, want ErrSessionRequired", err)
	}

	terminated := gateSession("t-1")
	terminated.Terminate(time.Now().UTC(), RevokeReasonLogout)
	if _, err := gate.Read(context.Background(), terminated, GateQuery{Type: "order"}, allowDecision()); !errors.Is(err, ErrSessionRequired) {
		t.Fatalf("err = %v, want ErrSessionRequired", err)
	}
}

func TestGateWriteStampsTenantAndAudits(t *testing.T) {
	entities := newMemEntityRepo()
	auditStore := &memAuditStore{}
	recorder := testRecorder(t, auditStore, nil)
	gate := NewTenantIsolationGate(entities, recorder, zaptest.NewLogger(t))

	err := gate.Write(context.Background(), gateSession("t-1"), GateMutation{
		Record: domain.EntityRecord{Type: "order", ID: "o-1"},
	}, allowDecision())
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if len(entities.inserted) != 1 {
		t.Fatalf("inserts = %d, want 1", len(entities.inserted))
	}
	record := entities.inserted[0]
	if record.TenantID != "t-1" {
		t.Fatalf("tenant id = %q, want the session tenant stamped", record.TenantID)
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", record)
	}

	entries := auditStore.entriesFor("t-1")
	if len(entries) != 1 || entries[0].Action != "entity.write" {
		t.Fatalf("audit entries = %+v, want a single entity.write record", entries)
	}
}

func TestGateWriteUpdatesExistingRecord(t *testing.T) {
	created := time.Now().UTC().Add(-time.Hour)
	entities := newMemEntityRepo(domain.EntityRecord{TenantID: "t-1", Type: "order", ID: "o-1", CreatedAt: created})
	gate := NewTenantIsolationGate(entities, nil, zaptest.NewLogger(t))

	err := gate.Write(context.Background(), gateSession("t-1"), GateMutation{
		Record: domain.EntityRecord{Type: "order", ID: "o-1", CreatedAt: created},
	}, allowDecision())
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(entities.updated) != 1 || len(entities.inserted) != 0 {
		t.Fatalf("updates = %d inserts = %d, want an update only", len(entities.updated), len(entities.inserted))
	}
}

func TestGateWriteRejectsForeignTenantRecord(t *testing.T) {
	gate := NewTenantIsolationGate(newMemEntityRepo(), nil, zaptest.NewLogger(t))

	err := gate.Write(context.Background(), gateSession("t-1"), GateMutation{
		Record: domain.EntityRecord{TenantID: "t-2", Type: "order", ID: "o-1"},
	}, allowDecision())
	if !errors.Is(err, ErrTenantPredicate) {
		t.Fatalf("err = %v, want ErrTenantPredicate", err)
	}
}

func TestGateDeleteSoftDeletesAndAudits(t *testing.T) {
	entities := newMemEntityRepo(domain.EntityRecord{TenantID: "t-1", Type: "order", ID: "o-1", CreatedAt: time.Now().UTC()})
	auditStore := &memAuditStore{}
	recorder := testRecorder(t, auditStore, nil)
	gate := NewTenantIsolationGate(entities, recorder, zaptest.NewLogger(t))

	if err := gate.Delete(context.Background(), gateSession("t-1"), "order", "o-1", allowDecision()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	record := entities.records[entityKey("t-1", "order", "o-1")]
	if record.DeletedAt == nil {
		t.Fatal("expected the row to be soft-deleted, not purged")
	}

	entries := auditStore.entriesFor("t-1")
	if len(entries) != 1 || entries[0].Action != "entity.delete" {
		t.Fatalf("audit entries = %+v, want a single entity.delete record", entries)
	}

	// Deleting again is a no-op and leaves no extra audit record.
	if err := gate.Delete(context.Background(), gateSession("t-1"), "order", "o-1", allowDecision()); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if got := len(auditStore.entriesFor("t-1")); got != 1 {
		t.Fatalf("audit entries after repeat delete = %d, want 1", got)
	}
}

func TestGateDeleteValidatesInput(t *testing.T) {
	gate := NewTenantIsolationGate(newMemEntityRepo(), nil, zaptest.NewLogger(t))

	if err := gate.Delete(context.Background(), nil, "order", "o-1", allowDecision()); !errors.Is(err, ErrSessionRequired) {
		t.Fatalf("err = %v, want ErrSessionRequired", err)
	}
	if err := gate.Delete(context.Background(), gateSession("t-1"), " ", "o-1", allowDecision()); err == nil {
		t.Fatal("expected an error for a blank entity type")
	}
}
