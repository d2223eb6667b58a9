package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
)

func testRecorder(t *testing.T, store *memAuditStore, publisher *capturePublisher) *AuditRecorder {
	t.Helper()
	// Avoid handing NewAuditRecorder a non-nil interface wrapping a nil
	// *capturePublisher; its publisher == nil check would not catch that.
	var pub port.EventPublisher
	if publisher != nil {
		pub = publisher
	}
	recorder := NewAuditRecorder(store, pub, AuditRecorderConfig{
		BufferSize:   16,
		RetryInitial: 5 * time.Millisecond,
		RetryMax:     50 * time.Millisecond,
		SyncTimeout:  2 * time.Second,
	}, zaptest.NewLogger(t))
	t.Cleanup(recorder.Close)
	return recorder
}

func TestRecordAssignsMonotonicSequencesPerTenant(t *testing.T) {
	store := &memAuditStore{}
	recorder := testRecorder(t, store, nil)

	for i := 0; i < 3; i++ {
		entry := domain.AuditEntry{TenantID: "t-1", Action: "order.read", Outcome: domain.DecisionAllow}
		if err := recorder.Record(context.Background(), entry); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := recorder.Record(context.Background(), domain.AuditEntry{TenantID: "t-2", Action: "order.read", Outcome: domain.DecisionAllow}); err != nil {
		t.Fatalf("record: %v", err)
	}

	first := store.entriesFor("t-1")
	if len(first) != 3 {
		t.Fatalf("t-1 entries = %d, want 3", len(first))
	}
	for i, entry := range first {
		if entry.Sequence != uint64(i+1) {
			t.Fatalf("t-1 sequence[%d] = %d, want %d", i, entry.Sequence, i+1)
		}
		if entry.ID == "" || entry.At.IsZero() {
			t.Fatalf("entry defaults not applied: %+v", entry)
		}
		if entry.Severity != domain.SeverityInfo {
			t.Fatalf("severity = %q, want info", entry.Severity)
		}
	}

	second := store.entriesFor("t-2")
	if len(second) != 1 || second[0].Sequence != 1 {
		t.Fatalf("t-2 entries = %+v, want a single sequence-1 entry", second)
	}
}

func TestRecordSeedsSequenceFromStore(t *testing.T) {
	store := &memAuditStore{entries: []domain.AuditEntry{
		{TenantID: "t-1", Sequence: 7, Action: "order.read"},
	}}
	recorder := testRecorder(t, store, nil)

	if err := recorder.Record(context.Background(), domain.AuditEntry{TenantID: "t-1", Action: "order.write"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries := store.entriesFor("t-1")
	if got := entries[len(entries)-1].Sequence; got != 8 {
		t.Fatalf("sequence = %d, want 8 (seeded past the stored maximum)", got)
	}
}

func TestRecordRequiresTenantID(t *testing.T) {
	recorder := testRecorder(t, &memAuditStore{}, nil)
	if err := recorder.Record(context.Background(), domain.AuditEntry{Action: "order.read"}); err == nil {
		t.Fatal("expected an error for a missing tenant id")
	}
}

func TestRecordBuffersOnStoreFailureAndDrains(t *testing.T) {
	appended := make(chan domain.AuditEntry, 1)
	store := &memAuditStore{failNext: 1, onAppend: func(entry domain.AuditEntry) {
		select {
		case appended <- entry:
		default:
		}
	}}
	recorder := testRecorder(t, store, nil)

	// The immediate append fails; Record buffers and returns without error.
	if err := recorder.Record(context.Background(), domain.AuditEntry{TenantID: "t-1", Action: "order.read"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	select {
	case entry := <-appended:
		if entry.Sequence != 1 {
			t.Fatalf("drained sequence = %d, want 1", entry.Sequence)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("drain loop never retried the buffered entry")
	}
}

func TestRecordSyncRetriesUntilDurable(t *testing.T) {
	store := &memAuditStore{failNext: 2}
	var retries atomic.Int64
	recorder := NewAuditRecorder(store, nil, AuditRecorderConfig{
		BufferSize:   16,
		RetryInitial: time.Millisecond,
		RetryMax:     10 * time.Millisecond,
		SyncTimeout:  2 * time.Second,
	}, zaptest.NewLogger(t)).WithGauges(nil, func() { retries.Add(1) })
	t.Cleanup(recorder.Close)

	if err := recorder.RecordSync(context.Background(), domain.AuditEntry{TenantID: "t-1", Action: "session.revoke"}); err != nil {
		t.Fatalf("record sync: %v", err)
	}
	if store.len() != 1 {
		t.Fatalf("stored entries = %d, want 1", store.len())
	}
	if got := retries.Load(); got != 2 {
		t.Fatalf("retries = %d, want 2", got)
	}
}

func TestRecordSyncTimeoutHandsEntryToDrain(t *testing.T) {
	appended := make(chan domain.AuditEntry, 1)
	store := &memAuditStore{failNext: 1 << 20, onAppend: func(entry domain.AuditEntry) {
		select {
		case appended <- entry:
		default:
		}
	}}
	recorder := NewAuditRecorder(store, nil, AuditRecorderConfig{
		BufferSize:   16,
		RetryInitial: time.Millisecond,
		RetryMax:     5 * time.Millisecond,
		SyncTimeout:  50 * time.Millisecond,
	}, zaptest.NewLogger(t))
	t.Cleanup(recorder.Close)

	err := recorder.RecordSync(context.Background(), domain.AuditEntry{TenantID: "t-1", Action: "session.revoke"})
	if err == nil {
		t.Fatal("expected the synchronous write to time out")
	}

	// The sequence number was consumed, so the entry must still land once
	// the store recovers or the tenant's log has a permanent gap.
	store.mu.Lock()
	store.failNext = 0
	store.mu.Unlock()

	select {
	case entry := <-appended:
		if entry.Sequence != 1 {
			t.Fatalf("drained sequence = %d, want 1", entry.Sequence)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed-out sync entry was never drained to the store")
	}

	missing, err := recorder.VerifySequence(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if missing != 0 {
		t.Fatalf("missing = %d, want no gap after the drain", missing)
	}
}

func TestVerifySequenceCountsGaps(t *testing.T) {
	store := &memAuditStore{entries: []domain.AuditEntry{
		{TenantID: "t-1", Sequence: 1},
		{TenantID: "t-1", Sequence: 2},
		{TenantID: "t-1", Sequence: 4},
		{TenantID: "t-1", Sequence: 5},
	}}
	recorder := testRecorder(t, store, nil)

	missing, err := recorder.VerifySequence(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if missing != 1 {
		t.Fatalf("missing = %d, want 1", missing)
	}

	missing, err = recorder.VerifySequence(context.Background(), "t-empty")
	if err != nil {
		t.Fatalf("verify empty tenant: %v", err)
	}
	if missing != 0 {
		t.Fatalf("missing for empty tenant = %d, want 0", missing)
	}
}

func TestRecordPublishesDecisionEvent(t *testing.T) {
	publisher := &capturePublisher{}
	recorder := testRecorder(t, &memAuditStore{}, publisher)

	entry := domain.AuditEntry{
		ID:       "01J0000000000000000000TEST",
		TenantID: "t-1",
		Action:   "order.read",
		Outcome:  domain.DecisionAllow,
		Reason:   domain.ReasonGranted,
	}
	if err := recorder.Record(context.Background(), entry); err != nil {
		t.Fatalf("record: %v", err)
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.decisions) != 1 {
		t.Fatalf("published decisions = %d, want 1", len(publisher.decisions))
	}
	event := publisher.decisions[0]
	if event.EventID != entry.ID || event.TenantID != "t-1" || event.Sequence != 1 {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	recorder := NewAuditRecorder(&memAuditStore{}, nil, AuditRecorderConfig{}, zaptest.NewLogger(t))
	recorder.Close()
	recorder.Close()
}
