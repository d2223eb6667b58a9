package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
)

// ErrRecorderClosed indicates the recorder no longer accepts entries.
var ErrRecorderClosed = errors.New("audit recorder closed")

// AuditRecorderConfig tunes buffering and the retry schedule.
type AuditRecorderConfig struct {
	BufferSize   int
	RetryInitial time.Duration
	RetryMax     time.Duration
	SyncTimeout  time.Duration
}

func (c *AuditRecorderConfig) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 4096
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 250 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 5 * time.Second
	}
}

// tenantCounter serializes sequence assignment for one tenant. Counters are
// partitioned per tenant so the hot path never contends on a global lock.
type tenantCounter struct {
	mu     sync.Mutex
	seeded bool
	next   uint64
}

// AuditRecorder appends decision and mutation records to the tenant
// partitioned log. Entries are never silently dropped: failed appends go to
// a bounded local buffer drained with exponential backoff, and Record blocks
// when the buffer is full rather than discarding.
type AuditRecorder struct {
	store     port.AuditRepository
	publisher port.EventPublisher
	logger    *zap.Logger
	cfg       AuditRecorderConfig

	counters sync.Map // tenantID -> *tenantCounter
	buffer   chan domain.AuditEntry
	done     chan struct{}
	wg       sync.WaitGroup
	closed   sync.Once
	now      func() time.Time

	onBufferDepth func(int)
	onRetry       func()
}

// NewAuditRecorder constructs a recorder and starts its retry drain loop.
func NewAuditRecorder(store port.AuditRepository, publisher port.EventPublisher, cfg AuditRecorderConfig, logger *zap.Logger) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	r := &AuditRecorder{
		store:     store,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		buffer:    make(chan domain.AuditEntry, cfg.BufferSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}

	r.wg.Add(1)
	go r.drain()

	return r
}

// WithClock injects a custom clock (primarily for testing).
func (r *AuditRecorder) WithClock(now func() time.Time) *AuditRecorder {
	if now != nil {
		r.now = now
	}
	return r
}

// WithGauges registers callbacks for buffer depth and retry instrumentation.
func (r *AuditRecorder) WithGauges(bufferDepth func(int), retry func()) *AuditRecorder {
	r.onBufferDepth = bufferDepth
	r.onRetry = retry
	return r
}

// Record assigns the entry's sequence number and appends it. If the store
// is unavailable the entry enters the local buffer for retry; the call only
// blocks when the buffer itself is full.
func (r *AuditRecorder) Record(ctx context.Context, entry domain.AuditEntry) error {
	prepared, err := r.prepare(ctx, &entry)
	if err != nil {
		return err
	}

	if err := r.store.Append(ctx, *prepared); err != nil {
		r.logger.Warn("audit append failed, buffering",
			zap.String("tenant_id", prepared.TenantID),
			zap.Uint64("sequence", prepared.Sequence),
			zap.Error(err),
		)
		select {
		case r.buffer <- *prepared:
			r.reportDepth()
		case <-r.done:
			return ErrRecorderClosed
		case <-ctx.Done():
			// Block on the buffer rather than drop: losing the entry
			// breaks audit completeness.
			select {
			case r.buffer <- *prepared:
				r.reportDepth()
			case <-r.done:
				return ErrRecorderClosed
			}
		}
	}

	r.fanout(ctx, *prepared)
	return nil
}

// RecordSync appends the entry and does not return until the write is
// durably acknowledged or the synchronous timeout elapses. Used for
// decisions above the sensitivity threshold, where audit-before-deny is
// mandatory.
func (r *AuditRecorder) RecordSync(ctx context.Context, entry domain.AuditEntry) error {
	prepared, err := r.prepare(ctx, &entry)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.SyncTimeout)
	defer cancel()

	backoff := r.cfg.RetryInitial
	for {
		err := r.store.Append(ctx, *prepared)
		if err == nil {
			r.fanout(ctx, *prepared)
			return nil
		}
		if r.onRetry != nil {
			r.onRetry()
		}

		select {
		case <-ctx.Done():
			// The sequence number is already assigned; hand the entry to
			// the drain loop so the tenant's log keeps no permanent gap.
			select {
			case r.buffer <- *prepared:
				r.reportDepth()
			case <-r.done:
			}
			return fmt.Errorf("durable audit write: %w", err)
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, r.cfg.RetryMax)
	}
}

// VerifySequence compares expected and observed sequence ranges for a
// tenant, returning the number of missing entries. Reconciliation jobs call
// this periodically to detect tampering or loss.
func (r *AuditRecorder) VerifySequence(ctx context.Context, tenantID string) (missing int, err error) {
	max, err := r.store.MaxSequence(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("max audit sequence: %w", err)
	}
	if max == 0 {
		return 0, nil
	}
	count, err := r.store.CountRange(ctx, tenantID, 1, max)
	if err != nil {
		return 0, fmt.Errorf("count audit range: %w", err)
	}
	return int(max) - count, nil
}

// Close stops the drain loop after flushing buffered entries.
func (r *AuditRecorder) Close() {
	r.closed.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *AuditRecorder) prepare(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error) {
	if entry.TenantID == "" {
		return nil, errors.New("audit entry requires a tenant id")
	}
	if entry.At.IsZero() {
		entry.At = r.now().UTC()
	}
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.Severity == "" {
		entry.Severity = domain.SeverityInfo
	}

	seq, err := r.nextSequence(ctx, entry.TenantID)
	if err != nil {
		return nil, err
	}
	entry.Sequence = seq
	return entry, nil
}

// nextSequence hands out the tenant's next strictly monotonic sequence
// number. The counter is seeded from the store's maximum on first use.
func (r *AuditRecorder) nextSequence(ctx context.Context, tenantID string) (uint64, error) {
	value, _ := r.counters.LoadOrStore(tenantID, &tenantCounter{})
	counter := value.(*tenantCounter)

	counter.mu.Lock()
	defer counter.mu.Unlock()

	if !counter.seeded {
		max, err := r.store.MaxSequence(ctx, tenantID)
		if err != nil {
			return 0, fmt.Errorf("seed audit sequence: %w", err)
		}
		counter.next = max
		counter.seeded = true
	}

	counter.next++
	return counter.next, nil
}

func (r *AuditRecorder) drain() {
	defer r.wg.Done()

	backoff := r.cfg.RetryInitial
	for {
		select {
		case entry := <-r.buffer:
			r.reportDepth()
			for {
				ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SyncTimeout)
				err := r.store.Append(ctx, entry)
				cancel()
				if err == nil {
					backoff = r.cfg.RetryInitial
					break
				}
				if r.onRetry != nil {
					r.onRetry()
				}
				r.logger.Warn("audit retry failed",
					zap.String("tenant_id", entry.TenantID),
					zap.Uint64("sequence", entry.Sequence),
					zap.Duration("backoff", backoff),
					zap.Error(err),
				)
				select {
				case <-time.After(backoff):
				case <-r.done:
					// Final attempt on shutdown; an error here is surfaced
					// loudly since the entry would otherwise be lost.
					ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SyncTimeout)
					if err := r.store.Append(ctx, entry); err != nil {
						r.logger.Error("audit entry lost at shutdown",
							zap.String("tenant_id", entry.TenantID),
							zap.Uint64("sequence", entry.Sequence),
							zap.Error(err),
						)
					}
					cancel()
					return
				}
				backoff = nextBackoff(backoff, r.cfg.RetryMax)
			}
		case <-r.done:
			// Flush whatever remains without waiting for new entries.
			for {
				select {
				case entry := <-r.buffer:
					ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SyncTimeout)
					if err := r.store.Append(ctx, entry); err != nil {
						r.logger.Error("audit entry lost at shutdown",
							zap.String("tenant_id", entry.TenantID),
							zap.Uint64("sequence", entry.Sequence),
							zap.Error(err),
						)
					}
					cancel()
				default:
					return
				}
			}
		}
	}
}

func (r *AuditRecorder) fanout(ctx context.Context, entry domain.AuditEntry) {
	if r.publisher == nil {
		return
	}
	event := domain.DecisionRecordedEvent{
		EventID:       entry.ID,
		TenantID:      entry.TenantID,
		Sequence:      entry.Sequence,
		PrincipalID:   entry.PrincipalID,
		SessionID:     entry.SessionID,
		ResourceType:  entry.ResourceType,
		ResourceID:    entry.ResourceID,
		Action:        entry.Action,
		Outcome:       entry.Outcome,
		Reason:        entry.Reason,
		RuleID:        entry.RuleID,
		PolicyVersion: entry.PolicyVersion,
		DecidedAt:     entry.At,
		Metadata:      entry.Metadata,
	}
	if err := r.publisher.PublishDecisionRecorded(ctx, event); err != nil {
		r.logger.Warn("decision event publish failed", zap.Error(err))
	}
}

func (r *AuditRecorder) reportDepth() {
	if r.onBufferDepth != nil {
		r.onBufferDepth(len(r.buffer))
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
