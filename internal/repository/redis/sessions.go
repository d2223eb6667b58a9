package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
)

const defaultRevocationPrefix = "access:revoked"

// SessionCacheRepository marks revoked sessions in Redis so every replica
// observes a forced revocation without waiting on its own database read.
type SessionCacheRepository struct {
	client *red.Client
	prefix string
}

// NewSessionCacheRepository wires a Redis client into a session cache.
func NewSessionCacheRepository(client *red.Client, keyPrefix string) *SessionCacheRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}

	return &SessionCacheRepository{client: client, prefix: prefix}
}

// MarkRevoked stores a revocation marker for the session with a TTL covering
// the session's remaining lifetime.
func (r *SessionCacheRepository) MarkRevoked(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	key := r.sessionKey(sessionID)
	if key == "" {
		return errors.New("session id must not be empty")
	}

	if err := r.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set revoked session: %w", err)
	}

	return nil
}

// IsRevoked reports whether a revocation marker exists for the session.
func (r *SessionCacheRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	key := r.sessionKey(sessionID)
	if key == "" {
		return false, errors.New("session id must not be empty")
	}

	if err := r.client.Get(ctx, key).Err(); err != nil {
		if errors.Is(err, red.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get revoked session: %w", err)
	}

	return true, nil
}

// MarkTenantRevoked records a tenant-wide revocation cutoff. Sessions created
// before the cutoff are treated as revoked regardless of their own marker.
func (r *SessionCacheRepository) MarkTenantRevoked(ctx context.Context, tenantID string, at time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	key := r.tenantKey(tenantID)
	if key == "" {
		return errors.New("tenant id must not be empty")
	}

	if err := r.client.Set(ctx, key, strconv.FormatInt(at.UnixNano(), 10), ttl).Err(); err != nil {
		return fmt.Errorf("redis set tenant revocation: %w", err)
	}

	return nil
}

// TenantRevokedSince returns the tenant-wide revocation cutoff when one exists.
func (r *SessionCacheRepository) TenantRevokedSince(ctx context.Context, tenantID string) (time.Time, bool, error) {
	key := r.tenantKey(tenantID)
	if key == "" {
		return time.Time{}, false, errors.New("tenant id must not be empty")
	}

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("redis get tenant revocation: %w", err)
	}

	nanos, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse tenant revocation cutoff: %w", err)
	}

	return time.Unix(0, nanos).UTC(), true, nil
}

func (r *SessionCacheRepository) sessionKey(sessionID string) string {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:session:%s", r.prefix, trimmed)
}

func (r *SessionCacheRepository) tenantKey(tenantID string) string {
	trimmed := strings.TrimSpace(tenantID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:tenant:%s", r.prefix, trimmed)
}

var _ port.SessionCache = (*SessionCacheRepository)(nil)
