package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// dispatcherLeaseKey is the Redis key used as a cross-process advisory
// hint that a dispatcher tick is in flight. It is a tie-breaker only: the
// database claim query (ClaimPending, using FOR UPDATE SKIP LOCKED)
// remains the sole correctness mechanism per spec §5 ("the only shared
// mutable resources are database rows"). A dispatcher that loses the lease
// skips that tick's claim, so two processes don't start a tick at the
// exact same instant; a Redis error is reported as a win and never blocks
// a claim.
const dispatcherLeaseKey = "eventcore:dispatcher:lease"

// AcquireLeaseHint attempts to set the advisory lease for ttl, returning
// true if this process won the hint race. Adapted from the teacher's
// CacheBalance use of rdb.Set, repurposed from a read-through cache value
// into a SETNX-style hint.
func (s *Store) AcquireLeaseHint(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	if s.Redis == nil {
		return true, nil
	}
	ok, err := s.Redis.SetNX(ctx, dispatcherLeaseKey, owner, ttl).Result()
	if err != nil {
		return true, err // infra hiccup: do not block the claim query on it
	}
	return ok, nil
}

const metricsCacheKey = "eventcore:dispatcher:metrics"

// CacheMetrics writes the outbox metrics snapshot to Redis with a short
// TTL, mirroring the teacher's CacheBalance read-through pattern.
func (s *Store) CacheMetrics(ctx context.Context, m Metrics, ttl time.Duration) error {
	if s.Redis == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.Redis.Set(ctx, metricsCacheKey, b, ttl).Err()
}

// CachedMetrics reads the last cached metrics snapshot, mirroring the
// teacher's GetCachedBalance.
func (s *Store) CachedMetrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	if s.Redis == nil {
		return m, redis.Nil
	}
	b, err := s.Redis.Get(ctx, metricsCacheKey).Bytes()
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, err
	}
	return m, nil
}
