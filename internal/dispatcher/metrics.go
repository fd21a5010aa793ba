package dispatcher

import (
	"context"
	"time"

	"github.com/richardliu001/eventcore/internal/store"
)

// GetMetrics returns {pending, processing, completed, failed} counts from
// the outbox for the operator health surface (spec §6 getMetrics()),
// opportunistically refreshing the Redis-backed cache the teacher's
// CacheBalance pattern inspired.
func (d *Dispatcher) GetMetrics(ctx context.Context) (store.Metrics, error) {
	m, err := d.Store.OutboxMetrics(ctx)
	if err != nil {
		return store.Metrics{}, err
	}
	_ = d.Store.CacheMetrics(ctx, m, 5*time.Second)
	return m, nil
}
