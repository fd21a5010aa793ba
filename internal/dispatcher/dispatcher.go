// Package dispatcher implements the outbox dispatcher (spec §4.3): a
// single-process polling loop that claims pending outbox rows, enqueues
// them onto the external queue, and records retry/backoff state.
// Grounded on the teacher's cmd/poller/main.go ticker loop, generalized
// from "select all unprocessed, publish, mark processed" into the full
// claim/backoff/retry state machine the spec requires.
package dispatcher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/richardliu001/eventcore/internal/clock"
	"github.com/richardliu001/eventcore/internal/model"
	"github.com/richardliu001/eventcore/internal/store"
	"go.uber.org/zap"
)

// Config holds the dispatcher's tunables (spec §4.3 defaults).
type Config struct {
	Period      time.Duration
	BatchSize   int
	BaseDelay   time.Duration
	CapDelay    time.Duration
	MaxAttempts int
}

// DefaultConfig returns the spec's stated defaults: period 1s, batch 100,
// base delay 1s, cap delay 5min.
func DefaultConfig() Config {
	return Config{
		Period:      1 * time.Second,
		BatchSize:   100,
		BaseDelay:   1 * time.Second,
		CapDelay:    5 * time.Minute,
		MaxAttempts: 5,
	}
}

// Dispatcher runs the claim/enqueue/backoff loop.
type Dispatcher struct {
	Store  *store.Store
	Clock  clock.Clock
	Config Config
	Log    *zap.SugaredLogger

	mu      sync.Mutex // re-entrant safety within this process (spec §4.3)
	ticking int32
	stop    chan struct{}
	done    chan struct{}
	owner   string
}

// New constructs a Dispatcher.
func New(st *store.Store, clk clock.Clock, cfg Config, log *zap.SugaredLogger) *Dispatcher {
	hostname, _ := os.Hostname()
	return &Dispatcher{
		Store: st, Clock: clk, Config: cfg, Log: log,
		stop: make(chan struct{}), done: make(chan struct{}),
		owner: fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}
}

// instanceID identifies this dispatcher process for the Redis lease hint.
func (d *Dispatcher) instanceID() string { return d.owner }

// Run starts the polling loop; it blocks until Stop is called and the
// in-flight batch completes (spec §5 "Cancellation & timeouts").
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Config.Period)
	defer ticker.Stop()
	defer close(d.done)

	for {
		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.TriggerOnce(ctx)
		}
	}
}

// Stop signals a graceful shutdown: refuses new claim cycles and waits
// for the in-flight batch to finish.
func (d *Dispatcher) Stop() {
	close(d.stop)
	<-d.done
}

// TriggerOnce forces one dispatcher tick; exposed for tests and operators
// (spec §4.3 "Observability", §6 triggerProcessing()). Re-entrant safe
// against itself via an in-process mutex (spec §4.3): a tick already in
// flight causes this call to skip rather than overlap.
func (d *Dispatcher) TriggerOnce(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&d.ticking, 0, 1) {
		if d.Log != nil {
			d.Log.Debug("dispatcher tick already in flight, skipping")
		}
		return
	}
	defer atomic.StoreInt32(&d.ticking, 0)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.Clock.Now()

	// Tie-breaker hint: losing it to another instance skips this tick's
	// claim entirely, so two dispatcher processes don't both pay for a tick
	// at the same instant. A Redis error does not block the claim, and the
	// claim query below remains what keeps claimed rows disjoint (spec §5,
	// store.AcquireLeaseHint doc comment).
	won, leaseErr := d.Store.AcquireLeaseHint(ctx, d.instanceID(), d.Config.Period)
	if leaseErr != nil && d.Log != nil {
		d.Log.Debugf("dispatcher lease hint: %v", leaseErr)
	}
	if leaseErr == nil && !won {
		return
	}

	claimed, err := d.Store.ClaimPending(ctx, now, d.Config.BatchSize)
	if err != nil {
		if d.Log != nil {
			d.Log.Errorf("claim pending outbox rows: %v", err)
		}
		return
	}
	for _, entry := range claimed {
		d.deliver(ctx, entry)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, entry model.OutboxEntry) {
	err := d.Store.Enqueue(ctx, entry)
	now := d.Clock.Now()
	if err == nil {
		if markErr := d.Store.MarkCompleted(ctx, entry.ID, now); markErr != nil && d.Log != nil {
			d.Log.Errorf("mark outbox %s completed: %v", entry.ID, markErr)
		}
		return
	}

	attempts := entry.Attempts + 1
	maxAttempts := entry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.Config.MaxAttempts
	}
	if attempts >= maxAttempts {
		if markErr := d.Store.MarkFailed(ctx, entry.ID, attempts, err.Error()); markErr != nil && d.Log != nil {
			d.Log.Errorf("mark outbox %s failed: %v", entry.ID, markErr)
		}
		if d.Log != nil {
			d.Log.Errorw("outbox entry exhausted max attempts", "outboxId", entry.ID, "eventId", entry.EventID, "attempts", attempts)
		}
		return
	}

	nextRetryAt := now.Add(backoff(d.Config.BaseDelay, d.Config.CapDelay, attempts))
	if markErr := d.Store.MarkRetry(ctx, entry.ID, attempts, nextRetryAt, err.Error()); markErr != nil && d.Log != nil {
		d.Log.Errorf("mark outbox %s retry: %v", entry.ID, markErr)
	}
}

// backoff computes min(baseDelay * 2^attempts, capDelay) (spec §4.3 step 6).
func backoff(base, cap time.Duration, attempts int) time.Duration {
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d > cap {
			return cap
		}
	}
	return d
}
