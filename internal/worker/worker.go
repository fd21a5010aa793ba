// Package worker implements the dispatching worker pool (spec §4.4): it
// consumes delivered events off the queue, fans each one out to every
// registered handler subscribed to its event type, and guards each
// handler invocation with the idempotency ledger. Grounded on the
// teacher's cmd/poller/main.go ticker/drain loop, generalized from a
// single-consumer outbox drain into a concurrent, bounded consumer-group
// worker, and on the teacher's RateLimitMiddleware
// (golang.org/x/time/rate token bucket) reused here as a worker-local
// rate limit on message handling instead of a per-IP HTTP limiter; the
// number of messages handled at once is bounded separately by a
// fixed-size semaphore (Config.Concurrency).
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/richardliu001/eventcore/internal/callerctx"
	"github.com/richardliu001/eventcore/internal/clock"
	"github.com/richardliu001/eventcore/internal/deadletter"
	"github.com/richardliu001/eventcore/internal/handler"
	"github.com/richardliu001/eventcore/internal/ledger"
	"github.com/richardliu001/eventcore/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// QueueReader is the subset of *kafka.Reader the worker depends on, so
// tests can substitute a fake queue without a live broker.
type QueueReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Config holds the worker pool's tunables (spec §4.4). MaxAttempts,
// BaseDelay and CapDelay govern the queue-level retry policy -- distinct
// from and independent of the outbox dispatcher's own retry/backoff
// bookkeeping on OutboxEntry (spec §4.3 step 4, §4.4 step 5): this one
// bounds how many times handleMessage retries a single delivered message
// before giving up on it and recording it to the dead-letter store.
type Config struct {
	Concurrency int
	RatePerSec  rate.Limit
	RateBurst   int

	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration
}

// DefaultConfig returns conservative defaults: 8 concurrent handler
// invocations, capped at 50/s with a burst of 50, and the queue-level
// retry policy stated in spec §4.3/§8 ("attempts=3, exponential backoff,
// base 1s").
func DefaultConfig() Config {
	return Config{
		Concurrency: 8,
		RatePerSec:  50,
		RateBurst:   50,
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		CapDelay:    5 * time.Minute,
	}
}

// wireEvent is the on-the-wire shape the dispatcher's outbox payload
// produces (internal/eventstore.Store.PersistEvents's denormalized
// blob), decoded back into a handler.Event.
type wireEvent struct {
	EventID       string              `json:"eventId"`
	EventType     string              `json:"eventType"`
	AggregateType string              `json:"aggregateType"`
	AggregateID   string              `json:"aggregateId"`
	Payload       map[string]any      `json:"payload"`
	Metadata      model.EventMetadata `json:"metadata"`
}

// Worker consumes events from the queue and dispatches them to the
// handler registry, one handler invocation at a time per event, guarded
// by the idempotency ledger (spec §4.4, §4.5).
type Worker struct {
	Reader      QueueReader
	Registry    *handler.Registry
	Ledger      *ledger.Ledger
	DeadLetters *deadletter.Store
	Clock       clock.Clock
	Log         *zap.SugaredLogger
	Config      Config

	limiter *rate.Limiter
	sem     chan struct{}
}

// New constructs a Worker. dlq may be nil in tests that never exercise
// the exhausted-attempts path; production wiring always supplies one.
func New(reader QueueReader, registry *handler.Registry, ldg *ledger.Ledger, dlq *deadletter.Store, clk clock.Clock, cfg Config, log *zap.SugaredLogger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		Reader:      reader,
		Registry:    registry,
		Ledger:      ldg,
		DeadLetters: dlq,
		Clock:       clk,
		Log:         log,
		Config:      cfg,
		limiter:     rate.NewLimiter(cfg.RatePerSec, cfg.RateBurst),
		sem:         make(chan struct{}, cfg.Concurrency),
	}
}

// Run fetches messages until ctx is cancelled, dispatching each to a
// bounded pool of goroutines (spec §4.4 "bounded concurrency"). A
// message is committed (acknowledged) once either every subscribed
// handler has succeeded or already held an idempotency witness, or the
// queue-level retry budget (Config.MaxAttempts) is exhausted and the
// event has been recorded to the dead-letter store (spec §4.3 step 4,
// §8 "dead-letter"). A message is left uncommitted only while ctx itself
// is cancelled mid-retry, so the consumer group redelivers it on restart.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for {
		msg, err := w.Reader.FetchMessage(ctx)
		if err != nil {
			wg.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil
		}

		wg.Add(1)
		go func(m kafka.Message) {
			defer wg.Done()
			defer func() { <-w.sem }()
			w.handleMessage(ctx, m)
		}(msg)
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg kafka.Message) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}

	var we wireEvent
	if err := json.Unmarshal(msg.Value, &we); err != nil {
		if w.Log != nil {
			w.Log.Errorw("worker: malformed queue message, dropping", "error", err)
		}
		_ = w.Reader.CommitMessages(ctx, msg)
		return
	}

	evt := handler.Event{
		ID:            we.EventID,
		AggregateType: we.AggregateType,
		AggregateID:   we.AggregateID,
		EventType:     we.EventType,
		Payload:       we.Payload,
		Metadata:      we.Metadata,
	}

	maxAttempts := w.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = w.dispatch(ctx, evt)
		if lastErr == nil {
			if err := w.Reader.CommitMessages(ctx, msg); err != nil && w.Log != nil {
				w.Log.Errorw("worker: commit failed", "eventId", evt.ID, "error", err)
			}
			return
		}

		if attempt == maxAttempts {
			break
		}
		if w.Log != nil {
			w.Log.Warnw("worker: dispatch attempt failed, retrying",
				"eventId", evt.ID, "eventType", evt.EventType, "attempt", attempt, "error", lastErr)
		}
		select {
		case <-time.After(backoff(w.Config.BaseDelay, w.Config.CapDelay, attempt-1)):
		case <-ctx.Done():
			return
		}
	}

	if w.Log != nil {
		w.Log.Errorw("worker: event delivery exhausted max attempts, dead-lettering",
			"eventId", evt.ID, "eventType", evt.EventType, "attempts", maxAttempts, "error", lastErr)
	}
	if w.DeadLetters != nil {
		if dlqErr := w.DeadLetters.Record(ctx, evt.ID, evt.EventType, evt.AggregateType, evt.AggregateID, maxAttempts, errString(lastErr)); dlqErr != nil && w.Log != nil {
			w.Log.Errorw("worker: failed to record dead letter", "eventId", evt.ID, "error", dlqErr)
		}
	}
	if err := w.Reader.CommitMessages(ctx, msg); err != nil && w.Log != nil {
		w.Log.Errorw("worker: commit failed after dead-lettering", "eventId", evt.ID, "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// backoff computes min(baseDelay * 2^attempts, capDelay). Deliberately
// duplicated from internal/dispatcher rather than shared: this governs
// the queue-level retry loop above, a mechanism independent of the
// outbox dispatcher's own retry state machine, and the two are not
// meant to evolve in lockstep.
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

// dispatch runs every handler subscribed to evt.EventType, skipping any
// that already hold an idempotency witness (spec §4.5). Each handler
// invocation and its idempotency-ledger witness insert happen inside one
// database transaction (spec §4.4 I4, "the ledger insert must be in the
// same logical unit of work as the handler's side effects"), so a crash
// between the two can never leave one committed without the other. It
// returns an error if any handler fails; when every subscribed handler
// fails, it escalates the log severity (spec §4.4 "all handlers failed").
func (w *Worker) dispatch(ctx context.Context, evt handler.Event) error {
	descriptors := w.Registry.HandlersFor(evt.EventType)
	if len(descriptors) == 0 {
		return nil
	}

	callerCtx := callerctx.FromEventMetadata(evt.Metadata.CorrelationID, evt.ID, actorFromMetadata(evt.Metadata), w.Clock.Now())

	var failures, attempted int
	var firstErr error
	callerctx.Run(ctx, callerCtx, func(ctx context.Context) {
		for _, d := range descriptors {
			// Fast-path read outside any transaction: skips the
			// transactional round trip entirely for handlers that are
			// already done. Not authoritative by itself -- HasTx below,
			// inside the transaction, is what actually prevents a
			// duplicate side effect under concurrent delivery.
			done, err := w.Ledger.Has(ctx, evt.ID, d.Name)
			if err != nil {
				failures++
				attempted++
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if done {
				continue
			}

			attempted++
			txErr := w.Ledger.DB.Transaction(func(tx *gorm.DB) error {
				done, err := w.Ledger.HasTx(ctx, tx, evt.ID, d.Name)
				if err != nil {
					return err
				}
				if done {
					return nil
				}
				if err := d.Invoke(ctx, tx, evt); err != nil {
					return err
				}
				return w.Ledger.RecordTx(ctx, tx, evt.ID, d.Name)
			})
			if txErr != nil {
				failures++
				if firstErr == nil {
					firstErr = txErr
				}
				if w.Log != nil {
					w.Log.Warnw("worker: handler failed", "handler", d.Name, "eventId", evt.ID, "error", txErr)
				}
			}
		}
	})

	if failures == 0 {
		return nil
	}
	if failures == attempted && attempted > 0 {
		if w.Log != nil {
			w.Log.Errorw("worker: all handlers failed for event", "eventId", evt.ID, "eventType", evt.EventType)
		}
	}
	return firstErr
}

func actorFromMetadata(m model.EventMetadata) *callerctx.Actor {
	if m.Actor.ID == "" {
		return nil
	}
	return &callerctx.Actor{ID: m.Actor.ID, Email: m.Actor.Email, AccountID: m.Actor.AccountID}
}
