package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/richardliu001/eventcore/internal/clock"
	"github.com/richardliu001/eventcore/internal/deadletter"
	"github.com/richardliu001/eventcore/internal/handler"
	"github.com/richardliu001/eventcore/internal/idgen"
	"github.com/richardliu001/eventcore/internal/ledger"
	"github.com/richardliu001/eventcore/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeQueueReader serves a fixed, pre-loaded batch of messages and
// records which ones were committed, so worker tests never dial a real
// broker.
type fakeQueueReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	pos       int
	committed []kafka.Message
}

func (f *fakeQueueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.pos < len(f.messages) {
		m := f.messages[f.pos]
		f.pos++
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeQueueReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

// testDB returns an in-memory sqlite handle private to the calling test,
// migrated for both the ledger and the dead-letter store, so a single
// Worker's transactions (handler side effect + ledger witness) actually
// share a database.
func testDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.ProcessedEvent{}, &model.AuditRow{}, &model.DeadLetter{}))
	return db
}

func newTestLedger(t *testing.T) *ledger.Ledger {
	return ledger.New(testDB(t), idgen.New())
}

// txHandler adapts a tx-ignorant invoke function (most test fixtures don't
// write to the database themselves) into the 3-arg Descriptor.Invoke shape.
func txHandler(invoke func(ctx context.Context, evt handler.Event) error) func(context.Context, *gorm.DB, handler.Event) error {
	return func(ctx context.Context, tx *gorm.DB, evt handler.Event) error {
		return invoke(ctx, evt)
	}
}

func wireMessage(t *testing.T, eventID, eventType string) kafka.Message {
	body, err := json.Marshal(map[string]any{
		"eventId":       eventID,
		"eventType":     eventType,
		"aggregateType": "Action",
		"aggregateId":   "a1",
		"payload":       map[string]any{"name": "demo"},
		"metadata":      model.EventMetadata{CorrelationID: "c1"},
	})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(eventID), Value: body}
}

func TestDispatch_InvokesSubscribedHandlerAndRecordsLedger(t *testing.T) {
	reg := handler.NewRegistry()
	var invoked int
	reg.MustRegister(handler.NewDescriptor("H1", []string{"action.created"}, txHandler(func(ctx context.Context, evt handler.Event) error {
		invoked++
		return nil
	})))
	ldg := newTestLedger(t)
	w := New(&fakeQueueReader{}, reg, ldg, nil, clock.System{}, DefaultConfig(), nil)

	evt := handler.Event{ID: "e1", EventType: "action.created"}
	require.NoError(t, w.dispatch(context.Background(), evt))
	assert.Equal(t, 1, invoked)

	done, err := ldg.Has(context.Background(), "e1", "H1")
	require.NoError(t, err)
	assert.True(t, done)

	// a second dispatch of the same event must not re-invoke the handler.
	require.NoError(t, w.dispatch(context.Background(), evt))
	assert.Equal(t, 1, invoked, "idempotency ledger must suppress re-invocation")
}

func TestDispatch_NoSubscribedHandlersIsNoop(t *testing.T) {
	reg := handler.NewRegistry()
	ldg := newTestLedger(t)
	w := New(&fakeQueueReader{}, reg, ldg, nil, clock.System{}, DefaultConfig(), nil)

	err := w.dispatch(context.Background(), handler.Event{ID: "e1", EventType: "unknown.type"})
	assert.NoError(t, err)
}

func TestDispatch_HandlerFailureReturnsError(t *testing.T) {
	reg := handler.NewRegistry()
	reg.MustRegister(handler.NewDescriptor("H1", []string{"action.created"}, txHandler(func(ctx context.Context, evt handler.Event) error {
		return errors.New("boom")
	})))
	ldg := newTestLedger(t)
	w := New(&fakeQueueReader{}, reg, ldg, nil, clock.System{}, DefaultConfig(), nil)

	err := w.dispatch(context.Background(), handler.Event{ID: "e1", EventType: "action.created"})
	require.Error(t, err)

	done, lerr := ldg.Has(context.Background(), "e1", "H1")
	require.NoError(t, lerr)
	assert.False(t, done, "a failed handler must not record a witness")
}

func TestDispatch_SecondHandlerStillRunsAfterFirstFails(t *testing.T) {
	reg := handler.NewRegistry()
	var secondInvoked bool
	reg.MustRegister(handler.NewDescriptor("H1", []string{"action.created"}, txHandler(func(ctx context.Context, evt handler.Event) error {
		return errors.New("boom")
	})))
	reg.MustRegister(handler.NewDescriptor("H2", []string{"action.created"}, txHandler(func(ctx context.Context, evt handler.Event) error {
		secondInvoked = true
		return nil
	})))
	ldg := newTestLedger(t)
	w := New(&fakeQueueReader{}, reg, ldg, nil, clock.System{}, DefaultConfig(), nil)

	err := w.dispatch(context.Background(), handler.Event{ID: "e1", EventType: "action.created"})
	require.Error(t, err, "any handler failure surfaces as a delivery failure")
	assert.True(t, secondInvoked, "independent handlers still run even if an earlier one failed")
}

// TestDispatch_FailedHandlerLeavesNoSideEffect exercises I4 directly: a
// handler that writes to the database and then fails must leave neither
// its own row nor a ledger witness behind, because both live in the same
// transaction (spec §4.4 I4, §8 "no audit row exists; no ledger row
// exists").
func TestDispatch_FailedHandlerLeavesNoSideEffect(t *testing.T) {
	db := testDB(t)
	reg := handler.NewRegistry()
	reg.MustRegister(handler.NewDescriptor("H1", []string{"action.created"}, func(ctx context.Context, tx *gorm.DB, evt handler.Event) error {
		if err := tx.WithContext(ctx).Create(&model.AuditRow{ID: "row1", EntityID: evt.AggregateID}).Error; err != nil {
			return err
		}
		return errors.New("boom after write")
	}))
	ldg := ledger.New(db, idgen.New())
	w := New(&fakeQueueReader{}, reg, ldg, nil, clock.System{}, DefaultConfig(), nil)

	evt := handler.Event{ID: "e1", EventType: "action.created", AggregateID: "a1"}
	err := w.dispatch(context.Background(), evt)
	require.Error(t, err)

	var auditCount, ledgerCount int64
	require.NoError(t, db.Model(&model.AuditRow{}).Count(&auditCount).Error)
	require.NoError(t, db.Model(&model.ProcessedEvent{}).Count(&ledgerCount).Error)
	assert.Zero(t, auditCount, "the handler's own write must roll back with the failed transaction")
	assert.Zero(t, ledgerCount, "no ledger witness may survive a rolled-back handler")
}

// TestDispatch_SuccessfulHandlerSideEffectAndLedgerCommitTogether is the
// positive half of TestDispatch_FailedHandlerLeavesNoSideEffect: the
// handler's write and the ledger witness both land, in the same
// transaction, on success.
func TestDispatch_SuccessfulHandlerSideEffectAndLedgerCommitTogether(t *testing.T) {
	db := testDB(t)
	reg := handler.NewRegistry()
	reg.MustRegister(handler.NewDescriptor("H1", []string{"action.created"}, func(ctx context.Context, tx *gorm.DB, evt handler.Event) error {
		return tx.WithContext(ctx).Create(&model.AuditRow{ID: "row1", EntityID: evt.AggregateID}).Error
	}))
	ldg := ledger.New(db, idgen.New())
	w := New(&fakeQueueReader{}, reg, ldg, nil, clock.System{}, DefaultConfig(), nil)

	evt := handler.Event{ID: "e1", EventType: "action.created", AggregateID: "a1"}
	require.NoError(t, w.dispatch(context.Background(), evt))

	var auditCount, ledgerCount int64
	require.NoError(t, db.Model(&model.AuditRow{}).Count(&auditCount).Error)
	require.NoError(t, db.Model(&model.ProcessedEvent{}).Count(&ledgerCount).Error)
	assert.Equal(t, int64(1), auditCount)
	assert.Equal(t, int64(1), ledgerCount)
}

func TestRun_CommitsOnlyAfterSuccessfulDispatch(t *testing.T) {
	reg := handler.NewRegistry()
	reg.MustRegister(handler.NewDescriptor("H1", []string{"action.created"}, txHandler(func(ctx context.Context, evt handler.Event) error {
		return nil
	})))
	ldg := newTestLedger(t)
	reader := &fakeQueueReader{messages: []kafka.Message{wireMessage(t, "e1", "action.created")}}
	w := New(reader, reg, ldg, nil, clock.System{}, Config{Concurrency: 2, RatePerSec: 1000, RateBurst: 1000, MaxAttempts: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	reader.mu.Lock()
	defer reader.mu.Unlock()
	require.Len(t, reader.committed, 1)
	assert.Equal(t, "e1", string(reader.committed[0].Key))
}

// TestRun_RetriesThenDeadLettersAndCommitsOnExhaustedAttempts exercises the
// queue-level retry/dead-letter path end to end (spec §4.3 step 4, §8
// "dead-letter": "queue's failed list contains the job with attemptsMade =
// max"): a handler that always fails gets retried up to MaxAttempts times,
// is then recorded to the dead-letter store, and only then is the message
// committed so the partition is not blocked forever.
func TestRun_RetriesThenDeadLettersAndCommitsOnExhaustedAttempts(t *testing.T) {
	db := testDB(t)
	reg := handler.NewRegistry()
	var attempts int
	reg.MustRegister(handler.NewDescriptor("H1", []string{"action.created"}, txHandler(func(ctx context.Context, evt handler.Event) error {
		attempts++
		return errors.New("always fails")
	})))
	ldg := ledger.New(db, idgen.New())
	dlq := deadletter.New(db, idgen.New())
	reader := &fakeQueueReader{messages: []kafka.Message{wireMessage(t, "e1", "action.created")}}
	cfg := Config{Concurrency: 1, RatePerSec: 1000, RateBurst: 1000, MaxAttempts: 3, BaseDelay: time.Millisecond, CapDelay: 5 * time.Millisecond}
	w := New(reader, reg, ldg, dlq, clock.System{}, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = w.Run(ctx)

	assert.Equal(t, 3, attempts, "a permanently failing handler is retried exactly MaxAttempts times")

	reader.mu.Lock()
	committed := len(reader.committed)
	reader.mu.Unlock()
	assert.Equal(t, 1, committed, "an exhausted message is committed once dead-lettered, freeing the partition")

	rows, err := dlq.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "e1", rows[0].EventID)
	assert.Equal(t, 3, rows[0].Attempts)
}

// TestRun_LeavesMessageUncommittedWhenContextCancelledMidRetry covers the
// one remaining case where a message stays uncommitted: the worker is
// shut down (ctx cancelled) while still inside its retry/backoff loop, so
// the consumer group redelivers the message to the next worker instead of
// silently dropping it.
func TestRun_LeavesMessageUncommittedWhenContextCancelledMidRetry(t *testing.T) {
	reg := handler.NewRegistry()
	reg.MustRegister(handler.NewDescriptor("H1", []string{"action.created"}, txHandler(func(ctx context.Context, evt handler.Event) error {
		return errors.New("boom")
	})))
	ldg := newTestLedger(t)
	reader := &fakeQueueReader{messages: []kafka.Message{wireMessage(t, "e1", "action.created")}}
	cfg := Config{Concurrency: 2, RatePerSec: 1000, RateBurst: 1000, MaxAttempts: 5, BaseDelay: time.Hour, CapDelay: time.Hour}
	w := New(reader, reg, ldg, nil, clock.System{}, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Len(t, reader.committed, 0, "a worker shut down mid-retry must leave the message uncommitted for redelivery")
}
