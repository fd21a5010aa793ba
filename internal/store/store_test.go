package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/richardliu001/eventcore/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Action{}, &model.OutboxEntry{}, &model.DomainEvent{}))
	return New(db, nil, &kafka.Writer{}, nil)
}

// TestOptimisticLock_ConcurrentUpdate mirrors the teacher's
// optimistic_lock_test.go, generalized from Wallet.Balance to
// Action.Status, proving exactly one of two concurrent expected-version-1
// updates succeeds (spec I3, R1).
func TestOptimisticLock_ConcurrentUpdate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.DB.Create(&model.Action{ID: "a1", Name: "n", Status: model.ActionActive, Version: 1}).Error)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.DB.Transaction(func(tx *gorm.DB) error {
				row, err := s.GetActionForUpdate(context.Background(), tx, "a1")
				if err != nil {
					return err
				}
				row.Status = model.ActionInactive
				return s.UpdateAction(context.Background(), tx, *row, 1)
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent writer should win the optimistic lock")

	var final model.Action
	require.NoError(t, s.DB.First(&final, "id = ?", "a1").Error)
	assert.Equal(t, uint64(2), final.Version)
}

func TestClaimPending_OnlyPendingAndDueRetries(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	notYet := now.Add(1 * time.Hour)
	due := now.Add(-1 * time.Minute)

	require.NoError(t, s.DB.Create(&model.OutboxEntry{ID: "o1", EventID: "e1", Status: model.OutboxPending, MaxAttempts: 5}).Error)
	require.NoError(t, s.DB.Create(&model.OutboxEntry{ID: "o2", EventID: "e2", Status: model.OutboxProcessing, MaxAttempts: 5, NextRetryAt: &notYet}).Error)
	require.NoError(t, s.DB.Create(&model.OutboxEntry{ID: "o3", EventID: "e3", Status: model.OutboxProcessing, MaxAttempts: 5, NextRetryAt: &due}).Error)
	require.NoError(t, s.DB.Create(&model.OutboxEntry{ID: "o4", EventID: "e4", Status: model.OutboxCompleted, MaxAttempts: 5}).Error)
	require.NoError(t, s.DB.Create(&model.OutboxEntry{ID: "o5", EventID: "e5", Status: model.OutboxPending, Attempts: 5, MaxAttempts: 5}).Error)

	claimed, err := s.ClaimPending(context.Background(), now, 100)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, c := range claimed {
		ids[c.ID] = true
		assert.Equal(t, model.OutboxProcessing, c.Status)
	}
	assert.True(t, ids["o1"])
	assert.True(t, ids["o3"])
	assert.False(t, ids["o2"], "retry not yet due must not be claimed")
	assert.False(t, ids["o4"], "completed rows must never be reclaimed")
	assert.False(t, ids["o5"], "rows at max attempts must not be claimed")
}

func TestMarkCompleted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.DB.Create(&model.OutboxEntry{ID: "o1", EventID: "e1", Status: model.OutboxProcessing, MaxAttempts: 5}).Error)
	require.NoError(t, s.MarkCompleted(context.Background(), "o1", time.Now()))

	var row model.OutboxEntry
	require.NoError(t, s.DB.First(&row, "id = ?", "o1").Error)
	assert.Equal(t, model.OutboxCompleted, row.Status)
	assert.NotNil(t, row.ProcessedAt)
}

func TestMarkRetryThenMarkFailedAtMaxAttempts(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.DB.Create(&model.OutboxEntry{ID: "o1", EventID: "e1", Status: model.OutboxProcessing, Attempts: 4, MaxAttempts: 5}).Error)

	require.NoError(t, s.MarkRetry(context.Background(), "o1", 5, time.Now().Add(time.Minute), "boom"))
	var row model.OutboxEntry
	require.NoError(t, s.DB.First(&row, "id = ?", "o1").Error)
	assert.Equal(t, model.OutboxPending, row.Status)
	assert.Equal(t, 5, row.Attempts)

	require.NoError(t, s.MarkFailed(context.Background(), "o1", 5, "boom"))
	require.NoError(t, s.DB.First(&row, "id = ?", "o1").Error)
	assert.Equal(t, model.OutboxFailed, row.Status)
}

func TestOutboxMetrics(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.DB.Create(&model.OutboxEntry{ID: "o1", EventID: "e1", Status: model.OutboxPending, MaxAttempts: 5}).Error)
	require.NoError(t, s.DB.Create(&model.OutboxEntry{ID: "o2", EventID: "e2", Status: model.OutboxCompleted, MaxAttempts: 5}).Error)
	require.NoError(t, s.DB.Create(&model.OutboxEntry{ID: "o3", EventID: "e3", Status: model.OutboxFailed, MaxAttempts: 5}).Error)

	m, err := s.OutboxMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Pending)
	assert.Equal(t, int64(1), m.Completed)
	assert.Equal(t, int64(1), m.Failed)
}
