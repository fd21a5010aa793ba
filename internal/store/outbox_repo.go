package store

import (
	"context"
	"time"

	"github.com/richardliu001/eventcore/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimPending runs the one-tick claim algorithm (spec §4.3): selects up
// to limit rows that are pending, or processing with an elapsed
// next-retry-at, locking the rows FOR UPDATE SKIP LOCKED so concurrent
// dispatcher processes claim disjoint rows (spec B3), marks them
// processing, and commits.
func (s *Store) ClaimPending(ctx context.Context, now time.Time, limit int) ([]model.OutboxEntry, error) {
	var claimed []model.OutboxEntry
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []model.OutboxEntry
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("attempts < max_attempts").
			Where("status = ? OR (status = ? AND next_retry_at < ?)",
				model.OutboxPending, model.OutboxProcessing, now).
			Order("created_at ASC").
			Limit(limit).
			Find(&candidates).Error
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
			candidates[i].Status = model.OutboxProcessing
		}
		if err := tx.Model(&model.OutboxEntry{}).
			Where("id IN ?", ids).
			Update("status", model.OutboxProcessing).Error; err != nil {
			return err
		}
		claimed = candidates
		return nil
	})
	return claimed, err
}

// MarkCompleted records a successful enqueue (spec §4.3 step 5).
func (s *Store) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	return s.DB.WithContext(ctx).Model(&model.OutboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": model.OutboxCompleted, "processed_at": &now}).Error
}

// MarkRetry records a failed enqueue attempt that has not yet exhausted
// max attempts: increments attempts, schedules next_retry_at with
// exponential backoff, and records the error (spec §4.3 step 6).
func (s *Store) MarkRetry(ctx context.Context, id string, attempts int, nextRetryAt time.Time, lastErr string) error {
	return s.DB.WithContext(ctx).Model(&model.OutboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.OutboxPending,
			"attempts":      attempts,
			"next_retry_at": &nextRetryAt,
			"last_error":    lastErr,
		}).Error
}

// MarkFailed records a terminal enqueue failure: attempts has reached
// max_attempts (spec §4.3 step 6, §7 "then failed for operator action").
func (s *Store) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	return s.DB.WithContext(ctx).Model(&model.OutboxEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.OutboxFailed,
			"attempts":   attempts,
			"last_error": lastErr,
		}).Error
}

// Metrics returns counts by status for the operator health surface (spec
// §6 getMetrics).
type Metrics struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
}

// OutboxMetrics computes current status counts from the outbox table.
func (s *Store) OutboxMetrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	// Session makes each count below start from this base query instead of
	// accumulating the previous count's status condition.
	db := s.DB.WithContext(ctx).Model(&model.OutboxEntry{}).Session(&gorm.Session{})
	if err := db.Where("status = ?", model.OutboxPending).Count(&m.Pending).Error; err != nil {
		return m, err
	}
	if err := db.Where("status = ?", model.OutboxProcessing).Count(&m.Processing).Error; err != nil {
		return m, err
	}
	if err := db.Where("status = ?", model.OutboxCompleted).Count(&m.Completed).Error; err != nil {
		return m, err
	}
	if err := db.Where("status = ?", model.OutboxFailed).Count(&m.Failed).Error; err != nil {
		return m, err
	}
	return m, nil
}
