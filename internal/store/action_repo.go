package store

import (
	"context"
	"errors"
	"time"

	"github.com/richardliu001/eventcore/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrOptimisticLock is returned when an UPDATE ... WHERE version = ?
// affects zero rows: another writer won the race (spec §4.1, §5).
var ErrOptimisticLock = errors.New("optimistic lock conflict")

// CreateAction inserts the initial aggregate row for a brand-new Action.
func (s *Store) CreateAction(ctx context.Context, tx *gorm.DB, row *model.Action) error {
	return tx.WithContext(ctx).Create(row).Error
}

// GetActionForUpdate loads and row-locks an Action for a state-changing
// command, mirroring the teacher's GetWalletForUpdate.
func (s *Store) GetActionForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Action, error) {
	var row model.Action
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateAction writes the new state, bumping version by exactly one only
// if the current row version still matches oldVersion (spec I3).
func (s *Store) UpdateAction(ctx context.Context, tx *gorm.DB, row model.Action, oldVersion uint64) error {
	res := tx.WithContext(ctx).Model(&model.Action{}).
		Where("id = ? AND version = ?", row.ID, oldVersion).
		Updates(map[string]interface{}{
			"name":          row.Name,
			"status":        row.Status,
			"cancel_reason": row.CancelReason,
			"version":       oldVersion + 1,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}
