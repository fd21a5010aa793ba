package store

import (
	"context"
	"time"

	"github.com/richardliu001/eventcore/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreatePolicy inserts the initial aggregate row for a brand-new Policy.
func (s *Store) CreatePolicy(ctx context.Context, tx *gorm.DB, row *model.Policy) error {
	return tx.WithContext(ctx).Create(row).Error
}

// GetPolicyForUpdate loads and row-locks a Policy for a state-changing
// command.
func (s *Store) GetPolicyForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Policy, error) {
	var row model.Policy
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdatePolicy writes the new state under the same optimistic-version
// guard as UpdateAction.
func (s *Store) UpdatePolicy(ctx context.Context, tx *gorm.DB, row model.Policy, oldVersion uint64) error {
	res := tx.WithContext(ctx).Model(&model.Policy{}).
		Where("id = ? AND version = ?", row.ID, oldVersion).
		Updates(map[string]interface{}{
			"name":           row.Name,
			"max_amount":     row.MaxAmount,
			"status":         row.Status,
			"suspend_reason": row.SuspendReason,
			"revoke_reason":  row.RevokeReason,
			"revoked_by":     row.RevokedBy,
			"version":        oldVersion + 1,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}
