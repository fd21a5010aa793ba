// Package ledger implements the idempotency ledger (spec §4.5): the
// witness that a handler completed for an event. The uniqueness
// constraint on (event id, handler name) is the sole correctness
// mechanism (I4).
package ledger

import (
	"context"

	"github.com/richardliu001/eventcore/internal/idgen"
	"github.com/richardliu001/eventcore/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger records and queries processed-event witnesses.
type Ledger struct {
	DB  *gorm.DB
	IDs *idgen.Generator
}

// New constructs a Ledger.
func New(db *gorm.DB, ids *idgen.Generator) *Ledger {
	return &Ledger{DB: db, IDs: ids}
}

// Has reports whether (eventID, handlerName) already completed.
func (l *Ledger) Has(ctx context.Context, eventID, handlerName string) (bool, error) {
	return l.HasTx(ctx, l.DB, eventID, handlerName)
}

// HasTx is Has run against an explicit tx instead of l.DB, so a caller
// already inside a transaction can include the lookup in the same unit
// of work as the handler invocation that follows it (spec §4.4 I4).
func (l *Ledger) HasTx(ctx context.Context, tx *gorm.DB, eventID, handlerName string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&model.ProcessedEvent{}).
		Where("event_id = ? AND handler_name = ?", eventID, handlerName).
		Count(&count).Error
	return count > 0, err
}

// Record inserts the witness row. Succeeds if absent; succeeds silently
// on a duplicate key, since a duplicate means another concurrent
// invocation (or a prior attempt) already recorded success (spec §4.5,
// §7 "duplicate-key is treated as success").
func (l *Ledger) Record(ctx context.Context, eventID, handlerName string) error {
	return l.RecordTx(ctx, l.DB, eventID, handlerName)
}

// RecordTx is Record run against an explicit tx instead of l.DB. Callers
// whose handler writes to the same database MUST use this inside the
// same tx as that write: spec §4.4's idempotency contract (I4) requires
// "the ledger insert [to be] in the same logical unit of work as the
// handler's side effects" so a crash between the two can never leave one
// committed without the other.
func (l *Ledger) RecordTx(ctx context.Context, tx *gorm.DB, eventID, handlerName string) error {
	row := model.ProcessedEvent{ID: l.IDs.Next(), EventID: eventID, HandlerName: handlerName}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "handler_name"}},
			DoNothing: true,
		}).
		Create(&row).Error
}
