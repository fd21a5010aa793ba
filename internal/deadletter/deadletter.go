// Package deadletter implements the queue-level dead-letter list (spec
// §4.3 step 4, §8 "dead-letter" scenario): the operator-observable record
// of jobs whose delivery attempts were exhausted without every subscribed
// handler succeeding. Grounded on internal/ledger's insert-if-absent
// pattern (same unique-constraint-backed "record once" idiom), applied to
// a terminal-failure row instead of a success witness.
package deadletter

import (
	"context"

	"github.com/richardliu001/eventcore/internal/idgen"
	"github.com/richardliu001/eventcore/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store records and lists dead-lettered queue jobs.
type Store struct {
	DB  *gorm.DB
	IDs *idgen.Generator
}

// New constructs a Store.
func New(db *gorm.DB, ids *idgen.Generator) *Store {
	return &Store{DB: db, IDs: ids}
}

// Record inserts a dead-letter row for eventID with the attempt count
// that exhausted the queue's delivery policy and the last handler error
// observed. A duplicate insert (the same event dead-lettered twice, e.g.
// on worker restart before the original commit lands) is treated as
// success, the same "duplicate-key is a success" idiom the ledger uses.
func (s *Store) Record(ctx context.Context, eventID, eventType, aggregateType, aggregateID string, attempts int, lastErr string) error {
	row := model.DeadLetter{
		ID:            s.IDs.Next(),
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Attempts:      attempts,
		LastError:     lastErr,
	}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&row).Error
}

// List returns every dead-lettered job, most recent first, for the
// operator surface (spec §6, §8 "queue's failed list").
func (s *Store) List(ctx context.Context) ([]model.DeadLetter, error) {
	var rows []model.DeadLetter
	err := s.DB.WithContext(ctx).Order("created_at DESC").Find(&rows).Error
	return rows, err
}
