package model

import "time"

// DeadLetter is the operator-observable record of a queue job (keyed by
// event id, spec §4.3 "job id = eventId") whose delivery attempts were
// exhausted at the queue level -- independent of the outbox dispatcher's
// own retry bookkeeping on OutboxEntry (spec §4.3 step 4, §4.4 step 5,
// §8 "dead-letter" scenario: "queue's failed list contains the job with
// attemptsMade = max").
type DeadLetter struct {
	ID            string    `gorm:"primaryKey;size:26"`
	EventID       string    `gorm:"size:26;not null;uniqueIndex"`
	EventType     string    `gorm:"size:100;not null"`
	AggregateType string    `gorm:"size:64;not null"`
	AggregateID   string    `gorm:"size:100;not null"`
	Attempts      int       `gorm:"not null"`
	LastError     string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index"`
}

func (DeadLetter) TableName() string { return "dead_letters" }
