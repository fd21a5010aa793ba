package model

import "time"

// OutboxStatus is the outbox entry's status machine (spec §3).
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxCompleted  OutboxStatus = "completed"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxEntry is written in the same transaction as its DomainEvent and
// mutates through the status machine as the dispatcher claims, enqueues,
// and retries delivery. Adapted from the teacher's event_outbox row
// (internal/model/outbox.go) generalized from a boolean `processed` flag
// to the full claim/retry/backoff status machine spec §4.3 requires.
type OutboxEntry struct {
	ID            string       `gorm:"primaryKey;size:26"`
	EventID       string       `gorm:"size:26;not null;index"`
	EventType     string       `gorm:"size:100;not null"`
	AggregateType string       `gorm:"size:64;not null"`
	AggregateID   string       `gorm:"size:100;not null"`
	Payload       string       `gorm:"type:jsonb;not null"`
	Status        OutboxStatus `gorm:"size:16;not null;default:pending;index"`
	Attempts      int          `gorm:"not null;default:0"`
	MaxAttempts   int          `gorm:"not null;default:5"`
	LastError     string       `gorm:"type:text"`
	CreatedAt     time.Time    `gorm:"autoCreateTime;index"`
	ProcessedAt   *time.Time
	NextRetryAt   *time.Time `gorm:"index"`
}

func (OutboxEntry) TableName() string { return "event_outbox" }
