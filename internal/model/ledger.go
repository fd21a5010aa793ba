package model

import "time"

// ProcessedEvent is the idempotency ledger's witness row: its uniqueness
// constraint on (EventID, HandlerName) is the sole correctness mechanism
// for exactly-once handler effects (spec §4.5, I4).
type ProcessedEvent struct {
	ID          string    `gorm:"primaryKey;size:26"`
	EventID     string    `gorm:"size:26;not null;uniqueIndex:idx_processed_event_handler"`
	HandlerName string    `gorm:"size:64;not null;uniqueIndex:idx_processed_event_handler"`
	ProcessedAt time.Time `gorm:"autoCreateTime"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }
