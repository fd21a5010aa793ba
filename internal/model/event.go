package model

import "time"

// DomainEvent is the immutable, past-tense record of a fact produced by an
// aggregate transition. Rows are inserted inside the write path transaction
// and are never updated or deleted by the core (spec I6).
type DomainEvent struct {
	ID              string    `gorm:"primaryKey;size:26"`
	AggregateType   string    `gorm:"size:64;not null;index:idx_events_aggregate"`
	AggregateID     string    `gorm:"size:100;not null;index:idx_events_aggregate"`
	EventType       string    `gorm:"size:100;not null;index"`
	EventVersion    int       `gorm:"not null;default:1"`
	Payload         string    `gorm:"type:jsonb;not null"`
	Metadata        string    `gorm:"type:jsonb;not null"`
	CorrelationID   string    `gorm:"size:64;not null;index"`
	OccurredAt      time.Time `gorm:"autoCreateTime;index"`
}

func (DomainEvent) TableName() string { return "domain_events" }

// EventMetadata is the schema-typed metadata attached to every DomainEvent,
// serialized into the Metadata column.
type EventMetadata struct {
	CorrelationID     string    `json:"correlationId"`
	CausationID       string    `json:"causationId"`
	Actor             Actor     `json:"actor"`
	ProducerTimestamp time.Time `json:"producerTimestamp"`
	EventVersion      int       `json:"eventVersion"`
}

// Actor identifies who caused the event.
type Actor struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	AccountID string `json:"accountId,omitempty"`
}
