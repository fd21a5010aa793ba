package model

import "time"

// AuditRow is an immutable audit trail entry produced by the reference
// audit handler (spec §4.8). Insert-only; never updated or deleted.
type AuditRow struct {
	ID            string    `gorm:"primaryKey;size:26"`
	CorrelationID string    `gorm:"size:64;not null;index"`
	EntityType    string    `gorm:"size:64;not null"`
	EntityID      string    `gorm:"size:100;not null;index"`
	Action        string    `gorm:"size:64;not null"`
	ActorID       string    `gorm:"size:64;not null"`
	ActorEmail    string    `gorm:"size:200;not null"`
	ActorIP       string    `gorm:"size:64"`
	ActorAgent    string    `gorm:"size:200"`
	BeforeSnapshot string   `gorm:"type:jsonb"`
	AfterSnapshot  string   `gorm:"type:jsonb"`
	Changes       string    `gorm:"type:jsonb"`
	Metadata      string    `gorm:"type:jsonb"`
	OccurredAt    time.Time `gorm:"autoCreateTime"`
}

func (AuditRow) TableName() string { return "audit_rows" }
