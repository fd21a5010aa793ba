package model

import "time"

// ActionStatus is the Action aggregate's state machine (spec §4.1):
// active -> inactive via complete or cancel.
type ActionStatus string

const (
	ActionActive   ActionStatus = "active"
	ActionInactive ActionStatus = "inactive"
)

// Action is the aggregate state row backing the Action aggregate. It
// always carries a monotonic Version bumped by exactly one per
// state-changing command (spec I3).
type Action struct {
	ID          string       `gorm:"primaryKey;size:26"`
	Name        string       `gorm:"size:200;not null"`
	Status      ActionStatus `gorm:"size:16;not null;default:active"`
	CancelReason string      `gorm:"size:500"`
	Version     uint64       `gorm:"not null;default:1"`
	CreatedAt   time.Time    `gorm:"autoCreateTime"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime"`
}

func (Action) TableName() string { return "actions" }
