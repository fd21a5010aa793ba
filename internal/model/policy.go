package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PolicyStatus is the Policy aggregate's state machine (spec §4.1):
// draft -> active -> {suspended <-> active}; any non-revoked state can
// transition to the terminal revoked state.
type PolicyStatus string

const (
	PolicyDraft     PolicyStatus = "draft"
	PolicyActive    PolicyStatus = "active"
	PolicySuspended PolicyStatus = "suspended"
	PolicyRevoked   PolicyStatus = "revoked"
)

// Policy is the aggregate state row backing the Policy aggregate.
type Policy struct {
	ID             string          `gorm:"primaryKey;size:26"`
	Name           string          `gorm:"size:200;not null"`
	MaxAmount      decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0"`
	Status         PolicyStatus    `gorm:"size:16;not null;default:draft"`
	SuspendReason  string          `gorm:"size:500"`
	RevokeReason   string          `gorm:"size:500"`
	RevokedBy      string          `gorm:"size:64"`
	Version        uint64          `gorm:"not null;default:1"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`
}

func (Policy) TableName() string { return "policies" }
