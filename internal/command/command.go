// Package command implements the single inbound boundary from the
// transport layer: executeCommand(command) -> result (spec §6). It glues
// the aggregate packages, the transactional write path, and the event
// store into one place per command type.
package command

import (
	"time"

	"github.com/richardliu001/eventcore/internal/callerctx"
)

// Metadata is the caller metadata every command carries (spec §6).
type Metadata struct {
	CorrelationID string
	CausationID   string
	Actor         callerctx.Actor
	Timestamp     time.Time
}

// Type enumerates the command kinds executeCommand accepts.
type Type string

const (
	CreateAction   Type = "create-action"
	CompleteAction Type = "complete-action"
	CancelAction   Type = "cancel-action"
	UpdateAction   Type = "update-action"

	CreatePolicy   Type = "create-policy"
	ActivatePolicy Type = "activate-policy"
	SuspendPolicy  Type = "suspend-policy"
	ResumePolicy   Type = "resume-policy"
	RevokePolicy   Type = "revoke-policy"
)

// Command is the envelope the command layer receives: {type, payload,
// metadata} (spec §6).
type Command struct {
	Type     Type
	Payload  map[string]any
	Metadata Metadata
}
