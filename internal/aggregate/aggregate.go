// Package aggregate defines the small abstract contract every aggregate
// root satisfies: produce events as the sole record of change, guarded by
// optimistic-concurrency versioning (spec §4.1).
package aggregate

import (
	"strings"
	"time"

	"github.com/richardliu001/eventcore/internal/callerctx"
	"github.com/richardliu001/eventcore/internal/resultkind"
)

// Event is one observable fact an aggregate operation appended to its
// uncommitted-events buffer.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	EventVersion  int
	Payload       map[string]any
}

// Meta is the caller metadata every state-changing operation receives:
// correlation id, causation id, actor, and timestamp.
type Meta struct {
	CorrelationID string
	CausationID   string
	Actor         callerctx.Actor
	Timestamp     time.Time
}

// Transition is the outcome of a successful state-changing operation: the
// events it produced and the aggregate's version after the transition.
type Transition struct {
	Events     []Event
	NewVersion uint64
}

// CheckVersion enforces tie-break rule: version mismatch is evaluated
// before any business rule, so a concurrent-writer conflict is never
// masked by a business error (spec §4.1 "Tie-breaks").
func CheckVersion(current, expected uint64) *resultkind.Error {
	if current != expected {
		return resultkind.NewRule("version.mismatch",
			"expected version does not match current aggregate version")
	}
	return nil
}

// RejectBlank returns a validation error if s is empty or whitespace-only,
// applied before any length check per spec §4.1's tie-break rule.
func RejectBlank(field, s string) *resultkind.Error {
	if strings.TrimSpace(s) == "" {
		return resultkind.New(resultkind.Validation, field+" must not be blank")
	}
	return nil
}
