// Package policy implements the Policy aggregate (spec §4.1):
// draft -> active -> {suspended <-> active}, with any non-revoked state
// able to transition to the terminal revoked state.
package policy

import (
	"strings"

	"github.com/richardliu001/eventcore/internal/aggregate"
	"github.com/richardliu001/eventcore/internal/model"
	"github.com/richardliu001/eventcore/internal/resultkind"
	"github.com/shopspring/decimal"
)

// State is the in-memory representation of a Policy used while applying a
// command.
type State struct {
	ID            string
	Name          string
	MaxAmount     decimal.Decimal
	Status        model.PolicyStatus
	SuspendReason string
	RevokeReason  string
	RevokedBy     string
	Version       uint64
}

// FromRow converts a stored aggregate row into in-memory State.
func FromRow(row model.Policy) State {
	return State{
		ID: row.ID, Name: row.Name, MaxAmount: row.MaxAmount, Status: row.Status,
		SuspendReason: row.SuspendReason, RevokeReason: row.RevokeReason, RevokedBy: row.RevokedBy,
		Version: row.Version,
	}
}

// ToRow converts in-memory State back into a storable row.
func (s State) ToRow() model.Policy {
	return model.Policy{
		ID: s.ID, Name: s.Name, MaxAmount: s.MaxAmount, Status: s.Status,
		SuspendReason: s.SuspendReason, RevokeReason: s.RevokeReason, RevokedBy: s.RevokedBy,
		Version: s.Version,
	}
}

// Create produces the initial `policy.created` event. New aggregates
// start in draft at version 1.
func Create(id, name string, maxAmount decimal.Decimal) (State, []aggregate.Event, *resultkind.Error) {
	if err := aggregate.RejectBlank("name", name); err != nil {
		return State{}, nil, err
	}
	if maxAmount.IsNegative() {
		return State{}, nil, resultkind.New(resultkind.Validation, "maxAmount must not be negative")
	}
	s := State{ID: id, Name: strings.TrimSpace(name), MaxAmount: maxAmount, Status: model.PolicyDraft, Version: 1}
	evt := aggregate.Event{
		AggregateType: "Policy",
		AggregateID:   id,
		EventType:     "policy.created",
		EventVersion:  1,
		Payload: map[string]any{
			"id":        id,
			"name":      s.Name,
			"maxAmount": s.MaxAmount.String(),
			"status":    string(s.Status),
		},
	}
	return s, []aggregate.Event{evt}, nil
}

func isRevoked(status model.PolicyStatus) *resultkind.Error {
	if status == model.PolicyRevoked {
		return resultkind.NewRule("policy.revoked.terminal", "a revoked policy admits no further transitions")
	}
	return nil
}

// Activate transitions a draft Policy to active.
func (s State) Activate(expectedVersion uint64) (State, []aggregate.Event, *resultkind.Error) {
	if err := aggregate.CheckVersion(s.Version, expectedVersion); err != nil {
		return s, nil, err
	}
	if err := isRevoked(s.Status); err != nil {
		return s, nil, err
	}
	if s.Status != model.PolicyDraft {
		return s, nil, resultkind.NewRule("policy.activate.not_draft", "policy is not in draft state")
	}
	return s.transition(model.PolicyActive, "policy.activated", nil)
}

// Suspend transitions an active Policy to suspended, requiring a reason.
func (s State) Suspend(expectedVersion uint64, reason string) (State, []aggregate.Event, *resultkind.Error) {
	if err := aggregate.CheckVersion(s.Version, expectedVersion); err != nil {
		return s, nil, err
	}
	if err := isRevoked(s.Status); err != nil {
		return s, nil, err
	}
	if err := aggregate.RejectBlank("reason", reason); err != nil {
		return s, nil, err
	}
	if s.Status != model.PolicyActive {
		return s, nil, resultkind.NewRule("policy.suspend.not_active", "policy is not active")
	}
	trimmed := strings.TrimSpace(reason)
	next, events, err := s.transition(model.PolicySuspended, "policy.suspended", map[string]any{"reason": trimmed})
	if err != nil {
		return s, nil, err
	}
	next.SuspendReason = trimmed
	return next, events, nil
}

// Resume transitions a suspended Policy back to active.
func (s State) Resume(expectedVersion uint64) (State, []aggregate.Event, *resultkind.Error) {
	if err := aggregate.CheckVersion(s.Version, expectedVersion); err != nil {
		return s, nil, err
	}
	if err := isRevoked(s.Status); err != nil {
		return s, nil, err
	}
	if s.Status != model.PolicySuspended {
		return s, nil, resultkind.NewRule("policy.resume.not_suspended", "policy is not suspended")
	}
	return s.transition(model.PolicyActive, "policy.activated", nil)
}

// Revoke transitions any non-revoked Policy to the terminal revoked state,
// requiring a reason and the revoker's id.
func (s State) Revoke(expectedVersion uint64, reason, revokerID string) (State, []aggregate.Event, *resultkind.Error) {
	if err := aggregate.CheckVersion(s.Version, expectedVersion); err != nil {
		return s, nil, err
	}
	if err := isRevoked(s.Status); err != nil {
		return s, nil, err
	}
	if err := aggregate.RejectBlank("reason", reason); err != nil {
		return s, nil, err
	}
	if err := aggregate.RejectBlank("revokerId", revokerID); err != nil {
		return s, nil, err
	}
	trimmedReason := strings.TrimSpace(reason)
	trimmedRevoker := strings.TrimSpace(revokerID)
	extra := map[string]any{
		"reason":    trimmedReason,
		"revokedBy": trimmedRevoker,
	}
	next, events, terr := s.transition(model.PolicyRevoked, "policy.revoked", extra)
	if terr != nil {
		return s, nil, terr
	}
	next.RevokeReason = trimmedReason
	next.RevokedBy = trimmedRevoker
	return next, events, nil
}

func (s State) transition(to model.PolicyStatus, eventType string, extra map[string]any) (State, []aggregate.Event, *resultkind.Error) {
	next := s
	next.Status = to
	next.Version = s.Version + 1
	payload := map[string]any{
		"id":     s.ID,
		"status": map[string]string{"from": string(s.Status), "to": string(to)},
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt := aggregate.Event{
		AggregateType: "Policy",
		AggregateID:   s.ID,
		EventType:     eventType,
		EventVersion:  1,
		Payload:       payload,
	}
	return next, []aggregate.Event{evt}, nil
}
