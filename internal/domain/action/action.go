// Package action implements the Action aggregate (spec §4.1): a small
// active -> inactive state machine, illustrative rather than deeply
// engineered — the point is to exercise the event-producing contract.
package action

import (
	"strings"

	"github.com/richardliu001/eventcore/internal/aggregate"
	"github.com/richardliu001/eventcore/internal/model"
	"github.com/richardliu001/eventcore/internal/resultkind"
)

// State is the in-memory representation of an Action used while applying
// a command; callers load it from model.Action via FromRow and persist the
// result via ToRow.
type State struct {
	ID           string
	Name         string
	Status       model.ActionStatus
	CancelReason string
	Version      uint64
}

// FromRow converts a stored aggregate row into in-memory State.
func FromRow(row model.Action) State {
	return State{ID: row.ID, Name: row.Name, Status: row.Status, CancelReason: row.CancelReason, Version: row.Version}
}

// ToRow converts in-memory State back into a storable row.
func (s State) ToRow() model.Action {
	return model.Action{ID: s.ID, Name: s.Name, Status: s.Status, CancelReason: s.CancelReason, Version: s.Version}
}

// Create produces the initial `action.created` event for a brand-new
// Action. There is no prior version to check: new aggregates start at
// version 1.
func Create(id, name string) (State, []aggregate.Event, *resultkind.Error) {
	if err := aggregate.RejectBlank("name", name); err != nil {
		return State{}, nil, err
	}
	s := State{ID: id, Name: strings.TrimSpace(name), Status: model.ActionActive, Version: 1}
	evt := aggregate.Event{
		AggregateType: "Action",
		AggregateID:   id,
		EventType:     "action.created",
		EventVersion:  1,
		Payload: map[string]any{
			"id":     id,
			"name":   s.Name,
			"status": string(s.Status),
		},
	}
	return s, []aggregate.Event{evt}, nil
}

// Complete transitions an active Action to inactive. Updates (including
// Complete/Cancel) are only allowed while active (spec §4.1).
func (s State) Complete(expectedVersion uint64) (State, []aggregate.Event, *resultkind.Error) {
	if err := aggregate.CheckVersion(s.Version, expectedVersion); err != nil {
		return s, nil, err
	}
	if s.Status != model.ActionActive {
		return s, nil, resultkind.NewRule("action.complete.not_active", "action is not active")
	}
	next := s
	next.Status = model.ActionInactive
	next.Version = s.Version + 1
	evt := aggregate.Event{
		AggregateType: "Action",
		AggregateID:   s.ID,
		EventType:     "action.completed",
		EventVersion:  1,
		Payload: map[string]any{
			"id":     s.ID,
			"status": map[string]string{"from": string(s.Status), "to": string(next.Status)},
		},
	}
	return next, []aggregate.Event{evt}, nil
}

// Cancel transitions an active Action to inactive, requiring a non-empty
// reason (spec §4.1).
func (s State) Cancel(expectedVersion uint64, reason string) (State, []aggregate.Event, *resultkind.Error) {
	if err := aggregate.CheckVersion(s.Version, expectedVersion); err != nil {
		return s, nil, err
	}
	if err := aggregate.RejectBlank("reason", reason); err != nil {
		return s, nil, err
	}
	if s.Status != model.ActionActive {
		return s, nil, resultkind.NewRule("action.cancel.not_active", "action is not active")
	}
	next := s
	next.Status = model.ActionInactive
	next.CancelReason = strings.TrimSpace(reason)
	next.Version = s.Version + 1
	evt := aggregate.Event{
		AggregateType: "Action",
		AggregateID:   s.ID,
		EventType:     "action.cancelled",
		EventVersion:  1,
		Payload: map[string]any{
			"id":     s.ID,
			"reason": next.CancelReason,
			"status": map[string]string{"from": string(s.Status), "to": string(next.Status)},
		},
	}
	return next, []aggregate.Event{evt}, nil
}

// Update performs a no-op-aware field update: an all-equal update succeeds
// with zero events and no version bump (spec §4.1 "No-op updates").
func (s State) Update(expectedVersion uint64, name string) (State, []aggregate.Event, *resultkind.Error) {
	if err := aggregate.CheckVersion(s.Version, expectedVersion); err != nil {
		return s, nil, err
	}
	if err := aggregate.RejectBlank("name", name); err != nil {
		return s, nil, err
	}
	if s.Status != model.ActionActive {
		return s, nil, resultkind.NewRule("action.update.not_active", "action is not active")
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == s.Name {
		return s, nil, nil
	}
	next := s
	next.Name = trimmed
	next.Version = s.Version + 1
	evt := aggregate.Event{
		AggregateType: "Action",
		AggregateID:   s.ID,
		EventType:     "action.updated",
		EventVersion:  1,
		Payload: map[string]any{
			"id":   s.ID,
			"name": map[string]string{"from": s.Name, "to": trimmed},
		},
	}
	return next, []aggregate.Event{evt}, nil
}
