// Package audit implements the reference audit-sink handler (spec §4.8):
// one immutable audit row per event, exercising every contract the
// handler registry and idempotency ledger provide. Grounded on the
// teacher's idempotency-key short-circuit pattern in
// WalletService.Deposit/Withdraw (the TxExists check before writing) --
// reused here as "has the ledger already seen this (event, handler)?"
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/richardliu001/eventcore/internal/handler"
	"github.com/richardliu001/eventcore/internal/idgen"
	"github.com/richardliu001/eventcore/internal/model"
	"gorm.io/gorm"
)

// HandlerName is this handler's unique registry name.
const HandlerName = "AuditHandler"

// eventTypeToAction maps an event type to the audit action recorded for
// it (spec §4.8 "Mapping").
var eventTypeToAction = map[string]string{
	"action.created":   "create",
	"action.updated":   "update",
	"action.completed": "complete",
	"action.cancelled": "cancel",
	"policy.created":   "create",
	"policy.activated": "activate",
	"policy.suspended": "suspend",
	"policy.revoked":   "revoke",
}

// Handler writes one AuditRow per event it is invoked for. It carries no
// *gorm.DB of its own: Invoke always writes through the tx the worker
// passes in, the same tx the idempotency ledger records its witness row
// in (spec §4.4 I4, "same logical unit of work").
type Handler struct {
	IDs *idgen.Generator

	// fault is the controlled-fault test fixture (spec §4.8): when set, it
	// fails the first two invocations per (aggregateId,eventType) key and
	// succeeds the third, for exercising the retry ladder. It has no
	// production effect and must never be wired outside test fixtures.
	fault *faultInjector
}

// New constructs a production Handler with no fault injection.
func New(ids *idgen.Generator) *Handler {
	return &Handler{IDs: ids}
}

// WithControlledFault returns a copy of h that fails the first two
// invocations per (aggregateId, eventType) key and succeeds the third.
// Test-only: see spec §4.8 and §9 ("in-memory failure-simulation map...
// must not be part of the production binary's critical path").
func (h *Handler) WithControlledFault() *Handler {
	clone := *h
	clone.fault = newFaultInjector()
	return &clone
}

// Descriptor builds the handler.Descriptor subscribed to every event type
// this handler maps to an audit action.
func (h *Handler) Descriptor() handler.Descriptor {
	types := make([]string, 0, len(eventTypeToAction))
	for t := range eventTypeToAction {
		types = append(types, t)
	}
	return handler.NewDescriptor(HandlerName, types, h.Invoke)
}

// Invoke writes one audit row for evt using tx -- the same tx the worker
// commits the idempotency ledger's witness row in, so the audit row and
// the ledger entry either both land or both roll back together (spec
// §4.4 I4). Failure bubbles up so the queue/outbox retry paths engage
// (spec §4.8 "Failure semantics").
func (h *Handler) Invoke(ctx context.Context, tx *gorm.DB, evt handler.Event) error {
	if h.fault != nil {
		if err := h.fault.maybeFail(evt.AggregateID, evt.EventType); err != nil {
			return err
		}
	}

	action, ok := eventTypeToAction[evt.EventType]
	if !ok {
		action = evt.EventType // unmapped event types still get an audit trail
	}

	afterSnapshot, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("audit: marshal after-snapshot: %w", err)
	}

	var changes []byte
	if statusField, ok := evt.Payload["status"]; ok {
		// status-transition events carry {status:{from,to}}; surface it as
		// the synthetic changes map (spec §4.8 "Mapping").
		changes, err = json.Marshal(map[string]any{"status": statusField})
		if err != nil {
			return fmt.Errorf("audit: marshal changes: %w", err)
		}
	}

	metadataBytes, err := json.Marshal(evt.Metadata)
	if err != nil {
		return fmt.Errorf("audit: marshal metadata: %w", err)
	}

	row := model.AuditRow{
		ID:            h.IDs.Next(),
		CorrelationID: evt.Metadata.CorrelationID,
		EntityType:    evt.AggregateType,
		EntityID:      evt.AggregateID,
		Action:        action,
		ActorID:       evt.Metadata.Actor.ID,
		ActorEmail:    evt.Metadata.Actor.Email,
		AfterSnapshot: string(afterSnapshot),
		Changes:       string(changes),
		Metadata:      string(metadataBytes),
	}
	return tx.WithContext(ctx).Create(&row).Error
}

// faultInjector is the in-memory failure-simulation map backing
// WithControlledFault. It is never constructed in the production path
// (New never sets it).
type faultInjector struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFaultInjector() *faultInjector {
	return &faultInjector{counts: make(map[string]int)}
}

func (f *faultInjector) maybeFail(aggregateID, eventType string) error {
	key := aggregateID + "|" + eventType
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	if f.counts[key] <= 2 {
		return fmt.Errorf("audit: simulated failure (attempt %d) for %s", f.counts[key], key)
	}
	return nil
}
