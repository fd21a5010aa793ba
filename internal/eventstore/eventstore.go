// Package eventstore persists domain events and their outbox entries in a
// single database transaction (spec §4.2). Grounded on the teacher's
// paired CreateOutboxEvent+CreateTransaction calls in
// internal/repo/repo.go, generalized from wallet transactions to
// arbitrary aggregate events.
package eventstore

import (
	"encoding/json"
	"fmt"

	"github.com/richardliu001/eventcore/internal/aggregate"
	"github.com/richardliu001/eventcore/internal/callerctx"
	"github.com/richardliu001/eventcore/internal/clock"
	"github.com/richardliu001/eventcore/internal/idgen"
	"github.com/richardliu001/eventcore/internal/model"
	"github.com/richardliu001/eventcore/internal/resultkind"
	"gorm.io/gorm"
)

// DefaultMaxPayloadBytes caps event payload size to protect the queue from
// oversized messages; spec §9 leaves this unbounded and recommends a
// configurable cap.
const DefaultMaxPayloadBytes = 256 * 1024

// DefaultMaxAttempts is the outbox row's redelivery ceiling applied when the
// store hasn't been configured with a dispatcher-specific value.
const DefaultMaxAttempts = 5

// Store persists events and their outbox entries.
type Store struct {
	IDs             *idgen.Generator
	Clock           clock.Clock
	MaxPayloadBytes int
	MaxAttempts     int
}

// New returns a Store with the given id generator and clock.
func New(ids *idgen.Generator, clk clock.Clock) *Store {
	return &Store{IDs: ids, Clock: clk, MaxPayloadBytes: DefaultMaxPayloadBytes, MaxAttempts: DefaultMaxAttempts}
}

// PersistEvents inserts each event into the event log and a matching
// pending outbox row, inside the caller-supplied transaction. Events are
// persisted in input order (spec §5 "Ordering"). Returns the generated
// event ids in input order.
func (s *Store) PersistEvents(tx *gorm.DB, events []aggregate.Event, meta aggregate.Meta) ([]string, *resultkind.Error) {
	ids := make([]string, 0, len(events))
	for _, evt := range events {
		eventID := s.IDs.Next()
		occurredAt := s.Clock.Now()

		payloadBytes, err := json.Marshal(evt.Payload)
		if err != nil {
			return nil, resultkind.New(resultkind.Internal, fmt.Sprintf("marshal payload: %v", err))
		}
		if len(payloadBytes) > s.maxPayloadBytes() {
			return nil, resultkind.New(resultkind.Validation, "event payload exceeds max size")
		}

		md := model.EventMetadata{
			CorrelationID:     meta.CorrelationID,
			CausationID:       meta.CausationID,
			Actor:             model.Actor{ID: meta.Actor.ID, Email: meta.Actor.Email, AccountID: meta.Actor.AccountID},
			ProducerTimestamp: meta.Timestamp,
			EventVersion:      evt.EventVersion,
		}
		metaBytes, err := json.Marshal(md)
		if err != nil {
			return nil, resultkind.New(resultkind.Internal, fmt.Sprintf("marshal metadata: %v", err))
		}

		row := model.DomainEvent{
			ID:            eventID,
			AggregateType: evt.AggregateType,
			AggregateID:   evt.AggregateID,
			EventType:     evt.EventType,
			EventVersion:  evt.EventVersion,
			Payload:       string(payloadBytes),
			Metadata:      string(metaBytes),
			CorrelationID: meta.CorrelationID,
			OccurredAt:    occurredAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return nil, resultkind.New(resultkind.Infrastructure, fmt.Sprintf("insert domain event: %v", err))
		}

		// The outbox payload blob embeds the full event + metadata so
		// dispatch never needs to re-read the event row (spec §4.2).
		outboxPayload, err := json.Marshal(map[string]any{
			"eventId":       eventID,
			"eventType":     evt.EventType,
			"aggregateType": evt.AggregateType,
			"aggregateId":   evt.AggregateID,
			"payload":       evt.Payload,
			"metadata":      md,
		})
		if err != nil {
			return nil, resultkind.New(resultkind.Internal, fmt.Sprintf("marshal outbox payload: %v", err))
		}

		outboxRow := model.OutboxEntry{
			ID:            s.IDs.Next(),
			EventID:       eventID,
			EventType:     evt.EventType,
			AggregateType: evt.AggregateType,
			AggregateID:   evt.AggregateID,
			Payload:       string(outboxPayload),
			Status:        model.OutboxPending,
			Attempts:      0,
			MaxAttempts:   s.maxAttempts(),
		}
		if err := tx.Create(&outboxRow).Error; err != nil {
			return nil, resultkind.New(resultkind.Infrastructure, fmt.Sprintf("insert outbox entry: %v", err))
		}

		ids = append(ids, eventID)
	}
	return ids, nil
}

func (s *Store) maxPayloadBytes() int {
	if s.MaxPayloadBytes <= 0 {
		return DefaultMaxPayloadBytes
	}
	return s.MaxPayloadBytes
}

func (s *Store) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return s.MaxAttempts
}

// MetaFromCallerContext builds aggregate.Meta from a callerctx.Context,
// stamping the current time from the store's clock.
func (s *Store) MetaFromCallerContext(c callerctx.Context) aggregate.Meta {
	return aggregate.Meta{
		CorrelationID: c.CorrelationID,
		CausationID:   c.CausationID,
		Actor:         c.Actor,
		Timestamp:     s.Clock.Now(),
	}
}
