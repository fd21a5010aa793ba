// Package handler implements explicit, deterministic handler discovery
// (spec §4.4, §9): no reflection, no decorator-driven registration — each
// handler is constructed and then registered by name at startup. Grounded
// on the teacher's internal/transport/http/handler.go, which wires routes
// the same explicit way (`v1.POST("/wallets/:id/deposit",
// depositHandler(svc))`), generalized from HTTP routes to event handlers.
package handler

import (
	"context"
	"fmt"

	"github.com/richardliu001/eventcore/internal/model"
	"gorm.io/gorm"
)

// Event is the in-memory reconstruction of a domain event the worker
// hands to a handler (spec §4.4 step 1).
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       map[string]any
	Metadata      model.EventMetadata
}

// Descriptor is one registered handler: a unique name, the event types it
// subscribes to, and its invocation function. Invoke receives the same tx
// the worker uses for its idempotency-ledger insert, so a handler that
// writes to the same database can make that write and the ledger's
// witness row land in one transaction (spec §4.4 I4); handlers with no
// database writes of their own simply ignore tx.
type Descriptor struct {
	Name                 string
	SubscribedEventTypes map[string]struct{}
	Invoke               func(ctx context.Context, tx *gorm.DB, evt Event) error
}

// Subscribes reports whether this descriptor handles eventType.
func (d Descriptor) Subscribes(eventType string) bool {
	_, ok := d.SubscribedEventTypes[eventType]
	return ok
}

// NewDescriptor builds a Descriptor subscribed to the given event types.
func NewDescriptor(name string, eventTypes []string, invoke func(ctx context.Context, tx *gorm.DB, evt Event) error) Descriptor {
	set := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		set[t] = struct{}{}
	}
	return Descriptor{Name: name, SubscribedEventTypes: set, Invoke: invoke}
}

// Registry maps event type -> ordered list of handler descriptors. It is
// populated once at startup and is read-mostly thereafter (spec §5).
type Registry struct {
	byName  map[string]Descriptor
	ordered []Descriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Descriptor)}
}

// Register adds a handler descriptor. Registering the same handler name
// twice is a configuration error and fails loudly, per spec §4.4/§9.
func (r *Registry) Register(d Descriptor) error {
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("handler registry: handler %q already registered", d.Name)
	}
	r.byName[d.Name] = d
	r.ordered = append(r.ordered, d)
	return nil
}

// MustRegister panics if Register fails; intended for startup wiring where
// a duplicate handler name is a programming bug, not an expected failure.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// HandlersFor returns, in registration order, every descriptor subscribed
// to eventType.
func (r *Registry) HandlersFor(eventType string) []Descriptor {
	var matched []Descriptor
	for _, d := range r.ordered {
		if d.Subscribes(eventType) {
			matched = append(matched, d)
		}
	}
	return matched
}
