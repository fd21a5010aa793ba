// Package callerctx carries correlation id, causation id, and actor
// identity across synchronous and asynchronous boundaries without
// threading them through every function signature (spec §4.6).
package callerctx

import (
	"context"
	"time"
)

// Actor identifies who triggered a command or event.
type Actor struct {
	ID        string
	Email     string
	AccountID string // optional; empty when not applicable
}

// System is the sentinel actor used when a background process (the
// dispatcher, the worker) acts without an originating human or service
// caller.
var System = Actor{ID: "system", Email: "system@internal"}

// Context is the caller context threaded through a command or event.
type Context struct {
	CorrelationID string
	CausationID   string
	Actor         Actor
	Timestamp     time.Time
}

type ctxKey struct{}

// Run executes fn with c bound as the current context for the duration of
// fn and any nested calls; nesting replaces the visible context only for
// the nested scope, restoring the outer context on return.
func Run(ctx context.Context, c Context, fn func(ctx context.Context)) {
	fn(context.WithValue(ctx, ctxKey{}, c))
}

// Current returns the context bound by the nearest enclosing Run, and
// false if none is bound.
func Current(ctx context.Context) (Context, bool) {
	c, ok := ctx.Value(ctxKey{}).(Context)
	return c, ok
}

// WithValue returns ctx with c attached, for call sites that don't need
// the callback style of Run (e.g. gin handlers that already own ctx).
func WithValue(ctx context.Context, c Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromEventMetadata constructs a fresh background caller context seeded
// from event metadata: correlation id is preserved, causation id becomes
// the triggering event's id, and the actor is copied from the metadata or
// defaults to the System sentinel. Worker code MUST call this rather than
// inherit a parent scope's context across the async boundary (spec §4.6).
func FromEventMetadata(correlationID, eventID string, actor *Actor, now time.Time) Context {
	a := System
	if actor != nil {
		a = *actor
	}
	return Context{
		CorrelationID: correlationID,
		CausationID:   eventID,
		Actor:         a,
		Timestamp:     now,
	}
}
