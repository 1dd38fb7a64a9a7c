package session

import (
	"context"
	"time"
)

// EventKind names a state-machine outcome.
type EventKind string

const (
	EventIssued        EventKind = "issued"
	EventScanned       EventKind = "scanned"
	EventAuthenticated EventKind = "authenticated"
	EventCancelled     EventKind = "cancelled"
	EventExpired       EventKind = "expired"
	EventRejected      EventKind = "rejected"
	EventSwept         EventKind = "swept"
)

// Event is emitted after every state-machine operation.
// Session is the post-operation view and never carries the plain token.
type Event struct {
	Kind    EventKind
	Op      string
	Session AuthSession
	Err     error // EventRejected only
	Count   int   // EventSwept only
	At      time.Time
}

// Observer receives events synchronously from the operation that produced
// them. Implementations must not block on I/O.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans one event out to many observers in order.
type Observers []Observer

func (os Observers) Observe(ctx context.Context, ev Event) {
	for _, o := range os {
		if o != nil {
			o.Observe(ctx, ev)
		}
	}
}
