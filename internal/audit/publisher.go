package audit

import (
	"context"
	"errors"

	"pollworker/pkg/requestcontext"
)

// ErrQueueFull is returned when the async publisher cannot accept an event.
var ErrQueueFull = errors.New("audit queue full")

// Store persists audit events append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByApplication(ctx context.Context, applicationID string) ([]Event, error)
}

// Publisher writes events straight to the store.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, base Event) error {
	return p.store.Append(ctx, stamp(ctx, base))
}

func (p *Publisher) List(ctx context.Context, applicationID string) ([]Event, error) {
	return p.store.ListByApplication(ctx, applicationID)
}

// QueuePublisher hands events to a Worker without blocking the caller.
type QueuePublisher struct {
	store Store
	queue chan Event
}

// NewQueuePublisher creates a publisher buffering up to size events.
func NewQueuePublisher(store Store, size int) *QueuePublisher {
	return &QueuePublisher{store: store, queue: make(chan Event, size)}
}

func (p *QueuePublisher) Emit(ctx context.Context, base Event) error {
	select {
	case p.queue <- stamp(ctx, base):
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *QueuePublisher) List(ctx context.Context, applicationID string) ([]Event, error) {
	return p.store.ListByApplication(ctx, applicationID)
}

// Inbox exposes the queue for the worker.
func (p *QueuePublisher) Inbox() <-chan Event {
	return p.queue
}

func stamp(ctx context.Context, e Event) Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	return e
}
