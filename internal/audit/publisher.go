// Package audit keeps an append-only trail of submissions and operator
// reviews. Emission never blocks the ingestion path; a background worker
// persists queued events.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pollwatch/pkg/requestcontext"
)

const (
	defaultQueueSize = 512
	maxBatch         = 64
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, events ...Event) error
	List(ctx context.Context, q Query) ([]Event, error)
}

// Publisher captures audit events and hands them to a worker.
type Publisher struct {
	store  Store
	inbox  chan Event
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithQueueSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.inbox = make(chan Event, n)
		}
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		inbox:  make(chan Event, defaultQueueSize),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit fills identifiers from ctx and queues the event. When the queue is
// full the event is logged and dropped.
func (p *Publisher) Emit(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = requestcontext.Now(ctx).UTC()
	}
	ev.Category = ev.Action.Category()
	if ev.RequestID == "" {
		ev.RequestID = requestcontext.RequestID(ctx)
	}
	if op := requestcontext.Operator(ctx); op.ID != "" || op.Role != "" {
		ev.OperatorID, ev.OperatorRole = op.ID, op.Role
	}

	select {
	case p.inbox <- ev:
	default:
		p.logger.WarnContext(ctx, "audit queue full, dropping event",
			"action", ev.Action,
			"unit_id", ev.UnitID,
		)
	}
}

// List reads the persisted trail.
func (p *Publisher) List(ctx context.Context, q Query) ([]Event, error) {
	return p.store.List(ctx, q)
}

// Run persists queued events until ctx is cancelled, then flushes what is
// already queued. Store failures are logged; the worker keeps running.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case ev := <-p.inbox:
			p.persist(ctx, p.batch(ev))
		}
	}
}

func (p *Publisher) batch(first Event) []Event {
	events := []Event{first}
	for len(events) < maxBatch {
		select {
		case ev := <-p.inbox:
			events = append(events, ev)
		default:
			return events
		}
	}
	return events
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-p.inbox:
			p.persist(ctx, p.batch(ev))
		default:
			return
		}
	}
}

func (p *Publisher) persist(ctx context.Context, events []Event) {
	if err := p.store.Append(ctx, events...); err != nil {
		p.logger.ErrorContext(ctx, "failed to persist audit events",
			"count", len(events),
			"error", err,
		)
	}
}
