package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"pollwatch/internal/notify/metrics"
)

// Publisher delivers an encoded notification outside the process.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte)
}

// Relay forwards notifications to a Publisher from its own goroutine so the
// dispatcher never waits on a broker. When the queue is full new
// notifications are dropped for the relay only; the buffer still holds them.
type Relay struct {
	publisher Publisher
	inbox     chan Event
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewRelay creates a relay with a queue of size queueSize.
func NewRelay(publisher Publisher, queueSize int, logger *slog.Logger, m *metrics.Metrics) *Relay {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Relay{
		publisher: publisher,
		inbox:     make(chan Event, queueSize),
		logger:    logger,
		metrics:   m,
	}
}

// Listener returns the dispatcher hook feeding this relay.
func (r *Relay) Listener() Listener {
	return func(ctx context.Context, ev Event) {
		select {
		case r.inbox <- ev:
		default:
			r.metrics.IncrementRelayDropped()
			r.logger.WarnContext(ctx, "notification relay queue full", "notification_id", ev.ID)
		}
	}
}

// Run publishes queued notifications until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.inbox:
			payload, err := json.Marshal(ev)
			if err != nil {
				r.logger.ErrorContext(ctx, "failed to encode notification", "notification_id", ev.ID, "error", err)
				continue
			}
			r.publisher.Publish(ctx, ev.UnitID, payload)
		}
	}
}
