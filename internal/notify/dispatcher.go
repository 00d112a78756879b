// Package notify turns ingestion events into in-process notifications held
// in a bounded, most-recent-first buffer.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"pollwatch/internal/notify/metrics"
	"pollwatch/internal/results"
	"pollwatch/pkg/platform/ring"
	"pollwatch/pkg/requestcontext"
)

// Listener observes every created notification. It runs on the ingestion
// path and must not block.
type Listener func(ctx context.Context, ev Event)

// Dispatcher keeps the most recent notifications. When the buffer is full the
// oldest notification is evicted.
type Dispatcher struct {
	events    *ring.Buffer[Event]
	listeners []Listener
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithListener registers l to observe new notifications.
func WithListener(l Listener) Option {
	return func(d *Dispatcher) {
		d.listeners = append(d.listeners, l)
	}
}

// New creates a dispatcher holding at most capacity notifications.
// A non-positive capacity uses ring.DefaultCapacity.
func New(capacity int, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		events: ring.New[Event](capacity),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnSubmission records that a unit submitted a result.
func (d *Dispatcher) OnSubmission(ctx context.Context, unitID, region string) {
	d.push(ctx, Event{
		Category: CategorySubmission,
		Severity: results.SeverityLow,
		Title:    "New Result Uploaded",
		Message:  fmt.Sprintf("Polling Unit %s (%s) just submitted results.", unitID, region),
		UnitID:   unitID,
	})
}

// OnAnomaly records a finding raised against a unit.
func (d *Dispatcher) OnAnomaly(ctx context.Context, f results.Finding) {
	d.push(ctx, Event{
		Category: CategoryAnomaly,
		Severity: f.Severity,
		Title:    "Anomaly Detected",
		Message:  fmt.Sprintf("%s at %s: %s", f.Kind, f.UnitID, f.Description),
		UnitID:   f.UnitID,
	})
}

// ListRecent returns up to limit notifications, newest first.
func (d *Dispatcher) ListRecent(limit int) []Event {
	return d.events.Recent(limit)
}

// MarkAllRead flags every held notification as read and returns how many
// changed.
func (d *Dispatcher) MarkAllRead() int {
	changed := 0
	d.events.Update(func(ev *Event) {
		if !ev.Read {
			ev.Read = true
			changed++
		}
	})
	return changed
}

// Unread counts held notifications not yet read.
func (d *Dispatcher) Unread() int {
	n := 0
	for _, ev := range d.events.Recent(0) {
		if !ev.Read {
			n++
		}
	}
	return n
}

func (d *Dispatcher) push(ctx context.Context, ev Event) {
	ev.ID = uuid.NewString()
	ev.CreatedAt = requestcontext.Now(ctx).UTC()
	if d.events.Push(ev) {
		d.metrics.IncrementEvicted()
		d.logger.DebugContext(ctx, "oldest notification evicted", "capacity", d.events.Cap())
	}
	d.metrics.IncrementNotification(string(ev.Category))
	for _, l := range d.listeners {
		l(ctx, ev)
	}
}
