package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the notification dispatcher.
type Metrics struct {
	Notifications *prometheus.CounterVec
	Evicted       prometheus.Counter
	RelayDropped  prometheus.Counter
}

// New registers the dispatcher metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pollwatch_notifications_total",
			Help: "Notifications created by category",
		}, []string{"category"}),
		Evicted: f.NewCounter(prometheus.CounterOpts{
			Name: "pollwatch_notifications_evicted_total",
			Help: "Notifications evicted from the bounded buffer",
		}),
		RelayDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "pollwatch_notifications_relay_dropped_total",
			Help: "Notifications not handed to the relay because its queue was full",
		}),
	}
}

func (m *Metrics) IncrementNotification(category string) {
	if m != nil {
		m.Notifications.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) IncrementEvicted() {
	if m != nil {
		m.Evicted.Inc()
	}
}

func (m *Metrics) IncrementRelayDropped() {
	if m != nil {
		m.RelayDropped.Inc()
	}
}
