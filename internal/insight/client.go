package insight

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"pollwatch/internal/insight/metrics"
	dErrors "pollwatch/pkg/domain-errors"
	"pollwatch/pkg/platform/circuit"
)

const (
	opAnomalies = "anomalies"
	opSummary   = "summary"

	// DefaultTimeout bounds every gateway call.
	DefaultTimeout = 8 * time.Second
)

var tracer = otel.Tracer("pollwatch/insight")

// Client wraps a Gateway with a timeout, a circuit breaker and fallbacks.
// Its methods never return errors.
type Client struct {
	gateway Gateway
	breaker *circuit.Breaker
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) ClientOption {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient wraps gateway. A nil gateway yields a client that always
// degrades, which is how the engine runs with no API key configured.
func NewClient(gateway Gateway, opts ...ClientOption) *Client {
	c := &Client{
		gateway: gateway,
		breaker: circuit.New("insight"),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available reports whether a gateway is configured.
func (c *Client) Available() bool {
	return c.gateway != nil
}

// Anomalies returns narrated anomalies, or nil when the gateway is absent,
// failing or short-circuited.
func (c *Client) Anomalies(ctx context.Context, units []UnitData) []Report {
	if len(units) == 0 {
		return nil
	}
	var reports []Report
	c.call(ctx, opAnomalies, func(ctx context.Context) error {
		got, err := c.gateway.AnalyzeAnomalies(ctx, units)
		if err == nil {
			reports = got
		}
		return err
	})
	return reports
}

// Summary returns a Markdown report, or UnavailableMessage on any failure.
func (c *Client) Summary(ctx context.Context, in SummaryInput) string {
	report := UnavailableMessage
	c.call(ctx, opSummary, func(ctx context.Context) error {
		got, err := c.gateway.ExecutiveSummary(ctx, in)
		if err == nil {
			report = got
		}
		return err
	})
	return report
}

func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) {
	if c.gateway == nil {
		return
	}
	ctx, span := tracer.Start(ctx, "insight."+op)
	defer span.End()

	if !c.breaker.Allow() {
		c.metrics.IncrementCall(op, "short_circuit")
		c.logger.DebugContext(ctx, "insight gateway short-circuited", "operation", op)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	err := fn(callCtx)
	c.metrics.ObserveCallLatency(op, time.Since(start))

	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeGatewayUnavailable, "insight gateway call failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeGatewayUnavailable))
		c.metrics.IncrementCall(op, "failure")
		_, change := c.breaker.RecordFailure()
		if change.Opened {
			c.metrics.SetBreakerOpen(true)
			c.logger.WarnContext(ctx, "insight circuit breaker opened", "operation", op)
		}
		c.logger.WarnContext(ctx, "insight gateway unavailable, using rule-based results only",
			"operation", op,
			"error", err,
		)
		return
	}

	c.metrics.IncrementCall(op, "success")
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.metrics.SetBreakerOpen(false)
		c.logger.InfoContext(ctx, "insight circuit breaker closed", "operation", op)
	}
}
