package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventCallSucceeded       EventType = "call_succeeded"
	EventCallFailed          EventType = "call_failed"
	EventCircuitRejected     EventType = "circuit_rejected"
	EventPolicyRejected      EventType = "policy_rejected"
	EventBreakerStateChanged EventType = "breaker_state_changed"
)

type MetricEvent struct {
	Type      EventType
	Timestamp time.Time
	Service   string
	Operation string
	Duration  time.Duration
	State     string
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues an event without blocking. Events are dropped when the buffer
// is full. A nil collector ignores events.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Metrics buffer full, dropping event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventCallSucceeded:
		c.metrics.RecordCall(event.Service, event.Duration, true)

	case EventCallFailed:
		c.metrics.RecordCall(event.Service, event.Duration, false)

	case EventCircuitRejected:
		c.metrics.IncrementCircuitRejections(event.Service)

	case EventPolicyRejected:
		c.metrics.IncrementPolicyRejections(event.Service)

	case EventBreakerStateChanged:
		c.metrics.UpdateBreakerState(event.Service, event.State)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
