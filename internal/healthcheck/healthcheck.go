package healthcheck

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/angeloszaimis/ai-gateway/internal/metrics"
	"github.com/angeloszaimis/ai-gateway/pkg/circuitbreaker"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Monitor periodically samples a breaker registry and reports state
// transitions. It only reads the registry.
type Monitor struct {
	registry  *circuitbreaker.Registry
	interval  time.Duration
	logger    *slog.Logger
	collector *metrics.Collector

	mutex sync.Mutex
	last  map[string]circuitbreaker.State
}

// NewMonitor builds a monitor. collector may be nil.
func NewMonitor(
	registry *circuitbreaker.Registry,
	interval time.Duration,
	logger *slog.Logger,
	collector *metrics.Collector,
) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Monitor{
		registry:  registry,
		interval:  interval,
		logger:    logger,
		collector: collector,
		last:      make(map[string]circuitbreaker.State),
	}
}

// Run calls Check on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Breaker monitor stopped")
			return

		case <-ticker.C:
			m.Check()
		}
	}
}

// Check compares every breaker with the state seen on the previous check and
// returns the number of transitions it reported.
func (m *Monitor) Check() int {
	stats := m.registry.Stats()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	changed := 0
	for service, st := range stats {
		prev, seen := m.last[service]
		m.last[service] = st.State

		if seen && prev == st.State {
			continue
		}
		// A new breaker that is still closed is not a transition.
		if !seen && st.State == circuitbreaker.StateClosed {
			continue
		}

		changed++
		m.report(service, prev, st)
	}

	return changed
}

func (m *Monitor) report(service string, prev circuitbreaker.State, st circuitbreaker.ServiceState) {
	attrs := []any{
		slog.String("service", service),
		slog.String("from", prev.String()),
		slog.String("to", st.State.String()),
	}

	switch st.State {
	case circuitbreaker.StateOpen:
		m.logger.Warn("Circuit opened", append(attrs, slog.Time("last_failure", st.LastFailure))...)
	case circuitbreaker.StateHalfOpen:
		m.logger.Info("Circuit half-open", attrs...)
	case circuitbreaker.StateClosed:
		m.logger.Info("Circuit closed", attrs...)
	}

	m.collector.Emit(metrics.MetricEvent{
		Type:    metrics.EventBreakerStateChanged,
		Service: service,
		State:   st.State.String(),
	})
}

type Report struct {
	Status   string                                 `json:"status"`
	Breakers map[string]circuitbreaker.ServiceState `json:"breakers"`
}

// Status reports degraded while any breaker is not closed.
func (m *Monitor) Status() Report {
	report := Report{
		Status:   StatusOK,
		Breakers: m.registry.Stats(),
	}

	for _, st := range report.Breakers {
		if st.State != circuitbreaker.StateClosed {
			report.Status = StatusDegraded
			break
		}
	}

	return report
}

// Handler serves Status. The response is always 200 while the process is
// able to answer; a degraded upstream does not make the gateway unhealthy.
func (m *Monitor) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
