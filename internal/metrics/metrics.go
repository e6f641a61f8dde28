package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex             sync.RWMutex
	calls             map[string]int64
	successes         map[string]int64
	failures          map[string]int64
	circuitRejections map[string]int64
	policyRejections  map[string]int64
	latencies         map[string][]time.Duration
	breakerStates     map[string]string
	startTime         time.Time
}

type Snapshot struct {
	TotalCalls int64                     `json:"total_calls"`
	Uptime     time.Duration             `json:"uptime"`
	Services   map[string]ServiceMetrics `json:"services"`
}

type ServiceMetrics struct {
	Calls             int64         `json:"calls"`
	Successes         int64         `json:"successes"`
	UpstreamFailures  int64         `json:"upstream_failures"`
	CircuitRejections int64         `json:"circuit_rejections"`
	PolicyRejections  int64         `json:"policy_rejections"`
	BreakerState      string        `json:"breaker_state,omitempty"`
	AvgLatency        time.Duration `json:"avg_latency"`
	P50Latency        time.Duration `json:"p50_latency"`
	P95Latency        time.Duration `json:"p95_latency"`
	P99Latency        time.Duration `json:"p99_latency"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		calls:             make(map[string]int64),
		successes:         make(map[string]int64),
		failures:          make(map[string]int64),
		circuitRejections: make(map[string]int64),
		policyRejections:  make(map[string]int64),
		latencies:         make(map[string][]time.Duration),
		breakerStates:     make(map[string]string),
		startTime:         time.Now(),
	}
}

// RecordCall counts a call that reached the provider.
func (m *Metrics) RecordCall(service string, duration time.Duration, ok bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.calls[service]++
	if ok {
		m.successes[service]++
	} else {
		m.failures[service]++
	}

	m.latencies[service] = append(m.latencies[service], duration)
	if len(m.latencies[service]) > maxSamples {
		m.latencies[service] = m.latencies[service][1:]
	}
}

func (m *Metrics) IncrementCircuitRejections(service string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.circuitRejections[service]++
}

func (m *Metrics) IncrementPolicyRejections(service string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.policyRejections[service]++
}

func (m *Metrics) UpdateBreakerState(service, state string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.breakerStates[service] = state
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(m.startTime),
		Services: make(map[string]ServiceMetrics),
	}

	services := make(map[string]struct{})
	for _, counts := range []map[string]int64{m.calls, m.circuitRejections, m.policyRejections} {
		for service := range counts {
			services[service] = struct{}{}
		}
	}
	for service := range m.breakerStates {
		services[service] = struct{}{}
	}

	for service := range services {
		snap.TotalCalls += m.calls[service]

		sm := ServiceMetrics{
			Calls:             m.calls[service],
			Successes:         m.successes[service],
			UpstreamFailures:  m.failures[service],
			CircuitRejections: m.circuitRejections[service],
			PolicyRejections:  m.policyRejections[service],
			BreakerState:      m.breakerStates[service],
		}

		if durations := m.latencies[service]; len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			sm.AvgLatency = average(sorted)
			sm.P50Latency = percentile(sorted, 0.50)
			sm.P95Latency = percentile(sorted, 0.95)
			sm.P99Latency = percentile(sorted, 0.99)
		}

		snap.Services[service] = sm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
