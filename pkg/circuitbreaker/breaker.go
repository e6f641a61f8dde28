package circuitbreaker

import (
	"sync"
	"time"
)

const (
	// DefaultFailureThreshold is the number of consecutive failures that trips a closed breaker.
	DefaultFailureThreshold = 3
	// DefaultCooldown is how long an open breaker rejects calls before admitting a probe.
	DefaultCooldown = 30 * time.Second
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests
	StateHalfOpen              // Testing with one request
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ServiceState is a point-in-time copy of one breaker.
// Failures is only meaningful while State is StateClosed.
type ServiceState struct {
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"lastFailure,omitzero"`
}

// Option customises a breaker or registry.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mostly for tests that simulate cooldowns.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type CircuitBreaker struct {
	mutex            sync.Mutex
	state            State
	failures         int
	lastFailure      time.Time
	probeAdmitted    time.Time
	probeOutstanding bool
	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time
}

// NewCircuitBreaker returns a closed breaker. Non-positive arguments fall back
// to DefaultFailureThreshold and DefaultCooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration, opts ...Option) *CircuitBreaker {
	if threshold < 1 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	o := buildOptions(opts)

	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: threshold,
		cooldown:         cooldown,
		now:              o.now,
	}
}

// Allow reports whether a call may proceed. An open breaker whose cooldown
// has strictly elapsed moves to half-open and admits the caller as the probe
// in the same step. While half-open only that probe is admitted; a probe that
// never reports back is replaced once another cooldown has passed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := cb.now()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(cb.lastFailure) > cb.cooldown {
			cb.state = StateHalfOpen
			cb.admitProbe(now)
			return true
		}

		return false
	case StateHalfOpen:
		if !cb.probeOutstanding || now.Sub(cb.probeAdmitted) > cb.cooldown {
			cb.admitProbe(now)
			return true
		}

		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) admitProbe(now time.Time) {
	cb.probeOutstanding = true
	cb.probeAdmitted = now
}

// RecordFailure counts a failed call. In half-open a single failure re-opens
// the breaker; in closed the breaker opens once the threshold is reached.
// A failure reported while already open restarts the cooldown.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.lastFailure = cb.now()

	switch cb.state {
	case StateHalfOpen:
		cb.trip()
	case StateOpen:
		// still open, cooldown restarts from lastFailure
	default:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.trip()
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.probeOutstanding = false
}

// RecordSuccess closes the breaker from any state and clears its counters,
// including a late success that lands after the breaker already tripped.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.lastFailure = time.Time{}
	cb.probeOutstanding = false
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Snapshot returns a copy of the breaker's current bookkeeping.
func (cb *CircuitBreaker) Snapshot() ServiceState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return ServiceState{
		State:       cb.state,
		Failures:    cb.failures,
		LastFailure: cb.lastFailure,
	}
}
