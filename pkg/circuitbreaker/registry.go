package circuitbreaker

import (
	"sync"
	"time"
)

// Registry owns one breaker per service name. Breakers are created on first
// reference and live as long as the registry. All methods are safe for
// concurrent use and never fail.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*CircuitBreaker
	threshold int
	cooldown  time.Duration
	opts      []Option
}

func NewRegistry(threshold int, cooldown time.Duration, opts ...Option) *Registry {
	return &Registry{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		cooldown:  cooldown,
		opts:      opts,
	}
}

// NewDefaultRegistry uses DefaultFailureThreshold and DefaultCooldown.
func NewDefaultRegistry(opts ...Option) *Registry {
	return NewRegistry(DefaultFailureThreshold, DefaultCooldown, opts...)
}

func (r *Registry) GetBreaker(service string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[service]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[service]; exists {
		return cb
	}

	cb = NewCircuitBreaker(r.threshold, r.cooldown, r.opts...)
	r.breakers[service] = cb
	return cb
}

// AllowRequest reports whether a call to service may proceed.
func (r *Registry) AllowRequest(service string) bool {
	return r.GetBreaker(service).Allow()
}

func (r *Registry) RecordFailure(service string) {
	r.GetBreaker(service).RecordFailure()
}

func (r *Registry) RecordSuccess(service string) {
	r.GetBreaker(service).RecordSuccess()
}

func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
}

// Stats returns a snapshot of every breaker created so far.
func (r *Registry) Stats() map[string]ServiceState {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]ServiceState, len(r.breakers))
	for service, cb := range r.breakers {
		stats[service] = cb.Snapshot()
	}
	return stats
}
