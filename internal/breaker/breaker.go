// Package breaker implements the C2 circuit breaker: per-provider CLOSED /
// OPEN / HALF_OPEN state machines that stop calls to a misbehaving provider
// before the retry orchestrator wastes an attempt on it.
package breaker

import (
	"sync"
	"time"

	"github.com/nimbus-gateway/orchestrator/internal/config"
	"github.com/nimbus-gateway/orchestrator/internal/model"
)

// State is the circuit breaker's lifecycle state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// EventSink receives a notification every time a breaker changes state, for
// the C6 circuit_breaker_events audit stream.
type EventSink interface {
	CircuitBreakerEvent(provider string, stateChange string, failureCount int, context map[string]interface{})
}

// Stats is the point-in-time breaker view returned by get_provider_health.
type Stats struct {
	State            State      `json:"state"`
	FailureCount     int        `json:"failure_count"`
	SuccessCount     int        `json:"success_count"`
	LastFailureTime  *time.Time `json:"last_failure_time,omitempty"`
	HalfOpenCalls    int        `json:"half_open_calls"`
	FailureThreshold int        `json:"failure_threshold"`
	TimeoutSeconds   float64    `json:"timeout_seconds"`
	HalfOpenMaxCalls int        `json:"half_open_max_calls"`
}

// Breaker is one provider's circuit breaker. A coarse mutex guards every
// field; check-then-act sequences (state read, threshold compare, state
// write) always happen under the same lock acquisition.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	timeout          time.Duration
	halfOpenMaxCalls int

	state           State
	failureCount    int
	successCount    int
	halfOpenCalls   int
	lastFailureTime *time.Time

	sink EventSink
}

// New constructs a Breaker in the CLOSED state from cfg.
func New(cfg config.Config) *Breaker {
	return &Breaker{
		failureThreshold: cfg.FailureThreshold,
		timeout:          cfg.BreakerTimeout,
		halfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		state:            StateClosed,
	}
}

// Allow reports whether a call may proceed right now, transitioning OPEN to
// HALF_OPEN when the timeout has elapsed. It does not itself record an attempt
// against the half-open budget — Call does that around the wrapped invocation.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowLocked()
}

func (b *Breaker) allowLocked() bool {
	switch b.state {
	case StateOpen:
		if b.shouldAttemptResetLocked() {
			b.state = StateHalfOpen
			b.halfOpenCalls = 0
			return true
		}
		return false
	case StateHalfOpen:
		return b.halfOpenCalls < b.halfOpenMaxCalls
	default:
		return true
	}
}

func (b *Breaker) shouldAttemptResetLocked() bool {
	if b.lastFailureTime == nil {
		return true
	}
	return time.Since(*b.lastFailureTime) >= b.timeout
}

// Call runs fn through the breaker, returning model.CircuitOpenError without
// invoking fn when the breaker is not presently allowing calls.
func (b *Breaker) Call(providerName string, fn func() error) error {
	b.mu.Lock()
	prior := b.state
	if !b.allowLocked() {
		b.mu.Unlock()
		return &model.CircuitOpenError{Provider: providerName}
	}
	if b.state == StateHalfOpen {
		b.halfOpenCalls++
	}
	probing := b.state != prior
	probeSink, probeFailures := b.sink, b.failureCount
	b.mu.Unlock()

	if probing && probeSink != nil {
		probeSink.CircuitBreakerEvent(providerName, string(prior)+"->"+string(StateHalfOpen), probeFailures, map[string]interface{}{
			"trigger": "timeout_elapsed",
		})
	}

	err := fn()

	b.mu.Lock()
	before := b.state
	if err != nil {
		b.onFailureLocked()
	} else {
		b.onSuccessLocked()
	}
	after := b.state
	failureCount := b.failureCount
	sink := b.sink
	b.mu.Unlock()

	if sink != nil && after != before {
		sink.CircuitBreakerEvent(providerName, string(before)+"->"+string(after), failureCount, map[string]interface{}{
			"trigger": "call_outcome",
		})
	}
	return err
}

func (b *Breaker) onSuccessLocked() {
	b.successCount++
	switch b.state {
	case StateHalfOpen:
		if b.halfOpenCalls >= b.halfOpenMaxCalls {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
		}
	case StateClosed:
		if b.failureCount > 0 {
			b.failureCount--
		}
	}
}

func (b *Breaker) onFailureLocked() {
	b.failureCount++
	now := time.Now()
	b.lastFailureTime = &now

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
	case StateClosed:
		if b.failureCount >= b.failureThreshold {
			b.state = StateOpen
		}
	}
}

// ForceOpen administratively opens the breaker (simulate_scenario, ops tooling).
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.state = StateOpen
	b.lastFailureTime = &now
}

// ForceClose administratively resets the breaker to CLOSED with zeroed counters.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.halfOpenCalls = 0
	b.lastFailureTime = nil
}

// State returns the breaker's current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether the breaker is presently blocking calls outright
// (OPEN and not yet eligible for a half-open probe).
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateOpen && !b.shouldAttemptResetLocked()
}

// Stats returns a snapshot for health reporting and diagnostics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:            b.state,
		FailureCount:     b.failureCount,
		SuccessCount:     b.successCount,
		LastFailureTime:  b.lastFailureTime,
		HalfOpenCalls:    b.halfOpenCalls,
		FailureThreshold: b.failureThreshold,
		TimeoutSeconds:   b.timeout.Seconds(),
		HalfOpenMaxCalls: b.halfOpenMaxCalls,
	}
}

// Registry owns one Breaker per provider name, created lazily on first use.
type Registry struct {
	mu       sync.Mutex
	cfg      config.Config
	breakers map[string]*Breaker
	sink     EventSink
}

// NewRegistry constructs an empty Registry using cfg for every lazily-created Breaker.
func NewRegistry(cfg config.Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// SetEventSink wires sink into the registry: every breaker it has already
// created, plus every one it creates from now on, reports its organic state
// transitions (via Call) there.
func (r *Registry) SetEventSink(sink EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
	for _, b := range r.breakers {
		b.mu.Lock()
		b.sink = sink
		b.mu.Unlock()
	}
}

// Get returns the named provider's Breaker, creating it on first access.
func (r *Registry) Get(providerName string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[providerName]
	if !ok {
		b = New(r.cfg)
		b.sink = r.sink
		r.breakers[providerName] = b
	}
	return b
}

// ForceOpen administratively opens the named provider's breaker and reports
// the transition — simulate_scenario's circuit_breaker_test.
func (r *Registry) ForceOpen(providerName string) {
	b := r.Get(providerName)
	b.ForceOpen()
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink.CircuitBreakerEvent(providerName, "->open", b.Stats().FailureCount, map[string]interface{}{
			"trigger": "force_open",
		})
	}
}

// ForceClose administratively resets the named provider's breaker to CLOSED
// and reports the transition — simulate_scenario's reset_all.
func (r *Registry) ForceClose(providerName string) {
	b := r.Get(providerName)
	b.ForceClose()
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink.CircuitBreakerEvent(providerName, "->closed", 0, map[string]interface{}{
			"trigger": "force_close",
		})
	}
}

// Snapshot returns every known provider's breaker state keyed by name.
func (r *Registry) Snapshot() map[string]Stats {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	breakers := make([]*Breaker, 0, len(r.breakers))
	for name, b := range r.breakers {
		names = append(names, name)
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make(map[string]Stats, len(names))
	for i, name := range names {
		out[name] = breakers[i].Stats()
	}
	return out
}
