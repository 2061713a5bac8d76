package llm

import (
	"sync"
	"time"
)

// CircuitState is one of the three states a CircuitBreaker can be in.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker trips after FailureThreshold consecutive failures, refuses
// calls for Timeout, then allows one trial call (half-open) before
// deciding whether to close again or re-open. Ported from llm_service.py's
// CircuitBreaker class.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	timeout          time.Duration
	state            CircuitState
	failureCount     int
	lastFailureAt    time.Time
}

func NewCircuitBreaker(failureThreshold int, timeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CircuitBreaker{failureThreshold: failureThreshold, timeout: timeout}
}

// CanExecute reports whether a call should be attempted, transitioning
// OPEN to HALF_OPEN once the timeout has elapsed. The call that makes that
// transition is the single trial; other calls are refused while HALF_OPEN
// until its success or failure is recorded.
func (b *CircuitBreaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		return false
	default: // CircuitOpen
		if time.Since(b.lastFailureAt) >= b.timeout {
			b.state = CircuitHalfOpen
			return true
		}
		return false
	}
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failureCount = 0
}

// RecordFailure increments the failure count and opens the circuit once
// failureThreshold is reached, or immediately on a half-open trial failure.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailureAt = time.Now()
	if b.state == CircuitHalfOpen {
		b.state = CircuitOpen
		return
	}
	b.failureCount++
	if b.failureCount >= b.failureThreshold {
		b.state = CircuitOpen
	}
}

// State returns the breaker's current state, mostly for tests and /health.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
