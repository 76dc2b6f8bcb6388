// Package circuit provides a consecutive-failure circuit breaker for calls to
// external transports.
package circuit

import (
	"sync"
	"time"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker opens after a run of consecutive failures and stays open for a
// cooldown. After the cooldown one trial call is let through; its outcome
// closes or reopens the circuit.
type Breaker struct {
	mu sync.Mutex

	name      string
	threshold int
	cooldown  time.Duration

	state     State
	failures  int
	openUntil time.Time
}

type Option func(*Breaker)

func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{name: name, threshold: 5, cooldown: time.Minute, state: StateClosed}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may go to the guarded transport at now.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Before(b.openUntil) {
			return false
		}
		b.state = StateHalfOpen
		return true
	default:
		// A trial call is already in flight.
		return false
	}
}

// RecordSuccess closes the circuit. It reports whether the state changed.
func (b *Breaker) RecordSuccess() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed := b.state != StateClosed
	b.state = StateClosed
	b.failures = 0
	return changed
}

// RecordFailure counts a failure at now and reports whether it opened the circuit.
func (b *Breaker) RecordFailure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == StateOpen {
		return false
	}
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
		b.openUntil = now.Add(b.cooldown)
		return true
	}
	return false
}

// Reset closes the circuit and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
}
