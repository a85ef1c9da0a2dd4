package gobayeux

import (
	"sync"
	"time"
)

const (
	// DefaultBackoffIncrement is added to the delay for every consecutive
	// failure
	DefaultBackoffIncrement = time.Second
	// DefaultMaxBackoff caps the delay between two attempts
	DefaultMaxBackoff = 30 * time.Second
)

type requestKind string

const (
	handshakeRequest requestKind = "handshake"
	connectRequest   requestKind = "connect"
)

// BackoffPolicy computes how long to wait before retrying a failed
// handshake or connect. The delay is the server advised interval plus one
// increment per consecutive failure, clamped to [0, MaxInterval].
type BackoffPolicy struct {
	// Increment is added to the delay for every consecutive failure
	Increment time.Duration
	// MaxInterval caps the computed delay
	MaxInterval time.Duration

	mu       sync.Mutex
	interval time.Duration
	failures int
	kind     requestKind
}

// NewBackoffPolicy creates a policy with the given increment and ceiling.
// Non-positive values fall back to the defaults.
func NewBackoffPolicy(increment, maxInterval time.Duration) *BackoffPolicy {
	if increment <= 0 {
		increment = DefaultBackoffIncrement
	}
	if maxInterval <= 0 {
		maxInterval = DefaultMaxBackoff
	}
	return &BackoffPolicy{Increment: increment, MaxInterval: maxInterval}
}

// UpdateAdvice records the interval most recently advised by the server
func (p *BackoffPolicy) UpdateAdvice(a Advice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = a.IntervalAsDuration()
}

// failure records a failure of the given request kind and returns the delay
// to wait before the retry. A failure of a different kind than the previous
// one starts counting from one again.
func (p *BackoffPolicy) failure(kind requestKind) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.kind != kind {
		p.kind = kind
		p.failures = 0
	}
	p.failures++
	return p.delayLocked()
}

// Reset clears the failure counter. It is called on every success.
func (p *BackoffPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = 0
	p.kind = ""
}

// Delay returns the delay for the current failure count without changing it
func (p *BackoffPolicy) Delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delayLocked()
}

// Count returns the number of consecutive failures recorded
func (p *BackoffPolicy) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *BackoffPolicy) delayLocked() time.Duration {
	delay := p.interval + time.Duration(p.failures)*p.Increment
	if delay < 0 {
		return 0
	}
	if delay > p.MaxInterval {
		return p.MaxInterval
	}
	return delay
}
