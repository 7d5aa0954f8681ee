// Package circuitbreaker stops calling a failing dependency for a while
// after a run of consecutive failures, then probes it before resuming.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down has passed.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the circuit is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when all half-open probe slots are taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// IsRejected reports whether err was produced by the breaker rather than the call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

// Config holds circuit breaker configuration.
type Config struct {
	// Name identifies the breaker in callbacks.
	Name string

	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes that closes it again.
	SuccessThreshold int

	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration

	MaxHalfOpenRequests int

	OnStateChange func(name string, from, to State)

	// IsFailure decides which errors count; nil counts every error.
	// Context cancellation of the caller never counts.
	IsFailure func(error) bool

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Cooldown:            30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// Option is a functional option for configuring the circuit breaker.
type Option func(*Config)

func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

func WithCooldown(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Cooldown = d
		}
	}
}

func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}

// Counts holds the current counts for the circuit breaker.
type Counts struct {
	Requests             int
	TotalSuccesses       int
	TotalFailures        int
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
	Rejected             int
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	config Config

	mu               sync.Mutex
	state            State
	counts           Counts
	openedAt         time.Time
	halfOpenRequests int
}

// New creates a new CircuitBreaker with the given name and options.
func New(name string, opts ...Option) *CircuitBreaker {
	config := DefaultConfig(name)
	for _, opt := range opts {
		opt(&config)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// ForNotifications is tuned for best-effort notification publishing:
// it opens quickly and probes again after a short cool-down.
func ForNotifications(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(
		"notifications",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithCooldown(15*time.Second),
		WithOnStateChange(onStateChange),
	)
}

// Execute runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.afterRequest(ctx, err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.config.Now().Sub(cb.openedAt) >= cb.config.Cooldown {
			cb.setState(StateHalfOpen)
			cb.halfOpenRequests = 1
			return nil
		}
		cb.counts.Rejected++
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenRequests < cb.config.MaxHalfOpenRequests {
			cb.halfOpenRequests++
			return nil
		}
		cb.counts.Rejected++
		return ErrTooManyRequests
	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) afterRequest(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts.Requests++

	failed := err != nil
	if failed && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		failed = false
	}
	if failed && cb.config.IsFailure != nil {
		failed = cb.config.IsFailure(err)
	}

	if failed {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0

	if cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	switch cb.state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.open()
		}
	case StateHalfOpen:
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.config.Now()
	cb.setState(StateOpen)
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState

	cb.counts.ConsecutiveSuccesses = 0
	cb.counts.ConsecutiveFailures = 0
	cb.halfOpenRequests = 0

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, oldState, newState)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns a copy of the current counts.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the circuit and clears the counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.counts = Counts{}
	cb.halfOpenRequests = 0
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}
