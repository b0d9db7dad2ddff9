package retry

import (
	"fmt"
	"sync"
	"time"

	ncerr "execgate/internal/errors"
)

// State is a circuit breaker's position.
type State int

const (
	StateClosed   State = iota // failures are being counted
	StateOpen                  // tripped; Allow refuses until ResetTimeout passes
	StateHalfOpen              // probing; one failure re-opens
)

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

// CircuitBreakerConfig configures a [CircuitBreaker].  Zero fields take
// the values from [DefaultCircuitBreakerConfig].
type CircuitBreakerConfig struct {
	MaxFailures   int           // consecutive failures that trip the breaker
	ResetTimeout  time.Duration // time spent open before probing
	HalfOpenMax   int           // successes while probing that close it again
	OnStateChange func(from, to State)
}

// DefaultCircuitBreakerConfig returns the defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  2,
	}
}

// CircuitBreaker counts consecutive failures of a repeated operation
// and trips once MaxFailures is reached.  Callers either wrap the
// operation in [CircuitBreaker.Execute] or, when they drive the
// operation themselves as the accept loop does, report each outcome
// with [CircuitBreaker.Record] and consult the returned state.
//
// OnStateChange runs with the breaker's lock held.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	c := *DefaultCircuitBreakerConfig()
	if cfg != nil {
		if cfg.MaxFailures > 0 {
			c.MaxFailures = cfg.MaxFailures
		}
		if cfg.ResetTimeout > 0 {
			c.ResetTimeout = cfg.ResetTimeout
		}
		if cfg.HalfOpenMax > 0 {
			c.HalfOpenMax = cfg.HalfOpenMax
		}
		c.OnStateChange = cfg.OnStateChange
	}
	return &CircuitBreaker{cfg: c}
}

// Allow reports whether an attempt may go ahead.  An open breaker
// whose ResetTimeout has passed moves to half-open and allows it.
// Refusals wrap [ncerr.ErrCircuitOpen].
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	open := time.Since(cb.lastFailure)
	if open > cb.cfg.ResetTimeout {
		cb.setState(StateHalfOpen)
		return nil
	}
	return fmt.Errorf("%w: %d consecutive failures, retry in %v",
		ncerr.ErrCircuitOpen, cb.failures, (cb.cfg.ResetTimeout - open).Truncate(time.Second))
}

// Record reports the outcome of one attempt and returns the state it
// leaves the breaker in.
func (cb *CircuitBreaker) Record(err error) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailure = time.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.setState(StateOpen)
		}
		return cb.state
	}

	cb.successes++
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		if cb.successes >= cb.cfg.HalfOpenMax {
			cb.failures = 0
			cb.setState(StateClosed)
		}
	}
	return cb.state
}

// Execute runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Record(err)
	return err
}

// CurrentState returns the breaker's state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.successes = 0
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
