package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the condition of one circuit breaker.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

const (
	// DefaultFailureThreshold opens the circuit after this many consecutive failures.
	DefaultFailureThreshold = 3
	// DefaultRecoveryTimeout is how long an open circuit rejects calls before a trial.
	DefaultRecoveryTimeout = 30 * time.Second
	// DefaultForgivenessThreshold resets the failure count after this many
	// consecutive successes while closed.
	DefaultForgivenessThreshold = 3
)

// OpenError is returned when a call is rejected because the component's
// circuit is open. It is distinct from the underlying component failure so
// callers can tell "did not try" from "tried and failed".
type OpenError struct {
	Component   string
	NextAttempt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("breaker: circuit open for %s until %s", e.Component, e.NextAttempt.Format(time.RFC3339))
}

// Config tunes one breaker. Zero fields fall back to the defaults.
type Config struct {
	FailureThreshold     int
	RecoveryTimeout      time.Duration
	ForgivenessThreshold int
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if c.ForgivenessThreshold <= 0 {
		c.ForgivenessThreshold = DefaultForgivenessThreshold
	}
	return c
}

// Snapshot is a point-in-time copy of a breaker's state for callers and
// debug exports.
type Snapshot struct {
	Component       string    `json:"component"`
	State           State     `json:"state"`
	FailureCount    int       `json:"failureCount"`
	SuccessCount    int       `json:"successCount"`
	LastFailureTime time.Time `json:"lastFailureTime,omitempty"`
	NextAttemptTime time.Time `json:"nextAttemptTime,omitempty"`
}

// Breaker is the state machine for one monitored component. All transitions
// happen under the mutex; Allow/RecordSuccess/RecordFailure are the only
// mutators besides Reset.
type Breaker struct {
	mu        sync.Mutex
	component string
	cfg       Config
	log       *logrus.Logger

	state       State
	failures    int
	successes   int
	lastFailure time.Time
	nextAttempt time.Time

	now          func() time.Time
	onTransition func(component string, from, to State)
}

// New creates a closed breaker for component.
func New(component string, cfg Config, log *logrus.Logger) *Breaker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Breaker{
		component: component,
		cfg:       cfg.withDefaults(),
		log:       log,
		state:     StateClosed,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. While open it returns an
// OpenError until the recovery timeout elapses, then admits exactly one
// trial call and moves to half-open. A second caller arriving during the
// trial is rejected so the trial stays singular.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Before(b.nextAttempt) {
			return &OpenError{Component: b.component, NextAttempt: b.nextAttempt}
		}
		b.transition(StateHalfOpen)
		return nil
	case StateHalfOpen:
		return &OpenError{Component: b.component, NextAttempt: b.nextAttempt}
	}
	return nil
}

// RecordSuccess notes a successful call. In half-open it closes the circuit
// and clears the failure count. While closed, consecutive successes past the
// forgiveness threshold also clear the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++
	switch b.state {
	case StateHalfOpen:
		b.failures = 0
		b.transition(StateClosed)
	case StateClosed:
		if b.successes >= b.cfg.ForgivenessThreshold && b.failures > 0 {
			b.failures = 0
		}
	}
}

// RecordFailure notes a failed call. It opens the circuit once the failure
// threshold is reached, and re-opens immediately from half-open.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.successes = 0
	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		b.open()
	}
}

// Do runs fn under the breaker: rejected immediately with an OpenError when
// the circuit is open, otherwise the outcome of fn is recorded.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	if err != nil {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return err
}

// Reset forces the breaker closed with zeroed counters regardless of state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.state
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.lastFailure = time.Time{}
	b.nextAttempt = time.Time{}
	if prev != StateClosed {
		b.log.WithFields(logrus.Fields{
			"component": b.component,
			"from":      prev,
			"to":        StateClosed,
		}).Info("Circuit breaker reset")
	}
}

// State returns a snapshot of the breaker.
func (b *Breaker) State() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Component:       b.component,
		State:           b.state,
		FailureCount:    b.failures,
		SuccessCount:    b.successes,
		LastFailureTime: b.lastFailure,
		NextAttemptTime: b.nextAttempt,
	}
}

func (b *Breaker) open() {
	b.nextAttempt = b.now().Add(b.cfg.RecoveryTimeout)
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.log.WithFields(logrus.Fields{
		"component": b.component,
		"from":      from,
		"to":        to,
	}).Warn("Circuit breaker state change")
	if b.onTransition != nil {
		b.onTransition(b.component, from, to)
	}
}
