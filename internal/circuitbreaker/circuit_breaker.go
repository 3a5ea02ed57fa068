package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

// ErrOpen is returned without invoking the wrapped call while the breaker is
// rejecting traffic.
var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	Name string
	// MaxFailures consecutive failures trip the breaker from closed to open.
	MaxFailures int
	// CoolDown is how long the breaker stays open before probing again.
	CoolDown time.Duration
	// HalfOpenMax limits concurrent probe requests in the half-open state.
	HalfOpenMax int
}

// Breaker guards calls to a single upstream. After MaxFailures consecutive
// failures it rejects requests for CoolDown, then lets a bounded number of
// probes through; one success closes it again, one failure re-opens it.
type Breaker struct {
	name        string
	maxFailures int
	coolDown    time.Duration
	halfOpenMax int

	mutex       sync.Mutex
	state       State
	failures    int
	probes      int
	lastFailure time.Time

	totalRequests  int64
	totalFailures  int64
	totalSuccesses int64

	logger *logrus.Logger
}

func New(config Config, logger *logrus.Logger) *Breaker {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.CoolDown <= 0 {
		config.CoolDown = 30 * time.Second
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = 1
	}

	return &Breaker{
		name:        config.Name,
		maxFailures: config.MaxFailures,
		coolDown:    config.CoolDown,
		halfOpenMax: config.HalfOpenMax,
		state:       StateClosed,
		logger:      logger,
	}
}

// Do runs fn unless the breaker is open. The wrapped error is returned
// unchanged so callers can still classify it.
func (b *Breaker) Do(fn func() error) error {
	b.mutex.Lock()

	if b.state == StateOpen {
		if time.Since(b.lastFailure) > b.coolDown {
			b.setState(StateHalfOpen)
			b.probes = 0
		} else {
			b.mutex.Unlock()
			return ErrOpen
		}
	}

	if b.state == StateHalfOpen {
		if b.probes >= b.halfOpenMax {
			b.mutex.Unlock()
			return ErrOpen
		}
		b.probes++
	}

	b.totalRequests++
	b.mutex.Unlock()

	err := fn()

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err != nil {
		b.totalFailures++
		b.onFailure()
		return err
	}

	b.totalSuccesses++
	b.onSuccess()
	return nil
}

func (b *Breaker) onSuccess() {
	b.failures = 0
	if b.state == StateHalfOpen {
		b.setState(StateClosed)
		b.probes = 0
	}
}

func (b *Breaker) onFailure() {
	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.maxFailures {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
		b.probes = 0
	}
}

func (b *Breaker) setState(next State) {
	if b.state == next {
		return
	}

	prev := b.state
	b.state = next

	b.logger.WithFields(logrus.Fields{
		"circuit_breaker": b.name,
		"from_state":      prev.String(),
		"to_state":        next.String(),
	}).Info("Circuit breaker state changed")
}

func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

func (b *Breaker) Metrics() map[string]int64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return map[string]int64{
		"total_requests":  b.totalRequests,
		"total_failures":  b.totalFailures,
		"total_successes": b.totalSuccesses,
	}
}

// Reset forces the breaker back to closed. Intended for operational tooling.
func (b *Breaker) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.failures = 0
	b.probes = 0
	b.setState(StateClosed)
}
