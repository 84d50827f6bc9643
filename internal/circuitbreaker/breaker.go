// Package circuitbreaker guards calls to flaky dependencies, chiefly
// the remote ML scoring service. Each key gets its own circuit that
// trips after a run of consecutive failures and probes for recovery
// after a cooloff.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State of a single circuit.
type State int

const (
	StateClosed   State = iota // requests flow through
	StateOpen                  // requests are rejected until the cooloff elapses
	StateHalfOpen              // one probe request is in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "riskd",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by key, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(transitionsTotal)
}

type circuit struct {
	state     State
	failures  int
	trippedAt time.Time
}

// Breaker tracks one circuit per key. The zero value is not usable;
// construct with New.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	trips    int           // consecutive failures before opening
	cooloff  time.Duration // how long an open circuit rejects before probing
	observer func(key string, from, to State)
}

// New builds a Breaker that opens a key's circuit after trips
// consecutive failures and keeps it open for cooloff before allowing a
// probe. Non-positive arguments fall back to 5 trips / 30s.
func New(trips int, cooloff time.Duration) *Breaker {
	if trips <= 0 {
		trips = 5
	}
	if cooloff <= 0 {
		cooloff = 30 * time.Second
	}
	return &Breaker{
		circuits: make(map[string]*circuit),
		trips:    trips,
		cooloff:  cooloff,
	}
}

// OnTransition registers a callback fired (on its own goroutine) when
// any circuit changes state.
func (b *Breaker) OnTransition(fn func(key string, from, to State)) {
	b.mu.Lock()
	b.observer = fn
	b.mu.Unlock()
}

// Allow reports whether a request for key may proceed. An open circuit
// whose cooloff has elapsed moves to half-open and admits exactly one
// probe; further requests are rejected until the probe's outcome is
// recorded.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		// Never failed: implicitly closed.
		return true
	}

	switch c.state {
	case StateOpen:
		if time.Since(c.trippedAt) < b.cooloff {
			return false
		}
		b.setState(key, c, StateHalfOpen)
		return true
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

// RecordSuccess clears the failure run for key and closes a half-open
// circuit whose probe just succeeded.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return
	}
	if c.state == StateHalfOpen {
		b.setState(key, c, StateClosed)
	}
	c.failures = 0
}

// RecordFailure extends the failure run for key, tripping the circuit
// open when the run reaches the configured threshold. A failed probe
// reopens immediately.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}

	c.failures++
	c.trippedAt = time.Now()

	switch {
	case c.state == StateHalfOpen:
		b.setState(key, c, StateOpen)
	case c.state == StateClosed && c.failures >= b.trips:
		b.setState(key, c, StateOpen)
	}
}

// State returns key's current state; keys that never failed are closed.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.circuits[key]; ok {
		return c.state
	}
	return StateClosed
}

// setState must be called with b.mu held.
func (b *Breaker) setState(key string, c *circuit, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	transitionsTotal.WithLabelValues(key, from.String(), to.String()).Inc()
	if b.observer != nil {
		go b.observer(key, from, to)
	}
}
