// Package circuitbreaker trips a failing upstream data source out of the
// fetch path. Consecutive failures open the circuit for a cooldown window;
// after the window a single probe fetch decides whether the source is
// healthy again.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrOpen signals that the circuit for a source is open and the fetch was
// rejected without being attempted.
var ErrOpen = errors.New("circuitbreaker: circuit open")

// State is the position of a source's circuit.
type State int

const (
	StateClosed   State = iota // fetches flow through
	StateOpen                  // fetches are rejected until the cooldown passes
	StateHalfOpen              // one probe fetch is in flight
)

var stateNames = [...]string{"closed", "open", "half_open"}

func (s State) String() string {
	if s < StateClosed || s > StateHalfOpen {
		return "unknown"
	}
	return stateNames[s]
}

var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "crowdguard",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit state transitions by data source.",
}, []string{"source", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(transitionsTotal)
}

// circuit holds the breaker position for one source.
type circuit struct {
	state      State
	strikes    int
	lastStrike time.Time
}

// Breaker keeps an independent circuit per source name. A source opens
// after threshold consecutive failures and stays open for cooldown before
// the first probe is let through. The zero value is not usable; call New.
type Breaker struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	cooldown  time.Duration
}

// New builds a Breaker. Non-positive arguments fall back to 5 strikes and
// a 30 second cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether a fetch against source may proceed. An open
// circuit whose cooldown has elapsed moves to half-open and admits the
// caller as the probe.
func (b *Breaker) Allow(source string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[source]
	if !ok {
		return true
	}

	switch c.state {
	case StateOpen:
		if time.Since(c.lastStrike) < b.cooldown {
			return false
		}
		b.move(c, source, StateHalfOpen)
		return true
	case StateHalfOpen:
		// A probe is already out; everyone else waits for its verdict.
		return false
	default:
		return true
	}
}

// RecordSuccess clears the strike count and, if the source was half-open,
// closes its circuit.
func (b *Breaker) RecordSuccess(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[source]
	if !ok {
		return
	}
	if c.state == StateHalfOpen {
		b.move(c, source, StateClosed)
	}
	c.strikes = 0
}

// RecordFailure adds a strike against source. Reaching the threshold, or
// failing the half-open probe, opens the circuit.
func (b *Breaker) RecordFailure(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[source]
	if !ok {
		c = &circuit{}
		b.circuits[source] = c
	}

	c.strikes++
	c.lastStrike = time.Now()

	switch {
	case c.state == StateHalfOpen:
		b.move(c, source, StateOpen)
	case c.state == StateClosed && c.strikes >= b.threshold:
		b.move(c, source, StateOpen)
	}
}

// State returns the circuit position for source. Sources never seen are
// closed.
func (b *Breaker) State(source string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.circuits[source]; ok {
		return c.state
	}
	return StateClosed
}

// move must be called with b.mu held.
func (b *Breaker) move(c *circuit, source string, to State) {
	if c.state == to {
		return
	}
	transitionsTotal.WithLabelValues(source, c.state.String(), to.String()).Inc()
	c.state = to
}
