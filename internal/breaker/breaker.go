// Package breaker implements a per-operation-class circuit breaker used to
// stop hammering a host once an operation class starts failing repeatedly.
// A breaker moves from closed to open after a run of consecutive failures,
// and from open to half-open after a cooldown, where a single trial call
// decides whether it closes again.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haugr/bondvet/internal/clock"
)

// ErrOpen is returned by Call when the breaker rejects the attempt outright.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker's position in its lifecycle.
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
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	// DefaultFailureThreshold is the consecutive-failure count that trips
	// the breaker.
	DefaultFailureThreshold = 5
	// DefaultCooldown is how long an open breaker waits before admitting a
	// trial call.
	DefaultCooldown = 60 * time.Second
)

// Breaker guards one class of operations. Safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	trialBusy bool
	pending   []stateChange

	threshold int
	cooldown  time.Duration
	clk       clock.Clock

	onStateChange func(from, to State)
}

type stateChange struct {
	from, to State
}

// Option tunes a Breaker at construction time.
type Option func(*Breaker)

// WithThreshold sets the consecutive-failure count that opens the breaker.
func WithThreshold(n int) Option {
	return func(b *Breaker) { b.threshold = n }
}

// WithCooldown sets the open-to-half-open wait.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) { b.cooldown = d }
}

// WithClock substitutes the time source, for tests.
func WithClock(clk clock.Clock) Option {
	return func(b *Breaker) { b.clk = clk }
}

// WithStateChange registers a callback fired after every transition. The
// callback runs synchronously in the transitioning goroutine with the
// breaker unlocked.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onStateChange = fn }
}

// New returns a closed Breaker.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		threshold: DefaultFailureThreshold,
		cooldown:  DefaultCooldown,
		clk:       &clock.RealClock{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State reports the current state, folding an expired open period into
// half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.clk.Since(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Call runs fn under the breaker. When the breaker is open and the cooldown
// has not elapsed, fn is not invoked and ErrOpen is returned. In half-open,
// exactly one caller gets through; concurrent callers see ErrOpen until the
// trial resolves.
func (b *Breaker) Call(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err)
	return err
}

// Allow asks the breaker to admit one call without running it. A nil return
// reserves the call; the caller must follow with exactly one Record or
// Cancel.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var err error
	switch b.state {
	case StateOpen:
		if b.clk.Since(b.openedAt) < b.cooldown {
			err = ErrOpen
			break
		}
		b.transition(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.trialBusy {
			err = ErrOpen
			break
		}
		b.trialBusy = true
	}
	b.unlockNotify()
	return err
}

// Record resolves a call previously admitted by Allow with its outcome.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	switch {
	case b.state == StateHalfOpen:
		b.trialBusy = false
		if err != nil {
			b.openedAt = b.clk.Now()
			b.transition(StateOpen)
		} else {
			b.failures = 0
			b.transition(StateClosed)
		}
	case err != nil:
		b.failures++
		if b.failures >= b.threshold {
			b.openedAt = b.clk.Now()
			b.transition(StateOpen)
		}
	default:
		b.failures = 0
	}
	b.unlockNotify()
}

// Cancel releases an admission without recording an outcome, for callers
// that reserved a call through Allow but never ran it.
func (b *Breaker) Cancel() {
	b.mu.Lock()
	b.trialBusy = false
	b.unlockNotify()
}

// transition is called with b.mu held. The change is queued and fired by
// unlockNotify once the lock is released.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.pending = append(b.pending, stateChange{from, to})
}

// unlockNotify releases the lock, then fires the state change callback for
// every transition made while it was held.
func (b *Breaker) unlockNotify() {
	changes := b.pending
	b.pending = nil
	b.mu.Unlock()
	if b.onStateChange == nil {
		return
	}
	for _, c := range changes {
		b.onStateChange(c.from, c.to)
	}
}

// Group keys breakers by operation class so that, say, interface creation
// failures on a host do not block its negotiation probes.
type Group struct {
	mu            sync.Mutex
	breakers      map[string]*Breaker
	opts          []Option
	onStateChange func(class string, from, to State)
}

// NewGroup returns a Group whose breakers are all built with opts.
func NewGroup(opts ...Option) *Group {
	return &Group{
		breakers: make(map[string]*Breaker),
		opts:     opts,
	}
}

// OnStateChange registers fn for transitions of every breaker in the group,
// tagged with the breaker's class. It only affects breakers created after
// the call, so register it before the first Get or Call.
func (g *Group) OnStateChange(fn func(class string, from, to State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onStateChange = fn
}

// Get returns the breaker for class, creating it on first use.
func (g *Group) Get(class string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[class]
	if !ok {
		opts := g.opts
		if fn := g.onStateChange; fn != nil {
			opts = append(append([]Option(nil), opts...), WithStateChange(func(from, to State) {
				fn(class, from, to)
			}))
		}
		b = New(opts...)
		g.breakers[class] = b
	}
	return b
}

// Call runs fn under the breaker for class.
func (g *Group) Call(class string, fn func() error) error {
	return g.Get(class).Call(fn)
}
