// Package circuit implements a per-toolchain circuit breaker: the
// sandbox wraps every compiler and runtime invocation in one of these so
// a broken language toolchain (missing binary, misconfigured container,
// a fork bomb that never returns) stops accepting new submissions for a
// cooldown window instead of letting every worker hang on it in turn.
package circuit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// State is a toolchain breaker's lifecycle stage.
type State int32

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

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Breaker guards one toolchain operation — conventionally named
// "compile:<language>" or "run:<language>" by the sandbox — tripping
// open after maxFailures consecutive launch failures and probing with
// at most halfOpenMax concurrent requests once timeout has elapsed.
type Breaker struct {
	name        string
	maxFailures int
	timeout     time.Duration
	halfOpenMax int

	state         int32 // atomic
	failures      int32 // atomic
	successes     int32 // atomic
	halfOpenCount int32 // atomic

	mu            sync.Mutex
	lastFailure   time.Time
	openedAt      time.Time
	onStateChange func(name string, from, to State)
}

// Config holds the tuning knobs a BreakerGroup applies to every toolchain
// breaker it creates.
type Config struct {
	Name          string
	MaxFailures   int
	Timeout       time.Duration
	HalfOpenMax   int
	OnStateChange func(name string, from, to State)
}

// NewBreaker constructs a single toolchain breaker directly, for tests
// and for callers that don't need a BreakerGroup's per-name registry.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		timeout:       cfg.Timeout,
		halfOpenMax:   cfg.HalfOpenMax,
		state:         int32(StateClosed),
		onStateChange: cfg.OnStateChange,
	}
}

// Name returns the toolchain operation this breaker guards.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn under the breaker's protection: rejected outright if
// the breaker is open, counted as a failure or success otherwise. fn
// should return an error only for a toolchain-level failure (the
// compiler binary itself couldn't be launched) — a submission's own
// non-zero exit or wrong-answer output must never reach here, or every
// rejected submission would eventually trip the breaker on its own
// language.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := b.allowRequest(); err != nil {
		return err
	}

	err := fn()
	if err != nil {
		b.recordFailure()
		return err
	}

	b.recordSuccess()
	return nil
}

func (b *Breaker) allowRequest() error {
	state := State(atomic.LoadInt32(&b.state))

	switch state {
	case StateClosed:
		return nil

	case StateOpen:
		b.mu.Lock()
		if time.Since(b.lastFailure) > b.timeout {
			b.transitionTo(StateHalfOpen)
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()
		return ErrCircuitOpen

	case StateHalfOpen:
		count := atomic.AddInt32(&b.halfOpenCount, 1)
		if count > int32(b.halfOpenMax) {
			atomic.AddInt32(&b.halfOpenCount, -1)
			return ErrTooManyRequests
		}
		return nil

	default:
		return errors.New("circuit: unknown state")
	}
}

func (b *Breaker) recordFailure() {
	state := State(atomic.LoadInt32(&b.state))

	switch state {
	case StateClosed:
		failures := atomic.AddInt32(&b.failures, 1)
		if int(failures) >= b.maxFailures {
			b.mu.Lock()
			b.lastFailure = time.Now()
			b.transitionTo(StateOpen)
			b.mu.Unlock()
		}

	case StateHalfOpen:
		b.mu.Lock()
		b.lastFailure = time.Now()
		atomic.StoreInt32(&b.halfOpenCount, 0)
		b.transitionTo(StateOpen)
		b.mu.Unlock()
	}
}

func (b *Breaker) recordSuccess() {
	state := State(atomic.LoadInt32(&b.state))

	switch state {
	case StateClosed:
		atomic.StoreInt32(&b.failures, 0)

	case StateHalfOpen:
		successes := atomic.AddInt32(&b.successes, 1)
		if int(successes) >= b.halfOpenMax {
			b.mu.Lock()
			atomic.StoreInt32(&b.successes, 0)
			atomic.StoreInt32(&b.halfOpenCount, 0)
			b.transitionTo(StateClosed)
			b.mu.Unlock()
		}
	}
}

// transitionTo must be called with mu held; it resets the per-state
// counters and, when the breaker opens, stamps openedAt so OpenSince
// can report how long a toolchain has been unavailable.
func (b *Breaker) transitionTo(newState State) {
	oldState := State(atomic.LoadInt32(&b.state))
	if oldState == newState {
		return
	}

	atomic.StoreInt32(&b.state, int32(newState))
	if newState == StateOpen {
		b.openedAt = time.Now()
	}

	if b.onStateChange != nil {
		b.onStateChange(b.name, oldState, newState)
	}

	atomic.StoreInt32(&b.failures, 0)
	atomic.StoreInt32(&b.successes, 0)
}

// State returns the breaker's current lifecycle stage.
func (b *Breaker) State() State {
	return State(atomic.LoadInt32(&b.state))
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	return int(atomic.LoadInt32(&b.failures))
}

// OpenSince reports when the breaker last opened, if it is currently
// open; used by the admin health endpoint to show how long a toolchain
// has been rejecting submissions.
func (b *Breaker) OpenSince() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.State() != StateOpen {
		return time.Time{}, false
	}
	return b.openedAt, true
}

// Reset forces the breaker back to closed, for admin recovery after a
// toolchain fix has been deployed without waiting out the timeout.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	atomic.StoreInt32(&b.failures, 0)
	atomic.StoreInt32(&b.successes, 0)
	atomic.StoreInt32(&b.halfOpenCount, 0)
	b.transitionTo(StateClosed)
}

// ForceOpen forces the breaker open, for admin use when a toolchain is
// known bad before it has failed enough to trip on its own.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = time.Now()
	b.transitionTo(StateOpen)
}

// BreakerGroup lazily creates and holds one Breaker per toolchain
// operation name, all sharing the same Config.
type BreakerGroup struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewBreakerGroup constructs a BreakerGroup that applies defaultConfig
// (with Name overridden per toolchain) to every breaker it creates.
func NewBreakerGroup(defaultConfig Config) *BreakerGroup {
	return &BreakerGroup{
		breakers: make(map[string]*Breaker),
		config:   defaultConfig,
	}
}

// Get returns the breaker for name, creating it on first use.
func (g *BreakerGroup) Get(name string) *Breaker {
	g.mu.RLock()
	b, exists := g.breakers[name]
	g.mu.RUnlock()
	if exists {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if b, exists = g.breakers[name]; exists {
		return b
	}

	cfg := g.config
	cfg.Name = name
	b = NewBreaker(cfg)
	g.breakers[name] = b
	return b
}

// Execute runs fn through the named toolchain's breaker, creating it on
// first use.
func (g *BreakerGroup) Execute(ctx context.Context, name string, fn func() error) error {
	return g.Get(name).Execute(ctx, fn)
}

// States returns the current state of every toolchain breaker created so
// far, keyed by operation name ("compile:python", "run:java", ...).
func (g *BreakerGroup) States() map[string]State {
	g.mu.RLock()
	defer g.mu.RUnlock()

	states := make(map[string]State, len(g.breakers))
	for name, b := range g.breakers {
		states[name] = b.State()
	}
	return states
}

// OpenNames returns the operation names currently rejecting submissions,
// for the admin health endpoint to surface as a toolchain outage.
func (g *BreakerGroup) OpenNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var open []string
	for name, b := range g.breakers {
		if b.State() == StateOpen {
			open = append(open, name)
		}
	}
	return open
}
