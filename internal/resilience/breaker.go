// Package resilience guards outbound calls such as SMTP delivery and webhook
// posts with circuit breakers.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is open, or while a half-open probe is already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	closed state = iota
	open
	halfOpen
)

func (s state) String() string {
	switch s {
	case open:
		return "open"
	case halfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker opens after a run of consecutive failures and rejects calls until
// the cooldown has passed. Then a single probe call decides whether it closes
// again or stays open for another cooldown.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	ignored     []error
	now         func() time.Time

	mu       sync.Mutex
	state    state
	failures int
	openedAt time.Time
	probing  bool
}

// Option customises a Breaker.
type Option func(*Breaker)

// WithIgnored lists errors that are passed through without counting as
// either a failure or a success, e.g. a relay that is simply not configured.
func WithIgnored(errs ...error) Option {
	return func(b *Breaker) { b.ignored = append(b.ignored, errs...) }
}

// New returns a closed breaker named name.
func New(name string, maxFailures int, cooldown time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		name:        name,
		maxFailures: max(maxFailures, 1),
		cooldown:    cooldown,
		now:         time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Do runs fn unless the breaker refuses. Cancellation of ctx, before or
// during fn, is never held against the downstream.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe, ok := b.admit()
	if !ok {
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	switch {
	case err == nil:
		b.failures = 0
		b.moveTo(closed)
	case b.neutral(ctx, err):
		// Outcome says nothing about the downstream.
	default:
		b.failures++
		if b.state == halfOpen || b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.moveTo(open)
		}
	}
	return err
}

// admit reports whether a call may proceed and whether it is the probe.
func (b *Breaker) admit() (probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == open && b.now().Sub(b.openedAt) >= b.cooldown {
		b.moveTo(halfOpen)
	}
	switch b.state {
	case closed:
		return false, true
	case halfOpen:
		if b.probing {
			return false, false
		}
		b.probing = true
		return true, true
	default:
		return false, false
	}
}

func (b *Breaker) neutral(ctx context.Context, err error) bool {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return true
	}
	for _, ig := range b.ignored {
		if errors.Is(err, ig) {
			return true
		}
	}
	return false
}

// moveTo must be called with b.mu held.
func (b *Breaker) moveTo(s state) {
	if b.state == s {
		return
	}
	slog.Info("circuit breaker state change", "breaker", b.name, "from", b.state.String(), "to", s.String())
	b.state = s
}

// State returns "closed", "open" or "half_open".
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// Name identifies the guarded downstream.
func (b *Breaker) Name() string { return b.name }
