// Package retry runs a unit of work repeatedly with exponential backoff until the
// work reports a result or the cumulative backoff would exceed a time budget.
//
// The backoff doubles on every retry with no jitter and no cap. The budget is
// checked before each sleep: the scheduler never sleeps past the budget and never
// invokes the work again once the next interval would overrun it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrTimeout is returned by Run when the budget is exhausted without a result.
var ErrTimeout = errors.New("retry budget exhausted")

type outcomeKind int

const (
	kindContinue outcomeKind = iota
	kindDone
	kindStop
)

// Outcome is what one invocation of the work reports back to the scheduler.
type Outcome[T any] struct {
	kind  outcomeKind
	value T
}

// Continue asks the scheduler to back off and invoke the work again.
func Continue[T any]() Outcome[T] {
	return Outcome[T]{kind: kindContinue}
}

// Done ends the run successfully with v.
func Done[T any](v T) Outcome[T] {
	return Outcome[T]{kind: kindDone, value: v}
}

// Stop ends the run without a value. Run reports it as ErrTimeout.
func Stop[T any]() Outcome[T] {
	return Outcome[T]{kind: kindStop}
}

func (o Outcome[T]) IsContinue() bool { return o.kind == kindContinue }
func (o Outcome[T]) IsDone() bool     { return o.kind == kindDone }
func (o Outcome[T]) IsStop() bool     { return o.kind == kindStop }

// Value returns the result carried by a Done outcome.
func (o Outcome[T]) Value() (T, bool) {
	return o.value, o.kind == kindDone
}

func (o Outcome[T]) String() string {
	switch o.kind {
	case kindContinue:
		return "continue"
	case kindDone:
		return "done"
	default:
		return "stop"
	}
}

// State is the backoff bookkeeping of a single run: the intervals used so far,
// seed first, and the cumulative time spent sleeping. A State is never modified in
// place; Next returns a new one.
type State struct {
	intervals []time.Duration
	total     time.Duration
}

func NewState(startingInterval time.Duration) State {
	return State{intervals: []time.Duration{startingInterval}}
}

// Intervals returns a copy of the interval history, seed first.
func (s State) Intervals() []time.Duration {
	return slices.Clone(s.intervals)
}

// Total is the cumulative time slept so far.
func (s State) Total() time.Duration {
	return s.total
}

func (s State) last() time.Duration {
	if len(s.intervals) == 0 {
		return 0
	}
	return s.intervals[len(s.intervals)-1]
}

// Next computes the following backoff interval. ok is false when taking it would
// push the cumulative time past timeout, in which case the run must stop.
func (s State) Next(timeout time.Duration) (next State, interval time.Duration, ok bool) {
	last := s.last()
	interval = last * 2
	// A doubled interval that did not grow has overflowed.
	if interval <= last || interval > timeout-s.total {
		return s, 0, false
	}
	return State{
		intervals: append(slices.Clip(s.intervals), interval),
		total:     s.total + interval,
	}, interval, true
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type settings struct {
	sleep   SleepFunc
	observe func(State)
}

type Option func(*settings)

// WithSleep replaces the real sleep, mostly so tests do not wait.
func WithSleep(fn SleepFunc) Option {
	return func(s *settings) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithObserver is called with the new state every time the scheduler backs off.
func WithObserver(fn func(State)) Option {
	return func(s *settings) {
		s.observe = fn
	}
}

// Run invokes work until it returns Done or Stop, or until the next backoff
// interval would exceed timeout. The first invocation happens immediately.
func Run[T any](ctx context.Context, work func(context.Context) Outcome[T], timeout, startingInterval time.Duration, opts ...Option) (T, error) {
	var zero T
	if startingInterval <= 0 {
		return zero, fmt.Errorf("starting interval must be positive, got %s", startingInterval)
	}
	cfg := settings{sleep: sleepContext}
	for _, opt := range opts {
		opt(&cfg)
	}

	state := NewState(startingInterval)
	for {
		out := work(ctx)
		switch {
		case out.IsDone():
			return out.value, nil
		case out.IsStop():
			return zero, ErrTimeout
		}

		next, interval, ok := state.Next(timeout)
		if !ok {
			return zero, ErrTimeout
		}
		state = next
		if cfg.observe != nil {
			cfg.observe(state)
		}
		if err := cfg.sleep(ctx, interval); err != nil {
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
