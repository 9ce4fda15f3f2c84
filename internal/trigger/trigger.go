// Package trigger provides event-driven activation sources for jobs.
//
// A Trigger is started with a Callback and invokes it asynchronously until
// Stop. Leaf triggers (filesystem, event) pass activations through a
// trailing-edge debouncer; the And/Or combinators compose other triggers.
//
// After Stop returns no new callback invocation begins. An invocation that
// was already past its final check may still complete.
package trigger

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"cronjure/pkg/logx"
)

var (
	ErrAlreadyStarted = errors.New("trigger: already started")
	ErrNilCallback    = errors.New("trigger: nil callback")
	ErrNoTriggers     = errors.New("trigger: combinator needs at least one trigger")
)

// Callback is invoked on activation. It must not block for long; the
// scheduler's callback only dispatches.
type Callback func()

type Trigger interface {
	Start(cb Callback) error
	Stop()
}

const (
	defaultDuplicateWindow = time.Second
	seenRetention          = 5 * time.Minute
	errorReportEvery       = 5 * time.Second
)

type options struct {
	debounce  time.Duration
	dupWindow time.Duration
	log       logx.Logger
	clock     clockwork.Clock
}

type Option func(*options)

// WithDebounce sets the trailing-edge delay. Zero invokes on every activation.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.debounce = d
		}
	}
}

func WithLogger(l logx.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithDuplicateWindow sets how long a filesystem path is ignored after a
// qualifying event for it.
func WithDuplicateWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dupWindow = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{dupWindow: defaultDuplicateWindow}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	return o
}

// startAll starts children in order. If one fails, the ones already started
// are stopped again.
func startAll(children []Trigger, cbFor func(i int) Callback) error {
	for i, c := range children {
		if err := c.Start(cbFor(i)); err != nil {
			for j := i - 1; j >= 0; j-- {
				children[j].Stop()
			}
			return fmt.Errorf("trigger: start child %d: %w", i, err)
		}
	}
	return nil
}

func stopAll(children []Trigger) {
	for _, c := range children {
		c.Stop()
	}
}

func checkChildren(children []Trigger) error {
	if len(children) == 0 {
		return ErrNoTriggers
	}
	for i, c := range children {
		if c == nil {
			return fmt.Errorf("trigger: child %d is nil", i)
		}
	}
	return nil
}
