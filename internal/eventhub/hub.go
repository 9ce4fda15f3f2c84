// Package eventhub is an in-process publish/subscribe hub keyed by wildcard
// event-name patterns.
//
// Contract:
//   - Raise delivers synchronously on the caller's goroutine.
//   - Handlers run in subscription order.
//   - A panicking handler is logged and skipped; later handlers still run.
//
// Handlers should stay small. Slow handlers block the raiser.
package eventhub

import (
	"errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"cronjure/pkg/logx"
)

var (
	ErrClosed       = errors.New("eventhub: closed")
	ErrEmptyPattern = errors.New("eventhub: empty pattern")
	ErrNilHandler   = errors.New("eventhub: nil handler")
)

// Handler receives the raised event name and its payload.
type Handler func(name string, payload any)

// SubscriptionID identifies one Subscribe call.
type SubscriptionID uint64

type Option func(*Hub)

func WithLogger(l logx.Logger) Option {
	return func(h *Hub) { h.log = l }
}

type subscription struct {
	id      SubscriptionID
	pattern string
	re      *regexp.Regexp
	fn      Handler
}

// Hub is safe for concurrent use. The zero value is not usable; call New.
type Hub struct {
	log logx.Logger

	mu     sync.RWMutex
	subs   []*subscription // ascending id = subscription order
	closed bool

	seq atomic.Uint64
}

func New(opts ...Option) *Hub {
	h := &Hub{}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	if h.log.IsZero() {
		h.log = logx.Nop()
	}
	h.log = h.log.With(logx.String("comp", "eventhub"))
	return h
}

// Subscribe registers fn under pattern. '*' matches any run of characters,
// '?' exactly one; everything else is literal. Patterns must match the whole
// name.
func (h *Hub) Subscribe(pattern string, fn Handler) (SubscriptionID, error) {
	if strings.TrimSpace(pattern) == "" {
		return 0, ErrEmptyPattern
	}
	if fn == nil {
		return 0, ErrNilHandler
	}
	re, err := compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("eventhub: pattern %q: %w", pattern, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrClosed
	}
	s := &subscription{id: SubscriptionID(h.seq.Add(1)), pattern: pattern, re: re, fn: fn}
	h.subs = append(h.subs, s)
	return s.id, nil
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id SubscriptionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// Raise invokes every handler whose pattern matches name and returns how many
// were invoked. Subscriptions added or removed by a handler take effect on
// the next Raise.
func (h *Hub) Raise(name string, payload any) int {
	h.mu.RLock()
	matched := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		if s.re.MatchString(name) {
			matched = append(matched, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range matched {
		h.deliver(s, name, payload)
	}
	return len(matched)
}

func (h *Hub) deliver(s *subscription, name string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("handler panic",
				logx.String("event", name),
				logx.String("pattern", s.pattern),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	s.fn(name, payload)
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops every subscription. Raise keeps working and delivers nothing;
// Subscribe fails with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.subs = nil
	h.closed = true
	h.mu.Unlock()
}

func compile(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.Grow(len(pattern) + 8)
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}
