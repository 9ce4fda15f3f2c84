package trigger

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"cronjure/internal/eventhub"
	"cronjure/pkg/logx"
)

// Source is the subscription side of an event hub.
type Source interface {
	Subscribe(pattern string, h eventhub.Handler) (eventhub.SubscriptionID, error)
	Unsubscribe(id eventhub.SubscriptionID)
}

// Filter decides whether a raised event activates the trigger.
type Filter func(name string, payload any) bool

// EventTrigger fires on hub events whose name matches a wildcard pattern.
type EventTrigger struct {
	src     Source
	pattern string
	filter  Filter
	log     logx.Logger
	deb     *debouncer
	errs    *errReporter

	mu      sync.Mutex
	sub     eventhub.SubscriptionID
	running bool
}

func NewEventTrigger(src Source, pattern string, filter Filter, opts ...Option) (*EventTrigger, error) {
	if src == nil {
		return nil, errors.New("trigger: nil event source")
	}
	if strings.TrimSpace(pattern) == "" {
		return nil, eventhub.ErrEmptyPattern
	}
	o := buildOptions(opts)
	o.log = o.log.With(logx.String("comp", "trigger.event"), logx.String("pattern", pattern))
	return &EventTrigger{
		src:     src,
		pattern: pattern,
		filter:  filter,
		log:     o.log,
		deb:     newDebouncer(o),
		errs:    newErrReporter(o.log, errorReportEvery),
	}, nil
}

func (t *EventTrigger) Pattern() string { return t.pattern }

func (t *EventTrigger) Start(cb Callback) error {
	if cb == nil {
		return ErrNilCallback
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrAlreadyStarted
	}
	t.deb.arm(cb)
	id, err := t.src.Subscribe(t.pattern, t.onEvent)
	if err != nil {
		t.deb.disarm()
		return fmt.Errorf("trigger: subscribe %q: %w", t.pattern, err)
	}
	t.sub = id
	t.running = true
	return nil
}

func (t *EventTrigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.src.Unsubscribe(t.sub)
	t.deb.disarm()
	t.running = false
}

func (t *EventTrigger) onEvent(name string, payload any) {
	if t.filter != nil && !t.accept(name, payload) {
		return
	}
	t.deb.activate()
}

func (t *EventTrigger) accept(name string, payload any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.errs.report("event filter panic", fmt.Errorf("%v", r), logx.String("event", name))
			ok = false
		}
	}()
	return t.filter(name, payload)
}
