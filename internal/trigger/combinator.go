package trigger

import (
	"sync"
	"sync/atomic"
)

// AndTrigger fires once every child has fired since the last time it fired.
type AndTrigger struct {
	children []Trigger

	runMu   sync.Mutex
	running bool

	mu     sync.Mutex
	active bool
	fired  []bool
	cb     Callback
}

func NewAndTrigger(children ...Trigger) (*AndTrigger, error) {
	if err := checkChildren(children); err != nil {
		return nil, err
	}
	return &AndTrigger{children: children}, nil
}

func (t *AndTrigger) Start(cb Callback) error {
	if cb == nil {
		return ErrNilCallback
	}
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.running {
		return ErrAlreadyStarted
	}

	t.mu.Lock()
	t.fired = make([]bool, len(t.children))
	t.cb = cb
	t.active = true
	t.mu.Unlock()

	if err := startAll(t.children, func(i int) Callback { return func() { t.mark(i) } }); err != nil {
		t.mu.Lock()
		t.active = false
		t.mu.Unlock()
		return err
	}
	t.running = true
	return nil
}

func (t *AndTrigger) Stop() {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if !t.running {
		return
	}
	t.mu.Lock()
	t.active = false
	t.mu.Unlock()
	stopAll(t.children)
	t.running = false
}

func (t *AndTrigger) mark(i int) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.fired[i] = true
	for _, f := range t.fired {
		if !f {
			t.mu.Unlock()
			return
		}
	}
	clear(t.fired)
	cb := t.cb
	t.mu.Unlock()
	cb()
}

// OrTrigger fires on every activation of any child.
type OrTrigger struct {
	children []Trigger

	runMu   sync.Mutex
	running bool
	active  atomic.Bool
}

func NewOrTrigger(children ...Trigger) (*OrTrigger, error) {
	if err := checkChildren(children); err != nil {
		return nil, err
	}
	return &OrTrigger{children: children}, nil
}

func (t *OrTrigger) Start(cb Callback) error {
	if cb == nil {
		return ErrNilCallback
	}
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.running {
		return ErrAlreadyStarted
	}

	t.active.Store(true)
	fire := func() {
		if t.active.Load() {
			cb()
		}
	}
	if err := startAll(t.children, func(int) Callback { return fire }); err != nil {
		t.active.Store(false)
		return err
	}
	t.running = true
	return nil
}

func (t *OrTrigger) Stop() {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if !t.running {
		return
	}
	t.active.Store(false)
	stopAll(t.children)
	t.running = false
}
