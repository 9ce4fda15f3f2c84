package trigger

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"cronjure/pkg/logx"
)

// debouncer collapses bursts of activations into one trailing invocation.
// Each activation bumps gen; a timer only fires if its gen is still current.
type debouncer struct {
	clock clockwork.Clock
	delay time.Duration
	log   logx.Logger

	mu     sync.Mutex
	gen    uint64
	active bool
	cb     Callback
	timer  clockwork.Timer
}

func newDebouncer(o options) *debouncer {
	return &debouncer{clock: o.clock, delay: o.debounce, log: o.log}
}

func (d *debouncer) arm(cb Callback) {
	d.mu.Lock()
	d.cb = cb
	d.active = true
	d.gen++
	d.mu.Unlock()
}

// disarm cancels any pending timer and blocks future invocations.
func (d *debouncer) disarm() {
	d.mu.Lock()
	d.active = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
}

func (d *debouncer) activate() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	if d.delay <= 0 {
		cb := d.cb
		d.mu.Unlock()
		d.invoke(cb)
		return
	}

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
	d.mu.Unlock()
}

func (d *debouncer) fire(gen uint64) {
	d.mu.Lock()
	if !d.active || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	cb := d.cb
	d.mu.Unlock()
	d.invoke(cb)
}

func (d *debouncer) invoke(cb Callback) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("trigger callback panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	cb()
}
