package trigger

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebounceCollapsesBurst(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClock()
	const window = 100 * time.Millisecond
	d := newDebouncer(buildOptions([]Option{WithClock(fc), WithDebounce(window)}))

	var (
		mu    sync.Mutex
		calls []time.Time
	)
	d.arm(func() {
		mu.Lock()
		calls = append(calls, fc.Now())
		mu.Unlock()
	})
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(calls)
	}

	for i := 0; i < 5; i++ {
		d.activate()
		fc.Advance(window / 2)
	}
	last := fc.Now().Add(-window / 2)
	assert.Never(t, func() bool { return count() != 0 }, 50*time.Millisecond, 5*time.Millisecond)

	fc.Advance(window / 2)
	require.Eventually(t, func() bool { return count() == 1 }, 2*time.Second, 5*time.Millisecond)

	fc.Advance(10 * window)
	assert.Never(t, func() bool { return count() != 1 }, 50*time.Millisecond, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, calls[0].Before(last.Add(window)))
}

func TestDebounceZeroDelayIsSynchronous(t *testing.T) {
	t.Parallel()

	d := newDebouncer(buildOptions(nil))
	var c counter
	d.arm(c.cb())
	d.activate()
	d.activate()
	d.activate()
	assert.EqualValues(t, 3, c.load())
}

func TestDebounceDisarmCancelsPending(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClock()
	d := newDebouncer(buildOptions([]Option{WithClock(fc), WithDebounce(time.Second)}))
	var c counter
	d.arm(c.cb())

	d.activate()
	d.disarm()
	fc.Advance(2 * time.Second)
	stays(t, &c, 0)

	// Activations after disarm are dropped.
	d.activate()
	assert.EqualValues(t, 0, c.load())

	// Re-arming makes it usable again.
	d.arm(c.cb())
	d.activate()
	fc.Advance(time.Second)
	waitFor(t, &c, 1)
}

func TestDebounceCallbackPanicIsContained(t *testing.T) {
	t.Parallel()

	d := newDebouncer(buildOptions(nil))
	d.arm(func() { panic("boom") })
	assert.NotPanics(t, d.activate)
}
