package trigger

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronjure/internal/eventhub"
)

func TestEventTriggerFiltersAndUnsubscribes(t *testing.T) {
	t.Parallel()

	hub := eventhub.New()
	tr, err := NewEventTrigger(hub, "order.*", func(_ string, p any) bool {
		n, _ := p.(int)
		return n > 10
	})
	require.NoError(t, err)

	var c counter
	require.NoError(t, tr.Start(c.cb()))
	assert.Equal(t, 1, hub.Len())

	hub.Raise("order.created", 5)
	hub.Raise("order.created", 50)
	hub.Raise("invoice.created", 50)
	assert.EqualValues(t, 1, c.load())

	tr.Stop()
	tr.Stop()
	assert.Zero(t, hub.Len())
	hub.Raise("order.created", 50)
	assert.EqualValues(t, 1, c.load())

	require.NoError(t, tr.Start(c.cb()))
	hub.Raise("order.paid", 11)
	assert.EqualValues(t, 2, c.load())
	tr.Stop()
}

func TestEventTriggerFilterPanicKeepsSubscription(t *testing.T) {
	t.Parallel()

	hub := eventhub.New()
	tr, err := NewEventTrigger(hub, "*", func(name string, _ any) bool {
		if name == "bad" {
			panic("filter exploded")
		}
		return true
	})
	require.NoError(t, err)

	var c counter
	require.NoError(t, tr.Start(c.cb()))
	t.Cleanup(tr.Stop)

	assert.NotPanics(t, func() { hub.Raise("bad", nil) })
	hub.Raise("good", nil)
	assert.EqualValues(t, 1, c.load())
	assert.Equal(t, 1, hub.Len())
}

func TestEventTriggerDebounced(t *testing.T) {
	t.Parallel()

	hub := eventhub.New()
	fc := clockwork.NewFakeClock()
	tr, err := NewEventTrigger(hub, "tick", nil, WithClock(fc), WithDebounce(time.Second))
	require.NoError(t, err)

	var c counter
	require.NoError(t, tr.Start(c.cb()))
	t.Cleanup(tr.Stop)

	for i := 0; i < 10; i++ {
		hub.Raise("tick", i)
	}
	stays(t, &c, 0)
	fc.Advance(time.Second)
	waitFor(t, &c, 1)
}

func TestEventTriggerConstruction(t *testing.T) {
	t.Parallel()

	_, err := NewEventTrigger(nil, "x", nil)
	assert.Error(t, err)
	_, err = NewEventTrigger(eventhub.New(), "", nil)
	assert.ErrorIs(t, err, eventhub.ErrEmptyPattern)

	hub := eventhub.New()
	hub.Close()
	tr, err := NewEventTrigger(hub, "x", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Start(func() {}), eventhub.ErrClosed)
	assert.ErrorIs(t, tr.Start(nil), ErrNilCallback)
}
