package trigger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAndTriggerBarrier(t *testing.T) {
	t.Parallel()

	a, b, c := &manualTrigger{}, &manualTrigger{}, &manualTrigger{}
	tr, err := NewAndTrigger(a, b, c)
	require.NoError(t, err)

	var n counter
	require.NoError(t, tr.Start(n.cb()))

	a.fire()
	b.fire()
	b.fire()
	assert.Zero(t, n.load(), "two of three never fires")

	c.fire()
	assert.EqualValues(t, 1, n.load())

	a.fire()
	assert.EqualValues(t, 1, n.load(), "flags reset after firing")
	b.fire()
	c.fire()
	assert.EqualValues(t, 2, n.load())

	tr.Stop()
	assert.Equal(t, 1, a.stops)
	assert.Equal(t, 1, c.stops)
}

func TestOrTriggerFiresPerActivation(t *testing.T) {
	t.Parallel()

	a, b, c := &manualTrigger{}, &manualTrigger{}, &manualTrigger{}
	tr, err := NewOrTrigger(a, b, c)
	require.NoError(t, err)

	var n counter
	require.NoError(t, tr.Start(n.cb()))
	assert.ErrorIs(t, tr.Start(n.cb()), ErrAlreadyStarted)

	b.fire()
	assert.EqualValues(t, 1, n.load())
	a.fire()
	c.fire()
	c.fire()
	assert.EqualValues(t, 4, n.load())

	tr.Stop()
	a.fire()
	assert.EqualValues(t, 4, n.load())
}

func TestCombinatorsNest(t *testing.T) {
	t.Parallel()

	a, b, c := &manualTrigger{}, &manualTrigger{}, &manualTrigger{}
	or, err := NewOrTrigger(b, c)
	require.NoError(t, err)
	and, err := NewAndTrigger(a, or)
	require.NoError(t, err)

	var n counter
	require.NoError(t, and.Start(n.cb()))
	defer and.Stop()

	c.fire()
	assert.Zero(t, n.load())
	a.fire()
	assert.EqualValues(t, 1, n.load())
}

func TestCombinatorStartFailureAndRestart(t *testing.T) {
	t.Parallel()

	a := &manualTrigger{}
	bad := &manualTrigger{startErr: errors.New("no watcher")}
	tr, err := NewAndTrigger(a, bad)
	require.NoError(t, err)

	assert.Error(t, tr.Start(func() {}))
	assert.Equal(t, 1, a.stops)

	bad.startErr = nil
	var n counter
	require.NoError(t, tr.Start(n.cb()))
	a.fire()
	bad.fire()
	assert.EqualValues(t, 1, n.load())

	tr.Stop()
	require.NoError(t, tr.Start(n.cb()))
	a.fire()
	bad.fire()
	assert.EqualValues(t, 2, n.load())
	tr.Stop()

	_, err = NewOrTrigger()
	assert.ErrorIs(t, err, ErrNoTriggers)
	_, err = NewAndTrigger(a, nil)
	assert.Error(t, err)
}
