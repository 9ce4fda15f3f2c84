package eventhub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatching(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"job.*", "job.completed", true},
		{"job.*", "job.", true},
		{"job.*", "job", false},
		{"job.*", "myjob.completed", false},
		{"job", "job.completed", false},
		{"*", "anything", true},
		{"*", "", true},
		{"file.?", "file.a", true},
		{"file.?", "file.ab", false},
		{"a.b", "axb", false},
		{"[x]", "[x]", true},
		{"*.failed", "job.failed", true},
		{"*.failed", "job.failed.now", false},
	}
	for _, tc := range cases {
		re, err := compile(tc.pattern)
		require.NoError(t, err)
		assert.Equal(t, tc.want, re.MatchString(tc.name), "%q vs %q", tc.pattern, tc.name)
	}
}

func TestRaiseDeliversInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	h := New()
	var got []string
	sub := func(tag, pattern string) {
		_, err := h.Subscribe(pattern, func(name string, payload any) {
			got = append(got, tag+":"+name+":"+payload.(string))
		})
		require.NoError(t, err)
	}
	sub("a", "job.*")
	sub("b", "other.*")
	sub("c", "*")
	sub("d", "job.completed")

	n := h.Raise("job.completed", "p")
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a:job.completed:p", "c:job.completed:p", "d:job.completed:p"}, got)
}

// Patterns are evaluated at raise time, so a subscription sees names that
// were never raised before it subscribed.
func TestSubscribeBeforeFirstRaise(t *testing.T) {
	t.Parallel()

	h := New()
	hits := 0
	_, err := h.Subscribe("deploy.*", func(string, any) { hits++ })
	require.NoError(t, err)

	h.Raise("deploy.started", nil)
	h.Raise("deploy.finished", nil)
	h.Raise("build.started", nil)
	assert.Equal(t, 2, hits)
}

func TestHandlerPanicDoesNotStopDelivery(t *testing.T) {
	t.Parallel()

	h := New()
	var after bool
	_, err := h.Subscribe("x", func(string, any) { panic("boom") })
	require.NoError(t, err)
	_, err = h.Subscribe("x", func(string, any) { after = true })
	require.NoError(t, err)

	assert.NotPanics(t, func() { assert.Equal(t, 2, h.Raise("x", nil)) })
	assert.True(t, after)
	assert.Equal(t, 2, h.Len())
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	h := New()
	calls := 0
	id, err := h.Subscribe("e", func(string, any) { calls++ })
	require.NoError(t, err)

	h.Raise("e", nil)
	h.Unsubscribe(id)
	h.Unsubscribe(id)
	h.Unsubscribe(SubscriptionID(999))
	h.Raise("e", nil)

	assert.Equal(t, 1, calls)
	assert.Zero(t, h.Len())
}

func TestSubscribeValidation(t *testing.T) {
	t.Parallel()

	h := New()
	_, err := h.Subscribe("  ", func(string, any) {})
	assert.ErrorIs(t, err, ErrEmptyPattern)
	_, err = h.Subscribe("x", nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	h.Close()
	_, err = h.Subscribe("x", func(string, any) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, h.Raise("x", nil))
}

func TestConcurrentRaiseAndSubscribe(t *testing.T) {
	t.Parallel()

	h := New()
	var mu sync.Mutex
	delivered := map[int]int{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id, err := h.Subscribe("tick", func(_ string, p any) {
				mu.Lock()
				delivered[p.(int)]++
				mu.Unlock()
			})
			if err == nil {
				h.Unsubscribe(id)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Raise("tick", j)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, h.Len())
	mu.Lock()
	defer mu.Unlock()
	for k := range delivered {
		assert.Less(t, k, 50)
	}
}
