package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronjure/internal/eventhub"
	"cronjure/internal/scheduler"
	"cronjure/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []Message
	fails int
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, threadID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("flaky")
	}
	f.sent = append(f.sent, Message{ChatID: chatID, ThreadID: threadID, Text: text})
	return nil
}

func (f *fakeSender) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

func start(t *testing.T, cfg Config, sender Sender, src Source) *Service {
	t.Helper()
	s := New(cfg, sender, logx.Nop())
	require.NoError(t, s.Start(context.Background(), src))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestForwardsFailedJobs(t *testing.T) {
	t.Parallel()

	hub := eventhub.New()
	fs := &fakeSender{}
	start(t, Config{ChatID: 42, ThreadID: 7, RatePerSec: 100}, fs, hub)

	hub.Raise(scheduler.EventCompleted, scheduler.JobEvent{ID: "a", Kind: "log"})
	hub.Raise(scheduler.EventFailed, scheduler.JobEvent{ID: "b", Kind: "exec", Group: "ops", Origin: "schedule", Error: "exit status 1"})

	require.Eventually(t, func() bool { return len(fs.messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	m := fs.messages()[0]
	assert.Equal(t, int64(42), m.ChatID)
	assert.Equal(t, 7, m.ThreadID)
	assert.Equal(t, `job.failed: exec [ops] job=b origin=schedule err="exit status 1"`, m.Text)
}

func TestDedupWindow(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := start(t, Config{ChatID: 1, RatePerSec: 100, DedupWindow: time.Hour}, fs, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Notify(Message{Text: "same", Key: "k"}))
	}
	require.NoError(t, s.Notify(Message{Text: "other", Key: "k2"}))
	require.NoError(t, s.Notify(Message{Text: "unkeyed"}))
	require.NoError(t, s.Notify(Message{Text: "unkeyed"}))

	require.Eventually(t, func() bool { return len(fs.messages()) == 4 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, fs.messages(), 4)
}

func TestRetriesThenRecordsHistory(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{fails: 2}
	s := start(t, Config{ChatID: 1, RatePerSec: 100, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, fs, nil)
	require.NoError(t, s.Notify(Message{Text: "hello"}))

	require.Eventually(t, func() bool { return len(s.Snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	h := s.Snapshot()[0]
	assert.Equal(t, "hello", h.Text)
	assert.Empty(t, h.Err)
	assert.Len(t, fs.messages(), 1)

	fs.mu.Lock()
	fs.fails = 10
	fs.mu.Unlock()
	require.NoError(t, s.Notify(Message{Text: "doomed"}))
	require.Eventually(t, func() bool { return len(s.Snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "flaky", s.Snapshot()[1].Err)
}

func TestNotifyAfterStop(t *testing.T) {
	t.Parallel()

	hub := eventhub.New()
	s := New(Config{}, &fakeSender{}, logx.Nop())
	assert.ErrorIs(t, s.Notify(Message{Text: "x"}), ErrStopped)

	require.NoError(t, s.Start(context.Background(), hub))
	assert.Equal(t, 1, hub.Len())
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, 0, hub.Len())
	assert.ErrorIs(t, s.Notify(Message{Text: "x"}), ErrStopped)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestRender(t *testing.T) {
	t.Parallel()

	text, key := Render("job.completed", &scheduler.JobEvent{ID: "x", Kind: "log", Duration: 1500 * time.Microsecond})
	assert.Equal(t, "job.completed: log job=x took=2ms", text)
	assert.Equal(t, "job.completed|x|", key)

	text, key = Render("custom.thing", map[string]any{"a": 1})
	assert.Equal(t, "custom.thing", text)
	assert.Equal(t, "custom.thing", key)
}

func TestRetryDelayCapped(t *testing.T) {
	t.Parallel()

	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt < 10; attempt++ {
		d := retryDelay(cfg, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestTelegramSender(t *testing.T) {
	t.Parallel()

	type call struct {
		path string
		body map[string]any
	}
	calls := make(chan call, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls <- call{path: r.URL.Path, body: body}
		w.Header().Set("Content-Type", "application/json")
		if fmt.Sprint(body["text"]) == "fail" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	_, err := NewTelegramSender(TelegramConfig{})
	require.Error(t, err)

	ts, err := NewTelegramSender(TelegramConfig{Token: "123:abc", URL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, ts.SendText(context.Background(), 42, 0, "hello"))
	c := <-calls
	assert.Equal(t, "/bot123:abc/sendMessage", c.path)
	assert.Equal(t, "42", fmt.Sprint(c.body["chat_id"]))
	assert.Equal(t, "hello", c.body["text"])

	assert.Error(t, ts.SendText(context.Background(), 42, 0, "fail"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ts.SendText(ctx, 42, 0, "never"), context.Canceled)
}
