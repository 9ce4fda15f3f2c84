package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronjure/pkg/logx"
)

const sampleYAML = `
logging:
  level: debug
  console: true
scheduler:
  poll_interval: 500ms
  shutdown_grace: 5s
  timezone: UTC
history:
  driver: sqlite
  path: ./runs.db
jobs:
  - name: heartbeat
    kind: log
    group: ops
    tags: [health]
    interval: 30s
    repeat: 10
    data:
      message: alive
  - kind: exec
    cron: "0 3 * * *"
    timeout: 10m
    data:
      command: [backup.sh]
  - kind: raise
    triggers:
      - type: or
        triggers:
          - type: file
            path: /var/spool/in
            filter: "*.csv"
            events: [created, renamed]
            debounce: 2s
          - type: event
            pattern: "job.failed"
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	m := NewManager(writeFile(t, "cronjure.yaml", sampleYAML), logx.Nop())
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "500ms", cfg.Scheduler.PollInterval)
	require.NotNil(t, cfg.History)
	assert.Equal(t, "sqlite", cfg.History.Driver)

	require.Len(t, cfg.Jobs, 3)
	assert.Equal(t, "heartbeat", cfg.Jobs[0].Label())
	assert.Equal(t, 10, cfg.Jobs[0].RepeatCount())
	assert.Equal(t, "alive", cfg.Jobs[0].Data["message"])
	assert.Equal(t, -1, cfg.Jobs[1].RepeatCount())
	assert.Equal(t, "exec", cfg.Jobs[1].Label())

	or := cfg.Jobs[2].Triggers[0]
	assert.Equal(t, TriggerOr, or.Type)
	require.Len(t, or.Triggers, 2)
	assert.Equal(t, []string{"created", "renamed"}, or.Triggers[0].Events)
	assert.Equal(t, "job.failed", or.Triggers[1].Pattern)
}

func TestLoadJSONStrict(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", `{"logging":{"level":"info"},"jobz":[]}`, "unknown field"},
		{"unknown nested field", `{"jobs":[{"kind":"log","interval":"1s","every":"1s"}]}`, "unknown field"},
		{"trailing data", `{"jobs":[]} {"jobs":[]}`, "trailing data"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewManager(writeFile(t, "c.json", tc.body), logx.Nop()).Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	t.Parallel()

	neg := -3
	cfg := Config{
		Logging:   LoggingConfig{Level: "loud"},
		Scheduler: SchedulerConfig{PollInterval: "soon", Timezone: "Mars/Olympus"},
		History:   &HistoryConfig{Driver: "file"},
		Admin:     &AdminConfig{Enabled: true, Addr: "8089", IdleTimeout: "forever"},
		Telegram:  &TelegramConfig{Notify: &NotifyConfig{Events: []string{" "}, DedupWindow: "1x"}},
		Jobs: []JobConfig{
			{Kind: "log", Cron: "60 * * * *"},
			{Kind: "", Interval: "1m", Repeat: &neg},
			{Kind: "log"},
			{Kind: "log", Cron: "* * * * *", Interval: "1m", StartAt: "tomorrow"},
			{Kind: "log", Triggers: []TriggerConfig{
				{Type: "file"},
				{Type: "and"},
				{Type: "or", Triggers: []TriggerConfig{{Type: "event"}, {Type: "cosmic"}}},
				{Type: "file", Path: "/tmp", Events: []string{"touched"}, Debounce: "-1s"},
			}},
		},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.ElementsMatch(t, []string{
		"logging.level",
		"scheduler.poll_interval",
		"scheduler.timezone",
		"history.path",
		"admin.addr",
		"admin.idle_timeout",
		"telegram.token",
		"telegram.chat_id",
		"telegram.notify.events[0]",
		"telegram.notify.dedup_window",
		"jobs[0].cron",
		"jobs[1].kind",
		"jobs[1].repeat",
		"jobs[2]",
		"jobs[3].start_at",
		"jobs[3]",
		"jobs[4].triggers[0].path",
		"jobs[4].triggers[1].triggers",
		"jobs[4].triggers[2].triggers[0].pattern",
		"jobs[4].triggers[2].triggers[1].type",
		"jobs[4].triggers[3].debounce",
		"jobs[4].triggers[3].events",
	}, ve.Paths())
}

func TestValidateAcceptsMinimal(t *testing.T) {
	t.Parallel()

	cfg := Config{Jobs: []JobConfig{{Kind: "log", StartAt: "2030-01-01T00:00:00Z"}}}
	assert.NoError(t, cfg.Validate())
	assert.NoError(t, (&Config{}).Validate())
}

func TestDiff(t *testing.T) {
	t.Parallel()

	a := &Config{Logging: LoggingConfig{Level: "info"}, Jobs: []JobConfig{{Kind: "log", Interval: "1s"}}}
	b := &Config{Logging: LoggingConfig{Level: "debug"}, Jobs: []JobConfig{{Kind: "log", Interval: "1s"}}}

	changed, attrs := Diff(a, b)
	assert.Equal(t, []string{SectionLogging}, changed)
	assert.NotEmpty(t, attrs)
	assert.True(t, LiveOnly(changed))

	b.Jobs[0].Interval = "2s"
	b.History = &HistoryConfig{Driver: "file", Path: "x"}
	changed, _ = Diff(a, b)
	assert.Equal(t, []string{SectionHistory, SectionJobs, SectionLogging}, changed)
	assert.False(t, LiveOnly(changed))

	b.Admin = &AdminConfig{Enabled: true}
	changed, _ = Diff(a, b)
	assert.Contains(t, changed, SectionAdmin)

	b.Telegram = &TelegramConfig{Token: "t"}
	changed, _ = Diff(a, b)
	assert.Contains(t, changed, SectionTelegram)

	changed, _ = Diff(a, a)
	assert.Empty(t, changed)
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "c.json", `{"logging":{"level":"info"}}`)
	m := NewManager(path, logx.Nop())
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	ok, err := m.Reload()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o644))
	ok, err = m.Reload()
	require.NoError(t, err)
	assert.True(t, ok)
	select {
	case cfg := <-ch:
		assert.Equal(t, "debug", cfg.Logging.Level)
	default:
		t.Fatal("no config published")
	}

	// Invalid content is rejected and the committed config is kept.
	require.NoError(t, os.WriteFile(path, []byte(`{"logging":{"level":"loud"}}`), 0o644))
	_, err = m.Reload()
	require.Error(t, err)
	assert.Equal(t, "debug", m.Get().Logging.Level)

	m.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestSlowSubscriberGetsLatest(t *testing.T) {
	t.Parallel()

	m := NewManager("unused", logx.Nop())
	ch := m.Subscribe(1)
	m.publish(&Config{Logging: LoggingConfig{Level: "info"}})
	m.publish(&Config{Logging: LoggingConfig{Level: "error"}})
	assert.Equal(t, "error", (<-ch).Logging.Level)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "c.yaml", "logging:\n  level: info\n")
	m := NewManager(path, logx.Nop())
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	// The watcher may not be registered yet; keep writing until it notices.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o644)
		select {
		case cfg := <-ch:
			return cfg.Logging.Level == "warn"
		case <-time.After(400 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationField("scheduler.poll_interval", " 250ms ")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	d, err = ParseDurationField("scheduler.poll_interval", "")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = ParseDurationField("scheduler.poll_interval", "-1s")
	assert.ErrorContains(t, err, "must be >= 0")

	_, err = ParseDurationField("scheduler.poll_interval", "soon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.poll_interval")
	cause := errors.Unwrap(err)
	require.Error(t, cause)
	_, perr := time.ParseDuration("soon")
	assert.Equal(t, perr.Error(), cause.Error())
}
