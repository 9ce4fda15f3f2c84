package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronjure/internal/config"
	"cronjure/internal/eventhub"
	"cronjure/internal/scheduler"
	"cronjure/internal/trigger"
	"cronjure/pkg/logx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cronjure.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestNewLoadsDeclaredJobs(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
logging:
  level: error
scheduler:
  poll_interval: 50ms
  timezone: UTC
history:
  driver: file
  path: `+filepath.Join(dir, "hist")+`
jobs:
  - name: beat
    kind: log
    group: ops
    tags: [health]
    interval: 1h
  - kind: raise
    cron: "@daily"
    data: {event: daily.tick}
  - kind: log
    triggers:
      - type: and
        triggers:
          - type: event
            pattern: "daily.*"
          - type: file
            path: `+dir+`
            filter: "*.done"
            events: [created]
`)

	a, err := New(path, WithoutSystemd())
	require.NoError(t, err)

	snap := a.Scheduler().Snapshot()
	require.Len(t, snap, 3)
	assert.Len(t, a.Scheduler().JobsByGroup("ops"), 1)
	assert.Len(t, a.Scheduler().JobsByTag("health"), 1)
	assert.NotNil(t, a.History())

	var triggered int
	for _, ji := range snap {
		if ji.Triggers > 0 {
			triggered++
			assert.False(t, ji.Scheduled())
		}
	}
	assert.Equal(t, 1, triggered)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.NoError(t, a.Stop(stopCtx))
}

func TestNewReportsEveryBadJob(t *testing.T) {
	path := writeConfig(t, `
logging: {level: error}
jobs:
  - kind: nope
    interval: 1m
  - kind: log
    interval: 1m
  - kind: alsonope
    cron: "0 * * * *"
`)
	_, err := New(path, WithoutSystemd())
	require.Error(t, err)
	assert.ErrorIs(t, err, scheduler.ErrUnknownKind)
	assert.Contains(t, err.Error(), "jobs[0]")
	assert.Contains(t, err.Error(), "jobs[2]")
	assert.NotContains(t, err.Error(), "jobs[1]")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "jobs:\n  - kind: log\n    cron: \"99 * * * *\"\n")
	_, err := New(path, WithoutSystemd())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Contains(t, err.Error(), "jobs[0].cron")
}

func TestCustomJobKinds(t *testing.T) {
	path := writeConfig(t, "logging: {level: error}\njobs:\n  - kind: custom\n    interval: 1h\n")
	a, err := New(path, WithoutSystemd(), WithJobKinds(func(r *scheduler.Registry) error {
		return r.Register("custom", func() scheduler.Job {
			return scheduler.JobFunc(func(context.Context, scheduler.JobContext) error { return nil })
		})
	}))
	require.NoError(t, err)
	assert.Len(t, a.Scheduler().Snapshot(), 1)
	require.NoError(t, a.Stop(context.Background()))
}

func TestBuilderTriggerTree(t *testing.T) {
	t.Parallel()

	b := builder{hub: eventhub.New(), log: logx.Nop()}
	dir := t.TempDir()

	tr, err := b.trigger("t", config.TriggerConfig{Type: "OR", Triggers: []config.TriggerConfig{
		{Type: "event", Pattern: "job.*"},
		{Type: "and", Triggers: []config.TriggerConfig{
			{Type: "file", Path: dir, Events: []string{"deleted"}, Debounce: "10ms"},
			{Type: "event", Pattern: "x"},
		}},
	}})
	require.NoError(t, err)
	assert.IsType(t, &trigger.OrTrigger{}, tr)

	fs, err := b.trigger("t", config.TriggerConfig{Type: "file", Path: dir, Filter: "*.csv"})
	require.NoError(t, err)
	require.IsType(t, &trigger.FileSystemTrigger{}, fs)
	assert.Equal(t, "*.csv", fs.(*trigger.FileSystemTrigger).Filter())
	assert.Equal(t, trigger.AllChanges, fs.(*trigger.FileSystemTrigger).Ops())

	_, err = b.trigger("t", config.TriggerConfig{Type: "file", Path: dir, Events: []string{"poked"}})
	assert.ErrorContains(t, err, "t.events")
	_, err = b.trigger("t", config.TriggerConfig{Type: "cosmic"})
	assert.ErrorContains(t, err, "t.type")
}

func TestBuilderSchedule(t *testing.T) {
	t.Parallel()

	b := builder{hub: eventhub.New(), log: logx.Nop()}
	three := 3
	s, err := b.schedule("jobs[0]", config.JobConfig{
		Kind:     "log",
		Group:    "g",
		Tags:     []string{"a"},
		Interval: "90s",
		Repeat:   &three,
		Timeout:  "5s",
		StartAt:  "2030-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "g", s.Group())
	assert.Equal(t, 3, s.Repeat())
	assert.Equal(t, 90*time.Second, s.Interval())
	assert.Equal(t, 5*time.Second, s.Timeout())
	assert.Equal(t, 2030, s.StartTime().Year())

	_, err = b.schedule("jobs[1]", config.JobConfig{Kind: "log", Cron: "* * * * 7"})
	assert.ErrorContains(t, err, "jobs[1]")
}

func TestMapConfigs(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{PollInterval: "250ms", ShutdownGrace: "3s", Timezone: "UTC"},
		History:   &config.HistoryConfig{Driver: "SQLite", Path: " ./x.db ", Retain: 50},
	}
	sc, err := mapSchedulerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, sc.PollInterval)
	assert.Equal(t, 3*time.Second, sc.ShutdownGrace)
	assert.Equal(t, time.UTC, sc.Location)

	hc, enabled, err := mapHistoryConfig(cfg)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "sqlite", hc.Driver)
	assert.Equal(t, "./x.db", hc.Path)
	assert.Equal(t, time.Second, hc.BusyTimeout)

	_, enabled, err = mapHistoryConfig(&config.Config{History: &config.HistoryConfig{Driver: "none"}})
	require.NoError(t, err)
	assert.False(t, enabled)

	ac, enabled, err := mapAdminConfig(&config.Config{Admin: &config.AdminConfig{Enabled: true, Addr: "127.0.0.1:0", ReadTimeout: "2s"}})
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, 2*time.Second, ac.ReadTimeout)
	assert.Equal(t, 60*time.Second, ac.IdleTimeout)

	_, enabled, err = mapAdminConfig(&config.Config{Admin: &config.AdminConfig{Addr: "127.0.0.1:0"}})
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestAdminServesJobs(t *testing.T) {
	path := writeConfig(t, `
logging: {level: error}
admin:
  enabled: true
  addr: 127.0.0.1:0
  token: s3cret
jobs:
  - kind: log
    group: ops
    interval: 1h
`)
	a, err := New(path, WithoutSystemd())
	require.NoError(t, err)
	require.NotNil(t, a.Admin())
	require.NoError(t, a.Start(context.Background()))
	defer func() { _ = a.Stop(context.Background()) }()

	require.Eventually(t, func() bool { return a.Admin().Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	base := "http://" + a.Admin().Addr()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, base+"/groups/ops/pause", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"group":"ops","changed":1}`, string(body))
	assert.True(t, a.Scheduler().JobsByGroup("ops")[0].Paused)
}

func TestTelegramNotifiesFailures(t *testing.T) {
	texts := make(chan string, 8)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		texts <- fmt.Sprint(body["text"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer api.Close()

	path := writeConfig(t, `
logging: {level: error}
scheduler: {poll_interval: 20ms}
telegram:
  token: "123:abc"
  chat_id: 42
  api_url: `+api.URL+`
  notify:
    rate_per_sec: 50
jobs:
  - kind: boom
    interval: 50ms
    repeat: 1
`)
	a, err := New(path, WithoutSystemd(), WithJobKinds(func(r *scheduler.Registry) error {
		return r.Register("boom", func() scheduler.Job {
			return scheduler.JobFunc(func(context.Context, scheduler.JobContext) error { return errors.New("kaboom") })
		})
	}))
	require.NoError(t, err)
	require.NotNil(t, a.Notifier())
	assert.Contains(t, a.Scheduler().Registry().Kinds(), "telegram")

	require.NoError(t, a.Start(context.Background()))
	defer func() { _ = a.Stop(context.Background()) }()

	select {
	case text := <-texts:
		assert.Contains(t, text, "job.failed: boom")
		assert.Contains(t, text, "kaboom")
	case <-time.After(5 * time.Second):
		t.Fatal("no notification sent")
	}
}
