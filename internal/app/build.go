package app

import (
	"fmt"
	"strings"
	"time"

	"cronjure/internal/config"
	"cronjure/internal/notifier"
	"cronjure/internal/observability/admin"
	"cronjure/internal/scheduler"
	"cronjure/internal/storage"
	"cronjure/internal/trigger"
	"cronjure/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	poll, err := config.ParseDurationField("scheduler.poll_interval", cfg.Scheduler.PollInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	grace, err := config.ParseDurationField("scheduler.shutdown_grace", cfg.Scheduler.ShutdownGrace)
	if err != nil {
		return scheduler.Config{}, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	return scheduler.Config{PollInterval: poll, ShutdownGrace: grace, Location: loc}, nil
}

// mapHistoryConfig reports false when history is disabled.
func mapHistoryConfig(cfg *config.Config) (storage.Config, bool, error) {
	h := cfg.History
	if h == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(h.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("history.busy_timeout", h.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(h.Path),
		BusyTimeout: busy,
		Retain:      h.Retain,
	}, true, nil
}

// mapAdminConfig reports false when the admin server is disabled.
func mapAdminConfig(cfg *config.Config) (admin.Config, bool, error) {
	a := cfg.Admin
	if a == nil || !a.Enabled {
		return admin.Config{}, false, nil
	}
	read, err := config.ParseDurationOrDefault("admin.read_timeout", a.ReadTimeout, 10*time.Second)
	if err != nil {
		return admin.Config{}, false, err
	}
	write, err := config.ParseDurationOrDefault("admin.write_timeout", a.WriteTimeout, 60*time.Second)
	if err != nil {
		return admin.Config{}, false, err
	}
	idle, err := config.ParseDurationOrDefault("admin.idle_timeout", a.IdleTimeout, 60*time.Second)
	if err != nil {
		return admin.Config{}, false, err
	}
	return admin.Config{
		Addr:          strings.TrimSpace(a.Addr),
		Token:         strings.TrimSpace(a.Token),
		AllowInsecure: a.AllowInsecure,
		Pprof:         a.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, true, nil
}

// mapNotifierConfig reports false when notify is not configured.
func mapNotifierConfig(tg *config.TelegramConfig) (notifier.Config, bool, error) {
	if tg == nil || tg.Notify == nil {
		return notifier.Config{}, false, nil
	}
	n := tg.Notify
	base, err := config.ParseDurationField("telegram.notify.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, false, err
	}
	maxDelay, err := config.ParseDurationField("telegram.notify.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, false, err
	}
	dedup, err := config.ParseDurationField("telegram.notify.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, false, err
	}
	return notifier.Config{
		ChatID:        tg.ChatID,
		ThreadID:      tg.ThreadID,
		Events:        n.Events,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		DedupWindow:   dedup,
	}, true, nil
}

// builder turns declarative job entries into schedules.
type builder struct {
	hub trigger.Source
	log logx.Logger
}

func (b builder) schedule(path string, jc config.JobConfig) (scheduler.Schedule, error) {
	opts := []scheduler.Option{
		scheduler.InGroup(jc.Group),
		scheduler.WithTags(jc.Tags...),
		scheduler.WithRepeatCount(jc.RepeatCount()),
	}
	if jc.StartAt != "" {
		at, err := time.Parse(time.RFC3339, jc.StartAt)
		if err != nil {
			return scheduler.Schedule{}, fmt.Errorf("%s.start_at: %w", path, err)
		}
		opts = append(opts, scheduler.StartAt(at))
	}
	if jc.Cron != "" {
		opts = append(opts, scheduler.WithCron(jc.Cron))
	}
	if jc.Interval != "" {
		d, err := config.ParseDurationField(path+".interval", jc.Interval)
		if err != nil {
			return scheduler.Schedule{}, err
		}
		opts = append(opts, scheduler.WithInterval(d))
	}
	timeout, err := config.ParseDurationField(path+".timeout", jc.Timeout)
	if err != nil {
		return scheduler.Schedule{}, err
	}
	opts = append(opts, scheduler.WithTimeout(timeout))

	for i, tc := range jc.Triggers {
		t, err := b.trigger(fmt.Sprintf("%s.triggers[%d]", path, i), tc)
		if err != nil {
			return scheduler.Schedule{}, err
		}
		opts = append(opts, scheduler.WithTriggers(t))
	}

	s, err := scheduler.NewSchedule(opts...)
	if err != nil {
		return scheduler.Schedule{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (b builder) trigger(path string, tc config.TriggerConfig) (trigger.Trigger, error) {
	debounce, err := config.ParseDurationField(path+".debounce", tc.Debounce)
	if err != nil {
		return nil, err
	}
	opts := []trigger.Option{
		trigger.WithDebounce(debounce),
		trigger.WithLogger(b.log.With(logx.String("trigger", path))),
	}

	switch strings.ToLower(strings.TrimSpace(tc.Type)) {
	case config.TriggerFile:
		ops, err := trigger.ParseChangeOps(tc.Events)
		if err != nil {
			return nil, fmt.Errorf("%s.events: %w", path, err)
		}
		return trigger.NewFileSystemTrigger(tc.Path, tc.Filter, ops, opts...)
	case config.TriggerEvent:
		return trigger.NewEventTrigger(b.hub, tc.Pattern, nil, opts...)
	case config.TriggerAnd, config.TriggerOr:
		children := make([]trigger.Trigger, 0, len(tc.Triggers))
		for i, c := range tc.Triggers {
			t, err := b.trigger(fmt.Sprintf("%s.triggers[%d]", path, i), c)
			if err != nil {
				return nil, err
			}
			children = append(children, t)
		}
		if strings.EqualFold(tc.Type, config.TriggerAnd) {
			return trigger.NewAndTrigger(children...)
		}
		return trigger.NewOrTrigger(children...)
	default:
		return nil, fmt.Errorf("%s.type: unknown trigger type %q", path, tc.Type)
	}
}
