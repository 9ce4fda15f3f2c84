package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"cronjure/internal/cron"
	"cronjure/internal/trigger"
)

// ErrInvalid is matched by every validation failure.
var ErrInvalid = errors.New("invalid config")

// FieldError names one offending field by its path, e.g. "jobs[2].cron".
type FieldError struct {
	Path string
	Msg  string
}

func (e FieldError) Error() string { return e.Path + ": " + e.Msg }

// ValidationError lists every failing field.
type ValidationError []FieldError

func (v ValidationError) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Error()
	}
	return "invalid config: " + strings.Join(parts, "; ")
}

func (v ValidationError) Unwrap() error { return ErrInvalid }

// Paths lists the failing field paths in report order.
func (v ValidationError) Paths() []string {
	out := make([]string, len(v))
	for i, fe := range v {
		out[i] = fe.Path
	}
	return out
}

type checker struct{ errs ValidationError }

func (c *checker) add(path, format string, args ...any) {
	c.errs = append(c.errs, FieldError{Path: path, Msg: fmt.Sprintf(format, args...)})
}

func (c *checker) duration(path, raw string) {
	if _, err := ParseDurationField(path, raw); err != nil {
		c.add(path, "invalid duration %q", raw)
	}
}

var validLevels = map[string]bool{
	"": true, "trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks the whole config and reports every failing field, not only
// the first one.
func (c *Config) Validate() error {
	var ck checker

	if !validLevels[strings.ToLower(strings.TrimSpace(c.Logging.Level))] {
		ck.add("logging.level", "unknown level %q", c.Logging.Level)
	}

	ck.duration("scheduler.poll_interval", c.Scheduler.PollInterval)
	ck.duration("scheduler.shutdown_grace", c.Scheduler.ShutdownGrace)
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			ck.add("scheduler.timezone", "unknown timezone %q", tz)
		}
	}

	if h := c.History; h != nil {
		switch strings.ToLower(strings.TrimSpace(h.Driver)) {
		case "", "none":
		case "file", "sqlite":
			if strings.TrimSpace(h.Path) == "" {
				ck.add("history.path", "required for driver %q", h.Driver)
			}
		default:
			ck.add("history.driver", "unknown driver %q", h.Driver)
		}
		ck.duration("history.busy_timeout", h.BusyTimeout)
		if h.Retain < 0 {
			ck.add("history.retain", "must be >= 0")
		}
	}

	if a := c.Admin; a != nil {
		if a.Addr != "" {
			if _, _, err := net.SplitHostPort(a.Addr); err != nil {
				ck.add("admin.addr", "want host:port, got %q", a.Addr)
			}
		}
		ck.duration("admin.read_timeout", a.ReadTimeout)
		ck.duration("admin.write_timeout", a.WriteTimeout)
		ck.duration("admin.idle_timeout", a.IdleTimeout)
	}

	if tg := c.Telegram; tg != nil {
		if strings.TrimSpace(tg.Token) == "" {
			ck.add("telegram.token", "required")
		}
		ck.duration("telegram.timeout", tg.Timeout)
		if n := tg.Notify; n != nil {
			if tg.ChatID == 0 {
				ck.add("telegram.chat_id", "required when notify is set")
			}
			for i, p := range n.Events {
				if strings.TrimSpace(p) == "" {
					ck.add(fmt.Sprintf("telegram.notify.events[%d]", i), "empty pattern")
				}
			}
			if n.RatePerSec < 0 {
				ck.add("telegram.notify.rate_per_sec", "must be >= 0")
			}
			if n.QueueSize < 0 {
				ck.add("telegram.notify.queue_size", "must be >= 0")
			}
			if n.RetryMax < 0 {
				ck.add("telegram.notify.retry_max", "must be >= 0")
			}
			ck.duration("telegram.notify.retry_base", n.RetryBase)
			ck.duration("telegram.notify.retry_max_delay", n.RetryMaxDelay)
			ck.duration("telegram.notify.dedup_window", n.DedupWindow)
		}
	}

	for i, j := range c.Jobs {
		validateJob(&ck, fmt.Sprintf("jobs[%d]", i), j)
	}

	if len(ck.errs) > 0 {
		return ck.errs
	}
	return nil
}

func validateJob(ck *checker, path string, j JobConfig) {
	if strings.TrimSpace(j.Kind) == "" {
		ck.add(path+".kind", "required")
	}
	if j.StartAt != "" {
		if _, err := time.Parse(time.RFC3339, j.StartAt); err != nil {
			ck.add(path+".start_at", "want RFC 3339, got %q", j.StartAt)
		}
	}
	if j.Cron != "" {
		if _, err := cron.Parse(j.Cron); err != nil {
			var fe *cron.FormatError
			if errors.As(err, &fe) {
				ck.add(path+".cron", "%s", fe.Reason)
			} else {
				ck.add(path+".cron", "%v", err)
			}
		}
	}
	if j.Interval != "" {
		if d, err := ParseDurationField(path+".interval", j.Interval); err != nil || d == 0 {
			ck.add(path+".interval", "must be a positive duration, got %q", j.Interval)
		}
	}
	if j.Cron != "" && j.Interval != "" {
		ck.add(path, "cron and interval are mutually exclusive")
	}
	if j.Repeat != nil && *j.Repeat < -1 {
		ck.add(path+".repeat", "must be >= -1")
	}
	ck.duration(path+".timeout", j.Timeout)
	if j.StartAt == "" && j.Cron == "" && j.Interval == "" && len(j.Triggers) == 0 {
		ck.add(path, "needs start_at, cron, interval or triggers")
	}
	for k, t := range j.Triggers {
		validateTrigger(ck, fmt.Sprintf("%s.triggers[%d]", path, k), t)
	}
}

func validateTrigger(ck *checker, path string, t TriggerConfig) {
	ck.duration(path+".debounce", t.Debounce)
	switch strings.ToLower(strings.TrimSpace(t.Type)) {
	case TriggerFile:
		if strings.TrimSpace(t.Path) == "" {
			ck.add(path+".path", "required")
		}
		if t.Filter != "" {
			if _, err := filepath.Match(t.Filter, ""); err != nil {
				ck.add(path+".filter", "bad pattern %q", t.Filter)
			}
		}
		if _, err := trigger.ParseChangeOps(t.Events); err != nil {
			ck.add(path+".events", "%v", err)
		}
	case TriggerEvent:
		if strings.TrimSpace(t.Pattern) == "" {
			ck.add(path+".pattern", "required")
		}
	case TriggerAnd, TriggerOr:
		if len(t.Triggers) == 0 {
			ck.add(path+".triggers", "needs at least one child")
		}
		for k, child := range t.Triggers {
			validateTrigger(ck, fmt.Sprintf("%s.triggers[%d]", path, k), child)
		}
	default:
		ck.add(path+".type", "unknown trigger type %q", t.Type)
	}
}
