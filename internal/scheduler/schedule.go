package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cronjure/internal/cron"
	"cronjure/internal/trigger"
)

const DefaultGroup = "default"

// Schedule is the immutable recurrence and metadata of a job. Build it with
// NewSchedule; the zero value is rejected by ScheduleJob.
type Schedule struct {
	startAt  time.Time
	cron     *cron.Schedule
	interval time.Duration
	repeat   int
	timeout  time.Duration
	triggers []trigger.Trigger
	group    string
	tags     []string
	built    bool
}

// Option configures a Schedule.
type Option func(*Schedule) error

// StartAt sets the first run time. Alone, it makes a one-shot job.
func StartAt(t time.Time) Option {
	return func(s *Schedule) error {
		if t.IsZero() {
			return errors.New("start time is zero")
		}
		s.startAt = t
		return nil
	}
}

// WithCron sets a 5-field cron recurrence. Parse failures wrap cron.ErrFormat.
func WithCron(expr string) Option {
	return func(s *Schedule) error {
		cs, err := cron.Parse(expr)
		if err != nil {
			return err
		}
		s.cron = cs
		return nil
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Schedule) error {
		if d <= 0 {
			return fmt.Errorf("interval must be positive, got %s", d)
		}
		s.interval = d
		return nil
	}
}

// WithRepeatCount bounds time-based runs: -1 forever, 0 never, N runs.
func WithRepeatCount(n int) Option {
	return func(s *Schedule) error {
		if n < -1 {
			return fmt.Errorf("repeat count must be >= -1, got %d", n)
		}
		s.repeat = n
		return nil
	}
}

// WithTriggers attaches event-driven activations. They are additive to any
// time-based recurrence.
func WithTriggers(ts ...trigger.Trigger) Option {
	return func(s *Schedule) error {
		for i, t := range ts {
			if t == nil {
				return fmt.Errorf("trigger %d is nil", i)
			}
		}
		s.triggers = append(s.triggers, ts...)
		return nil
	}
}

// WithTimeout bounds each execution. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(s *Schedule) error {
		if d < 0 {
			return fmt.Errorf("timeout must be >= 0, got %s", d)
		}
		s.timeout = d
		return nil
	}
}

func InGroup(g string) Option {
	return func(s *Schedule) error {
		s.group = strings.TrimSpace(g)
		return nil
	}
}

func WithTags(tags ...string) Option {
	return func(s *Schedule) error {
		s.tags = append(s.tags, tags...)
		return nil
	}
}

// NewSchedule applies opts and validates the result. Every failing option is
// reported.
func NewSchedule(opts ...Option) (Schedule, error) {
	s := Schedule{repeat: -1}
	var errs []error
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(&s); err != nil {
			errs = append(errs, err)
		}
	}
	if s.cron != nil && s.interval > 0 {
		errs = append(errs, errors.New("cron and interval are mutually exclusive"))
	}
	if len(errs) > 0 {
		return Schedule{}, fmt.Errorf("%w: %w", ErrInvalidSchedule, errors.Join(errs...))
	}

	if s.group == "" {
		s.group = DefaultGroup
	}
	s.tags = normalizeTags(s.tags)
	s.triggers = append([]trigger.Trigger(nil), s.triggers...)
	s.built = true
	return s, nil
}

func normalizeTags(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s Schedule) Group() string           { return s.group }
func (s Schedule) Tags() []string          { return append([]string(nil), s.tags...) }
func (s Schedule) Repeat() int             { return s.repeat }
func (s Schedule) Interval() time.Duration { return s.interval }
func (s Schedule) Timeout() time.Duration  { return s.timeout }
func (s Schedule) StartTime() time.Time    { return s.startAt }

// Cron returns the source expression, or "" without a cron recurrence.
func (s Schedule) Cron() string {
	if s.cron == nil {
		return ""
	}
	return s.cron.String()
}

// recurring reports whether the schedule repeats on its own.
func (s Schedule) recurring() bool { return s.cron != nil || s.interval > 0 }

// following returns the next time-based run after from, evaluated in loc,
// or the zero time when the schedule does not recur.
func (s Schedule) following(from time.Time, loc *time.Location) time.Time {
	switch {
	case s.cron != nil:
		return s.cron.Next(from.In(loc))
	case s.interval > 0:
		return from.Add(s.interval)
	default:
		return time.Time{}
	}
}
