package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"cronjure/internal/runtime/supervisor"
	"cronjure/internal/storage"
	"cronjure/pkg/logx"
)

const defaultPollInterval = time.Second

// Config controls the scheduler service.
type Config struct {
	// PollInterval is the wait between loop iterations. Default 1s.
	PollInterval time.Duration
	// ShutdownGrace bounds how long Stop waits for in-flight runs.
	// 0 returns without waiting; runs still see their context canceled.
	ShutdownGrace time.Duration
	// Location is where cron expressions are evaluated. Default time.Local.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ShutdownGrace < 0 {
		c.ShutdownGrace = 0
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// Publisher receives lifecycle events. *eventhub.Hub implements it.
type Publisher interface {
	Raise(name string, payload any) int
}

// Recorder receives one record per finished run. storage.Store implements it.
type Recorder interface {
	AppendRun(ctx context.Context, r storage.RunRecord) error
}

type ServiceOption func(*Service)

func WithLogger(l logx.Logger) ServiceOption { return func(s *Service) { s.log = l } }
func WithHub(p Publisher) ServiceOption      { return func(s *Service) { s.hub = p } }
func WithRecorder(r Recorder) ServiceOption  { return func(s *Service) { s.rec = r } }

func WithClock(c clockwork.Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

type scheduledJob struct {
	id    string
	kind  string
	sched Schedule
	data  map[string]any

	// Guarded by Service.mu.
	lastRun   time.Time
	nextRun   time.Time // zero = not scheduled
	remaining int
	paused    bool
	runs      uint64
	failures  uint64

	// busy gates overlapping executions of the same job.
	busy atomic.Bool

	// skipping is set while a skip event for this job is being delivered.
	skipping atomic.Bool
}

// Service is the scheduler. Create it with New.
type Service struct {
	cfg   Config
	reg   *Registry
	log   logx.Logger
	hub   Publisher
	rec   Recorder
	clock clockwork.Clock

	mu     sync.RWMutex
	jobs   map[string]*scheduledJob
	groups map[string]map[string]struct{}
	tags   map[string]map[string]struct{}

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	loopSup *supervisor.Supervisor
	runSup  atomic.Pointer[supervisor.Supervisor]
}

// JobInfo is a read-only snapshot of one job. A zero NextRun means the job is
// not scheduled to run again (paused, exhausted, or trigger-only).
type JobInfo struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	Group     string        `json:"group"`
	Tags      []string      `json:"tags,omitempty"`
	Cron      string        `json:"cron,omitempty"`
	Interval  time.Duration `json:"interval,omitempty"`
	StartAt   time.Time     `json:"start_at,omitzero"`
	Repeat    int           `json:"repeat"`
	Remaining int           `json:"remaining"`
	Triggers  int           `json:"triggers,omitempty"`
	LastRun   time.Time     `json:"last_run,omitzero"`
	NextRun   time.Time     `json:"next_run,omitzero"`
	Paused    bool          `json:"paused,omitempty"`
	Running   bool          `json:"running,omitempty"`
	Runs      uint64        `json:"runs"`
	Failures  uint64        `json:"failures"`
}

// Scheduled reports whether the job has a pending time-based run.
func (i JobInfo) Scheduled() bool { return !i.NextRun.IsZero() }

// Lifecycle event names raised on the hub.
const (
	EventScheduled = "job.scheduled"
	EventStarted   = "job.started"
	EventCompleted = "job.completed"
	EventFailed    = "job.failed"
	EventSkipped   = "job.skipped"
)

// JobEvent is the payload of every lifecycle event.
type JobEvent struct {
	ID          string        `json:"id"`
	Kind        string        `json:"kind"`
	Group       string        `json:"group"`
	Origin      string        `json:"origin,omitempty"`
	ScheduledAt time.Time     `json:"scheduled_at,omitzero"`
	Started     time.Time     `json:"started,omitzero"`
	Duration    time.Duration `json:"duration,omitempty"`
	NextRun     time.Time     `json:"next_run,omitzero"`
	Error       string        `json:"error,omitempty"`
}
