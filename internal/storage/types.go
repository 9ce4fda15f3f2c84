package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

const defaultRetain = 10000

// Config configures the history store.
//
// Driver values:
//   - "file": JSON Lines journal
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Retain      int           // runs kept after compaction; 0 means default
}

func (c Config) retain() int {
	if c.Retain > 0 {
		return c.Retain
	}
	return defaultRetain
}

// Run origins.
const (
	OriginSchedule = "schedule"
	OriginTrigger  = "trigger"
)

// RunRecord is one finished execution.
type RunRecord struct {
	JobID    string        `json:"job_id"`
	Kind     string        `json:"kind"`
	Group    string        `json:"group"`
	Origin   string        `json:"origin"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

func (r RunRecord) OK() bool { return r.Error == "" }
