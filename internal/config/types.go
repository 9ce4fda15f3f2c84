package config

// Config is the on-disk configuration. JSON or YAML; unknown keys are
// rejected.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	History   *HistoryConfig  `json:"history,omitempty"`
	Admin     *AdminConfig    `json:"admin,omitempty"`
	Telegram  *TelegramConfig `json:"telegram,omitempty"`
	Jobs      []JobConfig     `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the polling loop.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "1s"
//   - shutdown_grace: "0s" (do not wait for in-flight runs)
//   - timezone: local time
type SchedulerConfig struct {
	PollInterval  string `json:"poll_interval,omitempty"`
	ShutdownGrace string `json:"shutdown_grace,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
}

// HistoryConfig controls the optional run history store. Nil or driver
// "none" disables it.
//
// Example:
//
//	"history": { "driver": "sqlite", "path": "./cronjure.db" }
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	Retain      int    `json:"retain,omitempty"`
}

// AdminConfig enables the HTTP admin server. Nil or enabled=false disables
// it. A non-loopback addr needs a token unless allow_insecure is set.
//
// Example:
//
//	"admin": { "enabled": true, "addr": "127.0.0.1:8089", "pprof": true }
type AdminConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// TelegramConfig enables the telegram job kind and, with notify set,
// forwarding of job events to chat_id.
//
// Example:
//
//	"telegram": {
//	  "token": "123:abc",
//	  "chat_id": -1001234567890,
//	  "notify": { "events": ["job.failed"], "dedup_window": "10m" }
//	}
type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
	Timeout  string `json:"timeout,omitempty"`

	Notify *NotifyConfig `json:"notify,omitempty"`
}

// NotifyConfig tunes the event forwarding queue.
//
// Defaults (when fields are omitted/zero):
//   - events: ["job.failed"]
//   - rate_per_sec: 1
//   - queue_size: 128
//   - retry_max: 0
type NotifyConfig struct {
	Events        []string `json:"events,omitempty"`
	RatePerSec    int      `json:"rate_per_sec,omitempty"`
	QueueSize     int      `json:"queue_size,omitempty"`
	RetryMax      int      `json:"retry_max,omitempty"`
	RetryBase     string   `json:"retry_base,omitempty"`
	RetryMaxDelay string   `json:"retry_max_delay,omitempty"`
	DedupWindow   string   `json:"dedup_window,omitempty"`
}

// JobConfig declares one job. At least one of start_at, cron, interval or
// triggers must be set.
type JobConfig struct {
	Name  string   `json:"name,omitempty"`
	Kind  string   `json:"kind"`
	Group string   `json:"group,omitempty"`
	Tags  []string `json:"tags,omitempty"`

	// StartAt is RFC 3339.
	StartAt  string `json:"start_at,omitempty"`
	Cron     string `json:"cron,omitempty"`
	Interval string `json:"interval,omitempty"`
	// Repeat bounds time-based runs: omitted or -1 forever, 0 never.
	Repeat  *int   `json:"repeat,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	Data     map[string]any  `json:"data,omitempty"`
	Triggers []TriggerConfig `json:"triggers,omitempty"`
}

// Trigger types.
const (
	TriggerFile  = "file"
	TriggerEvent = "event"
	TriggerAnd   = "and"
	TriggerOr    = "or"
)

// TriggerConfig is a tagged union keyed by Type:
//
//	{type: file,  path, filter, events, debounce}
//	{type: event, pattern, debounce}
//	{type: and|or, triggers: [...]}
type TriggerConfig struct {
	Type     string          `json:"type"`
	Path     string          `json:"path,omitempty"`
	Filter   string          `json:"filter,omitempty"`
	Events   []string        `json:"events,omitempty"`
	Pattern  string          `json:"pattern,omitempty"`
	Debounce string          `json:"debounce,omitempty"`
	Triggers []TriggerConfig `json:"triggers,omitempty"`
}

// RepeatCount resolves the optional repeat field.
func (j JobConfig) RepeatCount() int {
	if j.Repeat == nil {
		return -1
	}
	return *j.Repeat
}

// Label names the job in logs and validation errors.
func (j JobConfig) Label() string {
	if j.Name != "" {
		return j.Name
	}
	return j.Kind
}
