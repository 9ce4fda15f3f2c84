package notifier

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStopped   = errors.New("notifier: stopped")
	ErrQueueFull = errors.New("notifier: queue full")
)

// Config controls the async notification pipeline.
type Config struct {
	ChatID   int64
	ThreadID int
	// Events are hub patterns; empty means "job.failed".
	Events []string

	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	DedupWindow   time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Events) == 0 {
		c.Events = []string{"job.failed"}
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	c.RetryMax = max(c.RetryMax, 0)
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	c.DedupWindow = max(c.DedupWindow, 0)
	return c
}

// Sender delivers one text message to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}

// Message is one queued notification.
type Message struct {
	ChatID   int64
	ThreadID int
	Text     string
	// Key identifies duplicates; empty disables dedup for the message.
	Key string
}

type HistoryItem struct {
	At   time.Time
	Text string
	Err  string
}
