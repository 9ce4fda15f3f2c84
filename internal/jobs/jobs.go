// Package jobs provides the built-in job kinds used by the daemon's
// declarative configuration.
package jobs

import (
	"context"
	"errors"

	"cronjure/internal/scheduler"
	"cronjure/pkg/logx"
	"cronjure/pkg/systemd"
)

const (
	KindLog      = "log"
	KindRaise    = "raise"
	KindExec     = "exec"
	KindSystemd  = "systemd"
	KindTelegram = "telegram"
)

// Publisher is the event sink for the raise kind.
type Publisher interface {
	Raise(name string, payload any) int
}

// UnitController is the systemd surface used by the systemd kind.
type UnitController interface {
	Do(ctx context.Context, action systemd.Action, unit string) error
}

// Messenger sends chat messages for the telegram kind.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}

type Deps struct {
	Log   logx.Logger
	Hub   Publisher
	Units UnitController

	Chat Messenger
	// DefaultChat is used when a telegram job has no data.chat_id.
	DefaultChat int64
}

// Register adds every built-in kind whose dependencies are present.
func Register(reg *scheduler.Registry, d Deps) error {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	log := d.Log.With(logx.String("comp", "jobs"))

	errs := []error{
		reg.Register(KindLog, func() scheduler.Job { return logJob{log: log} }),
		reg.Register(KindExec, func() scheduler.Job { return execJob{log: log} }),
	}
	if d.Hub != nil {
		errs = append(errs, reg.Register(KindRaise, func() scheduler.Job { return raiseJob{hub: d.Hub, log: log} }))
	}
	if d.Units != nil {
		errs = append(errs, reg.Register(KindSystemd, func() scheduler.Job { return systemdJob{units: d.Units, log: log} }))
	}
	if d.Chat != nil {
		errs = append(errs, reg.Register(KindTelegram, func() scheduler.Job {
			return telegramJob{chat: d.Chat, defaultChat: d.DefaultChat, log: log}
		}))
	}
	return errors.Join(errs...)
}

func jobFields(jc scheduler.JobContext) []logx.Field {
	return []logx.Field{
		logx.String("job", jc.JobID),
		logx.String("kind", jc.Kind),
		logx.String("group", jc.Group),
		logx.String("origin", jc.Origin),
	}
}
