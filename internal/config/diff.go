package config

import (
	"reflect"
	"sort"
	"strings"

	"cronjure/pkg/logx"
)

// Section names reported by Diff.
const (
	SectionLogging   = "logging"
	SectionScheduler = "scheduler"
	SectionHistory   = "history"
	SectionAdmin     = "admin"
	SectionTelegram  = "telegram"
	SectionJobs      = "jobs"
)

// Diff returns the changed top-level sections and safe attrs for logging
// them. Only logging is applied live; the others need a restart.
func Diff(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 8)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, SectionScheduler)
		attrs = append(attrs,
			logx.String("scheduler.poll_interval", strings.TrimSpace(newCfg.Scheduler.PollInterval)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	var oh, nh HistoryConfig
	if oldCfg.History != nil {
		oh = *oldCfg.History
	}
	if newCfg.History != nil {
		nh = *newCfg.History
	}
	if oh != nh {
		changed = append(changed, SectionHistory)
		attrs = append(attrs,
			logx.String("history.driver", nh.Driver),
			logx.Bool("history.path_set", strings.TrimSpace(nh.Path) != ""),
		)
	}

	var oa, na AdminConfig
	if oldCfg.Admin != nil {
		oa = *oldCfg.Admin
	}
	if newCfg.Admin != nil {
		na = *newCfg.Admin
	}
	if oa != na {
		changed = append(changed, SectionAdmin)
		attrs = append(attrs,
			logx.Bool("admin.enabled", na.Enabled),
			logx.String("admin.addr", na.Addr),
			logx.Bool("admin.token_set", na.Token != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, SectionTelegram)
		var tg TelegramConfig
		if newCfg.Telegram != nil {
			tg = *newCfg.Telegram
		}
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(tg.Token) != ""),
			logx.Int64("telegram.chat_id", tg.ChatID),
			logx.Bool("telegram.notify", tg.Notify != nil),
		)
	}

	if !reflect.DeepEqual(oldCfg.Jobs, newCfg.Jobs) {
		changed = append(changed, SectionJobs)
		attrs = append(attrs, logx.Int("jobs.count", len(newCfg.Jobs)))
	}

	sort.Strings(changed)
	return changed, attrs
}

// LiveOnly reports whether every changed section can be applied without a
// restart.
func LiveOnly(changed []string) bool {
	for _, s := range changed {
		if s != SectionLogging {
			return false
		}
	}
	return true
}
