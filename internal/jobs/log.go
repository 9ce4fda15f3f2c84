package jobs

import (
	"context"
	"strings"

	"cronjure/internal/scheduler"
	"cronjure/pkg/logx"
)

// logJob writes data.message at data.level (default info). data.fields is
// attached as structured fields.
type logJob struct{ log logx.Logger }

func (j logJob) Execute(_ context.Context, jc scheduler.JobContext) error {
	msg, err := stringField(jc.Data, "message")
	if err != nil {
		return err
	}
	if msg == "" {
		msg = "job ran"
	}
	level, err := stringField(jc.Data, "level")
	if err != nil {
		return err
	}
	fields, keys, err := stringMap(jc.Data, "fields")
	if err != nil {
		return err
	}

	attrs := jobFields(jc)
	for _, k := range keys {
		attrs = append(attrs, logx.String(k, fields[k]))
	}

	switch strings.ToLower(level) {
	case "trace":
		j.log.Trace(msg, attrs...)
	case "debug":
		j.log.Debug(msg, attrs...)
	case "warn", "warning":
		j.log.Warn(msg, attrs...)
	case "error":
		j.log.Error(msg, attrs...)
	default:
		j.log.Info(msg, attrs...)
	}
	return nil
}
