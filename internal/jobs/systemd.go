package jobs

import (
	"context"

	"cronjure/internal/scheduler"
	"cronjure/pkg/logx"
	"cronjure/pkg/systemd"
)

// systemdJob applies data.action (default restart) to data.unit.
type systemdJob struct {
	units UnitController
	log   logx.Logger
}

func (j systemdJob) Execute(ctx context.Context, jc scheduler.JobContext) error {
	unit, err := requiredString(jc.Data, "unit")
	if err != nil {
		return err
	}
	raw, err := stringField(jc.Data, "action")
	if err != nil {
		return err
	}
	action, err := systemd.ParseAction(raw)
	if err != nil {
		return err
	}
	if err := j.units.Do(ctx, action, unit); err != nil {
		return err
	}
	j.log.Info("unit action done", append(jobFields(jc),
		logx.String("unit", systemd.UnitName(unit)),
		logx.String("action", string(action)),
	)...)
	return nil
}
