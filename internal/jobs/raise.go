package jobs

import (
	"context"
	"time"

	"cronjure/internal/scheduler"
	"cronjure/pkg/logx"
)

// RaisedPayload is sent when the job has no data.payload.
type RaisedPayload struct {
	JobID       string    `json:"job_id"`
	Kind        string    `json:"kind"`
	Group       string    `json:"group"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// raiseJob raises data.event on the hub, carrying data.payload.
type raiseJob struct {
	hub Publisher
	log logx.Logger
}

func (j raiseJob) Execute(_ context.Context, jc scheduler.JobContext) error {
	name, err := requiredString(jc.Data, "event")
	if err != nil {
		return err
	}
	payload, ok := jc.Data["payload"]
	if !ok {
		payload = RaisedPayload{JobID: jc.JobID, Kind: jc.Kind, Group: jc.Group, ScheduledAt: jc.ScheduledAt}
	}
	n := j.hub.Raise(name, payload)
	j.log.Debug("event raised", append(jobFields(jc), logx.String("event", name), logx.Int("handlers", n))...)
	return nil
}
