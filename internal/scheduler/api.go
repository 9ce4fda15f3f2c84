package scheduler

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"cronjure/internal/storage"
	"cronjure/internal/trigger"
	"cronjure/pkg/logx"
)

// ScheduleJob registers a job of kind with sched and returns its id. data is
// copied; later changes by the caller are not observed.
func (s *Service) ScheduleJob(kind string, sched Schedule, data map[string]any) (string, error) {
	if !sched.built {
		return "", fmt.Errorf("%w: schedule not built with NewSchedule", ErrInvalidSchedule)
	}
	if !s.reg.Has(kind) {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	now := s.clock.Now()
	j := &scheduledJob{
		id:        uuid.NewString(),
		kind:      kind,
		sched:     sched,
		data:      copyData(data),
		remaining: sched.repeat,
	}
	switch {
	case sched.repeat == 0:
	case !sched.startAt.IsZero():
		j.nextRun = sched.startAt
	default:
		j.nextRun = sched.following(now, s.cfg.Location)
	}

	s.mu.Lock()
	s.jobs[j.id] = j
	index(s.groups, sched.group, j.id)
	for _, t := range sched.tags {
		index(s.tags, t, j.id)
	}
	s.mu.Unlock()

	s.log.Info("job scheduled",
		logx.String("job", j.id),
		logx.String("kind", kind),
		logx.String("group", sched.group),
		logx.Time("next", j.nextRun),
		logx.Int("triggers", len(sched.triggers)),
	)
	s.publish(EventScheduled, JobEvent{ID: j.id, Kind: kind, Group: sched.group, NextRun: j.nextRun})

	s.runMu.Lock()
	if s.running {
		s.startTriggers(j)
	}
	s.runMu.Unlock()
	return j.id, nil
}

// Unschedule removes a job and stops its triggers. An execution already in
// flight is not interrupted.
func (s *Service) Unschedule(id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownJob, id)
	}
	delete(s.jobs, id)
	unindex(s.groups, j.sched.group, id)
	for _, t := range j.sched.tags {
		unindex(s.tags, t, id)
	}
	s.mu.Unlock()

	for _, t := range j.sched.triggers {
		t.Stop()
	}
	s.log.Info("job removed", logx.String("job", id), logx.String("kind", j.kind))
	return nil
}

func (s *Service) startTriggers(j *scheduledJob) {
	for i, t := range j.sched.triggers {
		err := t.Start(func() { s.fireTrigger(j) })
		if err != nil && !errors.Is(err, trigger.ErrAlreadyStarted) {
			s.log.Error("trigger start failed", logx.String("job", j.id), logx.Int("trigger", i), logx.Err(err))
		}
	}
}

// fireTrigger runs j outside its time-based cadence. Paused or removed jobs
// ignore activations.
func (s *Service) fireTrigger(j *scheduledJob) {
	s.mu.RLock()
	_, live := s.jobs[j.id]
	paused := j.paused
	s.mu.RUnlock()
	if !live || paused {
		s.log.Trace("trigger ignored", logx.String("job", j.id), logx.Bool("paused", paused))
		return
	}
	s.dispatch(j, storage.OriginTrigger, s.clock.Now())
}

func index(idx map[string]map[string]struct{}, key, id string) {
	set, ok := idx[key]
	if !ok {
		set = map[string]struct{}{}
		idx[key] = set
	}
	set[id] = struct{}{}
}

func unindex(idx map[string]map[string]struct{}, key, id string) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx, key)
	}
}
