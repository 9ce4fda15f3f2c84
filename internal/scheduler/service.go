package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"cronjure/internal/runtime/supervisor"
	"cronjure/internal/storage"
	"cronjure/pkg/logx"
)

func New(cfg Config, reg *Registry, opts ...ServiceOption) *Service {
	if reg == nil {
		reg = NewRegistry()
	}
	s := &Service{
		cfg:    cfg.withDefaults(),
		reg:    reg,
		jobs:   map[string]*scheduledJob{},
		groups: map[string]map[string]struct{}{},
		tags:   map[string]map[string]struct{}{},
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "scheduler"))
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s
}

func (s *Service) Registry() *Registry { return s.reg }

// Running reports whether the loop is active.
func (s *Service) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// Start launches the control loop and starts every job's triggers. It is a
// no-op when already running. The loop ends on Stop or when ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}

	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runSup.Store(supervisor.New(rctx, supervisor.WithLogger(s.log)))
	s.loopSup = supervisor.New(rctx, supervisor.WithLogger(s.log))
	s.running = true

	s.mu.RLock()
	jobs := make([]*scheduledJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.RUnlock()
	for _, j := range jobs {
		s.startTriggers(j)
	}

	s.loopSup.GoRestart0("scheduler.loop", s.loop,
		supervisor.WithRestartBackoff(s.cfg.PollInterval, 30*time.Second))

	s.log.Info("scheduler started",
		logx.Int("jobs", len(jobs)),
		logx.Duration("poll", s.cfg.PollInterval),
		logx.String("tz", s.cfg.Location.String()),
	)
	return nil
}

// Stop cancels the loop and every in-flight run, stops triggers, then waits
// up to ShutdownGrace (or ctx) for runs to return. It is a no-op when not
// running. The service can be started again afterwards.
func (s *Service) Stop(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return nil
	}
	start := s.clock.Now()
	s.log.Info("stop requested")

	runs := s.runSup.Swap(nil)
	if runs != nil {
		runs.Cancel()
	}
	s.cancel()
	if err := s.loopSup.Wait(ctx); err != nil {
		s.log.Warn("scheduler loop did not exit cleanly", logx.Err(err))
	}

	s.mu.RLock()
	jobs := make([]*scheduledJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.RUnlock()
	for _, j := range jobs {
		for _, t := range j.sched.triggers {
			t.Stop()
		}
	}

	var err error
	if s.cfg.ShutdownGrace > 0 && runs != nil {
		gctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownGrace)
		werr := runs.Wait(gctx)
		cancel()
		if errors.Is(werr, context.DeadlineExceeded) || errors.Is(werr, context.Canceled) {
			s.log.Warn("in-flight runs still active after grace", logx.Strings("jobs", runs.Running()))
			if ctx.Err() != nil {
				err = ctx.Err()
			}
		}
	}

	s.running = false
	s.cancel = nil
	s.loopSup = nil
	s.log.Info("scheduler stopped", logx.Duration("took", s.clock.Since(start)))
	return err
}

func (s *Service) loop(ctx context.Context) {
	for {
		s.dispatchDue(s.clock.Now())
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.cfg.PollInterval):
		}
	}
}

type dueJob struct {
	job *scheduledJob
	at  time.Time
}

func (s *Service) dispatchDue(now time.Time) {
	s.mu.RLock()
	var due []dueJob
	for _, j := range s.jobs {
		if !j.nextRun.IsZero() && !j.nextRun.After(now) {
			due = append(due, dueJob{job: j, at: j.nextRun})
		}
	}
	s.mu.RUnlock()

	sort.Slice(due, func(a, b int) bool {
		if !due[a].at.Equal(due[b].at) {
			return due[a].at.Before(due[b].at)
		}
		return due[a].job.id < due[b].job.id
	})
	for _, d := range due {
		s.dispatch(d.job, storage.OriginSchedule, d.at)
	}
}

// dispatch launches one execution without waiting for it. A job that is
// still running is skipped.
func (s *Service) dispatch(j *scheduledJob, origin string, at time.Time) bool {
	runs := s.runSup.Load()
	if runs == nil {
		return false
	}
	if !j.busy.CompareAndSwap(false, true) {
		// A due occurrence stays due until the running execution finishes.
		if origin == storage.OriginTrigger {
			s.skip(j, origin, at)
		}
		return false
	}
	started := runs.Go("job:"+j.id, func(ctx context.Context) error {
		defer j.busy.Store(false)
		s.execute(ctx, j, origin, at)
		return nil
	})
	if !started {
		j.busy.Store(false)
	}
	return started
}

// skip reports an activation that hit a running job. Activations raised
// while the job's own skip event is being delivered are dropped silently.
func (s *Service) skip(j *scheduledJob, origin string, at time.Time) {
	if !j.skipping.CompareAndSwap(false, true) {
		return
	}
	defer j.skipping.Store(false)
	s.log.Debug("job still running; activation skipped", logx.String("job", j.id))
	s.publish(EventSkipped, JobEvent{ID: j.id, Kind: j.kind, Group: j.sched.group, Origin: origin, ScheduledAt: at})
}

func (s *Service) execute(ctx context.Context, j *scheduledJob, origin string, at time.Time) {
	log := s.log.With(logx.String("job", j.id), logx.String("kind", j.kind), logx.String("group", j.sched.group))
	started := s.clock.Now()
	s.publish(EventStarted, JobEvent{ID: j.id, Kind: j.kind, Group: j.sched.group, Origin: origin, ScheduledAt: at, Started: started})
	log.Debug("job started", logx.String("origin", origin))

	if j.sched.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.sched.timeout)
		defer cancel()
	}
	jc := JobContext{
		JobID:       j.id,
		Kind:        j.kind,
		Group:       j.sched.group,
		Origin:      origin,
		ScheduledAt: at,
		Data:        copyData(j.data),
	}
	err := s.invoke(ctx, j.kind, jc, log)

	finished := s.clock.Now()
	took := finished.Sub(started)

	s.mu.Lock()
	j.lastRun = finished
	j.runs++
	if err != nil {
		j.failures++
	}
	if origin == storage.OriginSchedule {
		s.advanceLocked(j, finished)
	}
	next := j.nextRun
	s.mu.Unlock()

	ev := JobEvent{ID: j.id, Kind: j.kind, Group: j.sched.group, Origin: origin, ScheduledAt: at, Started: started, Duration: took, NextRun: next}
	rec := storage.RunRecord{JobID: j.id, Kind: j.kind, Group: j.sched.group, Origin: origin, Started: started, Duration: took}
	if err != nil {
		ev.Error = err.Error()
		rec.Error = err.Error()
		log.Error("job failed", logx.Duration("took", took), logx.Err(err))
		s.publish(EventFailed, ev)
	} else {
		log.Debug("job completed", logx.Duration("took", took), logx.Time("next", next))
		s.publish(EventCompleted, ev)
	}
	s.record(rec, log)
}

// invoke resolves and runs the job, converting a panic into an error.
func (s *Service) invoke(ctx context.Context, kind string, jc JobContext, log logx.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	job, err := s.reg.Resolve(kind)
	if err != nil {
		return err
	}
	return job.Execute(ctx, jc)
}

// advanceLocked recomputes next-run after a scheduled run finished at from.
// Call with s.mu held.
func (s *Service) advanceLocked(j *scheduledJob, from time.Time) {
	if j.remaining > 0 {
		j.remaining--
	}
	if j.paused || j.remaining == 0 {
		j.nextRun = time.Time{}
		return
	}
	j.nextRun = j.sched.following(from, s.cfg.Location)
}

// resumeAtLocked is the next-run for a job resumed at now: no catch-up of
// missed occurrences. Call with s.mu held.
func (s *Service) resumeAtLocked(j *scheduledJob, now time.Time) time.Time {
	if j.remaining == 0 {
		return time.Time{}
	}
	if j.lastRun.IsZero() && !j.sched.startAt.IsZero() {
		if j.sched.startAt.After(now) {
			return j.sched.startAt
		}
		if !j.sched.recurring() {
			return now
		}
	}
	return j.sched.following(now, s.cfg.Location)
}

func (s *Service) publish(name string, ev JobEvent) {
	if s.hub == nil {
		return
	}
	s.hub.Raise(name, ev)
}

func (s *Service) record(r storage.RunRecord, log logx.Logger) {
	if s.rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.rec.AppendRun(ctx, r); err != nil {
		log.Warn("run history append failed", logx.Err(err))
	}
}

func copyData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
