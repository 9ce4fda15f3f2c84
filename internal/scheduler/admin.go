package scheduler

import (
	"time"

	"cronjure/pkg/logx"
)

// PauseGroup suspends every job in group. Paused jobs have no next run and
// ignore trigger activations. Unknown groups are a no-op.
func (s *Service) PauseGroup(group string) int {
	s.mu.Lock()
	n := 0
	for id := range s.groups[group] {
		j := s.jobs[id]
		if j.paused {
			continue
		}
		j.paused = true
		j.nextRun = time.Time{}
		n++
	}
	s.mu.Unlock()

	if n > 0 {
		s.log.Info("group paused", logx.String("group", group), logx.Int("jobs", n))
	}
	return n
}

// ResumeGroup reactivates paused jobs in group. Next runs are anchored at the
// current time; occurrences missed while paused are not replayed.
func (s *Service) ResumeGroup(group string) int {
	now := s.clock.Now()
	s.mu.Lock()
	n := 0
	for id := range s.groups[group] {
		j := s.jobs[id]
		if !j.paused {
			continue
		}
		j.paused = false
		j.nextRun = s.resumeAtLocked(j, now)
		n++
	}
	s.mu.Unlock()

	if n > 0 {
		s.log.Info("group resumed", logx.String("group", group), logx.Int("jobs", n))
	}
	return n
}
