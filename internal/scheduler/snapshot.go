package scheduler

import (
	"fmt"
	"sort"
)

// JobsByGroup returns snapshots of the jobs in group, sorted by id.
func (s *Service) JobsByGroup(group string) []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.infosLocked(s.groups[group])
}

// JobsByTag returns snapshots of the jobs carrying tag, sorted by id.
func (s *Service) JobsByTag(tag string) []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.infosLocked(s.tags[tag])
}

func (s *Service) Job(id string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return JobInfo{}, fmt.Errorf("%w: %q", ErrUnknownJob, id)
	}
	return s.infoLocked(j), nil
}

// Groups lists groups with at least one job.
func (s *Service) Groups() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.groups))
	for g := range s.groups {
		out = append(out, g)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *Service) Snapshot() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, s.infoLocked(j))
	}
	sortInfos(out)
	return out
}

func (s *Service) infosLocked(ids map[string]struct{}) []JobInfo {
	out := make([]JobInfo, 0, len(ids))
	for id := range ids {
		if j, ok := s.jobs[id]; ok {
			out = append(out, s.infoLocked(j))
		}
	}
	sortInfos(out)
	return out
}

func (s *Service) infoLocked(j *scheduledJob) JobInfo {
	return JobInfo{
		ID:        j.id,
		Kind:      j.kind,
		Group:     j.sched.group,
		Tags:      j.sched.Tags(),
		Cron:      j.sched.Cron(),
		Interval:  j.sched.interval,
		StartAt:   j.sched.startAt,
		Repeat:    j.sched.repeat,
		Remaining: j.remaining,
		Triggers:  len(j.sched.triggers),
		LastRun:   j.lastRun,
		NextRun:   j.nextRun,
		Paused:    j.paused,
		Running:   j.busy.Load(),
		Runs:      j.runs,
		Failures:  j.failures,
	}
}

func sortInfos(in []JobInfo) {
	sort.Slice(in, func(a, b int) bool { return in[a].ID < in[b].ID })
}
