// Package scheduler owns the job registry, its group and tag indexes, and the
// polling loop that dispatches due jobs.
//
// Per-job state machine:
//
//	Pending -> Due -> Running -> Pending | Exhausted
//
// A job is due when its next-run time is present and not after now. Each
// due job runs in its own supervised goroutine; a job never overlaps with
// itself. After a scheduled run the next-run time is recomputed from the
// completion time. Trigger-originated runs leave next-run and the repeat
// budget untouched.
package scheduler
