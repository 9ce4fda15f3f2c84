package scheduler

import "errors"

var (
	ErrUnknownKind     = errors.New("scheduler: unknown job kind")
	ErrInvalidSchedule = errors.New("scheduler: invalid schedule")
	ErrUnknownJob      = errors.New("scheduler: unknown job")
	ErrDuplicateKind   = errors.New("scheduler: job kind already registered")
)
