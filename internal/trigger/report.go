package trigger

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"cronjure/pkg/logx"
)

// errReporter logs listener failures at most once per interval and counts
// what it swallowed in between.
type errReporter struct {
	log        logx.Logger
	lim        *rate.Limiter
	suppressed atomic.Int64
}

func newErrReporter(log logx.Logger, every time.Duration) *errReporter {
	return &errReporter{log: log, lim: rate.NewLimiter(rate.Every(every), 1)}
}

func (r *errReporter) report(msg string, err error, fields ...logx.Field) {
	if !r.lim.Allow() {
		r.suppressed.Add(1)
		return
	}
	fs := append(fields, logx.Err(err))
	if n := r.suppressed.Swap(0); n > 0 {
		fs = append(fs, logx.Int64("suppressed", n))
	}
	r.log.Warn(msg, fs...)
}
