// Package cronutil provides the shared cron-expression scheduling helper
// used by every worker's periodic background job (feedback snapshots,
// stale-task sweeps), grounded on the teacher's timer-recompute loop
// rather than a library-owned scheduler goroutine.
package cronutil

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// parser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextDuration parses a 5-field cron expression and returns the duration
// until its next fire time. Returns 0 on parse error.
func NextDuration(expr string) time.Duration {
	sched, err := parser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// Run recomputes NextDuration(expr) after every tick and calls fn, until
// ctx is cancelled. A parse error backs off to hourly rather than busy
// looping. Meant to be started with `go cronutil.Run(...)`.
func Run(ctx context.Context, expr string, fn func()) {
	for {
		d := NextDuration(expr)
		if d <= 0 {
			d = time.Hour
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			fn()
		}
	}
}
