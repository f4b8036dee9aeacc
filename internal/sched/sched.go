// Package sched abstracts timer-driven scheduling so that countdowns and
// capture loops can run against a fake clock in tests.
package sched

import "time"

// CancelFunc cancels a scheduled call. Safe to call more than once.
type CancelFunc func()

type Scheduler interface {
	// Schedule runs fn once after the given delay.
	Schedule(after time.Duration, fn func()) CancelFunc
	Now() time.Time
}

type realScheduler struct{}

// New returns a Scheduler backed by real timers.
func New() Scheduler {
	return realScheduler{}
}

func (realScheduler) Schedule(after time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(after, fn)
	return func() { t.Stop() }
}

func (realScheduler) Now() time.Time {
	return time.Now()
}
