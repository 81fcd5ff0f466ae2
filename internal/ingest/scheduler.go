package ingest

import "time"

// CancelFunc stops a scheduled callback. It returns true when the callback
// was cancelled before firing.
type CancelFunc func() bool

// Scheduler defers callbacks. The production implementation uses real
// timers; tests inject a manual one to drive the pipeline deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) CancelFunc
}

// TimerScheduler schedules callbacks on real timers.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return t.Stop
}
