package runtime

import "time"

// Scheduler creates one-shot timers. AfterFunc returns a stop function that
// reports whether the timer was still pending.
//
// Tests inject a manual scheduler to advance debounce time deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// SystemScheduler schedules on the wall clock.
type SystemScheduler struct{}

// AfterFunc implements Scheduler with time.AfterFunc.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}
