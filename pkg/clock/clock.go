// Package clock abstracts wall time and one-shot timers so the controller
// can run against the real clock in production and a manually advanced
// clock in tests.
package clock

import "time"

// Timer is a pending one-shot callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer, false if it already fired or was stopped.
	Stop() bool
}

// Clock provides the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// System is the Clock backed by package time.
type System struct{}

// NewSystem returns the real clock.
func NewSystem() System {
	return System{}
}

// Now returns time.Now.
func (System) Now() time.Time {
	return time.Now()
}

// AfterFunc runs f on its own goroutine once d has elapsed.
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
