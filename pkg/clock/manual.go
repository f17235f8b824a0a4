package clock

import (
	"sync"
	"time"
)

// Epoch is the instant a Manual clock starts at unless told otherwise.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Manual is a deterministic Clock whose time only moves when Advance or Set
// is called. Due callbacks run synchronously on the advancing goroutine, in
// deadline order, with ties broken by scheduling order.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run
// without the clock's lock held, so they may schedule further timers.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	clock *Manual
	when  time.Time
	seq   uint64
	f     func()
	done  bool
}

// NewManual creates a manual clock starting at Epoch.
func NewManual() *Manual {
	return NewManualAt(Epoch)
}

// NewManualAt creates a manual clock starting at t.
func NewManualAt(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the clock's current time.
func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once the clock reaches Now()+d.
func (c *Manual) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &manualTimer{
		clock: c,
		when:  c.now.Add(d),
		seq:   c.seq,
		f:     f,
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that falls due on
// the way. Timers scheduled by callbacks are fired too if they fall inside
// the window.
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	c.runUntil(target)
}

// Set moves the clock to t. Moving backwards is allowed and fires nothing,
// which lets tests model a wall clock that steps back.
func (c *Manual) Set(t time.Time) {
	c.mu.Lock()
	if t.Before(c.now) {
		c.now = t
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.runUntil(t)
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *Manual) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// NextDeadline returns the earliest pending deadline.
func (c *Manual) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.nextLocked()
	if next == nil {
		return time.Time{}, false
	}
	return next.when, true
}

func (c *Manual) runUntil(target time.Time) {
	for {
		c.mu.Lock()
		next := c.nextLocked()
		if next == nil || next.when.After(target) {
			c.now = target
			c.compactLocked()
			c.mu.Unlock()
			return
		}
		next.done = true
		c.now = next.when
		c.mu.Unlock()

		next.f()
	}
}

func (c *Manual) nextLocked() *manualTimer {
	var next *manualTimer
	for _, t := range c.timers {
		if t.done {
			continue
		}
		if next == nil || t.when.Before(next.when) || (t.when.Equal(next.when) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (c *Manual) compactLocked() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(c.timers); i++ {
		c.timers[i] = nil
	}
	c.timers = live
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	return true
}
