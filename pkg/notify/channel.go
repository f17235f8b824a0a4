// Package notify provides a synchronous publish/subscribe channel with
// explicit subscription handles.
package notify

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Subscription identifies one registered listener. The zero value matches
// no listener.
type Subscription struct {
	id uuid.UUID
}

// ID returns the subscription's identity as a string.
func (s Subscription) ID() string {
	return s.id.String()
}

// Valid reports whether the handle was issued by a Channel.
func (s Subscription) Valid() bool {
	return s.id != uuid.Nil
}

// PanicHandler receives the value a listener panicked with.
type PanicHandler func(sub Subscription, recovered any)

type entry[T any] struct {
	sub Subscription
	fn  func(T)
}

// Channel delivers published values to every subscribed listener, in
// subscription order, on the publishing goroutine.
//
// A listener that panics is recovered and reported to the panic handler;
// delivery continues with the next listener. Listeners may subscribe or
// unsubscribe from within a callback; such changes apply from the next
// Publish.
type Channel[T any] struct {
	mu      sync.RWMutex
	entries []entry[T]
	onPanic PanicHandler
}

// New creates an empty channel.
func New[T any]() *Channel[T] {
	return &Channel[T]{
		entries: make([]entry[T], 0),
	}
}

// OnPanic installs the handler called when a listener panics.
func (c *Channel[T]) OnPanic(handler PanicHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPanic = handler
}

// Subscribe registers fn and returns its handle.
func (c *Channel[T]) Subscribe(fn func(T)) Subscription {
	if fn == nil {
		panic("notify: nil listener")
	}

	sub := Subscription{id: uuid.New()}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry[T]{sub: sub, fn: fn})
	return sub
}

// Unsubscribe removes the listener behind sub. It reports whether a listener
// was removed.
func (c *Channel[T]) Unsubscribe(sub Subscription) bool {
	if !sub.Valid() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.sub == sub {
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Publish hands v to every listener and returns how many returned normally.
func (c *Channel[T]) Publish(v T) int {
	c.mu.RLock()
	entries := make([]entry[T], len(c.entries))
	copy(entries, c.entries)
	onPanic := c.onPanic
	c.mu.RUnlock()

	delivered := 0
	for _, e := range entries {
		if c.deliver(e, v, onPanic) {
			delivered++
		}
	}
	return delivered
}

// Len returns the number of subscribed listeners.
func (c *Channel[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every listener.
func (c *Channel[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make([]entry[T], 0)
}

func (c *Channel[T]) deliver(e entry[T], v T, onPanic PanicHandler) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if onPanic != nil {
				func() {
					defer func() { recover() }()
					onPanic(e.sub, r)
				}()
			}
		}
	}()

	e.fn(v)
	return true
}

// PanicError wraps a recovered listener panic as an error.
func PanicError(sub Subscription, recovered any) error {
	return fmt.Errorf("listener %s panicked: %v", sub.ID(), recovered)
}
