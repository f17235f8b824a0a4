// Package fsm is a small flat state machine with guarded transitions,
// transition actions and lifecycle observers, configured through a fluent
// builder.
package fsm

import "context"

// Event is a trigger for transitions.
type Event struct {
	Name string
	Data any
}

// GuardFunc decides whether a transition may be taken.
type GuardFunc func(ctx *Context) bool

// ActionFunc runs while a transition is taken. A non-nil error aborts the
// transition and leaves the machine in its source state.
type ActionFunc func(ctx *Context) error

// Context describes the transition being evaluated.
type Context struct {
	context.Context

	event  Event
	source string
	target string
}

// EventName returns the name of the triggering event.
func (c *Context) EventName() string {
	return c.event.Name
}

// EventData returns the payload of the triggering event.
func (c *Context) EventData() any {
	return c.event.Data
}

// Source returns the state the transition leaves.
func (c *Context) Source() string {
	return c.source
}

// Target returns the state the transition enters.
func (c *Context) Target() string {
	return c.target
}

// EventResult represents the result of processing an event
type EventResult struct {
	Processed       bool
	StateChanged    bool
	PreviousState   string
	CurrentState    string
	Error           error
	RejectionReason string
}

// NewEventResult creates a new event result
func NewEventResult(processed, stateChanged bool, prevState, currentState string) *EventResult {
	return &EventResult{
		Processed:     processed,
		StateChanged:  stateChanged,
		PreviousState: prevState,
		CurrentState:  currentState,
	}
}

// WithError adds an error to the event result
func (r *EventResult) WithError(err error) *EventResult {
	r.Error = err
	return r
}

// WithRejection adds a rejection reason to the event result
func (r *EventResult) WithRejection(reason string) *EventResult {
	r.RejectionReason = reason
	r.Processed = false
	return r
}

// Success returns true if the event was processed successfully
func (r *EventResult) Success() bool {
	return r.Processed && r.Error == nil
}
