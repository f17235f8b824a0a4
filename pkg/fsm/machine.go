package fsm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Machine is a running instance of a Definition.
//
// Events are processed one at a time. Guards, actions and observers run
// while the machine lock is held, so they must not send events to the same
// machine.
type Machine struct {
	def       *Definition
	current   string
	started   bool
	observers *ObserverManager
	mutex     sync.Mutex
}

func newMachine(def *Definition) *Machine {
	return &Machine{
		def:       def,
		observers: NewObserverManager(),
	}
}

// safeEvaluateGuard safely evaluates a guard function with panic recovery
func safeEvaluateGuard(guard GuardFunc, ctx *Context) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = false
			err = fmt.Errorf("guard panic: %v", r)
		}
	}()

	result = guard(ctx)
	return result, nil
}

// safeExecuteAction safely executes an action function with panic recovery
func safeExecuteAction(action ActionFunc, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panic: %v", r)
		}
	}()

	return action(ctx)
}

// Definition returns the machine's definition
func (m *Machine) Definition() *Definition {
	return m.def
}

// Start enters the initial state
func (m *Machine) Start() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.started {
		return NewMachineError(ErrCodeInvalidState, "Start", ErrAlreadyStarted)
	}
	if !m.def.HasState(m.def.initial) {
		return NewConfigurationError("Machine", fmt.Sprintf("initial state '%s' does not exist", m.def.initial))
	}

	m.started = true
	m.current = m.def.initial
	m.observers.NotifyStateEnter(m.current)
	return nil
}

// Stop halts event processing
func (m *Machine) Stop() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.started {
		return NewMachineError(ErrCodeInvalidState, "Stop", ErrNotStarted)
	}

	m.observers.NotifyStateExit(m.current)
	m.started = false
	return nil
}

// Current returns the active state, empty before Start
func (m *Machine) Current() string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.current
}

// IsStarted reports whether the machine accepts events
func (m *Machine) IsStarted() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.started
}

// HandleEvent processes an event synchronously
func (m *Machine) HandleEvent(eventName string, eventData any) *EventResult {
	return m.HandleEventWithContext(context.Background(), eventName, eventData)
}

// HandleEventWithContext processes an event synchronously. The first
// transition from the current state whose event matches and whose guard
// passes is taken.
func (m *Machine) HandleEventWithContext(ctx context.Context, eventName string, eventData any) *EventResult {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.started {
		return NewEventResult(false, false, m.current, m.current).
			WithRejection(ErrNotStarted.Error()).
			WithError(NewMachineError(ErrCodeInvalidState, "HandleEvent", ErrNotStarted))
	}

	event := Event{Name: eventName, Data: eventData}

	if strings.TrimSpace(eventName) == "" {
		reason := "event name cannot be empty"
		m.observers.NotifyEventRejected(event, reason)
		return NewEventResult(false, false, m.current, m.current).
			WithRejection(reason).
			WithError(fmt.Errorf("%s", reason))
	}

	transition, tctx := m.findMatchingTransition(ctx, event)
	if transition == nil {
		reason := fmt.Sprintf("no valid transition found for event '%s' in state '%s'", eventName, m.current)
		m.observers.NotifyEventRejected(event, reason)
		return NewEventResult(false, false, m.current, m.current).
			WithRejection(reason).
			WithError(NewMachineError(ErrCodeNoTransition, "HandleEvent", fmt.Errorf("%s", reason)))
	}

	previous := m.current
	if transition.Action != nil {
		if err := safeExecuteAction(transition.Action, tctx); err != nil {
			actionErr := &ActionError{From: previous, To: transition.Target, Event: eventName, Err: err}
			m.observers.NotifyError(actionErr)
			m.observers.NotifyEventRejected(event, fmt.Sprintf("transition action failed: %v", err))
			return NewEventResult(false, false, previous, previous).
				WithError(actionErr)
		}
	}

	m.observers.NotifyStateExit(previous)
	m.current = transition.Target
	m.observers.NotifyTransition(previous, m.current, event)
	m.observers.NotifyStateEnter(m.current)

	return NewEventResult(true, true, previous, m.current)
}

func (m *Machine) findMatchingTransition(ctx context.Context, event Event) (*Transition, *Context) {
	for _, t := range m.def.transitions[m.current] {
		if t.Event != event.Name {
			continue
		}

		tctx := &Context{Context: ctx, event: event, source: t.Source, target: t.Target}
		if t.Guard != nil {
			ok, err := safeEvaluateGuard(t.Guard, tctx)
			if err != nil {
				m.observers.NotifyError(err)
				continue
			}
			if !ok {
				continue
			}
		}

		t := t
		return &t, tctx
	}
	return nil, nil
}

// AddObserver registers an observer
func (m *Machine) AddObserver(observer Observer) {
	m.observers.AddObserver(observer)
}

// RemoveObserver unregisters an observer
func (m *Machine) RemoveObserver(observer Observer) {
	m.observers.RemoveObserver(observer)
}
