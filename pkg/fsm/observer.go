package fsm

import (
	"fmt"
	"sync"
)

// Observer represents an entity that observes state machine lifecycle
type Observer interface {
	// OnTransition is called when a state transition occurs
	OnTransition(from string, to string, event Event)

	// OnStateEnter is called when entering a new state
	OnStateEnter(state string)
}

// ExtendedObserver provides additional optional observation methods
type ExtendedObserver interface {
	Observer

	// OnStateExit is called when exiting a state
	OnStateExit(state string)

	// OnEventRejected is called when an event is rejected (no valid transition)
	OnEventRejected(event Event, reason string)

	// OnError is called when an error occurs during processing
	OnError(err error)
}

// BaseObserver provides a default implementation with no-op methods
type BaseObserver struct{}

// OnTransition implements Observer
func (o *BaseObserver) OnTransition(from string, to string, event Event) {}

// OnStateEnter implements Observer
func (o *BaseObserver) OnStateEnter(state string) {}

// OnStateExit implements ExtendedObserver
func (o *BaseObserver) OnStateExit(state string) {}

// OnEventRejected implements ExtendedObserver
func (o *BaseObserver) OnEventRejected(event Event, reason string) {}

// OnError implements ExtendedObserver
func (o *BaseObserver) OnError(err error) {}

// ObserverManager manages a collection of observers
type ObserverManager struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewObserverManager creates a new observer manager
func NewObserverManager() *ObserverManager {
	return &ObserverManager{
		observers: make([]Observer, 0),
	}
}

// AddObserver adds an observer to the manager
func (om *ObserverManager) AddObserver(observer Observer) {
	om.mu.Lock()
	defer om.mu.Unlock()
	om.observers = append(om.observers, observer)
}

// RemoveObserver removes an observer from the manager
func (om *ObserverManager) RemoveObserver(observer Observer) {
	om.mu.Lock()
	defer om.mu.Unlock()
	for i, obs := range om.observers {
		if obs == observer {
			om.observers = append(om.observers[:i:i], om.observers[i+1:]...)
			break
		}
	}
}

func (om *ObserverManager) snapshot() []Observer {
	om.mu.RLock()
	defer om.mu.RUnlock()
	observers := make([]Observer, len(om.observers))
	copy(observers, om.observers)
	return observers
}

// guarded runs fn and turns a panic into an OnError notification
func guarded(observer Observer, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if extObs, ok := observer.(ExtendedObserver); ok {
				func() {
					defer func() { recover() }()
					extObs.OnError(fmt.Errorf("observer panic in %s: %v", hook, r))
				}()
			}
		}
	}()
	fn()
}

// NotifyTransition notifies all observers of a state transition
func (om *ObserverManager) NotifyTransition(from string, to string, event Event) {
	for _, observer := range om.snapshot() {
		guarded(observer, "OnTransition", func() { observer.OnTransition(from, to, event) })
	}
}

// NotifyStateEnter notifies all observers of state entry
func (om *ObserverManager) NotifyStateEnter(state string) {
	for _, observer := range om.snapshot() {
		guarded(observer, "OnStateEnter", func() { observer.OnStateEnter(state) })
	}
}

// NotifyStateExit notifies all observers of state exit
func (om *ObserverManager) NotifyStateExit(state string) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			guarded(observer, "OnStateExit", func() { extObs.OnStateExit(state) })
		}
	}
}

// NotifyEventRejected notifies all observers of event rejection
func (om *ObserverManager) NotifyEventRejected(event Event, reason string) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			guarded(observer, "OnEventRejected", func() { extObs.OnEventRejected(event, reason) })
		}
	}
}

// NotifyError notifies all observers of errors
func (om *ObserverManager) NotifyError(err error) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			func() {
				defer func() { recover() }()
				extObs.OnError(err)
			}()
		}
	}
}
