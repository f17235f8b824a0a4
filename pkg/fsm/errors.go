package fsm

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the state machine
type ErrorCode int

const (
	// No error occurred
	ErrCodeNone ErrorCode = iota
	// State was not found in the definition
	ErrCodeStateNotFound
	// No transition matched the event
	ErrCodeNoTransition
	// Action execution failed
	ErrCodeActionFailed
	// Definition is invalid
	ErrCodeInvalidConfiguration
	// Machine is in the wrong lifecycle state for the call
	ErrCodeInvalidState
)

var (
	// ErrNotStarted is returned when events are sent to a machine that is not running
	ErrNotStarted = errors.New("machine is not started")

	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("machine is already started")

	// ErrNoInitialState is returned when a definition has no initial state
	ErrNoInitialState = errors.New("no initial state defined")
)

// MachineError represents machine-level errors
type MachineError struct {
	Code      ErrorCode
	Operation string
	Message   string
	Err       error
}

func (e *MachineError) Error() string {
	return fmt.Sprintf("machine error [%s]: %s", e.Operation, e.Message)
}

func (e *MachineError) Unwrap() error {
	return e.Err
}

// NewMachineError creates a new machine error
func NewMachineError(code ErrorCode, operation string, err error) *MachineError {
	return &MachineError{
		Code:      code,
		Operation: operation,
		Message:   err.Error(),
		Err:       err,
	}
}

// ConfigurationError represents an invalid machine definition
type ConfigurationError struct {
	Component string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error [%s]: %s", e.Component, e.Reason)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(component, reason string) *ConfigurationError {
	return &ConfigurationError{
		Component: component,
		Reason:    reason,
	}
}

// ActionError wraps a failed transition action
type ActionError struct {
	From  string
	To    string
	Event string
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action error [%s->%s on %s]: %v", e.From, e.To, e.Event, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
