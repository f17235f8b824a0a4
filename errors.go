package junction

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents specific error conditions in the controller
type ErrorCode int

const (
	// No error occurred
	ErrCodeNone ErrorCode = iota
	// Sensor id is not part of the rule table
	ErrCodeUnknownSensor
	// Rule table entry is malformed
	ErrCodeInvalidRule
	// Controller configuration is invalid
	ErrCodeInvalidConfiguration
	// Controller has been closed
	ErrCodeClosed
)

var (
	// ErrUnknownSensor is matched by every unknown sensor error
	ErrUnknownSensor = errors.New("unknown sensor")

	// ErrInvalidRule is matched by every rule table error
	ErrInvalidRule = errors.New("invalid rule")

	// ErrInvalidConfiguration is matched by every configuration error
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrClosed is returned when using a closed controller
	ErrClosed = errors.New("controller closed")
)

// SensorError represents sensor-related errors
type SensorError struct {
	Code    ErrorCode
	Sensor  SensorID
	Message string
}

func (e *SensorError) Error() string {
	return fmt.Sprintf("sensor error [%s]: %s", e.Sensor, e.Message)
}

// Is matches the sentinel for the error code
func (e *SensorError) Is(target error) bool {
	return e.Code == ErrCodeUnknownSensor && target == ErrUnknownSensor
}

// NewUnknownSensorError creates a new unknown sensor error
func NewUnknownSensorError(id SensorID) *SensorError {
	return &SensorError{
		Code:    ErrCodeUnknownSensor,
		Sensor:  id,
		Message: fmt.Sprintf("sensor '%s' does not exist", id),
	}
}

// RuleError represents a malformed rule table entry
type RuleError struct {
	Sensor SensorID
	Reason string
}

func (e *RuleError) Error() string {
	if e.Sensor == "" {
		return fmt.Sprintf("rule error: %s", e.Reason)
	}
	return fmt.Sprintf("rule error [%s]: %s", e.Sensor, e.Reason)
}

// Is matches ErrInvalidRule
func (e *RuleError) Is(target error) bool {
	return target == ErrInvalidRule
}

// NewRuleError creates a new rule error
func NewRuleError(sensor SensorID, format string, args ...any) *RuleError {
	return &RuleError{
		Sensor: sensor,
		Reason: fmt.Sprintf(format, args...),
	}
}

// ConfigurationError represents configuration issues
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error [%s]: %s", e.Field, e.Reason)
}

// Is matches ErrInvalidConfiguration
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{
		Field:  field,
		Reason: reason,
	}
}

// ErrorCollector collects multiple errors during validation
type ErrorCollector struct {
	errors []error
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{}
}

// Add adds an error to the collector
func (ec *ErrorCollector) Add(err error) {
	if err != nil {
		ec.errors = append(ec.errors, err)
	}
}

// HasErrors returns true if there are collected errors
func (ec *ErrorCollector) HasErrors() bool {
	return len(ec.errors) > 0
}

// Errors returns all collected errors
func (ec *ErrorCollector) Errors() []error {
	return ec.errors
}

// Err joins the collected errors, nil when there are none
func (ec *ErrorCollector) Err() error {
	if len(ec.errors) == 0 {
		return nil
	}
	return errors.Join(ec.errors...)
}

// Error implements the error interface
func (ec *ErrorCollector) Error() string {
	msgs := make([]string, len(ec.errors))
	for i, err := range ec.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
