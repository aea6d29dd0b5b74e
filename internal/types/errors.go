// Package types provides shared type definitions used across the audio router.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for lookup and precondition failures.
var (
	// ErrRouteNotFound indicates the referenced route does not exist.
	ErrRouteNotFound = errors.New("route not found")
	// ErrStreamNotFound indicates the referenced stream does not exist.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrModuleDisabled indicates the audio module feature switch is off.
	ErrModuleDisabled = errors.New("audio module is disabled")
	// ErrEngineStopped indicates an operation that requires a running engine.
	ErrEngineStopped = errors.New("engine is not running")
)

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`   // JSON path to the field (e.g., "source.kind")
	Message string `json:"message"` // Human-readable error message
	Value   any    `json:"value"`   // The invalid value that was provided
}

// ValidationError collects multiple field validation errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError creates a new empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{
		Errors: make([]FieldError, 0),
	}
}

// Add adds a field error to the collection.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors reports whether any field errors were collected.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// UnknownDeviceError indicates a route references a device id that is not
// present in the current device catalog.
type UnknownDeviceError struct {
	DeviceID string `json:"device_id"` // The unresolved device reference
	Field    string `json:"field"`     // Node position that referenced it
}

// Error implements the error interface.
func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("unknown device %q referenced by %s", e.DeviceID, e.Field)
}

// PolicyConflictError indicates a stream start was rejected by the active
// duplex policy. BlockedBy lists the running streams that caused the
// rejection.
type PolicyConflictError struct {
	Mode      PolicyMode `json:"mode"`       // Policy that produced the conflict
	BlockedBy []string   `json:"blocked_by"` // Running streams in the opposing direction
}

// Error implements the error interface.
func (e *PolicyConflictError) Error() string {
	return fmt.Sprintf("duplex policy %s blocks start (running: %s)", e.Mode, strings.Join(e.BlockedBy, ", "))
}

// InvalidTransitionError indicates a stream operation that is not legal
// from the stream's current state.
type InvalidTransitionError struct {
	StreamID string      `json:"stream_id"` // Stream the operation targeted
	From     StreamState `json:"from"`      // State at the time of the call
	Op       string      `json:"op"`        // Requested operation
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s stream %s from state %s", e.Op, e.StreamID, e.From)
}

// DeviceUnavailableError indicates a device open or start failed at the
// backend, including timeouts and hot-unplug.
type DeviceUnavailableError struct {
	DeviceID string // Device that failed
	Err      error  // Underlying backend error
}

// Error implements the error interface.
func (e *DeviceUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device %s unavailable: %v", e.DeviceID, e.Err)
	}
	return fmt.Sprintf("device %s unavailable", e.DeviceID)
}

// Unwrap returns the underlying backend error.
func (e *DeviceUnavailableError) Unwrap() error {
	return e.Err
}
