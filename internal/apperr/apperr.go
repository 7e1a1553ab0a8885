package apperr

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when an update would move a task
// backwards or out of a terminal status.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidationError rejects caller input before any task row is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DependencyReason names the unmet precondition of a downstream task.
type DependencyReason string

const (
	ReasonSourceNotCompleted DependencyReason = "SourceNotCompleted"
	ReasonAudioMissing       DependencyReason = "AudioMissing"
	ReasonInvalidDuration    DependencyReason = "InvalidDuration"
	ReasonAssetsMissing      DependencyReason = "AssetsMissing"
)

// DependencyNotSatisfiedError is a dependency gate failure.
type DependencyNotSatisfiedError struct {
	Reason DependencyReason
	Detail string
}

func (e *DependencyNotSatisfiedError) Error() string {
	if e.Detail == "" {
		return "dependency not satisfied: " + string(e.Reason)
	}
	return fmt.Sprintf("dependency not satisfied: %s: %s", e.Reason, e.Detail)
}

func Dependency(reason DependencyReason, format string, args ...interface{}) *DependencyNotSatisfiedError {
	return &DependencyNotSatisfiedError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ProviderError is a failure reported by, or while talking to, an external
// generation service.
type ProviderError struct {
	Provider string
	Op       string
	// StatusCode is the HTTP status returned by the provider, 0 if none.
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Provider, e.Op)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

func Provider(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// PersistenceError wraps Task Store or Object Storage failures.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func Persistence(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}
