package agents

import (
	"errors"
	"fmt"
)

// ErrorClass drives the coordinator's per-step error policy.
type ErrorClass string

const (
	// ClassValidation marks a safety rejection. Never retried; surfaced
	// as "rejected" or "requires manual confirmation".
	ClassValidation ErrorClass = "validation"

	// ClassTransient marks store/network unavailability. Retried once,
	// then the step is skipped and the execution degrades to partial.
	ClassTransient ErrorClass = "transient"

	// ClassCritical marks an unexpected failure inside a required step.
	// The execution fails and no further steps run.
	ClassCritical ErrorClass = "critical"

	// ClassRollback marks a backup-restore failure. Reported per file,
	// never silently swallowed.
	ClassRollback ErrorClass = "rollback"
)

// StepError carries an error class across the agent/coordinator boundary.
type StepError struct {
	Class ErrorClass
	Err   error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Err.Error())
}

// Unwrap allows errors.Is and errors.As through StepError.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Transient wraps err as ClassTransient.
func Transient(err error) error {
	return &StepError{Class: ClassTransient, Err: err}
}

// Transientf wraps a formatted error as ClassTransient.
func Transientf(format string, args ...any) error {
	return &StepError{Class: ClassTransient, Err: fmt.Errorf(format, args...)}
}

// Critical wraps err as ClassCritical.
func Critical(err error) error {
	return &StepError{Class: ClassCritical, Err: err}
}

// ClassOf classifies an error. Unclassified errors are critical: an
// unexpected failure must never pass for a recoverable one.
func ClassOf(err error) ErrorClass {
	var se *StepError
	if errors.As(err, &se) {
		return se.Class
	}
	return ClassCritical
}
