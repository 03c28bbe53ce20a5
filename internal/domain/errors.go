package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is the kind shared by every missing-entity error.
	ErrNotFound = errors.New("not found")
	// ErrQuizNotFound indicates no quiz exists under the given code.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrParticipantNotFound is returned when a player acts before joining.
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
	// ErrNotOwner is returned when someone other than the host drives the session.
	ErrNotOwner = errors.New("only the quiz owner may perform this action")
	// ErrInvalidState is returned when an operation is not allowed in the current status.
	ErrInvalidState = errors.New("operation not allowed in current quiz state")
	// ErrQuestionClosed is returned when an answer arrives after its question was closed.
	ErrQuestionClosed = fmt.Errorf("%w: question is closed", ErrInvalidState)
	// ErrVersionConflict means the quiz changed since it was read.
	ErrVersionConflict = errors.New("quiz was modified concurrently")
	// ErrTransient means the store could not answer in time; the call may be retried.
	ErrTransient = errors.New("store temporarily unavailable")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidState wraps ErrInvalidState with the status that rejected the call.
func InvalidState(action string, status Status) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, action, status)
}

// Transient wraps a store failure as retryable.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
