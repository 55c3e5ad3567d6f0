// Package apperrors defines the error taxonomy shared by all components.
// Callers classify errors with errors.Is against the kind sentinels.
package apperrors

import (
	"errors"
	"fmt"
)

// Kinds
var (
	ErrValidation = errors.New("invalid input")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrStore      = errors.New("store failure")
)

// Validation errors
var (
	ErrInvalidTimeExpression = fmt.Errorf("%w: invalid time expression", ErrValidation)
	ErrEmptyStepText         = fmt.Errorf("%w: step text is empty", ErrValidation)
	ErrGoalOutOfRange        = fmt.Errorf("%w: goal minutes must be between 1 and 1440", ErrValidation)
	ErrInvalidTimezone       = fmt.Errorf("%w: unknown timezone", ErrValidation)
	ErrInvalidClockTime      = fmt.Errorf("%w: expected HH:MM", ErrValidation)
	ErrEmptyReminderText     = fmt.Errorf("%w: reminder text is empty", ErrValidation)
)

// Conflict errors
var (
	ErrAlreadyOpen     = fmt.Errorf("%w: a session is already open", ErrConflict)
	ErrDuplicateJob    = fmt.Errorf("%w: job id already exists", ErrConflict)
	ErrStepLimit       = fmt.Errorf("%w: too many active steps", ErrConflict)
	ErrStepAlreadyDone = fmt.Errorf("%w: step is already done", ErrConflict)
)

// Not found errors
var (
	ErrNoOpenSession = fmt.Errorf("%w: no open session", ErrNotFound)
	ErrStepNotFound  = fmt.Errorf("%w: step", ErrNotFound)
	ErrJobNotFound   = fmt.Errorf("%w: job", ErrNotFound)
	ErrNothingToUndo = fmt.Errorf("%w: nothing to undo", ErrNotFound)
)

// StoreError wraps a failure at the durable store boundary.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes every StoreError match ErrStore.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// Store wraps err as a StoreError for operation op. A nil err stays nil.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
