package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a conversion that could not start.
//
// Per-record data problems are never RuntimeErrors; they become warnings.
// A RuntimeError means the call itself was wrong: an unknown model, an
// invalid direction, or a record of the wrong shape for the direction.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Model identifies the requested model.
	Model string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownModel indicates the model has no registered rule set.
	ErrCodeUnknownModel RuntimeErrorCode = "UNKNOWN_MODEL"

	// ErrCodeInvalidDirection indicates the direction is not to_structured or to_legacy.
	ErrCodeInvalidDirection RuntimeErrorCode = "INVALID_DIRECTION"

	// ErrCodeInvalidRecord indicates the record shape does not fit the direction.
	ErrCodeInvalidRecord RuntimeErrorCode = "INVALID_RECORD"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s: %s (model=%s)", e.Code, e.Message, e.Model)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnknownModel returns true if the error is an unknown model error.
// Uses errors.As to handle wrapped errors.
func IsUnknownModel(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownModel
	}
	return false
}

// IsInvalidRecord returns true if the error is an invalid record error.
func IsInvalidRecord(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidRecord
	}
	return false
}

// IsInvalidDirection returns true if the error is an invalid direction error.
func IsInvalidDirection(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidDirection
	}
	return false
}

func newUnknownModelError(model string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownModel,
		Message: "no rule set registered for model",
		Model:   model,
	}
}
