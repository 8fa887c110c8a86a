package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrDuplicateOperation = errors.New("duplicate operation")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// ValidationError rejects bad selection or participant data. It is returned
// synchronously and never retried.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError with a machine reason code and a
// human message.
func NewValidationError(reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ConflictError rejects a selection that violates category caps across a
// contact's prior registrations.
type ConflictError struct {
	Reason  string
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NewConflictError builds a ConflictError with a machine reason code.
func NewConflictError(reason, format string, args ...any) *ConflictError {
	return &ConflictError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// TransientIOError marks storage or network failures the worker may retry
// with backoff.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient io failure in %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientIOError for the given operation.
func Transient(op string, err error) error {
	return &TransientIOError{Op: op, Err: err}
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var t *TransientIOError
	return errors.As(err, &t)
}

// FatalAssetError marks a missing mandatory asset. Jobs fail fast and the
// condition is surfaced to the operator as a deployment defect.
type FatalAssetError struct {
	Asset string
	Err   error
}

func (e *FatalAssetError) Error() string {
	return fmt.Sprintf("mandatory asset %q unavailable: %v", e.Asset, e.Err)
}

func (e *FatalAssetError) Unwrap() error { return e.Err }

// IsFatalAsset reports whether err stems from a missing mandatory asset.
func IsFatalAsset(err error) bool {
	var f *FatalAssetError
	return errors.As(err, &f)
}

// AIServiceError marks an enhancement failure. It is non-fatal: the pipeline
// degrades to the non-enhanced photo.
type AIServiceError struct {
	Model string
	Err   error
}

func (e *AIServiceError) Error() string {
	return fmt.Sprintf("ai enhancement via %s failed: %v", e.Model, e.Err)
}

func (e *AIServiceError) Unwrap() error { return e.Err }
