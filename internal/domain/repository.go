package domain

import (
	"context"
	"time"
)

// RegistrationPatch carries the optional field updates applied alongside a
// conditional status transition.
type RegistrationPatch struct {
	EnhancedPhotoKey *string
	Credentials      []CredentialRef
	ErrorMessage     *string
}

// RegistrationRepository defines persistence for registration aggregates.
type RegistrationRepository interface {
	Create(ctx context.Context, reg *Registration) error
	GetByRegistrationID(ctx context.Context, registrationID string) (*Registration, error)
	// ListEventsByContactEmail returns the canonical event names held across
	// every registration for a contact, regardless of status. A FAILED record
	// still occupies its events; the remedy is reprocessing it, not
	// registering again.
	ListEventsByContactEmail(ctx context.Context, email string) ([]string, error)
	// UpdateStatusIf applies patch and transitions the status only when the
	// current status equals from. It returns false without error when the
	// guard does not hold.
	UpdateStatusIf(ctx context.Context, registrationID string, from, to RegistrationStatus, patch *RegistrationPatch) (bool, error)
}

// JobQueue defines the keyed durable work list consumed by the worker.
type JobQueue interface {
	// Enqueue inserts a job unless one is already in flight for the same
	// registration; duplicates are absorbed and reported via ErrDuplicateOperation.
	Enqueue(ctx context.Context, registrationID string, jobType JobType) (*JobHandle, error)
	// Claim atomically takes the oldest runnable job, if any.
	Claim(ctx context.Context) (*Job, error)
	// Retry reschedules a claimed job after delay, recording the error.
	Retry(ctx context.Context, jobID string, delay time.Duration, lastError string) error
	// Complete marks a claimed job terminal.
	Complete(ctx context.Context, jobID string, status JobStatus, lastError string) error
	// PruneTerminal discards terminal job rows beyond keep per status.
	PruneTerminal(ctx context.Context, keep int) error
}
