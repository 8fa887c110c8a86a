package domain

import "time"

// JobType enumerates supported credential generation jobs.
type JobType string

const (
	JobTypeFullCredential   JobType = "generate_full_credential"
	JobTypeSimpleCredential JobType = "generate_simple_credential"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Job is one unit of credential generation work, keyed by registration id.
// At most one QUEUED or RUNNING job may exist per registration.
type Job struct {
	ID             string
	RegistrationID string
	Type           JobType
	Status         JobStatus
	AttemptCount   int
	NextRetryAt    time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// JobHandle is the minimal view returned to callers that enqueue work.
type JobHandle struct {
	ID         string    `json:"id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
