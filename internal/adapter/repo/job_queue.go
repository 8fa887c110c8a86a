package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"festcred/internal/domain"
)

// JobQueuePG implements domain.JobQueue on top of a credential_jobs table.
// Per-registration uniqueness comes from the partial unique index declared in
// Schema, so Enqueue can absorb duplicates without a read-modify-write cycle.
type JobQueuePG struct {
	pool *pgxpool.Pool
}

// NewJobQueue creates the PostgreSQL-backed queue.
func NewJobQueue(pool *pgxpool.Pool) *JobQueuePG {
	return &JobQueuePG{pool: pool}
}

// Enqueue inserts a job unless one is already in flight for the registration.
// A duplicate returns domain.ErrDuplicateOperation; callers treat it as a
// no-op rather than a failure.
func (q *JobQueuePG) Enqueue(ctx context.Context, registrationID string, jobType domain.JobType) (*domain.JobHandle, error) {
	query := `
INSERT INTO credential_jobs (id, registration_id, job_type)
VALUES ($1, $2, $3)
ON CONFLICT (registration_id) WHERE status IN ('QUEUED', 'RUNNING') DO NOTHING
RETURNING id, created_at;
`
	row := q.pool.QueryRow(ctx, query, uuid.NewString(), registrationID, jobType)

	var handle domain.JobHandle
	if err := row.Scan(&handle.ID, &handle.EnqueuedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDuplicateOperation
		}
		return nil, domain.Transient("jobs.enqueue", err)
	}
	return &handle, nil
}

// Claim atomically takes the oldest runnable job. SKIP LOCKED keeps
// concurrent consumers from contending on the same row.
func (q *JobQueuePG) Claim(ctx context.Context) (*domain.Job, error) {
	query := `
WITH next_job AS (
    SELECT id
    FROM credential_jobs
    WHERE status = 'QUEUED' AND next_retry_at <= now()
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
UPDATE credential_jobs
SET status = 'RUNNING', updated_at = now()
WHERE id IN (SELECT id FROM next_job)
RETURNING id, registration_id, job_type, attempt_count, next_retry_at, last_error, created_at, updated_at;
`
	row := q.pool.QueryRow(ctx, query)

	var job domain.Job
	err := row.Scan(
		&job.ID,
		&job.RegistrationID,
		&job.Type,
		&job.AttemptCount,
		&job.NextRetryAt,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.Transient("jobs.claim", err)
	}
	job.Status = domain.JobStatusRunning
	return &job, nil
}

// Retry puts a claimed job back in the queue after delay, bumping its attempt
// count and recording the error that caused the retry.
func (q *JobQueuePG) Retry(ctx context.Context, jobID string, delay time.Duration, lastError string) error {
	query := `
UPDATE credential_jobs
SET status = 'QUEUED',
    attempt_count = attempt_count + 1,
    next_retry_at = now() + $2,
    last_error = $3,
    updated_at = now()
WHERE id = $1 AND status = 'RUNNING';
`
	if _, err := q.pool.Exec(ctx, query, jobID, delay, lastError); err != nil {
		return domain.Transient("jobs.retry", err)
	}
	return nil
}

// Complete moves a claimed job to a terminal status.
func (q *JobQueuePG) Complete(ctx context.Context, jobID string, status domain.JobStatus, lastError string) error {
	query := `
UPDATE credential_jobs
SET status = $2, last_error = $3, updated_at = now()
WHERE id = $1 AND status = 'RUNNING';
`
	if _, err := q.pool.Exec(ctx, query, jobID, status, lastError); err != nil {
		return domain.Transient("jobs.complete", err)
	}
	return nil
}

// PruneTerminal keeps only the most recent terminal rows per status. The
// registration record remains the durable source of truth; job rows exist for
// observability only.
func (q *JobQueuePG) PruneTerminal(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	query := `
DELETE FROM credential_jobs
WHERE status = $1
  AND id NOT IN (
      SELECT id FROM credential_jobs
      WHERE status = $1
      ORDER BY updated_at DESC
      LIMIT $2
  );
`
	for _, status := range []domain.JobStatus{domain.JobStatusSucceeded, domain.JobStatusFailed} {
		if _, err := q.pool.Exec(ctx, query, status, keep); err != nil {
			return domain.Transient("jobs.prune", err)
		}
	}
	return nil
}

var _ domain.JobQueue = (*JobQueuePG)(nil)
