package repo

// Schema holds the DDL for the tables owned by this service. The partial
// unique index on credential_jobs is load-bearing: it is what makes a second
// in-flight job per registration structurally impossible.
const Schema = `
CREATE TABLE IF NOT EXISTS registrations (
    id                 UUID PRIMARY KEY,
    registration_id    TEXT NOT NULL UNIQUE,
    status             TEXT NOT NULL DEFAULT 'DRAFT',
    contact_name       TEXT NOT NULL DEFAULT '',
    contact_email      TEXT NOT NULL DEFAULT '',
    contact_phone      TEXT NOT NULL DEFAULT '',
    organization       TEXT NOT NULL DEFAULT '',
    photo_key          TEXT NOT NULL DEFAULT '',
    enhanced_photo_key TEXT NOT NULL DEFAULT '',
    selected_events    JSONB NOT NULL DEFAULT '[]',
    credentials        JSONB NOT NULL DEFAULT '[]',
    error_message      TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS registrations_contact_email
    ON registrations (lower(contact_email));

CREATE TABLE IF NOT EXISTS credential_jobs (
    id              UUID PRIMARY KEY,
    registration_id TEXT NOT NULL REFERENCES registrations (registration_id),
    job_type        TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'QUEUED',
    attempt_count   INT NOT NULL DEFAULT 0,
    next_retry_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_error      TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS credential_jobs_one_in_flight
    ON credential_jobs (registration_id)
    WHERE status IN ('QUEUED', 'RUNNING');

CREATE INDEX IF NOT EXISTS credential_jobs_runnable
    ON credential_jobs (next_retry_at)
    WHERE status = 'QUEUED';
`
