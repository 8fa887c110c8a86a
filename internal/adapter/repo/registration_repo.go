package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"festcred/internal/domain"
)

// RegistrationRepoPG implements domain.RegistrationRepository.
type RegistrationRepoPG struct {
	pool *pgxpool.Pool
}

// NewRegistrationRepo creates a registration repository backed by PostgreSQL.
func NewRegistrationRepo(pool *pgxpool.Pool) *RegistrationRepoPG {
	return &RegistrationRepoPG{pool: pool}
}

// Create inserts a new registration aggregate.
func (r *RegistrationRepoPG) Create(ctx context.Context, reg *domain.Registration) error {
	events, err := json.Marshal(reg.SelectedEvents)
	if err != nil {
		return fmt.Errorf("encode selected events: %w", err)
	}
	query := `
INSERT INTO registrations (id, registration_id, status, contact_name, contact_email, contact_phone, organization, photo_key, selected_events)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err = r.pool.Exec(ctx, query,
		reg.ID,
		reg.RegistrationID,
		reg.Status,
		reg.ContactName,
		reg.ContactEmail,
		reg.ContactPhone,
		reg.Organization,
		reg.PhotoKey,
		events,
	)
	if err != nil {
		return domain.Transient("registrations.create", err)
	}
	return nil
}

// GetByRegistrationID fetches one aggregate by its public id.
func (r *RegistrationRepoPG) GetByRegistrationID(ctx context.Context, registrationID string) (*domain.Registration, error) {
	query := `
SELECT id, registration_id, status, contact_name, contact_email, contact_phone, organization,
       photo_key, enhanced_photo_key, selected_events, credentials, error_message, created_at, updated_at
FROM registrations
WHERE registration_id = $1;
`
	row := r.pool.QueryRow(ctx, query, registrationID)

	var reg domain.Registration
	var events, credentials []byte
	err := row.Scan(
		&reg.ID,
		&reg.RegistrationID,
		&reg.Status,
		&reg.ContactName,
		&reg.ContactEmail,
		&reg.ContactPhone,
		&reg.Organization,
		&reg.PhotoKey,
		&reg.EnhancedPhotoKey,
		&events,
		&credentials,
		&reg.ErrorMessage,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.Transient("registrations.get", err)
	}
	if err := json.Unmarshal(events, &reg.SelectedEvents); err != nil {
		return nil, fmt.Errorf("decode selected events: %w", err)
	}
	if err := json.Unmarshal(credentials, &reg.Credentials); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return &reg, nil
}

// ListEventsByContactEmail returns the canonical event names a contact already
// holds across every prior registration.
func (r *RegistrationRepoPG) ListEventsByContactEmail(ctx context.Context, email string) ([]string, error) {
	query := `
SELECT selected_events
FROM registrations
WHERE lower(contact_email) = lower($1);
`
	rows, err := r.pool.Query(ctx, query, email)
	if err != nil {
		return nil, domain.Transient("registrations.list_by_contact", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, domain.Transient("registrations.list_by_contact", err)
		}
		var events []domain.SelectedEvent
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, fmt.Errorf("decode selected events: %w", err)
		}
		for _, sel := range events {
			names = append(names, sel.Event)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient("registrations.list_by_contact", err)
	}
	return names, nil
}

// UpdateStatusIf performs the single-statement compare-and-swap on status,
// applying the optional patch in the same write. It reports false when the
// guard status no longer holds, which callers treat as losing a benign race.
func (r *RegistrationRepoPG) UpdateStatusIf(ctx context.Context, registrationID string, from, to domain.RegistrationStatus, patch *domain.RegistrationPatch) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	var (
		enhancedKey *string
		credentials []byte
		errMsg      *string
	)
	if patch != nil {
		enhancedKey = patch.EnhancedPhotoKey
		errMsg = patch.ErrorMessage
		if patch.Credentials != nil {
			encoded, err := json.Marshal(patch.Credentials)
			if err != nil {
				return false, fmt.Errorf("encode credentials: %w", err)
			}
			credentials = encoded
		}
	}

	query := `
UPDATE registrations
SET status = $3,
    enhanced_photo_key = COALESCE($4, enhanced_photo_key),
    credentials = COALESCE($5, credentials),
    error_message = COALESCE($6, error_message),
    updated_at = now()
WHERE registration_id = $1 AND status = $2;
`
	tag, err := r.pool.Exec(ctx, query, registrationID, from, to, enhancedKey, credentials, errMsg)
	if err != nil {
		return false, domain.Transient("registrations.update_status_if", err)
	}
	return tag.RowsAffected() == 1, nil
}

var _ domain.RegistrationRepository = (*RegistrationRepoPG)(nil)
