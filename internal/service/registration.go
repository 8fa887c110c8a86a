// Package service orchestrates the registration lifecycle between the rule
// engine, the record store and the job queue.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"festcred/internal/catalog"
	"festcred/internal/domain"
	"festcred/internal/metrics"
	"festcred/internal/regid"
	"festcred/internal/rules"
	"festcred/internal/storage"
)

// Signer resolves storage keys into time-limited URLs for the status view.
type Signer interface {
	SignedURL(bucket, key string, ttl time.Duration) (string, time.Time)
}

// SubmissionEvent is one raw event selection from the intake layer.
type SubmissionEvent struct {
	Event        string
	Participants []domain.Participant
}

// Submission is the parsed single-shot registration payload.
type Submission struct {
	ContactName  string
	ContactEmail string
	ContactPhone string
	Organization string
	PhotoKey     string
	Events       []SubmissionEvent
	// Expedited skips the AI enhancement step.
	Expedited bool
}

// Receipt is returned to the client after a confirmed submission. SessionRef
// is an opaque handle for subsequent polling.
type Receipt struct {
	RegistrationID string            `json:"registration_id"`
	SessionRef     string            `json:"session_ref"`
	Status         string            `json:"status"`
	Job            *domain.JobHandle `json:"job"`
}

// CredentialView is one resolved credential link in the status projection.
type CredentialView struct {
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// StatusView is the read-only polling projection of a registration.
type StatusView struct {
	RegistrationID string           `json:"registration_id"`
	Status         string           `json:"status"`
	Credentials    []CredentialView `json:"credentials"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// RegistrationService implements the single-shot registration flow: one call
// validates, persists and confirms, leaving the slow work to the queue.
type RegistrationService struct {
	regs      domain.RegistrationRepository
	queue     domain.JobQueue
	allocator *regid.Allocator
	signer    Signer
	signTTL   time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// New wires the registration service. m may be nil.
func New(regs domain.RegistrationRepository, queue domain.JobQueue, allocator *regid.Allocator, signer Signer, signTTL time.Duration, m *metrics.Metrics, logger zerolog.Logger) *RegistrationService {
	return &RegistrationService{
		regs:      regs,
		queue:     queue,
		allocator: allocator,
		signer:    signer,
		signTTL:   signTTL,
		metrics:   m,
		logger:    logger,
	}
}

// Submit runs the full admission pipeline and, on success, returns a receipt
// for polling. Validation failures surface as ValidationError/ConflictError.
func (s *RegistrationService) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	reg, err := s.buildRegistration(ctx, sub)
	if err != nil {
		return nil, err
	}

	if err := s.regs.Create(ctx, reg); err != nil {
		return nil, err
	}

	return s.confirm(ctx, reg, jobTypeFor(sub))
}

// buildRegistration normalizes and validates the payload into a DRAFT aggregate.
func (s *RegistrationService) buildRegistration(ctx context.Context, sub Submission) (*domain.Registration, error) {
	if strings.TrimSpace(sub.ContactEmail) == "" {
		return nil, domain.NewValidationError("contact_email_missing", "contact email is required")
	}

	selected := make([]domain.SelectedEvent, 0, len(sub.Events))
	names := make([]string, 0, len(sub.Events))
	for _, raw := range sub.Events {
		canonical, err := catalog.Normalize(raw.Event)
		if err != nil {
			return nil, domain.NewValidationError(rules.ReasonUnknownEvent, "%s", err.Error())
		}
		participants := make([]domain.Participant, len(raw.Participants))
		copy(participants, raw.Participants)
		for i := range participants {
			if participants[i].ID == "" {
				participants[i].ID = uuid.NewString()
			}
		}
		selected = append(selected, domain.SelectedEvent{Event: canonical, Participants: participants})
		names = append(names, canonical)
	}

	if err := rules.ValidateSelection(names); err != nil {
		return nil, err
	}
	for _, sel := range selected {
		def, ok := catalog.Get(sel.Event)
		if !ok {
			return nil, domain.NewValidationError(rules.ReasonUnknownEvent, "unknown event %q", sel.Event)
		}
		if err := rules.ValidateParticipants(sel.Participants, def.MinParticipants, def.MaxParticipants); err != nil {
			return nil, err
		}
	}

	prior, err := s.regs.ListEventsByContactEmail(ctx, sub.ContactEmail)
	if err != nil {
		return nil, err
	}
	if err := rules.CheckCrossRegistrationConflicts(prior, names); err != nil {
		return nil, err
	}

	return &domain.Registration{
		ID:             uuid.NewString(),
		RegistrationID: s.allocator.Next(ctx),
		Status:         domain.StatusDraft,
		ContactName:    strings.TrimSpace(sub.ContactName),
		ContactEmail:   strings.ToLower(strings.TrimSpace(sub.ContactEmail)),
		ContactPhone:   strings.TrimSpace(sub.ContactPhone),
		Organization:   strings.TrimSpace(sub.Organization),
		PhotoKey:       sub.PhotoKey,
		SelectedEvents: selected,
	}, nil
}

// confirm transitions DRAFT to PROCESSING and enqueues the generation job.
// The CAS guard means a duplicate confirm for the same record is absorbed.
func (s *RegistrationService) confirm(ctx context.Context, reg *domain.Registration, jobType domain.JobType) (*Receipt, error) {
	applied, err := s.regs.UpdateStatusIf(ctx, reg.RegistrationID, domain.StatusDraft, domain.StatusProcessing, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: registration %s already confirmed", domain.ErrDuplicateOperation, reg.RegistrationID)
	}

	handle, err := s.queue.Enqueue(ctx, reg.RegistrationID, jobType)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) {
			// A job for this registration is already in flight; absorbed.
			s.logger.Info().Str("registration_id", reg.RegistrationID).Msg("service: duplicate enqueue absorbed")
			if s.metrics != nil {
				s.metrics.JobsDuplicate.Inc()
			}
			handle = nil
		} else {
			s.failEnqueue(ctx, reg.RegistrationID, err)
			return nil, err
		}
	}
	if handle != nil && s.metrics != nil {
		s.metrics.JobsEnqueued.Inc()
	}

	s.logger.Info().
		Str("registration_id", reg.RegistrationID).
		Str("job_type", string(jobType)).
		Msg("service: registration confirmed")

	return &Receipt{
		RegistrationID: reg.RegistrationID,
		SessionRef:     uuid.NewString(),
		Status:         string(domain.StatusProcessing),
		Job:            handle,
	}, nil
}

// Reprocess re-enqueues generation for a FAILED or PARTIAL registration.
// Selection rules are not re-run: the data is assumed unchanged.
func (s *RegistrationService) Reprocess(ctx context.Context, registrationID string) (*domain.JobHandle, error) {
	reg, err := s.regs.GetByRegistrationID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Status != domain.StatusFailed && reg.Status != domain.StatusPartial {
		return nil, fmt.Errorf("%w: cannot reprocess registration in status %s", domain.ErrInvalidTransition, reg.Status)
	}

	applied, err := s.regs.UpdateStatusIf(ctx, registrationID, reg.Status, domain.StatusProcessing, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: registration %s changed concurrently", domain.ErrDuplicateOperation, registrationID)
	}

	handle, err := s.queue.Enqueue(ctx, registrationID, domain.JobTypeFullCredential)
	if err != nil {
		if !errors.Is(err, domain.ErrDuplicateOperation) {
			s.failEnqueue(ctx, registrationID, err)
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.JobsEnqueued.Inc()
	}

	s.logger.Info().Str("registration_id", registrationID).Msg("service: reprocess enqueued")
	return handle, nil
}

// failEnqueue reverts a freshly written PROCESSING status when no job could be
// queued behind it. Leaving the record PROCESSING would strand it: no worker
// will ever touch it and reprocessing only accepts FAILED or PARTIAL.
func (s *RegistrationService) failEnqueue(ctx context.Context, registrationID string, cause error) {
	msg := "could not queue credential generation: " + cause.Error()
	applied, err := s.regs.UpdateStatusIf(ctx, registrationID, domain.StatusProcessing, domain.StatusFailed, &domain.RegistrationPatch{ErrorMessage: &msg})
	if err != nil || !applied {
		s.logger.Error().Err(err).Bool("applied", applied).Str("registration_id", registrationID).Msg("service: failed to mark registration after enqueue error")
		return
	}
	s.logger.Warn().Err(cause).Str("registration_id", registrationID).Msg("service: enqueue failed, registration marked FAILED")
}

// Status builds the read-only polling view. It never mutates state; the
// credential links it returns expire after the configured TTL.
func (s *RegistrationService) Status(ctx context.Context, registrationID string) (*StatusView, error) {
	reg, err := s.regs.GetByRegistrationID(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		RegistrationID: reg.RegistrationID,
		Status:         string(reg.Status),
		ErrorMessage:   reg.ErrorMessage,
		UpdatedAt:      reg.UpdatedAt,
	}
	for _, ref := range reg.Credentials {
		url, expires := s.signer.SignedURL(storage.BucketCredentials, ref.StorageKey, s.signTTL)
		view.Credentials = append(view.Credentials, CredentialView{
			ParticipantID: ref.ParticipantID,
			Name:          ref.Name,
			URL:           url,
			ExpiresAt:     expires,
		})
	}
	return view, nil
}

func jobTypeFor(sub Submission) domain.JobType {
	if sub.Expedited || sub.PhotoKey == "" {
		return domain.JobTypeSimpleCredential
	}
	return domain.JobTypeFullCredential
}
