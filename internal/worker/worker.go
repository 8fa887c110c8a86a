// Package worker consumes the credential job queue. Each consumer claims one
// job at a time; per-registration uniqueness in the queue means no two
// consumers can ever hold work for the same registration.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"festcred/internal/badge"
	"festcred/internal/domain"
	"festcred/internal/metrics"
	"festcred/internal/storage"
)

// Enhancer is the bounded external AI step.
type Enhancer interface {
	Enhance(ctx context.Context, photo []byte) ([]byte, error)
	Model() string
}

// Composer renders one participant credential.
type Composer interface {
	Compose(fields badge.Fields, photo []byte) (*badge.Credential, error)
}

// ComposerSource defers template loading to job time, so a missing template
// fails each job fast with the asset error instead of wedging the binary.
type ComposerSource func() (Composer, error)

// ObjectStore is the subset of storage the worker touches.
type ObjectStore interface {
	Read(ctx context.Context, bucket, key string) ([]byte, error)
	Write(ctx context.Context, bucket, key string, data []byte) (string, error)
}

// Config tunes the consumer pool and retry policy.
type Config struct {
	Concurrency      int
	PollInterval     time.Duration
	RetryBaseDelay   time.Duration
	RetryMultiplier  int
	RetryMaxAttempts int
	EnhanceTimeout   time.Duration
	JobRetention     int
}

// Worker executes credential jobs against registration records.
type Worker struct {
	cfg      Config
	queue    domain.JobQueue
	regs     domain.RegistrationRepository
	store    ObjectStore
	enhancer Enhancer
	composer ComposerSource
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New assembles a worker. enhancer may be nil when no AI capability was
// resolved at startup; jobs then run the unenhanced path.
func New(cfg Config, queue domain.JobQueue, regs domain.RegistrationRepository, store ObjectStore, enhancer Enhancer, composer ComposerSource, m *metrics.Metrics, logger zerolog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RetryMultiplier < 2 {
		cfg.RetryMultiplier = 2
	}
	return &Worker{
		cfg:      cfg,
		queue:    queue,
		regs:     regs,
		store:    store,
		enhancer: enhancer,
		composer: composer,
		metrics:  m,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, operating cfg.Concurrency consumers over
// the shared queue.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("concurrency", w.cfg.Concurrency).Msg("worker: started")
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error { return w.consume(ctx) })
	}
	return g.Wait()
}

func (w *Worker) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.queue.Claim(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				w.logger.Error().Err(err).Msg("worker: claim failed")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.PollInterval):
			}
			continue
		}

		w.Handle(ctx, job)
	}
}

// Handle runs one claimed job to a terminal or rescheduled state.
func (w *Worker) Handle(ctx context.Context, job *domain.Job) {
	start := time.Now()
	log := w.logger.With().Str("job_id", job.ID).Str("registration_id", job.RegistrationID).Str("job_type", string(job.Type)).Logger()
	log.Info().Int("attempt", job.AttemptCount).Msg("worker: picked job")

	outcome, err := w.execute(ctx, job)
	w.metrics.JobDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		w.metrics.JobsProcessed.WithLabelValues(string(outcome)).Inc()
		w.finishJob(ctx, job.ID, domain.JobStatusSucceeded, "")
		log.Info().Str("outcome", string(outcome)).Msg("worker: job done")

	case domain.IsFatalAsset(err):
		// Deployment defect. Never retried; surfaced to the operator and to
		// the registration record.
		w.metrics.JobsProcessed.WithLabelValues("fatal").Inc()
		w.failRegistration(ctx, job.RegistrationID, err.Error())
		w.finishJob(ctx, job.ID, domain.JobStatusFailed, err.Error())
		log.Error().Err(err).Msg("worker: mandatory asset missing")

	case domain.IsTransient(err):
		if job.AttemptCount+1 >= w.cfg.RetryMaxAttempts {
			w.metrics.JobsProcessed.WithLabelValues("failed").Inc()
			w.failRegistration(ctx, job.RegistrationID, err.Error())
			w.finishJob(ctx, job.ID, domain.JobStatusFailed, err.Error())
			log.Error().Err(err).Int("attempts", job.AttemptCount+1).Msg("worker: retries exhausted")
			break
		}
		delay := BackoffDelay(w.cfg.RetryBaseDelay, w.cfg.RetryMultiplier, job.AttemptCount)
		w.metrics.JobRetries.Inc()
		if retryErr := w.queue.Retry(ctx, job.ID, delay, err.Error()); retryErr != nil {
			log.Error().Err(retryErr).Msg("worker: reschedule failed")
		}
		log.Warn().Err(err).Dur("delay", delay).Msg("worker: transient failure, rescheduled")

	default:
		w.metrics.JobsProcessed.WithLabelValues("failed").Inc()
		w.failRegistration(ctx, job.RegistrationID, err.Error())
		w.finishJob(ctx, job.ID, domain.JobStatusFailed, err.Error())
		log.Error().Err(err).Msg("worker: job failed")
	}
}

// BackoffDelay computes base * multiplier^attempt: strictly increasing across
// successive attempts.
func BackoffDelay(base time.Duration, multiplier, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= time.Duration(multiplier)
	}
	return delay
}

func (w *Worker) execute(ctx context.Context, job *domain.Job) (domain.RegistrationStatus, error) {
	reg, err := w.regs.GetByRegistrationID(ctx, job.RegistrationID)
	if err != nil {
		return "", err
	}

	composer, err := w.composer()
	if err != nil {
		return "", err
	}

	photo, err := w.loadPhoto(ctx, reg.PhotoKey)
	if err != nil {
		return "", err
	}

	var enhancedKey *string
	if job.Type == domain.JobTypeFullCredential && len(photo) > 0 {
		if enhanced, key := w.enhancePhoto(ctx, reg.RegistrationID, photo); enhanced != nil {
			photo = enhanced
			enhancedKey = key
		}
	}

	participants := reg.AllParticipants()
	credentials := make([]domain.CredentialRef, 0, len(participants))
	var lastComposeErr error
	placeholders := 0
	for i, p := range participants {
		portrait, err := w.participantPhoto(ctx, p, photo)
		if err != nil {
			return "", err
		}
		if len(portrait) == 0 {
			placeholders++
		}
		cred, err := composer.Compose(badge.Fields{
			RegistrationID: reg.RegistrationID,
			Name:           p.Name,
			Organization:   reg.Organization,
			Events:         reg.EventNames(),
		}, portrait)
		if err != nil {
			if domain.IsFatalAsset(err) {
				return "", err
			}
			lastComposeErr = err
			w.logger.Error().Err(err).Str("participant", p.Name).Msg("worker: compose failed")
			continue
		}
		key := fmt.Sprintf("%s/credential-%02d.png", reg.RegistrationID, i+1)
		savedKey, err := w.store.Write(ctx, storage.BucketCredentials, key, cred.PNG)
		if err != nil {
			lastComposeErr = err
			w.logger.Error().Err(err).Str("participant", p.Name).Msg("worker: persist credential failed")
			continue
		}
		credentials = append(credentials, domain.CredentialRef{
			ParticipantID: p.ID,
			Name:          p.Name,
			StorageKey:    savedKey,
			Width:         cred.Width,
			Height:        cred.Height,
		})
	}

	outcome := outcomeFor(len(participants), len(credentials), placeholders)
	// The terminal write always sets error_message: an empty string on
	// success clears any text left over from an earlier failed run.
	msg := ""
	if outcome != domain.StatusCompleted {
		if lastComposeErr != nil {
			msg = lastComposeErr.Error()
		} else if placeholders > 0 {
			msg = fmt.Sprintf("%d participant(s) rendered with a placeholder photo", placeholders)
		}
	}
	patch := &domain.RegistrationPatch{
		EnhancedPhotoKey: enhancedKey,
		Credentials:      credentials,
		ErrorMessage:     &msg,
	}
	applied, err := w.regs.UpdateStatusIf(ctx, reg.RegistrationID, domain.StatusProcessing, outcome, patch)
	if err != nil {
		return "", err
	}
	if !applied {
		// Lost the race with a reprocess request; its job owns the record now.
		w.logger.Warn().Str("registration_id", reg.RegistrationID).Msg("worker: terminal write skipped, status changed concurrently")
	}
	return outcome, nil
}

// outcomeFor aggregates per-participant results: every credential rendered
// from a real photo means COMPLETED; anything rendered at all with failures or
// placeholder degradations alongside means PARTIAL; nothing rendered means
// FAILED.
func outcomeFor(total, rendered, placeholders int) domain.RegistrationStatus {
	switch {
	case rendered == 0:
		return domain.StatusFailed
	case rendered < total || placeholders > 0:
		return domain.StatusPartial
	default:
		return domain.StatusCompleted
	}
}

// loadPhoto fetches the profile photo. A missing object degrades to no photo;
// an IO failure is retryable.
func (w *Worker) loadPhoto(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	data, err := w.store.Read(ctx, storage.BucketPhotos, key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.Transient("load photo", err)
	}
	return data, nil
}

// participantPhoto prefers the participant's own upload, falling back to the
// registration's (possibly enhanced) profile photo for the primary contact.
func (w *Worker) participantPhoto(ctx context.Context, p domain.Participant, profile []byte) ([]byte, error) {
	if p.PhotoKey != "" {
		data, err := w.store.Read(ctx, storage.BucketPhotos, p.PhotoKey)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, domain.Transient("load participant photo", err)
		}
		return data, nil
	}
	if p.Role == domain.RolePrimary {
		return profile, nil
	}
	return nil, nil
}

// enhancePhoto runs the bounded AI step. Every failure mode, including
// timeout, degrades to the original photo; a stalled third-party call must
// never fail the job or stall the pool.
func (w *Worker) enhancePhoto(ctx context.Context, registrationID string, photo []byte) ([]byte, *string) {
	if w.enhancer == nil {
		return nil, nil
	}
	enhanceCtx, cancel := context.WithTimeout(ctx, w.cfg.EnhanceTimeout)
	defer cancel()

	enhanced, err := w.enhancer.Enhance(enhanceCtx, photo)
	if err != nil {
		aiErr := &domain.AIServiceError{Model: w.enhancer.Model(), Err: err}
		w.metrics.EnhanceFalls.Inc()
		w.logger.Warn().Err(aiErr).Str("registration_id", registrationID).Msg("worker: enhancement degraded to original photo")
		return nil, nil
	}

	key := registrationID + "/enhanced.png"
	savedKey, err := w.store.Write(ctx, storage.BucketPhotos, key, enhanced)
	if err != nil {
		// Use the enhanced bytes anyway; only the stored reference is lost.
		w.logger.Warn().Err(err).Str("registration_id", registrationID).Msg("worker: persist enhanced photo failed")
		return enhanced, nil
	}
	return enhanced, &savedKey
}

func (w *Worker) failRegistration(ctx context.Context, registrationID, message string) {
	applied, err := w.regs.UpdateStatusIf(ctx, registrationID, domain.StatusProcessing, domain.StatusFailed, &domain.RegistrationPatch{ErrorMessage: &message})
	if err != nil {
		w.logger.Error().Err(err).Str("registration_id", registrationID).Msg("worker: mark failed errored")
		return
	}
	if !applied {
		w.logger.Warn().Str("registration_id", registrationID).Msg("worker: mark failed skipped, status changed concurrently")
	}
}

func (w *Worker) finishJob(ctx context.Context, jobID string, status domain.JobStatus, lastError string) {
	if err := w.queue.Complete(ctx, jobID, status, lastError); err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("worker: complete job failed")
	}
	if err := w.queue.PruneTerminal(ctx, w.cfg.JobRetention); err != nil {
		w.logger.Error().Err(err).Msg("worker: prune terminal jobs failed")
	}
}
