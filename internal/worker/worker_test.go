package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"festcred/internal/badge"
	"festcred/internal/domain"
	"festcred/internal/metrics"
)

type stubQueue struct {
	retried   []time.Duration
	retryErrs []string
	completed []domain.JobStatus
	pruned    int
}

func (q *stubQueue) Enqueue(ctx context.Context, registrationID string, jobType domain.JobType) (*domain.JobHandle, error) {
	return &domain.JobHandle{ID: "j1", EnqueuedAt: time.Now()}, nil
}

func (q *stubQueue) Claim(ctx context.Context) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (q *stubQueue) Retry(ctx context.Context, jobID string, delay time.Duration, lastError string) error {
	q.retried = append(q.retried, delay)
	q.retryErrs = append(q.retryErrs, lastError)
	return nil
}

func (q *stubQueue) Complete(ctx context.Context, jobID string, status domain.JobStatus, lastError string) error {
	q.completed = append(q.completed, status)
	return nil
}

func (q *stubQueue) PruneTerminal(ctx context.Context, keep int) error {
	q.pruned++
	return nil
}

type statusWrite struct {
	from, to domain.RegistrationStatus
	patch    *domain.RegistrationPatch
}

type stubRegs struct {
	reg    *domain.Registration
	getErr error
	writes []statusWrite
}

func (r *stubRegs) Create(ctx context.Context, reg *domain.Registration) error { return nil }

func (r *stubRegs) GetByRegistrationID(ctx context.Context, registrationID string) (*domain.Registration, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.reg, nil
}

func (r *stubRegs) ListEventsByContactEmail(ctx context.Context, email string) ([]string, error) {
	return nil, nil
}

func (r *stubRegs) UpdateStatusIf(ctx context.Context, registrationID string, from, to domain.RegistrationStatus, patch *domain.RegistrationPatch) (bool, error) {
	r.writes = append(r.writes, statusWrite{from: from, to: to, patch: patch})
	return true, nil
}

type stubStore struct {
	objects map[string][]byte
	written map[string][]byte
	readErr error
}

func newStubStore() *stubStore {
	return &stubStore{objects: map[string][]byte{}, written: map[string][]byte{}}
}

func (s *stubStore) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (s *stubStore) Write(ctx context.Context, bucket, key string, data []byte) (string, error) {
	s.written[bucket+"/"+key] = data
	return key, nil
}

type stubEnhancer struct {
	result []byte
	err    error
	calls  int
}

func (e *stubEnhancer) Enhance(ctx context.Context, photo []byte) ([]byte, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func (e *stubEnhancer) Model() string { return "stub-model" }

func encodedPhoto(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testComposerSource(t *testing.T) ComposerSource {
	t.Helper()
	tmpl := image.NewNRGBA(image.Rect(0, 0, 300, 480))
	renderer, err := badge.NewRendererFromImage(tmpl)
	require.NoError(t, err)
	return func() (Composer, error) { return renderer, nil }
}

func testConfig() Config {
	return Config{
		Concurrency:      1,
		PollInterval:     time.Millisecond,
		RetryBaseDelay:   5 * time.Second,
		RetryMultiplier:  3,
		RetryMaxAttempts: 3,
		EnhanceTimeout:   time.Second,
		JobRetention:     10,
	}
}

func groupRegistration(photoKeys ...string) *domain.Registration {
	participants := make([]domain.Participant, len(photoKeys))
	for i, key := range photoKeys {
		participants[i] = domain.Participant{
			ID:       fmt.Sprintf("p%d", i+1),
			Name:     fmt.Sprintf("Member %d", i+1),
			Email:    fmt.Sprintf("m%d@example.com", i+1),
			PhotoKey: key,
			Role:     domain.RoleMember,
		}
	}
	participants[0].Role = domain.RolePrimary
	return &domain.Registration{
		ID:             "uuid-1",
		RegistrationID: "FEST-2026-000007",
		Status:         domain.StatusProcessing,
		ContactEmail:   "m1@example.com",
		Organization:   "Test Org",
		SelectedEvents: []domain.SelectedEvent{{Event: "Group Dance", Participants: participants}},
	}
}

func job(jobType domain.JobType, attempts int) *domain.Job {
	return &domain.Job{
		ID:             "job-1",
		RegistrationID: "FEST-2026-000007",
		Type:           jobType,
		Status:         domain.JobStatusRunning,
		AttemptCount:   attempts,
	}
}

func newTestWorker(t *testing.T, queue *stubQueue, regs *stubRegs, store *stubStore, enhancer Enhancer, composer ComposerSource) *Worker {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	return New(testConfig(), queue, regs, store, enhancer, composer, m, zerolog.Nop())
}

func TestBackoffDelayStrictlyIncreasing(t *testing.T) {
	base := 5 * time.Second
	want := []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}
	for attempt, expected := range want {
		require.Equal(t, expected, BackoffDelay(base, 3, attempt))
	}
}

func TestHandleCompletesWhenAllPhotosPresent(t *testing.T) {
	store := newStubStore()
	photo := encodedPhoto(t)
	store.objects["photos/a.png"] = photo
	store.objects["photos/b.png"] = photo
	store.objects["photos/c.png"] = photo

	queue := &stubQueue{}
	regs := &stubRegs{reg: groupRegistration("a.png", "b.png", "c.png")}
	w := newTestWorker(t, queue, regs, store, nil, testComposerSource(t))

	w.Handle(context.Background(), job(domain.JobTypeSimpleCredential, 0))

	require.Len(t, regs.writes, 1)
	require.Equal(t, domain.StatusProcessing, regs.writes[0].from)
	require.Equal(t, domain.StatusCompleted, regs.writes[0].to)
	require.Len(t, regs.writes[0].patch.Credentials, 3)
	require.Equal(t, []domain.JobStatus{domain.JobStatusSucceeded}, queue.completed)
	require.Equal(t, 1, queue.pruned)
	require.Len(t, store.written, 3)
}

func TestHandleSuccessClearsPriorErrorMessage(t *testing.T) {
	store := newStubStore()
	photo := encodedPhoto(t)
	store.objects["photos/a.png"] = photo
	store.objects["photos/b.png"] = photo
	store.objects["photos/c.png"] = photo

	// A reprocessed record still carries the text from its failed first run.
	reg := groupRegistration("a.png", "b.png", "c.png")
	reg.ErrorMessage = "storage: read file: disk gone"

	queue := &stubQueue{}
	regs := &stubRegs{reg: reg}
	w := newTestWorker(t, queue, regs, store, nil, testComposerSource(t))

	w.Handle(context.Background(), job(domain.JobTypeSimpleCredential, 0))

	require.Len(t, regs.writes, 1)
	require.Equal(t, domain.StatusCompleted, regs.writes[0].to)
	require.NotNil(t, regs.writes[0].patch.ErrorMessage)
	require.Empty(t, *regs.writes[0].patch.ErrorMessage)
}

func TestHandleMissingParticipantPhotoYieldsPartial(t *testing.T) {
	store := newStubStore()
	photo := encodedPhoto(t)
	store.objects["photos/a.png"] = photo
	store.objects["photos/b.png"] = photo
	// c.png never uploaded: that participant degrades to a placeholder.

	queue := &stubQueue{}
	regs := &stubRegs{reg: groupRegistration("a.png", "b.png", "c.png")}
	w := newTestWorker(t, queue, regs, store, nil, testComposerSource(t))

	w.Handle(context.Background(), job(domain.JobTypeSimpleCredential, 0))

	require.Len(t, regs.writes, 1)
	require.Equal(t, domain.StatusPartial, regs.writes[0].to)
	require.Len(t, regs.writes[0].patch.Credentials, 3)
	require.NotNil(t, regs.writes[0].patch.ErrorMessage)
	require.Contains(t, *regs.writes[0].patch.ErrorMessage, "placeholder")
	require.Equal(t, []domain.JobStatus{domain.JobStatusSucceeded}, queue.completed)
}

func TestHandleFatalAssetFailsFast(t *testing.T) {
	store := newStubStore()
	queue := &stubQueue{}
	regs := &stubRegs{reg: groupRegistration("a.png")}
	assetErr := &domain.FatalAssetError{Asset: "idcard-template.png", Err: os.ErrNotExist}
	w := newTestWorker(t, queue, regs, store, nil, func() (Composer, error) { return nil, assetErr })

	w.Handle(context.Background(), job(domain.JobTypeFullCredential, 0))

	require.Empty(t, queue.retried, "fatal errors must not be retried")
	require.Equal(t, []domain.JobStatus{domain.JobStatusFailed}, queue.completed)
	require.Len(t, regs.writes, 1)
	require.Equal(t, domain.StatusFailed, regs.writes[0].to)
	require.Contains(t, *regs.writes[0].patch.ErrorMessage, "idcard-template.png")
}

func TestHandleTransientErrorRetriesWithBackoff(t *testing.T) {
	store := newStubStore()
	store.readErr = errors.New("connection reset")
	queue := &stubQueue{}
	regs := &stubRegs{reg: groupRegistration("a.png")}
	w := newTestWorker(t, queue, regs, store, nil, testComposerSource(t))

	w.Handle(context.Background(), job(domain.JobTypeFullCredential, 0))
	w.Handle(context.Background(), job(domain.JobTypeFullCredential, 1))

	require.Equal(t, []time.Duration{5 * time.Second, 15 * time.Second}, queue.retried)
	require.Empty(t, queue.completed)
	require.Empty(t, regs.writes)
}

func TestHandleExhaustedRetriesFailsExactlyOnce(t *testing.T) {
	store := newStubStore()
	store.readErr = errors.New("connection reset")
	queue := &stubQueue{}
	regs := &stubRegs{reg: groupRegistration("a.png")}
	w := newTestWorker(t, queue, regs, store, nil, testComposerSource(t))

	// Third attempt hits the cap.
	w.Handle(context.Background(), job(domain.JobTypeFullCredential, 2))

	require.Empty(t, queue.retried)
	require.Equal(t, []domain.JobStatus{domain.JobStatusFailed}, queue.completed)
	require.Len(t, regs.writes, 1)
	require.Equal(t, domain.StatusFailed, regs.writes[0].to)
}

func TestHandleEnhancementFailureDegrades(t *testing.T) {
	store := newStubStore()
	photo := encodedPhoto(t)
	store.objects["photos/profile.png"] = photo

	queue := &stubQueue{}
	reg := groupRegistration("")
	reg.PhotoKey = "profile.png"
	regs := &stubRegs{reg: reg}
	enhancer := &stubEnhancer{err: context.DeadlineExceeded}
	w := newTestWorker(t, queue, regs, store, enhancer, testComposerSource(t))

	w.Handle(context.Background(), job(domain.JobTypeFullCredential, 0))

	require.Equal(t, 1, enhancer.calls)
	require.Len(t, regs.writes, 1)
	require.Equal(t, domain.StatusCompleted, regs.writes[0].to)
	require.Nil(t, regs.writes[0].patch.EnhancedPhotoKey)
	require.Equal(t, []domain.JobStatus{domain.JobStatusSucceeded}, queue.completed)
}

func TestHandleEnhancementSuccessPersistsEnhancedPhoto(t *testing.T) {
	store := newStubStore()
	store.objects["photos/profile.png"] = encodedPhoto(t)

	queue := &stubQueue{}
	reg := groupRegistration("")
	reg.PhotoKey = "profile.png"
	regs := &stubRegs{reg: reg}
	enhancer := &stubEnhancer{result: encodedPhoto(t)}
	w := newTestWorker(t, queue, regs, store, enhancer, testComposerSource(t))

	w.Handle(context.Background(), job(domain.JobTypeFullCredential, 0))

	require.Len(t, regs.writes, 1)
	require.NotNil(t, regs.writes[0].patch.EnhancedPhotoKey)
	require.Equal(t, "FEST-2026-000007/enhanced.png", *regs.writes[0].patch.EnhancedPhotoKey)
	_, ok := store.written["photos/FEST-2026-000007/enhanced.png"]
	require.True(t, ok, "enhanced photo should be persisted")
}

func TestSimpleJobSkipsEnhancement(t *testing.T) {
	store := newStubStore()
	store.objects["photos/profile.png"] = encodedPhoto(t)

	queue := &stubQueue{}
	reg := groupRegistration("")
	reg.PhotoKey = "profile.png"
	regs := &stubRegs{reg: reg}
	enhancer := &stubEnhancer{result: encodedPhoto(t)}
	w := newTestWorker(t, queue, regs, store, enhancer, testComposerSource(t))

	w.Handle(context.Background(), job(domain.JobTypeSimpleCredential, 0))

	require.Zero(t, enhancer.calls)
}

func TestOutcomeFor(t *testing.T) {
	require.Equal(t, domain.StatusCompleted, outcomeFor(3, 3, 0))
	require.Equal(t, domain.StatusPartial, outcomeFor(3, 3, 1))
	require.Equal(t, domain.StatusPartial, outcomeFor(3, 2, 0))
	require.Equal(t, domain.StatusFailed, outcomeFor(3, 0, 3))
}
