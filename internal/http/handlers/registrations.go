package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"festcred/internal/domain"
	"festcred/internal/service"
	"festcred/internal/storage"
)

var validate = validator.New()

type participantRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
	Photo string `json:"photo_base64"`
	Role  string `json:"role"`
}

type eventRequest struct {
	Event        string               `json:"event" validate:"required"`
	Participants []participantRequest `json:"participants" validate:"required,dive"`
}

type registrationRequest struct {
	ContactName  string         `json:"contact_name" validate:"required"`
	ContactEmail string         `json:"contact_email" validate:"required,email"`
	ContactPhone string         `json:"contact_phone"`
	Organization string         `json:"organization"`
	Photo        string         `json:"photo_base64"`
	Expedited    bool           `json:"expedited"`
	Events       []eventRequest `json:"events" validate:"required,min=1,dive"`
}

// SubmitRegistration is the single-shot intake: it validates, persists,
// confirms and enqueues in one call, then returns a polling receipt. The
// request stays fast; all slow work is deferred to the queue.
func (a *App) SubmitRegistration(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	sub := service.Submission{
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Organization: req.Organization,
		Expedited:    req.Expedited,
	}

	photoKey, err := a.storePhoto(r, req.Photo)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_photo", "photo is not valid base64 image data")
		return
	}
	sub.PhotoKey = photoKey

	for _, ev := range req.Events {
		participants := make([]domain.Participant, len(ev.Participants))
		for i, p := range ev.Participants {
			key, err := a.storePhoto(r, p.Photo)
			if err != nil {
				a.error(w, http.StatusBadRequest, "bad_photo", "participant photo is not valid base64 image data")
				return
			}
			role := domain.RoleMember
			if p.Role == string(domain.RolePrimary) {
				role = domain.RolePrimary
			}
			participants[i] = domain.Participant{
				Name:     p.Name,
				Email:    p.Email,
				Phone:    p.Phone,
				PhotoKey: key,
				Role:     role,
			}
		}
		sub.Events = append(sub.Events, service.SubmissionEvent{Event: ev.Event, Participants: participants})
	}

	receipt, err := a.Service.Submit(r.Context(), sub)
	if err != nil {
		a.writeSubmissionError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, receipt)
}

// RegistrationStatus serves the polling projection. Strictly read-only.
func (a *App) RegistrationStatus(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registration_id")
	if registrationID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "registration_id required")
		return
	}
	view, err := a.Service.Status(r.Context(), registrationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "registration not found")
			return
		}
		a.Logger.Error().Err(err).Str("registration_id", registrationID).Msg("handlers: status lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load status")
		return
	}
	a.json(w, http.StatusOK, view)
}

// ReprocessRegistration re-enqueues generation for a FAILED or PARTIAL
// record. Guarded by operator auth in the router.
func (a *App) ReprocessRegistration(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registration_id")
	if registrationID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "registration_id required")
		return
	}
	handle, err := a.Service.Reprocess(r.Context(), registrationID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "registration not found")
		case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrDuplicateOperation):
			a.error(w, http.StatusConflict, "conflict", err.Error())
		default:
			a.Logger.Error().Err(err).Str("registration_id", registrationID).Msg("handlers: reprocess failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to reprocess")
		}
		return
	}
	a.json(w, http.StatusAccepted, handle)
}

func (a *App) writeSubmissionError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		a.json(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "validation_failed",
			"reason":  verr.Reason,
			"message": verr.Message,
		})
		return
	}
	var cerr *domain.ConflictError
	if errors.As(err, &cerr) {
		a.json(w, http.StatusConflict, map[string]any{
			"error":   "conflict",
			"reason":  cerr.Reason,
			"message": cerr.Message,
		})
		return
	}
	if errors.Is(err, domain.ErrDuplicateOperation) {
		a.error(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	a.Logger.Error().Err(err).Msg("handlers: submission failed")
	a.error(w, http.StatusInternalServerError, "internal", "failed to submit registration")
}

// storePhoto decodes an optional base64 upload into the photo bucket and
// returns its storage key.
func (a *App) storePhoto(r *http.Request, encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	key := uuid.NewString() + ".png"
	return a.Store.Write(r.Context(), storage.BucketPhotos, key, data)
}
