// Package rules is the admission engine for event selections. Every function
// is pure and synchronous; callers run them before a registration may leave
// DRAFT.
package rules

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"festcred/internal/catalog"
	"festcred/internal/domain"
)

const (
	// MaxEventsPerRegistration caps how many events one submission may carry.
	MaxEventsPerRegistration = 2

	ReasonNoEvents             = "no_events_selected"
	ReasonTooManyEvents        = "too_many_events"
	ReasonUnknownEvent         = "unknown_event"
	ReasonMultipleException    = "multiple_exception_events"
	ReasonMultipleNonException = "multiple_non_exception_events"
	ReasonPairNeedsException   = "pair_requires_exception_event"
	ReasonParticipantCount     = "participant_count_out_of_range"
	ReasonParticipantName      = "participant_name_missing"
	ReasonParticipantEmail     = "participant_email_invalid"
	ReasonDuplicateEmail       = "duplicate_participant_email"
	ReasonAlreadyRegistered    = "event_already_registered"
)

var validate = validator.New()

// ValidateSelection checks a normalized selection against the category caps:
// one to two events, at most one exception event, at most one ordinary event,
// and a pair must contain exactly one exception event.
func ValidateSelection(events []string) error {
	if len(events) == 0 {
		return domain.NewValidationError(ReasonNoEvents, "select at least one event")
	}
	if len(events) > MaxEventsPerRegistration {
		return domain.NewValidationError(ReasonTooManyEvents, "at most %d events may be selected", MaxEventsPerRegistration)
	}

	exception, ordinary := 0, 0
	for _, name := range events {
		def, ok := catalog.Get(name)
		if !ok {
			return domain.NewValidationError(ReasonUnknownEvent, "unknown event %q", name)
		}
		if def.IsException {
			exception++
		} else {
			ordinary++
		}
	}
	if exception > 1 {
		return domain.NewValidationError(ReasonMultipleException, "only one exception event allowed")
	}
	if ordinary > 1 {
		return domain.NewValidationError(ReasonMultipleNonException, "only one non-exception event allowed")
	}
	if len(events) == 2 && exception != 1 {
		return domain.NewValidationError(ReasonPairNeedsException, "a pair of events must include exactly one exception event")
	}
	return nil
}

// ValidateParticipants checks a team list against the event's size bounds and
// per-participant requirements: name present, syntactically valid email,
// emails unique within the team.
func ValidateParticipants(list []domain.Participant, min, max int) error {
	if len(list) < min || len(list) > max {
		if min == max {
			return domain.NewValidationError(ReasonParticipantCount, "exactly %d participants required", min)
		}
		return domain.NewValidationError(ReasonParticipantCount, "between %d and %d participants required", min, max)
	}

	seen := make(map[string]struct{}, len(list))
	for i, p := range list {
		if strings.TrimSpace(p.Name) == "" {
			return domain.NewValidationError(ReasonParticipantName, "participant %d is missing a name", i+1)
		}
		email := strings.ToLower(strings.TrimSpace(p.Email))
		if email == "" || validate.Var(email, "email") != nil {
			return domain.NewValidationError(ReasonParticipantEmail, "participant %d has an invalid email", i+1)
		}
		if _, dup := seen[email]; dup {
			return domain.NewValidationError(ReasonDuplicateEmail, "email %s is used by more than one participant", email)
		}
		seen[email] = struct{}{}
	}
	return nil
}

// CheckCrossRegistrationConflicts re-applies the category caps over the union
// of a contact's prior events and the new selection, and rejects registering
// twice for the same event. Both inputs carry canonical names.
func CheckCrossRegistrationConflicts(priorEvents, newSelection []string) error {
	held := make(map[string]struct{}, len(priorEvents))
	exception, ordinary := 0, 0
	for _, name := range priorEvents {
		if _, ok := held[name]; ok {
			continue
		}
		held[name] = struct{}{}
		if def, ok := catalog.Get(name); ok && def.IsException {
			exception++
		} else {
			ordinary++
		}
	}

	for _, name := range newSelection {
		if _, ok := held[name]; ok {
			return domain.NewConflictError(ReasonAlreadyRegistered, "already registered for %s", name)
		}
		held[name] = struct{}{}
		def, ok := catalog.Get(name)
		if !ok {
			return domain.NewValidationError(ReasonUnknownEvent, "unknown event %q", name)
		}
		if def.IsException {
			exception++
		} else {
			ordinary++
		}
	}

	if exception > 1 {
		return domain.NewConflictError(ReasonMultipleException, "only one exception event allowed per contact")
	}
	if ordinary > 1 {
		return domain.NewConflictError(ReasonMultipleNonException, "only one non-exception event allowed per contact")
	}
	return nil
}
