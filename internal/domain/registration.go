package domain

import "time"

// RegistrationStatus enumerates registration lifecycle states.
type RegistrationStatus string

const (
	StatusDraft      RegistrationStatus = "DRAFT"
	StatusProcessing RegistrationStatus = "PROCESSING"
	StatusCompleted  RegistrationStatus = "COMPLETED"
	StatusPartial    RegistrationStatus = "PARTIAL"
	StatusFailed     RegistrationStatus = "FAILED"
)

// CanTransition reports whether a registration may move between the two states.
// Terminal writes apply only over PROCESSING; reprocessing reopens FAILED and
// PARTIAL records.
func CanTransition(from, to RegistrationStatus) bool {
	switch from {
	case StatusDraft:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusPartial || to == StatusFailed
	case StatusFailed, StatusPartial:
		return to == StatusProcessing
	default:
		return false
	}
}

// ParticipantRole distinguishes the registering contact from team members.
type ParticipantRole string

const (
	RolePrimary ParticipantRole = "primary"
	RoleMember  ParticipantRole = "member"
)

// Participant is one person registered under a selected event.
type Participant struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Phone    string          `json:"phone,omitempty"`
	PhotoKey string          `json:"photo_key,omitempty"`
	Role     ParticipantRole `json:"role"`
}

// SelectedEvent pairs a canonical event name with its registered participants.
type SelectedEvent struct {
	Event        string        `json:"event"`
	Participants []Participant `json:"participants"`
}

// CredentialRef records one rendered credential belonging to a participant.
type CredentialRef struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	StorageKey    string `json:"storage_key"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
}

// Registration is the persisted aggregate for one submission.
type Registration struct {
	ID               string
	RegistrationID   string
	Status           RegistrationStatus
	ContactName      string
	ContactEmail     string
	ContactPhone     string
	Organization     string
	PhotoKey         string
	EnhancedPhotoKey string
	SelectedEvents   []SelectedEvent
	Credentials      []CredentialRef
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EventNames returns the canonical names of all selected events, in order.
func (r *Registration) EventNames() []string {
	names := make([]string, len(r.SelectedEvents))
	for i, sel := range r.SelectedEvents {
		names[i] = sel.Event
	}
	return names
}

// AllParticipants flattens the participant lists of every selected event.
func (r *Registration) AllParticipants() []Participant {
	var out []Participant
	for _, sel := range r.SelectedEvents {
		out = append(out, sel.Participants...)
	}
	return out
}
