package audit

import "time"

// Event is emitted from domain logic to capture review and lifecycle actions.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	ApplicationID string    `json:"application_id,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
}

// Actions recorded against applications and settings.
const (
	ActionApplicationSubmitted = "application_submitted"
	ActionVerificationResent   = "verification_resent"
	ActionEmailVerified        = "email_verified"
	ActionResidencyUpdated     = "residency_updated"
	ActionPartyUpdated         = "party_updated"
	ActionApplicationUpdated   = "application_updated"
	ActionApplicationDeleted   = "application_deleted"
	ActionRegistrationToggled  = "registration_toggled"
	ActionUserCreated          = "user_created"
)
