package models

import (
	"time"

	id "pollworker/pkg/domain"
)

// VerificationTTL is how long an issued verification token stays valid.
const VerificationTTL = 48 * time.Hour

// Application is a poll-worker application submitted through the public form.
//
// Invariants:
//   - Email is unique across all applications
//   - EmailVerifiedAt set ⇒ VerificationToken and VerificationTokenExpiresAt are nil
//   - UserID is set iff EmailVerifiedAt is set
//   - ResidencyValidatedAt and ResidencyValidatedBy are set together
//   - PartyAssignedAt and PartyAssignedBy are set together
//   - Reissuing a token replaces the previous one; only the latest token is live
type Application struct {
	ID            id.ApplicationID `json:"id"`
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	StreetAddress string           `json:"street_address"`

	EmailVerifiedAt            *time.Time `json:"email_verified_at"`
	VerificationToken          *string    `json:"-"`
	VerificationTokenExpiresAt *time.Time `json:"-"`

	// ConsumedToken is the token that verified this application. It is kept so
	// a replayed link resolves to already-verified instead of invalid.
	ConsumedToken *string `json:"-"`

	ResidencyStatus      ResidencyStatus `json:"residency_status"`
	ResidencyValidatedAt *time.Time      `json:"residency_validated_at"`
	ResidencyValidatedBy *id.UserID      `json:"residency_validated_by"`

	PartyAffiliation *PartyAffiliation `json:"party_affiliation"`
	PartyAssignedAt  *time.Time        `json:"party_assigned_at"`
	PartyAssignedBy  *id.UserID        `json:"party_assigned_by"`

	UserID *id.UserID `json:"user_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewApplication creates a pending, unverified application holding a fresh token.
func NewApplication(appID id.ApplicationID, in ApplicantInput, token string, now time.Time) *Application {
	app := &Application{
		ID:              appID,
		Name:            in.Name,
		Email:           in.Email,
		StreetAddress:   in.StreetAddress,
		ResidencyStatus: ResidencyPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	app.ApplyTokenIssue(token, now)
	return app
}

func (a *Application) IsVerified() bool {
	return a.EmailVerifiedAt != nil
}

// HasLiveToken reports whether token is the current, unexpired token.
// A token is valid while now is strictly before its expiry.
func (a *Application) HasLiveToken(token string, now time.Time) bool {
	return a.VerificationToken != nil &&
		*a.VerificationToken == token &&
		a.VerificationTokenExpiresAt != nil &&
		now.Before(*a.VerificationTokenExpiresAt)
}

// IsTokenExpired reports whether the current token has reached its expiry.
func (a *Application) IsTokenExpired(now time.Time) bool {
	return a.VerificationTokenExpiresAt != nil && !now.Before(*a.VerificationTokenExpiresAt)
}

// ApplyTokenIssue replaces any pending token with token, expiring VerificationTTL from now.
func (a *Application) ApplyTokenIssue(token string, now time.Time) {
	expires := now.Add(VerificationTTL)
	a.VerificationToken = &token
	a.VerificationTokenExpiresAt = &expires
	a.UpdatedAt = now
}

// ApplyVerification marks the application verified and links the provisioned user.
func (a *Application) ApplyVerification(userID id.UserID, now time.Time) {
	a.EmailVerifiedAt = &now
	a.ConsumedToken = a.VerificationToken
	a.VerificationToken = nil
	a.VerificationTokenExpiresAt = nil
	a.UserID = &userID
	a.UpdatedAt = now
}

// ApplyResidency overwrites the residency decision and its attribution.
func (a *Application) ApplyResidency(status ResidencyStatus, actor id.UserID, now time.Time) {
	a.ResidencyStatus = status
	a.ResidencyValidatedAt = &now
	a.ResidencyValidatedBy = &actor
	a.UpdatedAt = now
}

// ApplyParty overwrites the party assignment and its attribution.
func (a *Application) ApplyParty(party PartyAffiliation, actor id.UserID, now time.Time) {
	a.PartyAffiliation = &party
	a.PartyAssignedAt = &now
	a.PartyAssignedBy = &actor
	a.UpdatedAt = now
}

// ApplyEdit replaces the applicant supplied fields. Verification state is untouched.
func (a *Application) ApplyEdit(in ApplicantInput, now time.Time) {
	a.Name = in.Name
	a.Email = in.Email
	a.StreetAddress = in.StreetAddress
	a.UpdatedAt = now
}

// Clone returns a deep copy so stores never share pointers with callers.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	c.EmailVerifiedAt = clonePtr(a.EmailVerifiedAt)
	c.VerificationToken = clonePtr(a.VerificationToken)
	c.VerificationTokenExpiresAt = clonePtr(a.VerificationTokenExpiresAt)
	c.ConsumedToken = clonePtr(a.ConsumedToken)
	c.ResidencyValidatedAt = clonePtr(a.ResidencyValidatedAt)
	c.ResidencyValidatedBy = clonePtr(a.ResidencyValidatedBy)
	c.PartyAffiliation = clonePtr(a.PartyAffiliation)
	c.PartyAssignedAt = clonePtr(a.PartyAssignedAt)
	c.PartyAssignedBy = clonePtr(a.PartyAssignedBy)
	c.UserID = clonePtr(a.UserID)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
