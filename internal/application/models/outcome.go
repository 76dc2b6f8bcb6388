package models

// VerificationOutcome is the result of following a verification link.
// Outcomes are values, not errors: every one maps to a distinct user-facing state.
type VerificationOutcome string

const (
	VerificationSuccess         VerificationOutcome = "success"
	VerificationExpired         VerificationOutcome = "expired"
	VerificationAlreadyVerified VerificationOutcome = "already_verified"
	VerificationInvalid         VerificationOutcome = "invalid"
)

// VerificationResult carries the outcome and, when expired, the email to
// offer a resend for.
type VerificationResult struct {
	Outcome VerificationOutcome
	Email   string
}

// SubmitOutcome distinguishes a new application from a resend to an
// existing unverified one.
type SubmitOutcome string

const (
	SubmitCreated SubmitOutcome = "created"
	SubmitResent  SubmitOutcome = "resent"
)

type SubmitResult struct {
	Outcome     SubmitOutcome
	Application *Application
}
