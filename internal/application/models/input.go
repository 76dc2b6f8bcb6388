package models

import (
	"strings"
	"unicode/utf8"

	dErrors "pollworker/pkg/domain-errors"
	"pollworker/pkg/email"
)

const (
	maxNameLength    = 255
	maxEmailLength   = 255
	maxAddressLength = 500
)

// ApplicantInput is the applicant supplied part of an application.
type ApplicantInput struct {
	Name          string
	Email         string
	StreetAddress string
}

// Normalize trims whitespace and lower-cases the email.
func (in ApplicantInput) Normalize() ApplicantInput {
	return ApplicantInput{
		Name:          strings.TrimSpace(in.Name),
		Email:         email.Normalize(in.Email),
		StreetAddress: strings.TrimSpace(in.StreetAddress),
	}
}

// Validate returns a validation error listing every offending field.
func (in ApplicantInput) Validate() error {
	fields := map[string]string{}

	switch {
	case in.Name == "":
		fields["name"] = "The name field is required."
	case utf8.RuneCountInString(in.Name) > maxNameLength:
		fields["name"] = "The name may not be greater than 255 characters."
	}

	switch {
	case in.Email == "":
		fields["email"] = "The email field is required."
	case utf8.RuneCountInString(in.Email) > maxEmailLength:
		fields["email"] = "The email may not be greater than 255 characters."
	case !email.IsValid(in.Email):
		fields["email"] = "The email must be a valid email address."
	}

	switch {
	case in.StreetAddress == "":
		fields["street_address"] = "The street address field is required."
	case utf8.RuneCountInString(in.StreetAddress) > maxAddressLength:
		fields["street_address"] = "The street address may not be greater than 500 characters."
	}

	if len(fields) > 0 {
		return dErrors.NewValidation(fields)
	}
	return nil
}
