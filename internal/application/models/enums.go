package models

import (
	dErrors "pollworker/pkg/domain-errors"
)

// ResidencyStatus is the outcome of the admin residency check.
type ResidencyStatus string

const (
	ResidencyPending  ResidencyStatus = "pending"
	ResidencyApproved ResidencyStatus = "approved"
	ResidencyRejected ResidencyStatus = "rejected"
)

func (s ResidencyStatus) IsValid() bool {
	switch s {
	case ResidencyPending, ResidencyApproved, ResidencyRejected:
		return true
	}
	return false
}

// IsDecision reports whether s is a value an admin may set.
func (s ResidencyStatus) IsDecision() bool {
	return s == ResidencyApproved || s == ResidencyRejected
}

func (s ResidencyStatus) String() string {
	return string(s)
}

// ParseResidencyDecision accepts only approved or rejected.
func ParseResidencyDecision(s string) (ResidencyStatus, error) {
	status := ResidencyStatus(s)
	if !status.IsDecision() {
		return "", dErrors.NewValidation(map[string]string{
			"residency_status": "The residency status must be approved or rejected.",
		})
	}
	return status, nil
}

// PartyAffiliation is the party an admin assigns to an applicant.
type PartyAffiliation string

const (
	PartyDemocrat     PartyAffiliation = "democrat"
	PartyRepublican   PartyAffiliation = "republican"
	PartyIndependent  PartyAffiliation = "independent"
	PartyUnaffiliated PartyAffiliation = "unaffiliated"
)

func (p PartyAffiliation) IsValid() bool {
	switch p {
	case PartyDemocrat, PartyRepublican, PartyIndependent, PartyUnaffiliated:
		return true
	}
	return false
}

func (p PartyAffiliation) String() string {
	return string(p)
}

// ParsePartyAffiliation validates a party value.
func ParsePartyAffiliation(s string) (PartyAffiliation, error) {
	party := PartyAffiliation(s)
	if !party.IsValid() {
		return "", dErrors.NewValidation(map[string]string{
			"party_affiliation": "The party affiliation must be democrat, republican, independent or unaffiliated.",
		})
	}
	return party, nil
}
