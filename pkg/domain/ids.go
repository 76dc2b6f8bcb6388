// Package domain holds typed identifiers shared across modules.
//
// Each identifier wraps a UUID so that an application ID can never be passed
// where a user ID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "pollworker/pkg/domain-errors"
)

type (
	UserID        uuid.UUID
	ApplicationID uuid.UUID
)

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewUserID returns a random user identifier.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewApplicationID returns a random application identifier.
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }

// ParseUserID parses a non-nil UUID string into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// ParseApplicationID parses a non-nil UUID string into an ApplicationID.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application ID")
	return ApplicationID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

// MarshalText encodes identifiers as canonical UUID strings in JSON.
func (id UserID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id ApplicationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error {
	u, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = u
	return nil
}

func (id *ApplicationID) UnmarshalText(b []byte) error {
	u, err := ParseApplicationID(string(b))
	if err != nil {
		return err
	}
	*id = u
	return nil
}
