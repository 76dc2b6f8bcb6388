package models

import (
	"time"

	id "pollworker/pkg/domain"
)

// User is an account that can sign in. Admins review applications; non-admin
// users are provisioned when an applicant verifies their email.
type User struct {
	ID              id.UserID  `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	IsAdmin         bool       `json:"is_admin"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewVerifiedUser creates a user whose email is already confirmed.
func NewVerifiedUser(userID id.UserID, name, email, passwordHash string, isAdmin bool, now time.Time) *User {
	return &User{
		ID:              userID,
		Name:            name,
		Email:           email,
		PasswordHash:    passwordHash,
		IsAdmin:         isAdmin,
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CreateAccountRequest describes an account created from the command line or
// the admin seed.
type CreateAccountRequest struct {
	Name     string
	Email    string
	Password string
	IsAdmin  bool
}

// LoginResult is returned after a successful sign-in.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int64     `json:"expires_in"`
	IsAdmin     bool      `json:"is_admin"`
}
