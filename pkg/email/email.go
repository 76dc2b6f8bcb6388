// Package email holds the address rules shared by applications and accounts.
package email

import (
	"net/mail"
	"strings"
)

// Normalize is the canonical form used for uniqueness checks.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsValid accepts a bare addr-spec with a dotted domain and no display name.
func IsValid(address string) bool {
	addr, err := mail.ParseAddress(address)
	if err != nil || addr.Address != address || addr.Name != "" {
		return false
	}
	at := strings.LastIndex(address, "@")
	return at > 0 && strings.Contains(address[at+1:], ".")
}
