package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "jane@example.com", Normalize("  Jane@Example.COM "))
}

func TestIsValid(t *testing.T) {
	valid := []string{"jane@example.com", "jane.doe+poll@warren-ct.gov"}
	invalid := []string{"", "jane", "jane@localhost", "Jane <jane@example.com>", "@example.com", "jane@@example.com"}

	for _, a := range valid {
		assert.True(t, IsValid(a), a)
	}
	for _, a := range invalid {
		assert.False(t, IsValid(a), a)
	}
}
