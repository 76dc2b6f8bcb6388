package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeInternal, "failed to load application")

		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "failed to load application: connection reset", err.Error())
	})
}

func TestHasCode(t *testing.T) {
	inner := New(CodeNotFound, "application not found")
	outer := Wrap(inner, CodeInternal, "review failed")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeNotFound))
	assert.False(t, HasCode(outer, CodeConflict))
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	assert.True(t, HasCode(fmt.Errorf("context: %w", inner), CodeNotFound))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeForbidden, CodeOf(New(CodeForbidden, "admin only")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestNewValidation(t *testing.T) {
	fields := map[string]string{"email": "The email has already been taken."}
	err := NewValidation(fields)
	fields["email"] = "mutated"

	assert.True(t, HasCode(err, CodeValidation))
	assert.Equal(t, "The email has already been taken.", FieldsOf(err)["email"])
	assert.Nil(t, FieldsOf(errors.New("plain")))
}

func TestErrorIs_MatchesCodeAndMessage(t *testing.T) {
	err := Wrap(New(CodeUnauthorized, "token has expired"), CodeInternal, "login failed")

	assert.ErrorIs(t, err, New(CodeUnauthorized, "token has expired"))
	assert.NotErrorIs(t, err, New(CodeUnauthorized, "invalid token"))
}
