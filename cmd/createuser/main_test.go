package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	userservice "pollworker/internal/user/service"
	userstore "pollworker/internal/user/store"
	"pollworker/pkg/platform/secrets"
)

func stdinWith(t *testing.T, content string) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stdin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func newUsers() (*userservice.Service, *userstore.InMemory) {
	store := userstore.NewInMemory()
	return userservice.New(store, secrets.Hasher{Cost: 4}), store
}

func TestRun_CreatesAdmin(t *testing.T) {
	users, store := newUsers()
	var out bytes.Buffer

	err := run(context.Background(), options{name: "Clerk Kent", email: "Clerk@Warren.gov", isAdmin: true},
		users, stdinWith(t, "s3cret-pass\n"), &out)
	require.NoError(t, err)

	user, err := store.FindByEmail(context.Background(), "clerk@warren.gov")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)
	assert.Contains(t, out.String(), "Created admin Clerk Kent <clerk@warren.gov>")
}

func TestRun_ReportsValidationFields(t *testing.T) {
	users, _ := newUsers()

	err := run(context.Background(), options{name: "", email: "not-an-email"}, users, stdinWith(t, "short"), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name: The name field is required.")
	assert.Contains(t, err.Error(), "email: The email must be a valid email address.")
	assert.Contains(t, err.Error(), "password: The password must be at least 8 characters.")
}

func TestRun_DuplicateEmail(t *testing.T) {
	users, _ := newUsers()
	opts := options{name: "Jane Doe", email: "jane@example.com"}
	require.NoError(t, run(context.Background(), opts, users, stdinWith(t, "password123\n"), io.Discard))

	err := run(context.Background(), opts, users, stdinWith(t, "password123\n"), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "The email has already been taken.")
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-name", "Jane Doe", "-email", "jane@example.com", "-admin"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, options{name: "Jane Doe", email: "jane@example.com", isAdmin: true}, opts)

	_, err = parseFlags([]string{"-unknown"}, io.Discard)
	assert.Error(t, err)
}
