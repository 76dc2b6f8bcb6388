package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollworker/internal/audit"
	auditstore "pollworker/internal/audit/store"
	"pollworker/internal/settings/store"
	dErrors "pollworker/pkg/domain-errors"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("redis down")
}
func (failingStore) Set(context.Context, string, string) error { return errors.New("redis down") }

func TestRegistrationEnabled_DefaultsOpen(t *testing.T) {
	svc := New(store.NewInMemory())

	enabled, err := svc.RegistrationEnabled(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestSetRegistrationEnabled_Toggles(t *testing.T) {
	events := auditstore.NewInMemoryStore()
	svc := New(store.NewInMemory(), WithAuditPublisher(audit.NewPublisher(events)))
	ctx := context.Background()

	require.NoError(t, svc.SetRegistrationEnabled(ctx, false))
	enabled, err := svc.RegistrationEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, svc.SetRegistrationEnabled(ctx, true))
	enabled, err = svc.RegistrationEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	all := events.ListAll()
	require.Len(t, all, 2)
	assert.Equal(t, "false", all[0].Detail)
}

func TestRegistrationEnabled_StoreErrors(t *testing.T) {
	svc := New(failingStore{})

	_, err := svc.RegistrationEnabled(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	assert.True(t, dErrors.HasCode(svc.SetRegistrationEnabled(context.Background(), true), dErrors.CodeInternal))
}

func TestRegistrationEnabled_CorruptValue(t *testing.T) {
	mem := store.NewInMemory()
	require.NoError(t, mem.Set(context.Background(), keyRegistrationEnabled, "maybe"))

	_, err := New(mem).RegistrationEnabled(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}
