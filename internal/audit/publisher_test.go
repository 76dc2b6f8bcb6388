package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollworker/internal/audit"
	"pollworker/internal/audit/store"
	"pollworker/pkg/requestcontext"
)

func TestPublisher_StampsTimeAndRequestID(t *testing.T) {
	mem := store.NewInMemoryStore()
	pub := audit.NewPublisher(mem)
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), now), "req-9")

	require.NoError(t, pub.Emit(ctx, audit.Event{Action: audit.ActionResidencyUpdated, ApplicationID: "app-1"}))
	require.NoError(t, pub.Emit(ctx, audit.Event{Action: audit.ActionPartyUpdated, ApplicationID: "app-2"}))

	events, err := pub.List(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, now, events[0].Timestamp)
	assert.Equal(t, "req-9", events[0].RequestID)
}

func TestQueuePublisher_RejectsWhenFull(t *testing.T) {
	pub := audit.NewQueuePublisher(store.NewInMemoryStore(), 1)

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: "a"}))
	err := pub.Emit(context.Background(), audit.Event{Action: "b"})
	assert.True(t, errors.Is(err, audit.ErrQueueFull))
}

func TestWorker_PersistsAndDrains(t *testing.T) {
	mem := store.NewInMemoryStore()
	pub := audit.NewQueuePublisher(mem, 10)
	worker := audit.NewWorker(mem, pub.Inbox(), nil)

	for range 3 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionEmailVerified, ApplicationID: "app-1"}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool { return len(mem.ListAll()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
