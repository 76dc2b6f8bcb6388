//go:build integration

package mail

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestKafkaSender_RoundTrip(t *testing.T) {
	ctx := context.Background()

	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.1.7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	broker, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err)

	client, err := NewKafkaClient([]string{broker})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	const topic = "pollworker.verification-emails"
	require.NoError(t, EnsureTopic(ctx, client, topic))
	require.NoError(t, EnsureTopic(ctx, client, topic), "second call tolerates an existing topic")

	msg, err := NewRenderer("http://localhost:8080").Verification("Ada", "ada@example.com", "tok")
	require.NoError(t, err)
	require.NoError(t, NewKafkaSender(client, topic).Send(ctx, msg))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(pollCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.NotEmpty(t, records)
	var got Message
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, msg.To, got.To)
	require.Equal(t, VerificationSubject, got.Subject)
}
