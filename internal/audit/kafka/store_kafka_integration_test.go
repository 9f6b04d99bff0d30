//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"conductor-console/internal/audit"
	auditkafka "conductor-console/internal/audit/kafka"
	"conductor-console/pkg/testutil/containers"
)

func TestStore_ProducesKeyedJSON(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const topic = "console.auth.audit.test"
	store, err := auditkafka.New([]string{rp.Broker}, topic)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.EnsureTopic(ctx, 1, 1))
	require.NoError(t, store.EnsureTopic(ctx, 1, 1), "second call tolerates an existing topic")
	require.NoError(t, store.Health(ctx))

	event := audit.Event{
		Category:  audit.CategorySecurity,
		Action:    audit.ActionInactivityTimeout,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		DeviceID:  "device-1",
		Subject:   "jane@example.com",
	}
	require.NoError(t, store.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, "device-1", string(records[0].Key))

	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, event, got)
}

func TestNew_RejectsMissingConfig(t *testing.T) {
	_, err := auditkafka.New(nil, "topic")
	require.Error(t, err)
	_, err = auditkafka.New([]string{"localhost:9092"}, "")
	require.Error(t, err)
}
