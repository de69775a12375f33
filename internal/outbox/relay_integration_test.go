//go:build integration

package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"curator/internal/outbox"
	"curator/pkg/testutil/containers"
)

func TestRelayPublishesToKafka(t *testing.T) {
	ctx := context.Background()
	rp := containers.NewRedpandaContainer(t)

	producer, err := kgo.NewClient(kgo.SeedBrokers(rp.Broker))
	require.NoError(t, err)
	t.Cleanup(producer.Close)

	const topic = "curator.pid-jobs.test"
	require.NoError(t, outbox.EnsureTopic(ctx, producer, topic, 1, 1))
	// Racing workers re-run topic creation on startup; it must be idempotent.
	require.NoError(t, outbox.EnsureTopic(ctx, producer, topic, 1, 1))

	store := outbox.NewInMemoryStore()
	var want []outbox.Job
	for _, recordID := range []string{"rec-a", "rec-b", "rec-a"} {
		job, err := outbox.NewRegisterPIDJob(outbox.RegisterPIDArgs{
			RecordID: recordID,
			Scheme:   "doi",
		}, time.Now())
		require.NoError(t, err)
		require.NoError(t, store.Enqueue(ctx, job))
		want = append(want, job)
	}

	relay := outbox.NewRelay(store, producer, topic)
	require.NoError(t, relay.DrainOnce(ctx))

	for _, job := range want {
		status, ok := store.StatusOf(job.ID)
		require.True(t, ok)
		assert.Equal(t, outbox.StatusPublished, status)
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	deadline, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var got []*kgo.Record
	for len(got) < len(want) {
		fetches := consumer.PollFetches(deadline)
		require.NoError(t, fetches.Err())
		got = append(got, fetches.Records()...)
	}
	require.Len(t, got, len(want))

	// Single partition, so consumption order is publish order.
	for i, record := range got {
		assert.Equal(t, want[i].AggregateID, string(record.Key))

		var env outbox.Envelope
		require.NoError(t, json.Unmarshal(record.Value, &env))
		assert.Equal(t, want[i].ID, env.ID)
		assert.Equal(t, outbox.KindRegisterPID, env.Kind)

		var args outbox.RegisterPIDArgs
		require.NoError(t, json.Unmarshal(env.Payload, &args))
		assert.Equal(t, want[i].AggregateID, args.RecordID)
		assert.Equal(t, "doi", args.Scheme)
	}

	// Nothing left to drain.
	require.NoError(t, relay.DrainOnce(ctx))
	assert.Empty(t, store.Pending())
}
