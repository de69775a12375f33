package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"curator/internal/outbox"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) ProduceSync(_ context.Context, records ...*kgo.Record) kgo.ProduceResults {
	if p.err != nil {
		return kgo.ProduceResults{{Err: p.err}}
	}
	p.records = append(p.records, records...)
	return kgo.ProduceResults{{Record: records[0]}}
}

func enqueueJob(t *testing.T, store *outbox.InMemoryStore) outbox.Job {
	t.Helper()
	job, err := outbox.NewRegisterPIDJob(outbox.RegisterPIDArgs{
		RecordID: "4f8cda51-9a7c-4f3e-b357-d6dc3f4a9e01",
		Scheme:   "doi",
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Enqueue(context.Background(), job))
	return job
}

func TestRelayDrainOnce(t *testing.T) {
	t.Run("publishes pending jobs and marks them published", func(t *testing.T) {
		store := outbox.NewInMemoryStore()
		producer := &fakeProducer{}
		job := enqueueJob(t, store)

		relay := outbox.NewRelay(store, producer, outbox.DefaultTopic)
		require.NoError(t, relay.DrainOnce(context.Background()))

		require.Len(t, producer.records, 1)
		record := producer.records[0]
		assert.Equal(t, outbox.DefaultTopic, record.Topic)
		assert.Equal(t, job.AggregateID, string(record.Key))

		var envelope outbox.Envelope
		require.NoError(t, json.Unmarshal(record.Value, &envelope))
		assert.Equal(t, job.ID, envelope.ID)
		assert.Equal(t, outbox.KindRegisterPID, envelope.Kind)

		status, ok := store.StatusOf(job.ID)
		require.True(t, ok)
		assert.Equal(t, outbox.StatusPublished, status)
		assert.Empty(t, store.Pending())
	})

	t.Run("produce failure returns the job to pending", func(t *testing.T) {
		store := outbox.NewInMemoryStore()
		producer := &fakeProducer{err: errors.New("broker unavailable")}
		job := enqueueJob(t, store)

		relay := outbox.NewRelay(store, producer, outbox.DefaultTopic)
		require.NoError(t, relay.DrainOnce(context.Background()))

		status, ok := store.StatusOf(job.ID)
		require.True(t, ok)
		assert.Equal(t, outbox.StatusPending, status)
	})

	t.Run("empty outbox is a no-op", func(t *testing.T) {
		store := outbox.NewInMemoryStore()
		producer := &fakeProducer{}

		relay := outbox.NewRelay(store, producer, outbox.DefaultTopic)
		require.NoError(t, relay.DrainOnce(context.Background()))
		assert.Empty(t, producer.records)
	})
}

func TestInMemoryStoreClaim(t *testing.T) {
	t.Run("claimed jobs are not claimed twice", func(t *testing.T) {
		store := outbox.NewInMemoryStore()
		enqueueJob(t, store)

		first, err := store.Claim(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, first, 1)

		second, err := store.Claim(context.Background(), 10)
		require.NoError(t, err)
		assert.Empty(t, second)
	})

	t.Run("release stale requeues crashed claims", func(t *testing.T) {
		store := outbox.NewInMemoryStore()
		job := enqueueJob(t, store)

		_, err := store.Claim(context.Background(), 1)
		require.NoError(t, err)

		released, err := store.ReleaseStale(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, 1, released)

		status, _ := store.StatusOf(job.ID)
		assert.Equal(t, outbox.StatusPending, status)
	})
}
