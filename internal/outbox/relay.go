package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 50
	defaultStaleAfter   = 5 * time.Minute
)

// Producer is the subset of the Kafka client the relay needs. Satisfied by
// *kgo.Client.
type Producer interface {
	ProduceSync(ctx context.Context, records ...*kgo.Record) kgo.ProduceResults
}

// Relay drains the outbox table into Kafka. One relay per worker process;
// SKIP LOCKED claiming keeps concurrent relays from double-publishing,
// though consumers must tolerate duplicates regardless.
type Relay struct {
	store    ClaimStore
	producer Producer
	topic    string

	pollInterval time.Duration
	batchSize    int
	staleAfter   time.Duration

	logger  *slog.Logger
	metrics *Metrics
}

// RelayOption configures optional relay collaborators.
type RelayOption func(r *Relay)

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithRelayMetrics(m *Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithPollInterval(interval time.Duration) RelayOption {
	return func(r *Relay) {
		r.pollInterval = interval
	}
}

func WithBatchSize(size int) RelayOption {
	return func(r *Relay) {
		r.batchSize = size
	}
}

func NewRelay(store ClaimStore, producer Producer, topic string, opts ...RelayOption) *Relay {
	r := &Relay{
		store:        store,
		producer:     producer,
		topic:        topic,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		staleAfter:   defaultStaleAfter,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until the context is canceled. Errors are logged and retried on
// the next tick; only context cancellation stops the loop.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	stale := time.NewTicker(r.staleAfter)
	defer stale.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stale.C:
			released, err := r.store.ReleaseStale(ctx, r.staleAfter)
			if err != nil {
				r.logger.ErrorContext(ctx, "release stale outbox jobs", "error", err)
			} else if released > 0 {
				r.logger.WarnContext(ctx, "requeued stale outbox jobs", "count", released)
			}
		case <-ticker.C:
			if err := r.DrainOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "outbox drain", "error", err)
			}
		}
	}
}

// DrainOnce claims one batch and publishes it. Jobs publish independently:
// one bad job does not hold back the rest of the batch.
func (r *Relay) DrainOnce(ctx context.Context) error {
	jobs, err := r.store.Claim(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("claim batch: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RelayBatchSize.Observe(float64(len(jobs)))
	}
	if len(jobs) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(jobs))
	for _, job := range jobs {
		if err := r.publish(ctx, job); err != nil {
			r.logger.ErrorContext(ctx, "publish outbox job",
				"job_id", job.ID.String(), "kind", string(job.Kind),
				"attempts", job.Attempts, "error", err)
			if r.metrics != nil {
				r.metrics.JobsFailed.Inc()
			}
			if markErr := r.store.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
				r.logger.ErrorContext(ctx, "mark outbox job failed",
					"job_id", job.ID.String(), "error", markErr)
			}
			continue
		}
		published = append(published, job.ID)
	}

	if err := r.store.MarkPublished(ctx, published); err != nil {
		// The jobs are in Kafka but still claimed locally; ReleaseStale will
		// requeue them and the consumer will see duplicates.
		return fmt.Errorf("mark published: %w", err)
	}
	if r.metrics != nil {
		r.metrics.JobsPublished.Add(float64(len(published)))
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, job Job) error {
	value, err := json.Marshal(Envelope{ID: job.ID, Kind: job.Kind, Payload: job.Payload})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	record := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(job.AggregateID),
		Value: value,
	}
	if err := r.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce: %w", err)
	}
	return nil
}
