package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"curator/internal/pid"
	id "curator/pkg/domain"
)

const (
	consumerMaxRetries   = 5
	consumerRetryBackoff = time.Second
	consumerBackoffCap   = 30 * time.Second
)

// Registrar reconciles one identifier with its registration authority.
// Satisfied by *pid.Manager.
type Registrar interface {
	RegisterOrUpdate(ctx context.Context, recordID id.RecordID, scheme string, parent bool) error
}

// Fetcher is the subset of the Kafka client the consumer needs. Satisfied
// by *kgo.Client configured with a consumer group and auto-commit disabled.
type Fetcher interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitUncommittedOffsets(ctx context.Context) error
}

// Consumer drains registration jobs from Kafka. Delivery is at-least-once:
// offsets commit only after the whole batch is handled, and the registrar
// is idempotent, so duplicates and replays are harmless.
type Consumer struct {
	client    Fetcher
	registrar Registrar
	logger    *slog.Logger
	metrics   *Metrics
}

// ConsumerOption configures optional consumer collaborators.
type ConsumerOption func(c *Consumer)

func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

func WithConsumerMetrics(m *Metrics) ConsumerOption {
	return func(c *Consumer) {
		c.metrics = m
	}
}

func NewConsumer(client Fetcher, registrar Registrar, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		client:    client,
		registrar: registrar,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch",
				"topic", topic, "partition", partition, "error", err)
		})

		fetches.EachRecord(func(record *kgo.Record) {
			c.consume(ctx, record.Value)
		})

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.logger.ErrorContext(ctx, "commit offsets", "error", err)
		}
	}
}

// consume handles one message, retrying transient provider failures in
// place. A job that exhausts retries or fails permanently is dropped with
// its outbox row still marked published; operators replay it from there.
func (c *Consumer) consume(ctx context.Context, value []byte) {
	start := time.Now()
	err := c.Handle(ctx, value)
	if c.metrics != nil {
		c.metrics.ObserveHandle(start)
	}
	if err == nil {
		if c.metrics != nil {
			c.metrics.JobsConsumed.Inc()
		}
		return
	}

	c.logger.ErrorContext(ctx, "outbox job dropped", "error", err)
	if c.metrics != nil {
		c.metrics.ConsumeFailures.Inc()
	}
}

// Handle decodes and dispatches one message, retrying retryable provider
// errors with exponential backoff.
func (c *Consumer) Handle(ctx context.Context, value []byte) error {
	var envelope Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	var handler func(ctx context.Context) error
	switch envelope.Kind {
	case KindRegisterPID:
		var args RegisterPIDArgs
		if err := json.Unmarshal(envelope.Payload, &args); err != nil {
			return fmt.Errorf("decode register pid payload: %w", err)
		}
		recordID, err := id.ParseRecordID(args.RecordID)
		if err != nil {
			return fmt.Errorf("job %s: %w", envelope.ID, err)
		}
		handler = func(ctx context.Context) error {
			return c.registrar.RegisterOrUpdate(ctx, recordID, args.Scheme, args.IsParent)
		}
	default:
		return fmt.Errorf("job %s: unknown kind %q", envelope.ID, envelope.Kind)
	}

	backoff := consumerRetryBackoff
	var lastErr error
	for attempt := 1; attempt <= consumerMaxRetries; attempt++ {
		lastErr = handler(ctx)
		if lastErr == nil {
			return nil
		}
		if !pid.IsRetryable(lastErr) {
			return fmt.Errorf("job %s: %w", envelope.ID, lastErr)
		}
		c.logger.WarnContext(ctx, "retrying outbox job",
			"job_id", envelope.ID.String(), "attempt", attempt, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > consumerBackoffCap {
			backoff = consumerBackoffCap
		}
	}
	return fmt.Errorf("job %s: retries exhausted: %w", envelope.ID, lastErr)
}
