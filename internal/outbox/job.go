// Package outbox implements the transactional outbox for identifier
// registration jobs. Jobs are enqueued inside the caller's database
// transaction, relayed to Kafka by a separate worker, and consumed with
// at-least-once semantics. Handlers must therefore be idempotent.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates job payloads.
type Kind string

const (
	// KindRegisterPID asks the worker to reconcile one identifier with its
	// registration authority.
	KindRegisterPID Kind = "pid.register_or_update"
)

// JobStatus tracks a job through the relay.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusPublishing JobStatus = "publishing"
	StatusPublished  JobStatus = "published"
	StatusFailed     JobStatus = "failed"
)

// MaxAttempts bounds relay retries before a job is parked as failed.
const MaxAttempts = 10

// RegisterPIDArgs is the payload of a KindRegisterPID job.
type RegisterPIDArgs struct {
	RecordID string `json:"record_id"`
	Scheme   string `json:"scheme"`
	IsParent bool   `json:"is_parent"`
}

// Job is one unit of asynchronous work. AggregateID keys the Kafka message
// so all jobs for one record land on the same partition, in order.
type Job struct {
	ID          uuid.UUID
	Kind        Kind
	AggregateID string
	Payload     json.RawMessage
	Attempts    int
	LastError   string
	CreatedAt   time.Time
}

// NewRegisterPIDJob builds a registration job for one record/scheme pair.
func NewRegisterPIDJob(args RegisterPIDArgs, now time.Time) (Job, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return Job{}, fmt.Errorf("marshal register pid args: %w", err)
	}
	return Job{
		ID:          uuid.New(),
		Kind:        KindRegisterPID,
		AggregateID: args.RecordID,
		Payload:     payload,
		CreatedAt:   now,
	}, nil
}

// Envelope is the message body published to Kafka. The job ID travels with
// the payload so consumers can log and de-duplicate.
type Envelope struct {
	ID      uuid.UUID       `json:"id"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}
