package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClaimStore is the worker-process side of the outbox: claim pending jobs,
// then record the publish outcome.
type ClaimStore interface {
	// Claim atomically moves up to limit pending jobs to publishing and
	// returns them. Concurrent relays never claim the same job.
	Claim(ctx context.Context, limit int) ([]Job, error)

	// MarkPublished finalizes successfully relayed jobs.
	MarkPublished(ctx context.Context, ids []uuid.UUID) error

	// MarkFailed returns a job to pending for retry, or parks it as failed
	// once it exhausts MaxAttempts.
	MarkFailed(ctx context.Context, jobID uuid.UUID, cause string) error

	// ReleaseStale requeues jobs stuck in publishing, e.g. after a relay
	// crash between claim and publish.
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// PostgresClaimStore implements ClaimStore on a pgx pool. The relay worker
// runs in its own process, so it does not share the server's database/sql
// handle or its transaction plumbing.
type PostgresClaimStore struct {
	pool *pgxpool.Pool
}

func NewPostgresClaimStore(pool *pgxpool.Pool) *PostgresClaimStore {
	return &PostgresClaimStore{pool: pool}
}

func (s *PostgresClaimStore) Claim(ctx context.Context, limit int) ([]Job, error) {
	query := `
		UPDATE pid_jobs
		SET status = $1, attempts = attempts + 1, claimed_at = now()
		WHERE id IN (
			SELECT id FROM pid_jobs
			WHERE status = $2
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, aggregate_id, payload, attempts, COALESCE(last_error, ''), created_at
	`
	rows, err := s.pool.Query(ctx, query, string(StatusPublishing), string(StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		var kind string
		if err := rows.Scan(&job.ID, &kind, &job.AggregateID, &job.Payload,
			&job.Attempts, &job.LastError, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox job: %w", err)
		}
		job.Kind = Kind(kind)
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox jobs: %w", err)
	}
	return jobs, nil
}

func (s *PostgresClaimStore) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE pid_jobs
		SET status = $1, published_at = now()
		WHERE id = ANY($2)
	`
	if _, err := s.pool.Exec(ctx, query, string(StatusPublished), ids); err != nil {
		return fmt.Errorf("mark outbox jobs published: %w", err)
	}
	return nil
}

func (s *PostgresClaimStore) MarkFailed(ctx context.Context, jobID uuid.UUID, cause string) error {
	query := `
		UPDATE pid_jobs
		SET status = CASE WHEN attempts >= $1 THEN $2 ELSE $3 END,
		    last_error = $4
		WHERE id = $5
	`
	_, err := s.pool.Exec(ctx, query,
		MaxAttempts, string(StatusFailed), string(StatusPending), cause, jobID)
	if err != nil {
		return fmt.Errorf("mark outbox job failed: %w", err)
	}
	return nil
}

func (s *PostgresClaimStore) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	query := `
		UPDATE pid_jobs
		SET status = $1
		WHERE status = $2 AND claimed_at < now() - $3::interval
	`
	tag, err := s.pool.Exec(ctx, query,
		string(StatusPending), string(StatusPublishing),
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("release stale outbox jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
