package outbox

import (
	"context"
	"database/sql"
	"fmt"

	txcontext "curator/pkg/platform/tx"
)

// Enqueuer writes jobs to the outbox table. Implementations must honor the
// transaction smuggled in the context so the enqueue commits or rolls back
// with the business mutation.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// PostgresEnqueuer is the server-process side of the outbox: insert-only,
// inside the caller's transaction.
type PostgresEnqueuer struct {
	db *sql.DB
}

func NewPostgresEnqueuer(db *sql.DB) *PostgresEnqueuer {
	return &PostgresEnqueuer{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresEnqueuer) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresEnqueuer) Enqueue(ctx context.Context, job Job) error {
	query := `
		INSERT INTO pid_jobs (id, kind, aggregate_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		job.ID,
		string(job.Kind),
		job.AggregateID,
		[]byte(job.Payload),
		string(StatusPending),
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox job: %w", err)
	}
	return nil
}
