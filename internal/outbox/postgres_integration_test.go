//go:build integration

package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/internal/outbox"
	"curator/internal/platform/postgres"
	txcontext "curator/pkg/platform/tx"
	"curator/pkg/testutil/containers"
)

type outboxFixture struct {
	enqueuer *outbox.PostgresEnqueuer
	claims   *outbox.PostgresClaimStore
	pool     *pgxpool.Pool
	pg       *containers.PostgresContainer
}

func newOutboxFixture(t *testing.T) *outboxFixture {
	t.Helper()

	ctx := context.Background()
	pg := containers.NewPostgresContainer(t)
	require.NoError(t, postgres.Migrate(pg.DB))

	pool, err := pgxpool.New(ctx, pg.DSN)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &outboxFixture{
		enqueuer: outbox.NewPostgresEnqueuer(pg.DB),
		claims:   outbox.NewPostgresClaimStore(pool),
		pool:     pool,
		pg:       pg,
	}
}

func (f *outboxFixture) enqueue(t *testing.T, ctx context.Context, recordID string, at time.Time) outbox.Job {
	t.Helper()

	job, err := outbox.NewRegisterPIDJob(outbox.RegisterPIDArgs{
		RecordID: recordID,
		Scheme:   "doi",
	}, at)
	require.NoError(t, err)
	require.NoError(t, f.enqueuer.Enqueue(ctx, job))
	return job
}

func (f *outboxFixture) jobStatus(t *testing.T, ctx context.Context, jobID uuid.UUID) string {
	t.Helper()

	var status string
	err := f.pool.QueryRow(ctx,
		`SELECT status FROM pid_jobs WHERE id = $1`, jobID).Scan(&status)
	require.NoError(t, err)
	return status
}

func TestClaimOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	f := newOutboxFixture(t)

	base := time.Now().UTC()
	second := f.enqueue(t, ctx, uuid.NewString(), base.Add(time.Minute))
	first := f.enqueue(t, ctx, uuid.NewString(), base)

	claimed, err := f.claims.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, first.ID, claimed[0].ID)
	assert.Equal(t, second.ID, claimed[1].ID)
	for _, job := range claimed {
		assert.Equal(t, outbox.KindRegisterPID, job.Kind)
		assert.Equal(t, 1, job.Attempts)
		assert.Empty(t, job.LastError)
	}

	// Everything is now publishing; nothing left to claim.
	again, err := f.claims.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestClaimRespectsLimit(t *testing.T) {
	ctx := context.Background()
	f := newOutboxFixture(t)

	base := time.Now().UTC()
	for i := range 5 {
		f.enqueue(t, ctx, uuid.NewString(), base.Add(time.Duration(i)*time.Second))
	}

	claimed, err := f.claims.Claim(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, claimed, 3)

	rest, err := f.claims.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestMarkPublished(t *testing.T) {
	ctx := context.Background()
	f := newOutboxFixture(t)

	job := f.enqueue(t, ctx, uuid.NewString(), time.Now().UTC())
	claimed, err := f.claims.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, f.claims.MarkPublished(ctx, []uuid.UUID{job.ID}))
	assert.Equal(t, "published", f.jobStatus(t, ctx, job.ID))

	// A published job never re-enters the claim pool.
	again, err := f.claims.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMarkFailedRequeuesUntilMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newOutboxFixture(t)

	job := f.enqueue(t, ctx, uuid.NewString(), time.Now().UTC())
	_, err := f.claims.Claim(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, f.claims.MarkFailed(ctx, job.ID, "datacite unavailable"))
	assert.Equal(t, "pending", f.jobStatus(t, ctx, job.ID))

	reclaimed, err := f.claims.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, 2, reclaimed[0].Attempts)
	assert.Equal(t, "datacite unavailable", reclaimed[0].LastError)

	// Exhausted jobs park as failed instead of requeueing.
	_, err = f.pool.Exec(ctx,
		`UPDATE pid_jobs SET attempts = $1 WHERE id = $2`, outbox.MaxAttempts, job.ID)
	require.NoError(t, err)
	require.NoError(t, f.claims.MarkFailed(ctx, job.ID, "still down"))
	assert.Equal(t, "failed", f.jobStatus(t, ctx, job.ID))

	none, err := f.claims.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReleaseStaleRequeuesAbandonedClaims(t *testing.T) {
	ctx := context.Background()
	f := newOutboxFixture(t)

	job := f.enqueue(t, ctx, uuid.NewString(), time.Now().UTC())
	_, err := f.claims.Claim(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "publishing", f.jobStatus(t, ctx, job.ID))

	// Let the claim age past the zero-duration threshold.
	time.Sleep(100 * time.Millisecond)

	released, err := f.claims.ReleaseStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, "pending", f.jobStatus(t, ctx, job.ID))

	// Fresh claims survive a generous threshold.
	_, err = f.claims.Claim(ctx, 1)
	require.NoError(t, err)
	released, err = f.claims.ReleaseStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestEnqueueJoinsCallerTransaction(t *testing.T) {
	ctx := context.Background()
	f := newOutboxFixture(t)

	dbTx, err := f.pg.DB.BeginTx(ctx, nil)
	require.NoError(t, err)

	job, err := outbox.NewRegisterPIDJob(outbox.RegisterPIDArgs{
		RecordID: uuid.NewString(),
		Scheme:   "doi",
	}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, f.enqueuer.Enqueue(txcontext.WithTx(ctx, dbTx), job))

	// Rolled-back transactions must take their outbox writes with them.
	require.NoError(t, dbTx.Rollback())

	claimed, err := f.claims.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}
