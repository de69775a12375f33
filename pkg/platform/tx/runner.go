package tx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Runner provides a transactional boundary for service operations. The SQL
// implementation wraps a database transaction; the in-memory one wraps a
// sharded lock so unit tests keep the same all-or-nothing call shape.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// defaultTxTimeout bounds a lifecycle transaction so a stuck caller cannot
// hold row locks indefinitely.
const defaultTxTimeout = 5 * time.Second

// SQLRunner runs fn inside a database transaction. The transaction is placed
// in the context so stores participating in the operation share it.
type SQLRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db, timeout: defaultTxTimeout}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(WithTx(ctx, dbTx)); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// numShards spreads in-memory transactions across mutexes keyed by an
// aggregate identifier so unrelated parents do not contend.
const numShards = 128

// MemoryRunner serializes fn with a sharded mutex. It gives memory stores the
// same serialization guarantee the SQL runner gets from row locks.
type MemoryRunner struct {
	shards [numShards]sync.Mutex
}

func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shard := r.selectShard(ctx)
	r.shards[shard].Lock()
	defer r.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

type shardKey struct{}

// WithShardKey pins the aggregate identifier used for in-memory lock
// selection. Operations on the same key are mutually exclusive.
func WithShardKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, shardKey{}, key)
}

func (r *MemoryRunner) selectShard(ctx context.Context) int {
	if key, ok := ctx.Value(shardKey{}).(string); ok && key != "" {
		return int(fnvHash(key) % numShards)
	}
	return 0
}

// fnvHash is FNV-1a, chosen for distribution quality over a simple
// multiply-add.
func fnvHash(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
