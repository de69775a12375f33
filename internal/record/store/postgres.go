package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"curator/internal/record/models"
	id "curator/pkg/domain"
	"curator/pkg/platform/sentinel"
	txcontext "curator/pkg/platform/tx"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx. The
// stores pick the transaction from context when one is present so lifecycle
// mutations and outbox writes commit together.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execer(ctx context.Context, db *sql.DB) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

// tombstoneDoc is the JSONB shape for the tombstone column; it reuses the
// external representation.
func marshalTombstone(t *models.Tombstone) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t.Dump())
}

func unmarshalTombstone(data []byte) (*models.Tombstone, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var dump models.TombstoneDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("decode tombstone: %w", err)
	}
	t, err := models.LoadTombstone(dump)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func marshalPIDs(pids map[string]models.PID) ([]byte, error) {
	if pids == nil {
		pids = map[string]models.PID{}
	}
	return json.Marshal(pids)
}

func unmarshalPIDs(data []byte) (map[string]models.PID, error) {
	pids := make(map[string]models.PID)
	if len(data) == 0 {
		return pids, nil
	}
	if err := json.Unmarshal(data, &pids); err != nil {
		return nil, fmt.Errorf("decode pids: %w", err)
	}
	return pids, nil
}

// PostgresRecordStore persists records in the records table.
type PostgresRecordStore struct {
	db *sql.DB
}

func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

const recordColumns = `id, parent_id, version_index, deletion_status, tombstone, pids,
	embargo_active, embargo_until, embargo_reason, created_at, updated_at`

func (s *PostgresRecordStore) Create(ctx context.Context, rec *models.Record) error {
	tombstone, err := marshalTombstone(rec.Tombstone)
	if err != nil {
		return err
	}
	pids, err := marshalPIDs(rec.PIDs)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(rec.ID), uuid.UUID(rec.ParentID), rec.VersionIndex,
		string(rec.Status), tombstone, pids,
		rec.Access.EmbargoActive, rec.Access.EmbargoUntil, rec.Access.EmbargoReason,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Get(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(recordID))
	return scanRecord(row)
}

// getForUpdate locks the record row for the remainder of the transaction.
func (s *PostgresRecordStore) getForUpdate(ctx context.Context, q querier, recordID id.RecordID) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1 FOR UPDATE`
	row := q.QueryRowContext(ctx, query, uuid.UUID(recordID))
	return scanRecord(row)
}

func (s *PostgresRecordStore) Update(ctx context.Context, rec *models.Record) error {
	tombstone, err := marshalTombstone(rec.Tombstone)
	if err != nil {
		return err
	}
	pids, err := marshalPIDs(rec.PIDs)
	if err != nil {
		return err
	}
	query := `
		UPDATE records
		SET deletion_status = $2, tombstone = $3, pids = $4,
			embargo_active = $5, embargo_until = $6, embargo_reason = $7,
			updated_at = $8
		WHERE id = $1
	`
	res, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(rec.ID), string(rec.Status), tombstone, pids,
		rec.Access.EmbargoActive, rec.Access.EmbargoUntil, rec.Access.EmbargoReason,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresRecordStore) ListByParent(ctx context.Context, parentID id.ParentID) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE parent_id = $1 ORDER BY version_index`
	rows, err := execer(ctx, s.db).QueryContext(ctx, query, uuid.UUID(parentID))
	if err != nil {
		return nil, fmt.Errorf("query records by parent: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Execute locks the record row, validates, mutates, and writes back. When no
// transaction is in the context it opens one so the lock actually holds.
func (s *PostgresRecordStore) Execute(ctx context.Context, recordID id.RecordID,
	validate func(rec *models.Record) error,
	mutate func(rec *models.Record)) (*models.Record, error) {

	run := func(ctx context.Context, q querier) (*models.Record, error) {
		rec, err := s.getForUpdate(ctx, q, recordID)
		if err != nil {
			return nil, err
		}
		if err := validate(rec); err != nil {
			return nil, err
		}
		mutate(rec)
		if err := s.Update(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	rec, err := run(txcontext.WithTx(ctx, dbTx), dbTx)
	if err != nil {
		_ = dbTx.Rollback()
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		recID        uuid.UUID
		parentID     uuid.UUID
		versionIndex int
		status       string
		tombstone    []byte
		pids         []byte
		embargoOn    bool
		embargoUntil sql.NullTime
		embargoWhy   string
		createdAt    time.Time
		updatedAt    time.Time
	)
	err := row.Scan(&recID, &parentID, &versionIndex, &status, &tombstone, &pids,
		&embargoOn, &embargoUntil, &embargoWhy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}

	parsedStatus, err := models.ParseDeletionStatus(status)
	if err != nil {
		return nil, err
	}
	ts, err := unmarshalTombstone(tombstone)
	if err != nil {
		return nil, err
	}
	pidMap, err := unmarshalPIDs(pids)
	if err != nil {
		return nil, err
	}

	rec := &models.Record{
		ID:           id.RecordID(recID),
		ParentID:     id.ParentID(parentID),
		VersionIndex: versionIndex,
		Status:       parsedStatus,
		Tombstone:    ts,
		PIDs:         pidMap,
		Access: models.Access{
			EmbargoActive: embargoOn,
			EmbargoReason: embargoWhy,
		},
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if embargoUntil.Valid {
		until := embargoUntil.Time
		rec.Access.EmbargoUntil = &until
	}
	return rec, nil
}

// PostgresParentStore persists parents in the parents table.
type PostgresParentStore struct {
	db *sql.DB
}

func NewPostgresParentStore(db *sql.DB) *PostgresParentStore {
	return &PostgresParentStore{db: db}
}

func (s *PostgresParentStore) Create(ctx context.Context, parent *models.Parent) error {
	pids, err := marshalPIDs(parent.PIDs)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO parents (id, owner_id, communities, pids, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(parent.ID), parent.OwnerID.String(),
		pq.Array(parent.Communities), pids, parent.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert parent: %w", err)
	}
	return nil
}

func (s *PostgresParentStore) Get(ctx context.Context, parentID id.ParentID) (*models.Parent, error) {
	query := `SELECT id, owner_id, communities, pids, created_at FROM parents WHERE id = $1`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(parentID))

	var (
		pid         uuid.UUID
		ownerID     string
		communities pq.StringArray
		pids        []byte
		createdAt   time.Time
	)
	err := row.Scan(&pid, &ownerID, &communities, &pids, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan parent: %w", err)
	}
	pidMap, err := unmarshalPIDs(pids)
	if err != nil {
		return nil, err
	}
	return &models.Parent{
		ID:          id.ParentID(pid),
		OwnerID:     id.UserID(ownerID),
		Communities: communities,
		PIDs:        pidMap,
		CreatedAt:   createdAt,
	}, nil
}

func (s *PostgresParentStore) Update(ctx context.Context, parent *models.Parent) error {
	pids, err := marshalPIDs(parent.PIDs)
	if err != nil {
		return err
	}
	query := `UPDATE parents SET owner_id = $2, communities = $3, pids = $4 WHERE id = $1`
	res, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(parent.ID), parent.OwnerID.String(),
		pq.Array(parent.Communities), pids,
	)
	if err != nil {
		return fmt.Errorf("update parent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update parent: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// PostgresVersionStore persists the latest-version pointer. Get issues
// SELECT ... FOR UPDATE when a transaction is present, which is the
// serialization point for concurrent operations on one parent.
type PostgresVersionStore struct {
	db *sql.DB
}

func NewPostgresVersionStore(db *sql.DB) *PostgresVersionStore {
	return &PostgresVersionStore{db: db}
}

func (s *PostgresVersionStore) Get(ctx context.Context, parentID id.ParentID) (*models.VersionsState, error) {
	query := `SELECT parent_id, latest_id, latest_index FROM parent_versions WHERE parent_id = $1`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(parentID))

	var (
		pid         uuid.UUID
		latestID    uuid.UUID
		latestIndex int
	)
	err := row.Scan(&pid, &latestID, &latestIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan versions state: %w", err)
	}
	return &models.VersionsState{
		ParentID:    id.ParentID(pid),
		LatestID:    id.RecordID(latestID),
		LatestIndex: latestIndex,
	}, nil
}

func (s *PostgresVersionStore) Save(ctx context.Context, state *models.VersionsState) error {
	query := `
		INSERT INTO parent_versions (parent_id, latest_id, latest_index)
		VALUES ($1, $2, $3)
		ON CONFLICT (parent_id) DO UPDATE SET
			latest_id = EXCLUDED.latest_id,
			latest_index = EXCLUDED.latest_index
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(state.ParentID), uuid.UUID(state.LatestID), state.LatestIndex)
	if err != nil {
		return fmt.Errorf("save versions state: %w", err)
	}
	return nil
}
