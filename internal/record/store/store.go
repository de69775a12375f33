// Package store persists records, parents, and the per-parent version
// pointer. Stores return sentinel errors for infrastructure facts; services
// translate them into coded domain errors.
package store

import (
	"context"

	"curator/internal/record/models"
	id "curator/pkg/domain"
)

// RecordStore persists record versions.
//
// Execute is the atomic validate-then-mutate primitive: the implementation
// holds its lock (mutex or SELECT ... FOR UPDATE) across both callbacks so
// lifecycle transitions cannot interleave. Validate returning an error
// aborts without mutating.
type RecordStore interface {
	Create(ctx context.Context, rec *models.Record) error
	Get(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	Update(ctx context.Context, rec *models.Record) error
	ListByParent(ctx context.Context, parentID id.ParentID) ([]*models.Record, error)
	Execute(ctx context.Context, recordID id.RecordID,
		validate func(rec *models.Record) error,
		mutate func(rec *models.Record)) (*models.Record, error)
}

// ParentStore persists the shared identity of a version chain.
type ParentStore interface {
	Create(ctx context.Context, parent *models.Parent) error
	Get(ctx context.Context, parentID id.ParentID) (*models.Parent, error)
	Update(ctx context.Context, parent *models.Parent) error
}

// VersionStore persists the latest-version pointer. Get acquires the
// per-parent lock when called inside a transaction, serializing concurrent
// publish/delete/restore on the same parent.
type VersionStore interface {
	Get(ctx context.Context, parentID id.ParentID) (*models.VersionsState, error)
	Save(ctx context.Context, state *models.VersionsState) error
}
