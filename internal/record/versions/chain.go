// Package versions maintains the per-parent pointer to the latest
// non-deleted version of a record.
package versions

import (
	"context"
	"errors"
	"fmt"

	"curator/internal/record/models"
	"curator/internal/record/store"
	id "curator/pkg/domain"
	"curator/pkg/platform/sentinel"
)

// Chain recomputes the latest-version pointer on publish, delete, and
// restore. All methods expect to run inside the caller's transaction, after
// the triggering status change has been written, so sibling listings see
// the new state.
type Chain struct {
	records  store.RecordStore
	versions store.VersionStore
}

func NewChain(records store.RecordStore, versions store.VersionStore) *Chain {
	return &Chain{records: records, versions: versions}
}

// OnPublish assigns the next version index to the new record and points the
// chain at it. New versions are always latest, unconditionally.
func (c *Chain) OnPublish(ctx context.Context, parentID id.ParentID, newRecord *models.Record) error {
	state, err := c.versions.Get(ctx, parentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		state = &models.VersionsState{ParentID: parentID}
	} else if err != nil {
		return fmt.Errorf("load versions state: %w", err)
	}

	newRecord.VersionIndex = state.LatestIndex + 1
	state.LatestID = newRecord.ID
	state.LatestIndex = newRecord.VersionIndex
	if err := c.versions.Save(ctx, state); err != nil {
		return fmt.Errorf("save versions state: %w", err)
	}
	return nil
}

// OnDelete repoints the chain when the currently-latest version was
// deleted. If no non-deleted sibling remains the pointer is deliberately
// left on the deleted record; see the package decision log in DESIGN.md.
func (c *Chain) OnDelete(ctx context.Context, parentID id.ParentID, deleted *models.Record) error {
	state, err := c.versions.Get(ctx, parentID)
	if err != nil {
		return fmt.Errorf("load versions state: %w", err)
	}
	if state.LatestID != deleted.ID {
		return nil
	}

	next, err := c.latestPublished(ctx, parentID, deleted.ID)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	state.LatestID = next.ID
	state.LatestIndex = next.VersionIndex
	if err := c.versions.Save(ctx, state); err != nil {
		return fmt.Errorf("save versions state: %w", err)
	}
	return nil
}

// OnRestore repoints the chain when the restored version outranks the
// current latest published version, or when it is the only one left.
func (c *Chain) OnRestore(ctx context.Context, parentID id.ParentID, restored *models.Record) error {
	current, err := c.latestPublished(ctx, parentID, restored.ID)
	if err != nil {
		return err
	}
	if current != nil && restored.VersionIndex <= current.VersionIndex {
		return nil
	}

	state, err := c.versions.Get(ctx, parentID)
	if err != nil {
		return fmt.Errorf("load versions state: %w", err)
	}
	state.LatestID = restored.ID
	state.LatestIndex = restored.VersionIndex
	if err := c.versions.Save(ctx, state); err != nil {
		return fmt.Errorf("save versions state: %w", err)
	}
	return nil
}

// latestPublished finds the highest-index non-deleted version of a parent,
// excluding one record.
func (c *Chain) latestPublished(ctx context.Context, parentID id.ParentID, exclude id.RecordID) (*models.Record, error) {
	siblings, err := c.records.ListByParent(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	var best *models.Record
	for _, sibling := range siblings {
		if sibling.ID == exclude || sibling.IsDeleted() {
			continue
		}
		if best == nil || sibling.VersionIndex > best.VersionIndex {
			best = sibling
		}
	}
	return best, nil
}
