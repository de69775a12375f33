package models

import (
	"time"

	id "curator/pkg/domain"
)

// Access captures the embargo portion of a record's access settings. The
// full access model (files visibility, links) lives with the collaborating
// access service; the lifecycle core only needs the embargo.
type Access struct {
	EmbargoActive bool
	EmbargoUntil  *time.Time
	EmbargoReason string
}

// EmbargoExpired reports whether an active embargo has run out and can be
// lifted.
func (a Access) EmbargoExpired(now time.Time) bool {
	return a.EmbargoActive && a.EmbargoUntil != nil && !now.Before(*a.EmbargoUntil)
}

// Record is one immutable published version of a logical item.
//
// Invariants:
//   - Tombstone is present exactly when Status is not published
//   - VersionIndex is positive and unique per parent
//   - After publication only status, tombstone, PIDs, and access change
type Record struct {
	ID           id.RecordID
	ParentID     id.ParentID
	VersionIndex int
	Status       DeletionStatus
	Tombstone    *Tombstone
	PIDs         map[string]PID
	Access       Access
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsDeleted reports whether the record is in any non-published state.
func (r *Record) IsDeleted() bool {
	return r.Status.IsDeleted()
}

// PIDValue returns the identifier for a scheme, if allocated.
func (r *Record) PIDValue(scheme string) (PID, bool) {
	p, ok := r.PIDs[scheme]
	return p, ok
}

// SetPID stores or replaces the identifier for its scheme.
func (r *Record) SetPID(p PID) {
	if r.PIDs == nil {
		r.PIDs = make(map[string]PID)
	}
	r.PIDs[p.Scheme] = p
}

// CanDelete checks the published -> deleted transition.
func (r *Record) CanDelete() error {
	if r.Status != StatusPublished {
		return NewDeletionStatusError(StatusPublished, r)
	}
	return nil
}

// ApplyDeletion attaches the tombstone and moves the record to deleted.
// Call CanDelete first; pairs with the store's Execute callback.
func (r *Record) ApplyDeletion(t Tombstone, now time.Time) {
	r.Status = StatusDeleted
	r.Tombstone = &t
	r.UpdatedAt = now
}

// CanRestore checks the deleted -> published transition. A marked record
// must be unmarked first.
func (r *Record) CanRestore() error {
	if r.Status != StatusDeleted {
		return NewDeletionStatusError(StatusDeleted, r)
	}
	return nil
}

// ApplyRestore clears the tombstone and republishes the record.
func (r *Record) ApplyRestore(now time.Time) {
	r.Status = StatusPublished
	r.Tombstone = nil
	r.UpdatedAt = now
}

// CanMark checks the deleted -> marked transition.
func (r *Record) CanMark() error {
	if r.Status != StatusDeleted {
		return NewDeletionStatusError(StatusDeleted, r)
	}
	return nil
}

// ApplyMark flags the record for destructive purge. The tombstone stays.
func (r *Record) ApplyMark(now time.Time) {
	r.Status = StatusMarked
	r.UpdatedAt = now
}

// CanUnmark checks the marked -> deleted transition.
func (r *Record) CanUnmark() error {
	if r.Status != StatusMarked {
		return NewDeletionStatusError(StatusMarked, r)
	}
	return nil
}

// ApplyUnmark clears the purge flag, leaving the record deleted.
func (r *Record) ApplyUnmark(now time.Time) {
	r.Status = StatusDeleted
	r.UpdatedAt = now
}

// CanUpdateTombstone allows tombstone edits on deleted or marked records.
func (r *Record) CanUpdateTombstone() error {
	if r.Status != StatusDeleted && r.Status != StatusMarked {
		return NewDeletionStatusError(StatusDeleted, r)
	}
	return nil
}

// ApplyTombstone replaces the tombstone without changing status.
func (r *Record) ApplyTombstone(t Tombstone, now time.Time) {
	r.Tombstone = &t
	r.UpdatedAt = now
}

// CanPurge checks that the record was explicitly marked before destructive
// removal. Purge itself is a collaborator responsibility.
func (r *Record) CanPurge() error {
	if r.Status != StatusMarked {
		return NewDeletionStatusError(StatusMarked, r)
	}
	return nil
}

// Parent is the identity shared by all versions of a logical item. It owns
// the parent-level identifiers and community membership.
type Parent struct {
	ID          id.ParentID
	PIDs        map[string]PID
	OwnerID     id.UserID
	Communities []string
	CreatedAt   time.Time
}

// PIDValue returns the parent-level identifier for a scheme, if allocated.
func (p *Parent) PIDValue(scheme string) (PID, bool) {
	pid, ok := p.PIDs[scheme]
	return pid, ok
}

// SetPID stores or replaces the parent-level identifier for its scheme.
func (p *Parent) SetPID(pid PID) {
	if p.PIDs == nil {
		p.PIDs = make(map[string]PID)
	}
	p.PIDs[pid.Scheme] = pid
}

// VersionsState is the per-parent pointer to the latest version. It is the
// only contended row: concurrent publish/delete/restore on one parent must
// serialize on it.
type VersionsState struct {
	ParentID    id.ParentID
	LatestID    id.RecordID
	LatestIndex int
}
