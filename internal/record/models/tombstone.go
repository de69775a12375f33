package models

import (
	"time"

	dErrors "curator/pkg/domain-errors"
)

// VocabularyRef points into a controlled vocabulary (e.g. removal reasons).
type VocabularyRef struct {
	ID string `json:"id"`
}

// PolicyRef points at the deletion policy that authorized the removal.
type PolicyRef struct {
	ID string `json:"id"`
}

// Tombstone describes why, how, and by whom a record was removed. It exists
// exactly when the record is in a non-published state.
type Tombstone struct {
	RemovalReason  *VocabularyRef
	Note           string
	RemovedBy      Agent
	RemovalDate    time.Time
	CitationText   string
	IsVisible      bool
	DeletionPolicy *PolicyRef
}

// TombstoneInput carries the optional caller-supplied tombstone fields.
// Pointers distinguish "absent" from zero values during normalization.
type TombstoneInput struct {
	RemovalReasonID  string
	Note             string
	CitationText     string
	IsVisible        *bool
	RemovalDate      *time.Time
	DeletionPolicyID string
}

// NewTombstone normalizes input into a tombstone: note and citation default
// to empty, visibility defaults to true, and the removal date defaults to
// now. The agent must already be resolved; a zero agent is rejected.
func NewTombstone(in TombstoneInput, removedBy Agent, now time.Time) (Tombstone, error) {
	if removedBy.IsZero() {
		return Tombstone{}, dErrors.New(dErrors.CodeValidation, "removed_by is required")
	}

	t := Tombstone{
		Note:         in.Note,
		RemovedBy:    removedBy,
		CitationText: in.CitationText,
		IsVisible:    true,
		RemovalDate:  now,
	}
	if in.RemovalReasonID != "" {
		t.RemovalReason = &VocabularyRef{ID: in.RemovalReasonID}
	}
	if in.DeletionPolicyID != "" {
		t.DeletionPolicy = &PolicyRef{ID: in.DeletionPolicyID}
	}
	if in.IsVisible != nil {
		t.IsVisible = *in.IsVisible
	}
	if in.RemovalDate != nil {
		t.RemovalDate = *in.RemovalDate
	}
	return t, nil
}

// TombstoneDump is the external representation of a tombstone.
type TombstoneDump struct {
	RemovalReason  *VocabularyRef `json:"removal_reason"`
	Note           string         `json:"note"`
	RemovedBy      Agent          `json:"removed_by"`
	RemovalDate    string         `json:"removal_date"`
	CitationText   string         `json:"citation_text"`
	IsVisible      bool           `json:"is_visible"`
	DeletionPolicy *PolicyRef     `json:"deletion_policy"`
}

// Dump produces the external representation with an ISO-8601 removal date.
func (t Tombstone) Dump() TombstoneDump {
	return TombstoneDump{
		RemovalReason:  t.RemovalReason,
		Note:           t.Note,
		RemovedBy:      t.RemovedBy,
		RemovalDate:    t.RemovalDate.UTC().Format(time.RFC3339),
		CitationText:   t.CitationText,
		IsVisible:      t.IsVisible,
		DeletionPolicy: t.DeletionPolicy,
	}
}

// LoadTombstone rebuilds a tombstone from its external representation.
func LoadTombstone(dump TombstoneDump) (Tombstone, error) {
	removalDate, err := time.Parse(time.RFC3339, dump.RemovalDate)
	if err != nil {
		return Tombstone{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed removal_date")
	}
	if dump.RemovedBy.IsZero() {
		return Tombstone{}, dErrors.New(dErrors.CodeValidation, "removed_by is required")
	}
	return Tombstone{
		RemovalReason:  dump.RemovalReason,
		Note:           dump.Note,
		RemovedBy:      dump.RemovedBy,
		RemovalDate:    removalDate,
		CitationText:   dump.CitationText,
		IsVisible:      dump.IsVisible,
		DeletionPolicy: dump.DeletionPolicy,
	}, nil
}
