package models

import (
	"fmt"

	id "curator/pkg/domain"
	dErrors "curator/pkg/domain-errors"
)

// DeletionStatus encodes where a record sits in its removal lifecycle.
//
// Transitions:
//   - published -> deleted (delete)
//   - deleted -> published (restore)
//   - deleted -> marked (mark for purge)
//   - marked -> deleted (unmark)
//
// marked is reachable only from deleted, and published only from deleted.
type DeletionStatus string

const (
	StatusPublished DeletionStatus = "P"
	StatusDeleted   DeletionStatus = "D"
	StatusMarked    DeletionStatus = "X"
)

// ParseDeletionStatus validates a wire value. Unknown values fail with a
// validation error rather than silently defaulting.
func ParseDeletionStatus(s string) (DeletionStatus, error) {
	switch DeletionStatus(s) {
	case StatusPublished, StatusDeleted, StatusMarked:
		return DeletionStatus(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "invalid deletion status %q", s)
}

// IsDeleted reports whether the record is in any non-published state.
func (s DeletionStatus) IsDeleted() bool {
	return s != StatusPublished
}

func (s DeletionStatus) String() string {
	return string(s)
}

// CanTransitionTo enforces the edges listed on the type doc.
func (s DeletionStatus) CanTransitionTo(next DeletionStatus) bool {
	switch s {
	case StatusPublished:
		return next == StatusDeleted
	case StatusDeleted:
		return next == StatusPublished || next == StatusMarked
	case StatusMarked:
		return next == StatusDeleted
	}
	return false
}

// StatusDump is the external representation of a deletion status.
type StatusDump struct {
	IsDeleted bool   `json:"is_deleted"`
	Status    string `json:"status"`
}

// Dump produces the external representation.
func (s DeletionStatus) Dump() StatusDump {
	return StatusDump{IsDeleted: s.IsDeleted(), Status: string(s)}
}

// LoadDeletionStatus rebuilds a status from its external representation.
func LoadDeletionStatus(dump StatusDump) (DeletionStatus, error) {
	s, err := ParseDeletionStatus(dump.Status)
	if err != nil {
		return "", err
	}
	if dump.IsDeleted != s.IsDeleted() {
		return "", dErrors.Newf(dErrors.CodeValidation,
			"inconsistent status dump: is_deleted=%t status=%q", dump.IsDeleted, dump.Status)
	}
	return s, nil
}

// DeletionStatusError signals an operation invoked against a record that is
// not in the required lifecycle state. It carries the expected state and the
// offending record so callers can report both.
type DeletionStatusError struct {
	Expected DeletionStatus
	Actual   DeletionStatus
	RecordID id.RecordID
}

func (e *DeletionStatusError) Error() string {
	return fmt.Sprintf("record %s has status %q, expected %q",
		e.RecordID, e.Actual, e.Expected)
}

// NewDeletionStatusError builds the wrong-state error for a record.
func NewDeletionStatusError(expected DeletionStatus, rec *Record) *DeletionStatusError {
	return &DeletionStatusError{Expected: expected, Actual: rec.Status, RecordID: rec.ID}
}
