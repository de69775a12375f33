package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// RecordID identifies one immutable published version of a logical item.
type RecordID uuid.UUID

// ParentID identifies the shared identity across all versions of a logical item.
type ParentID uuid.UUID

// NewRecordID returns a freshly generated record identifier.
func NewRecordID() RecordID {
	return RecordID(uuid.New())
}

// ParseRecordID validates and returns a RecordID.
func ParseRecordID(s string) (RecordID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RecordID{}, fmt.Errorf("invalid record id %q: %w", s, err)
	}
	return RecordID(u), nil
}

func (r RecordID) String() string {
	return uuid.UUID(r).String()
}

// IsNil reports whether the identifier is the zero value.
func (r RecordID) IsNil() bool {
	return uuid.UUID(r) == uuid.Nil
}

// NewParentID returns a freshly generated parent identifier.
func NewParentID() ParentID {
	return ParentID(uuid.New())
}

// ParseParentID validates and returns a ParentID.
func ParseParentID(s string) (ParentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ParentID{}, fmt.Errorf("invalid parent id %q: %w", s, err)
	}
	return ParentID(u), nil
}

func (p ParentID) String() string {
	return uuid.UUID(p).String()
}

// IsNil reports whether the identifier is the zero value.
func (p ParentID) IsNil() bool {
	return uuid.UUID(p) == uuid.Nil
}

// UserID identifies an actor. Unlike record identifiers it is an opaque
// string because upstream identity providers use heterogeneous formats.
type UserID string

func (u UserID) String() string {
	return string(u)
}

// IsNil reports whether no user is set.
func (u UserID) IsNil() bool {
	return u == ""
}
