package policy

import (
	"time"

	id "curator/pkg/domain"
)

// GracePeriodPolicy permits the record owner to act on their own record
// while it is still inside the grace window after creation.
type GracePeriodPolicy struct {
	Period time.Duration
}

func (p GracePeriodPolicy) ID() string { return "grace-period" }

func (p GracePeriodPolicy) IsAllowed(actor id.UserID, target Target) bool {
	return !actor.IsNil() && actor == target.OwnerID
}

func (p GracePeriodPolicy) Evaluate(_ id.UserID, target Target, now time.Time) bool {
	return now.Before(target.CreatedAt.Add(p.Period))
}

// RequestDeletionPolicy is the universal fallback: the owner may always
// file a deletion request for review.
type RequestDeletionPolicy struct{}

func (p RequestDeletionPolicy) ID() string { return "request-deletion" }

func (p RequestDeletionPolicy) IsAllowed(actor id.UserID, target Target) bool {
	return !actor.IsNil() && actor == target.OwnerID
}

func (p RequestDeletionPolicy) Evaluate(id.UserID, Target, time.Time) bool {
	return true
}

// GraceFileModificationPolicy governs replacing files after publish: the
// owner may do so immediately inside the grace window.
type GraceFileModificationPolicy struct {
	Period time.Duration
}

func (p GraceFileModificationPolicy) ID() string { return "grace-period-modification" }

func (p GraceFileModificationPolicy) IsAllowed(actor id.UserID, target Target) bool {
	return !actor.IsNil() && actor == target.OwnerID
}

func (p GraceFileModificationPolicy) Evaluate(_ id.UserID, target Target, now time.Time) bool {
	return now.Before(target.CreatedAt.Add(p.Period))
}

// RequestFileModificationPolicy lets the owner file a modification request
// once the grace window has passed.
type RequestFileModificationPolicy struct{}

func (p RequestFileModificationPolicy) ID() string { return "request-modification" }

func (p RequestFileModificationPolicy) IsAllowed(actor id.UserID, target Target) bool {
	return !actor.IsNil() && actor == target.OwnerID
}

func (p RequestFileModificationPolicy) Evaluate(id.UserID, Target, time.Time) bool {
	return true
}
