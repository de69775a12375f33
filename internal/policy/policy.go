// Package policy decides whether an actor may delete or modify a published
// record immediately, or must file a review request instead.
//
// Policies are plain values arranged in explicitly ordered lists that are
// passed in at construction time. There is no global registry: the caller
// owns the configuration.
package policy

import (
	"time"

	id "curator/pkg/domain"
)

// Target is the slice of record state policies evaluate against. The
// service assembles it from the record and its parent so policies never
// reach into stores themselves.
type Target struct {
	RecordID  id.RecordID
	OwnerID   id.UserID
	CreatedAt time.Time
}

// Policy is one rule in an ordered list.
//
// IsAllowed answers "does this policy apply to this actor at all";
// Evaluate answers "does it currently permit the action". The split lets
// the evaluator distinguish "no policy applies" from "a policy applies but
// refuses".
type Policy interface {
	ID() string
	IsAllowed(actor id.UserID, target Target) bool
	Evaluate(actor id.UserID, target Target, now time.Time) bool
}

// Verdict is the outcome of scanning one policy list.
type Verdict struct {
	Enabled   bool   `json:"enabled"`
	ValidUser bool   `json:"valid_user"`
	Allowed   bool   `json:"allowed"`
	PolicyID  string `json:"policy,omitempty"`
}

// EvaluatePolicies scans policies in order. The first policy whose
// IsAllowed holds marks the actor valid; if that policy's Evaluate also
// holds the scan stops and the verdict names it. First match wins: later
// policies are never consulted once one both allows and evaluates.
func EvaluatePolicies(policies []Policy, actor id.UserID, target Target, now time.Time) Verdict {
	verdict := Verdict{Enabled: true}
	for _, p := range policies {
		if !p.IsAllowed(actor, target) {
			continue
		}
		verdict.ValidUser = true
		if p.Evaluate(actor, target, now) {
			verdict.Allowed = true
			verdict.PolicyID = p.ID()
			return verdict
		}
	}
	return verdict
}

// Decision is the combined deletion verdict: whether the actor may delete
// immediately and whether they may at least file a request.
type Decision struct {
	Immediate Verdict `json:"immediate_deletion"`
	Request   Verdict `json:"request_deletion"`
}

// Evaluator holds the two independently configured ordered policy lists.
type Evaluator struct {
	immediate []Policy
	request   []Policy
}

// NewEvaluator builds an evaluator from ordered policy lists. Order is
// significant: it is the scan order.
func NewEvaluator(immediate, request []Policy) *Evaluator {
	return &Evaluator{immediate: immediate, request: request}
}

// Evaluate returns both verdicts for an actor. Unauthenticated actors get
// disabled verdicts without consulting any policy.
func (e *Evaluator) Evaluate(actor id.UserID, target Target, now time.Time) Decision {
	if actor.IsNil() {
		return Decision{}
	}
	return Decision{
		Immediate: EvaluatePolicies(e.immediate, actor, target, now),
		Request:   EvaluatePolicies(e.request, actor, target, now),
	}
}
