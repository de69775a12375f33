package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "curator/pkg/domain"
)

const (
	owner    = id.UserID("owner")
	stranger = id.UserID("stranger")
)

func target(createdAt time.Time) Target {
	return Target{RecordID: id.NewRecordID(), OwnerID: owner, CreatedAt: createdAt}
}

// stubPolicy records whether it was consulted, to assert scan order.
type stubPolicy struct {
	id        string
	allowed   bool
	evaluates bool
	consulted *bool
}

func (s stubPolicy) ID() string { return s.id }

func (s stubPolicy) IsAllowed(id.UserID, Target) bool {
	if s.consulted != nil {
		*s.consulted = true
	}
	return s.allowed
}

func (s stubPolicy) Evaluate(id.UserID, Target, time.Time) bool { return s.evaluates }

func TestEvaluatePolicies_FirstMatchWins(t *testing.T) {
	laterConsulted := false
	policies := []Policy{
		stubPolicy{id: "first", allowed: true, evaluates: true},
		stubPolicy{id: "second", allowed: true, evaluates: true, consulted: &laterConsulted},
	}

	verdict := EvaluatePolicies(policies, owner, target(time.Now()), time.Now())

	assert.True(t, verdict.Enabled)
	assert.True(t, verdict.ValidUser)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, "first", verdict.PolicyID)
	assert.False(t, laterConsulted, "scan must stop at the first full match")
}

func TestEvaluatePolicies_ContinuesPastRefusal(t *testing.T) {
	policies := []Policy{
		stubPolicy{id: "applies-but-refuses", allowed: true, evaluates: false},
		stubPolicy{id: "fallback", allowed: true, evaluates: true},
	}

	verdict := EvaluatePolicies(policies, owner, target(time.Now()), time.Now())

	assert.True(t, verdict.Allowed)
	assert.Equal(t, "fallback", verdict.PolicyID)
}

func TestEvaluatePolicies_NoFullMatch(t *testing.T) {
	policies := []Policy{
		stubPolicy{id: "applies-but-refuses", allowed: true, evaluates: false},
		stubPolicy{id: "does-not-apply", allowed: false, evaluates: true},
	}

	verdict := EvaluatePolicies(policies, owner, target(time.Now()), time.Now())

	assert.True(t, verdict.Enabled)
	assert.True(t, verdict.ValidUser, "a policy applied even though none permitted")
	assert.False(t, verdict.Allowed)
	assert.Empty(t, verdict.PolicyID)
}

func TestGracePeriodPolicy(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := GracePeriodPolicy{Period: 30 * 24 * time.Hour}
	tgt := target(createdAt)

	assert.True(t, p.IsAllowed(owner, tgt))
	assert.False(t, p.IsAllowed(stranger, tgt))
	assert.False(t, p.IsAllowed("", tgt))

	inside := createdAt.Add(10 * 24 * time.Hour)
	outside := createdAt.Add(31 * 24 * time.Hour)
	assert.True(t, p.Evaluate(owner, tgt, inside))
	assert.False(t, p.Evaluate(owner, tgt, outside))
}

func TestEvaluator_GraceThenFallback(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEvaluator(
		[]Policy{GracePeriodPolicy{Period: 30 * 24 * time.Hour}},
		[]Policy{RequestDeletionPolicy{}},
	)
	tgt := target(createdAt)

	// Inside the grace window the owner may delete immediately.
	d := e.Evaluate(owner, tgt, createdAt.Add(10*24*time.Hour))
	assert.True(t, d.Immediate.Allowed)
	assert.Equal(t, "grace-period", d.Immediate.PolicyID)
	assert.True(t, d.Request.Allowed)

	// Past the window only the request path remains.
	d = e.Evaluate(owner, tgt, createdAt.Add(31*24*time.Hour))
	assert.False(t, d.Immediate.Allowed)
	assert.True(t, d.Immediate.ValidUser)
	assert.True(t, d.Request.Allowed)
	assert.Equal(t, "request-deletion", d.Request.PolicyID)
}

func TestEvaluator_UnauthenticatedActor(t *testing.T) {
	e := NewEvaluator(
		[]Policy{GracePeriodPolicy{Period: time.Hour}},
		[]Policy{RequestDeletionPolicy{}},
	)

	d := e.Evaluate("", target(time.Now()), time.Now())

	assert.False(t, d.Immediate.Enabled)
	assert.False(t, d.Request.Enabled)
	assert.False(t, d.Immediate.Allowed)
	assert.False(t, d.Request.Allowed)
}

func TestFileModificationPolicies(t *testing.T) {
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tgt := target(createdAt)

	grace := GraceFileModificationPolicy{Period: 7 * 24 * time.Hour}
	assert.True(t, grace.Evaluate(owner, tgt, createdAt.Add(24*time.Hour)))
	assert.False(t, grace.Evaluate(owner, tgt, createdAt.Add(8*24*time.Hour)))

	fallback := RequestFileModificationPolicy{}
	assert.True(t, fallback.IsAllowed(owner, tgt))
	assert.False(t, fallback.IsAllowed(stranger, tgt))
	assert.True(t, fallback.Evaluate(owner, tgt, time.Now()))
}
