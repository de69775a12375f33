package models

import (
	dErrors "curator/pkg/domain-errors"
)

// PIDStatus tracks where an identifier sits in its registration lifecycle.
// Transitions only move forward (new -> reserved -> registered); the only
// exit is a discard while the identifier is not yet registered.
type PIDStatus string

const (
	PIDStatusNew        PIDStatus = "N"
	PIDStatusReserved   PIDStatus = "R"
	PIDStatusRegistered PIDStatus = "K"
)

// ParsePIDStatus validates a wire value.
func ParsePIDStatus(s string) (PIDStatus, error) {
	switch PIDStatus(s) {
	case PIDStatusNew, PIDStatusReserved, PIDStatusRegistered:
		return PIDStatus(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "invalid pid status %q", s)
}

// PID is an externally registered persistent identifier with its local
// lifecycle status.
type PID struct {
	Scheme     string    `json:"scheme"`
	Identifier string    `json:"identifier"`
	Provider   string    `json:"provider"`
	Status     PIDStatus `json:"status"`
}

// IsRegistered reports whether the identifier is live with the registration
// authority.
func (p PID) IsRegistered() bool {
	return p.Status == PIDStatusRegistered
}

// Reserve moves a new identifier to reserved. Forward-only: any other
// starting state is rejected.
func (p *PID) Reserve() error {
	if p.Status != PIDStatusNew {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"pid %s/%s cannot be reserved from status %q", p.Scheme, p.Identifier, p.Status)
	}
	p.Status = PIDStatusReserved
	return nil
}

// Register moves a new or reserved identifier to registered.
func (p *PID) Register() error {
	if p.Status == PIDStatusRegistered {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"pid %s/%s is already registered", p.Scheme, p.Identifier)
	}
	p.Status = PIDStatusRegistered
	return nil
}

// Discardable reports whether the identifier may still be hard-deleted with
// the provider. Registered identifiers can only be hidden.
func (p PID) Discardable() bool {
	return p.Status != PIDStatusRegistered
}
