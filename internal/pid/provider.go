// Package pid manages the lifecycle of externally registered persistent
// identifiers: allocation, reservation, registration, update, and discard
// against a per-scheme Provider.
package pid

import (
	"context"
	"fmt"

	"curator/internal/record/models"
)

// RegistrationRequest carries everything a provider needs to register or
// update an identifier with the external authority.
type RegistrationRequest struct {
	PID     models.PID
	Scheme  string
	URL     string
	Payload Payload
}

//go:generate mockgen -source=provider.go -destination=mocks/provider.go -package=mocks Provider

// Provider is the per-scheme integration with an external registration
// authority (e.g. DataCite for DOIs).
type Provider interface {
	// Name identifies the provider instance (stored on each PID).
	Name() string

	// Create allocates a new identifier for the record, in NEW state.
	Create(ctx context.Context, rec *models.Record) (models.PID, error)

	// Reserve transitions an allocated identifier to reserved.
	Reserve(ctx context.Context, p models.PID) error

	// Register makes the identifier publicly resolvable.
	Register(ctx context.Context, req RegistrationRequest) error

	// Update replaces the registered metadata and landing URL.
	Update(ctx context.Context, req RegistrationRequest) error

	// Read fetches the provider's view of an identifier.
	Read(ctx context.Context, scheme, identifier string) (models.PID, error)

	// Discard hard-deletes an identifier that was never registered.
	Discard(ctx context.Context, scheme, identifier string) error

	// Hide soft-deletes a registered identifier, leaving it allocated but
	// inactive.
	Hide(ctx context.Context, identifier string) error
}

// Registry maps schemes to their configured provider. It is populated once
// at wiring time and read-only afterwards.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register binds a scheme to a provider. Binding a scheme twice is a wiring
// bug and fails loudly.
func (r *Registry) Register(scheme string, p Provider) error {
	if _, exists := r.providers[scheme]; exists {
		return fmt.Errorf("scheme %q already has a provider", scheme)
	}
	r.providers[scheme] = p
	return nil
}

// Get returns the provider for a scheme.
func (r *Registry) Get(scheme string) (Provider, bool) {
	p, ok := r.providers[scheme]
	return p, ok
}

// Schemes lists all bound schemes.
func (r *Registry) Schemes() []string {
	out := make([]string, 0, len(r.providers))
	for scheme := range r.providers {
		out = append(out, scheme)
	}
	return out
}
