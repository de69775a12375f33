package pid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"curator/internal/record/models"
	"curator/internal/record/store"
	id "curator/pkg/domain"
	dErrors "curator/pkg/domain-errors"
)

// Config carries the scheme-level settings for the manager.
type Config struct {
	// RequiredSchemes must all be present on a draft before reservation.
	RequiredSchemes []string

	// LinkTemplates maps a scheme to its landing-page template, with "{id}"
	// substituted by the record or parent identifier.
	LinkTemplates map[string]string

	// FallbackTemplate is used for schemes without a specific template.
	FallbackTemplate string
}

// Manager drives identifier lifecycles against the per-scheme providers.
// RegisterOrUpdate is idempotent: it rebuilds its payload wholesale from
// current state, so the at-least-once job runner can call it repeatedly.
type Manager struct {
	registry *Registry
	records  store.RecordStore
	parents  store.ParentStore
	cfg      Config
	logger   *slog.Logger
}

// Option configures optional manager collaborators.
type Option func(m *Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(registry *Registry, records store.RecordStore, parents store.ParentStore, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,
		records:  records,
		parents:  parents,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create allocates a new identifier for the draft via the scheme's
// provider. The returned PID is in NEW state; the caller attaches it to the
// record.
func (m *Manager) Create(ctx context.Context, draft *models.Record, scheme string) (models.PID, error) {
	provider, ok := m.registry.Get(scheme)
	if !ok {
		return models.PID{}, fmt.Errorf("%w: %s", ErrNoProvider, scheme)
	}
	p, err := provider.Create(ctx, draft)
	if err != nil {
		return models.PID{}, fmt.Errorf("allocate %s identifier: %w", scheme, err)
	}
	return p, nil
}

// ReserveAll validates that every required scheme is present on the draft
// and reserves each NEW identifier with its provider.
func (m *Manager) ReserveAll(ctx context.Context, draft *models.Record) error {
	var missing []string
	for _, scheme := range m.cfg.RequiredSchemes {
		if _, ok := draft.PIDValue(scheme); !ok {
			missing = append(missing, scheme)
		}
	}
	if len(missing) > 0 {
		return dErrors.Newf(dErrors.CodeValidation,
			"missing required pid schemes: %s", strings.Join(missing, ", "))
	}

	for scheme, p := range draft.PIDs {
		if p.Status != models.PIDStatusNew {
			continue
		}
		provider, ok := m.registry.Get(scheme)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoProvider, scheme)
		}
		if err := provider.Reserve(ctx, p); err != nil {
			return fmt.Errorf("reserve %s identifier: %w", scheme, err)
		}
		if err := p.Reserve(); err != nil {
			return err
		}
		draft.SetPID(p)
	}
	return nil
}

// RegisterOrUpdate reconciles one identifier with the registration
// authority. For parents it aggregates the current non-deleted versions
// into the payload. Provider failures propagate without mutating local PID
// state beyond what the provider call itself confirmed.
func (m *Manager) RegisterOrUpdate(ctx context.Context, recordID id.RecordID, scheme string, parent bool) error {
	rec, err := m.records.Get(ctx, recordID)
	if err != nil {
		return fmt.Errorf("load record %s: %w", recordID, err)
	}
	provider, ok := m.registry.Get(scheme)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoProvider, scheme)
	}

	if parent {
		return m.reconcileParent(ctx, provider, rec, scheme)
	}
	return m.reconcileRecord(ctx, provider, rec, scheme)
}

func (m *Manager) reconcileRecord(ctx context.Context, provider Provider, rec *models.Record, scheme string) error {
	p, ok := rec.PIDValue(scheme)
	if !ok {
		return fmt.Errorf("%w: record %s scheme %s", ErrNoPID, rec.ID, scheme)
	}
	par, err := m.parents.Get(ctx, rec.ParentID)
	if err != nil {
		return fmt.Errorf("load parent %s: %w", rec.ParentID, err)
	}

	url := m.landingURL(scheme, rec.ID.String())
	req := RegistrationRequest{
		PID:     p,
		Scheme:  scheme,
		URL:     url,
		Payload: buildRecordPayload(p, url, par),
	}

	if p.IsRegistered() {
		return provider.Update(ctx, req)
	}
	if err := provider.Register(ctx, req); err != nil {
		return err
	}
	if err := p.Register(); err != nil {
		return err
	}
	rec.SetPID(p)
	if err := m.records.Update(ctx, rec); err != nil {
		return fmt.Errorf("persist registered pid: %w", err)
	}
	m.logger.InfoContext(ctx, "pid registered",
		"record_id", rec.ID.String(), "scheme", scheme, "identifier", p.Identifier)
	return nil
}

func (m *Manager) reconcileParent(ctx context.Context, provider Provider, rec *models.Record, scheme string) error {
	par, err := m.parents.Get(ctx, rec.ParentID)
	if err != nil {
		return fmt.Errorf("load parent %s: %w", rec.ParentID, err)
	}
	p, ok := par.PIDValue(scheme)
	if !ok {
		return fmt.Errorf("%w: parent %s scheme %s", ErrNoPID, par.ID, scheme)
	}

	// The payload derives from the current set of non-deleted versions at
	// this moment, recomputed wholesale.
	siblings, err := m.records.ListByParent(ctx, par.ID)
	if err != nil {
		return fmt.Errorf("list versions of %s: %w", par.ID, err)
	}

	url := m.landingURL(scheme, par.ID.String())
	req := RegistrationRequest{
		PID:     p,
		Scheme:  scheme,
		URL:     url,
		Payload: buildParentPayload(p, url, siblings),
	}

	if p.IsRegistered() {
		return provider.Update(ctx, req)
	}
	if err := provider.Register(ctx, req); err != nil {
		return err
	}
	if err := p.Register(); err != nil {
		return err
	}
	par.SetPID(p)
	if err := m.parents.Update(ctx, par); err != nil {
		return fmt.Errorf("persist registered parent pid: %w", err)
	}
	m.logger.InfoContext(ctx, "parent pid registered",
		"parent_id", par.ID.String(), "scheme", scheme, "identifier", p.Identifier)
	return nil
}

// Discard removes an identifier with its provider: hard delete while still
// unregistered, hide once registered.
func (m *Manager) Discard(ctx context.Context, p models.PID) error {
	provider, ok := m.registry.Get(p.Scheme)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoProvider, p.Scheme)
	}
	if p.Discardable() {
		return provider.Discard(ctx, p.Scheme, p.Identifier)
	}
	return provider.Hide(ctx, p.Identifier)
}

// DiscardAll is the bulk variant used when a parent has no remaining active
// versions. With softDelete set, registered identifiers are hidden and the
// rest hard-deleted; otherwise discard rules apply per identifier.
func (m *Manager) DiscardAll(ctx context.Context, pids map[string]models.PID, softDelete bool) error {
	for _, p := range pids {
		if softDelete && p.IsRegistered() {
			provider, ok := m.registry.Get(p.Scheme)
			if !ok {
				return fmt.Errorf("%w: %s", ErrNoProvider, p.Scheme)
			}
			if err := provider.Hide(ctx, p.Identifier); err != nil {
				return err
			}
			continue
		}
		if err := m.Discard(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// landingURL resolves the canonical landing page, preferring the
// scheme-specific template over the generic fallback.
func (m *Manager) landingURL(scheme, identifier string) string {
	template, ok := m.cfg.LinkTemplates[scheme]
	if !ok {
		template = m.cfg.FallbackTemplate
	}
	return strings.ReplaceAll(template, "{id}", identifier)
}
