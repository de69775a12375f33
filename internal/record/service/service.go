// Package service orchestrates the record lifecycle: publish, delete,
// restore, purge marking, embargo lifting, and deletion requests. Each
// operation validates permissions, mutates record state and the version
// chain inside one transaction, and enqueues identifier reconciliation jobs
// that run after commit.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"curator/internal/outbox"
	"curator/internal/policy"
	"curator/internal/record/metrics"
	"curator/internal/record/models"
	"curator/internal/record/store"
	"curator/internal/record/versions"
	id "curator/pkg/domain"
	dErrors "curator/pkg/domain-errors"
	"curator/pkg/platform/sentinel"
	"curator/pkg/platform/tx"
	"curator/pkg/requestcontext"
)

// PIDAllocator is the synchronous slice of the identifier manager: local
// allocation and reservation during publish. Registration stays
// asynchronous via the outbox. Satisfied by *pid.Manager.
type PIDAllocator interface {
	Create(ctx context.Context, draft *models.Record, scheme string) (models.PID, error)
	ReserveAll(ctx context.Context, draft *models.Record) error
}

// Indexer mirrors lifecycle changes into the search index. Indexing runs
// after commit and is best-effort; failures are logged, never surfaced.
type Indexer interface {
	Index(ctx context.Context, rec *models.Record) error
	Delete(ctx context.Context, rec *models.Record) error
}

// EntityResolver maps an identity reference from a tombstone payload to a
// concrete user.
type EntityResolver interface {
	Resolve(ctx context.Context, ref string) (id.UserID, error)
}

// VocabularyValidator checks that a vocabulary entry (e.g. a removal
// reason) exists.
type VocabularyValidator interface {
	Validate(ctx context.Context, vocabulary, entry string) (bool, error)
}

// ReviewRequester files deletion requests with the external review system.
type ReviewRequester interface {
	HasOpenRequest(ctx context.Context, recordID id.RecordID) (bool, error)
	RequestDeletion(ctx context.Context, recordID id.RecordID, actor id.UserID, reason string) error
}

// Purger destructively removes a marked record. The lifecycle core only
// gates the transition; removal itself is a collaborator responsibility.
type Purger interface {
	Purge(ctx context.Context, rec *models.Record) error
}

// Config carries the lifecycle-level settings.
type Config struct {
	// RequireCommunity refuses publication of records whose parent belongs
	// to no community.
	RequireCommunity bool

	// RequiredSchemes are the identifier schemes every published record and
	// its parent must carry.
	RequiredSchemes []string

	// RemovalReasonVocabulary names the vocabulary removal reasons are
	// validated against.
	RemovalReasonVocabulary string
}

// Service orchestrates record lifecycle operations.
type Service struct {
	records  store.RecordStore
	parents  store.ParentStore
	chain    *versions.Chain
	policies *policy.Evaluator
	pids     PIDAllocator
	jobs     outbox.Enqueuer
	runner   tx.Runner
	cfg      Config

	indexer  Indexer
	resolver EntityResolver
	vocab    VocabularyValidator
	reviews  ReviewRequester
	purger   Purger

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithIndexer(indexer Indexer) Option {
	return func(s *Service) {
		s.indexer = indexer
	}
}

func WithEntityResolver(resolver EntityResolver) Option {
	return func(s *Service) {
		s.resolver = resolver
	}
}

func WithVocabularyValidator(vocab VocabularyValidator) Option {
	return func(s *Service) {
		s.vocab = vocab
	}
}

func WithReviewRequester(reviews ReviewRequester) Option {
	return func(s *Service) {
		s.reviews = reviews
	}
}

func WithPurger(purger Purger) Option {
	return func(s *Service) {
		s.purger = purger
	}
}

// New constructs a Service.
func New(records store.RecordStore, parents store.ParentStore, chain *versions.Chain,
	policies *policy.Evaluator, pids PIDAllocator, jobs outbox.Enqueuer,
	runner tx.Runner, cfg Config, opts ...Option) *Service {

	s := &Service{
		records:  records,
		parents:  parents,
		chain:    chain,
		policies: policies,
		pids:     pids,
		jobs:     jobs,
		runner:   runner,
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   otel.Tracer("curator/record"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	rec, err := s.records.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	return rec, nil
}

// EvaluateDeletion returns the policy verdicts for the current actor
// without mutating anything. The transport exposes it so clients can render
// the right call to action.
func (s *Service) EvaluateDeletion(ctx context.Context, recordID id.RecordID) (policy.Decision, error) {
	rec, err := s.Get(ctx, recordID)
	if err != nil {
		return policy.Decision{}, err
	}
	parent, err := s.loadParent(ctx, rec.ParentID)
	if err != nil {
		return policy.Decision{}, err
	}
	actor := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)
	return s.policies.Evaluate(actor, policyTarget(rec, parent), now), nil
}

func (s *Service) loadParent(ctx context.Context, parentID id.ParentID) (*models.Parent, error) {
	parent, err := s.parents.Get(ctx, parentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "parent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load parent")
	}
	return parent, nil
}

func policyTarget(rec *models.Record, parent *models.Parent) policy.Target {
	return policy.Target{
		RecordID:  rec.ID,
		OwnerID:   parent.OwnerID,
		CreatedAt: rec.CreatedAt,
	}
}

// requireActor rejects anonymous callers before any mutation.
func requireActor(ctx context.Context) (id.UserID, error) {
	actor := requestcontext.UserID(ctx)
	if actor.IsNil() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

// enqueueRegistrations writes one reconciliation job per scheme, inside the
// caller's transaction so the jobs commit with the mutation.
func (s *Service) enqueueRegistrations(ctx context.Context, rec *models.Record, parent *models.Parent) error {
	now := requestcontext.Now(ctx)
	for scheme := range rec.PIDs {
		job, err := outbox.NewRegisterPIDJob(outbox.RegisterPIDArgs{
			RecordID: rec.ID.String(),
			Scheme:   scheme,
		}, now)
		if err != nil {
			return err
		}
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue registration job")
		}
	}
	return s.enqueueParentRegistrations(ctx, rec, parent)
}

// enqueueParentRegistrations writes reconciliation jobs for the parent-level
// identifiers only. Delete and restore use it directly: the version set
// changed but the record's own registration did not.
func (s *Service) enqueueParentRegistrations(ctx context.Context, rec *models.Record, parent *models.Parent) error {
	now := requestcontext.Now(ctx)
	for scheme := range parent.PIDs {
		job, err := outbox.NewRegisterPIDJob(outbox.RegisterPIDArgs{
			RecordID: rec.ID.String(),
			Scheme:   scheme,
			IsParent: true,
		}, now)
		if err != nil {
			return err
		}
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue parent registration job")
		}
	}
	return nil
}

// reindex mirrors the record into the search index after commit.
// Best-effort: the record state is already durable.
func (s *Service) reindex(ctx context.Context, rec *models.Record) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Index(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "index record", "record_id", rec.ID.String(), "error", err)
	}
}

func (s *Service) deindex(ctx context.Context, rec *models.Record) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Delete(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "deindex record", "record_id", rec.ID.String(), "error", err)
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

// txContext pins the per-parent shard key for the in-memory runner; the SQL
// runner serializes on the parent_versions row instead and ignores the key.
func txContext(ctx context.Context, parentID id.ParentID) context.Context {
	return tx.WithShardKey(ctx, parentID.String())
}
