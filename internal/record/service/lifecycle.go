package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"curator/internal/record/models"
	id "curator/pkg/domain"
	dErrors "curator/pkg/domain-errors"
	"curator/pkg/platform/sentinel"
	"curator/pkg/requestcontext"
)

// PublishInput carries everything needed to publish a version. A nil
// ParentID publishes the first version of a new logical item.
type PublishInput struct {
	ParentID    *id.ParentID
	Communities []string
	Access      models.Access
}

// DeleteInput carries the caller-supplied tombstone fields. RemovedByRef
// optionally names an identity reference to resolve as the removing agent;
// it defaults to the authenticated actor.
type DeleteInput struct {
	Tombstone    models.TombstoneInput
	RemovedByRef string
}

// Publish commits a new version as PUBLISHED: identifiers allocated and
// reserved, version chain advanced, registration jobs enqueued. All inside
// one transaction.
func (s *Service) Publish(ctx context.Context, in PublishInput) (*models.Record, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "record.publish")
	defer span.End()
	start := time.Now()
	now := requestcontext.Now(ctx)

	parentID := id.NewParentID()
	if in.ParentID != nil {
		parentID = *in.ParentID
	}
	rec := &models.Record{
		ID:        id.NewRecordID(),
		ParentID:  parentID,
		Status:    models.StatusPublished,
		Access:    in.Access,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.runner.RunInTx(txContext(ctx, parentID), func(ctx context.Context) error {
		var parent *models.Parent
		if in.ParentID == nil {
			parent = &models.Parent{
				ID:          parentID,
				OwnerID:     actor,
				Communities: in.Communities,
				CreatedAt:   now,
			}
		} else {
			loaded, err := s.loadParent(ctx, parentID)
			if err != nil {
				return err
			}
			if loaded.OwnerID != actor {
				return dErrors.New(dErrors.CodeForbidden, "only the owner may publish a new version")
			}
			parent = loaded
		}
		if s.cfg.RequireCommunity && len(parent.Communities) == 0 {
			return dErrors.New(dErrors.CodeValidation, "record must belong to at least one community")
		}

		for _, scheme := range s.cfg.RequiredSchemes {
			if _, ok := rec.PIDValue(scheme); !ok {
				p, err := s.pids.Create(ctx, rec, scheme)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to allocate identifier")
				}
				rec.SetPID(p)
			}
			if _, ok := parent.PIDValue(scheme); !ok {
				p, err := s.pids.Create(ctx, rec, scheme)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to allocate parent identifier")
				}
				parent.SetPID(p)
			}
		}
		if err := s.pids.ReserveAll(ctx, rec); err != nil {
			return err
		}

		if err := s.chain.OnPublish(ctx, parent.ID, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance version chain")
		}
		if err := s.records.Create(ctx, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create record")
		}
		if in.ParentID == nil {
			if err := s.parents.Create(ctx, parent); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create parent")
			}
		} else {
			if err := s.parents.Update(ctx, parent); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update parent")
			}
		}
		return s.enqueueRegistrations(ctx, rec, parent)
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "record_published",
		"record_id", rec.ID.String(), "parent_id", rec.ParentID.String(),
		"version", rec.VersionIndex, "user_id", actor.String())
	if s.metrics != nil {
		s.metrics.RecordsPublished.Inc()
		s.metrics.ObserveOperation("publish", start)
	}
	s.reindex(ctx, rec)
	return rec, nil
}

// Delete soft-deletes a published record: tombstone attached, version chain
// repointed, parent identifiers queued for reconciliation. The deletion
// policy must permit the actor.
func (s *Service) Delete(ctx context.Context, recordID id.RecordID, in DeleteInput) (*models.Record, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "record.delete")
	defer span.End()
	start := time.Now()
	now := requestcontext.Now(ctx)

	current, err := s.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	parent, err := s.loadParent(ctx, current.ParentID)
	if err != nil {
		return nil, err
	}

	decision := s.policies.Evaluate(actor, policyTarget(current, parent), now)
	if !decision.Immediate.Allowed {
		return nil, dErrors.New(dErrors.CodeForbidden, "deletion not permitted for this actor")
	}
	if in.Tombstone.DeletionPolicyID == "" {
		in.Tombstone.DeletionPolicyID = decision.Immediate.PolicyID
	}

	tombstone, err := s.buildTombstone(ctx, current, in, actor, now)
	if err != nil {
		return nil, err
	}

	var deleted *models.Record
	err = s.runner.RunInTx(txContext(ctx, current.ParentID), func(ctx context.Context) error {
		rec, err := s.records.Execute(ctx, recordID,
			func(rec *models.Record) error { return rec.CanDelete() },
			func(rec *models.Record) { rec.ApplyDeletion(tombstone, now) })
		if err != nil {
			return translateExecute(err)
		}
		if err := s.chain.OnDelete(ctx, rec.ParentID, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to repoint version chain")
		}
		deleted = rec
		return s.enqueueParentRegistrations(ctx, rec, parent)
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "record_deleted",
		"record_id", deleted.ID.String(), "parent_id", deleted.ParentID.String(),
		"user_id", actor.String(), "policy", in.Tombstone.DeletionPolicyID)
	if s.metrics != nil {
		s.metrics.RecordsDeleted.Inc()
		s.metrics.ObserveOperation("delete", start)
	}
	s.deindex(ctx, deleted)
	return deleted, nil
}

// UpdateTombstone replaces the tombstone fields of a deleted or marked
// record. The removing agent is preserved; only the descriptive fields
// change.
func (s *Service) UpdateTombstone(ctx context.Context, recordID id.RecordID, in models.TombstoneInput) (*models.Record, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "record.update_tombstone")
	defer span.End()
	now := requestcontext.Now(ctx)

	current, err := s.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if current.Tombstone == nil {
		return nil, models.NewDeletionStatusError(models.StatusDeleted, current)
	}
	if err := s.validateRemovalReason(ctx, in.RemovalReasonID); err != nil {
		return nil, err
	}
	tombstone, err := models.NewTombstone(in, current.Tombstone.RemovedBy, now)
	if err != nil {
		return nil, err
	}
	if tombstone.CitationText == "" {
		tombstone.CitationText = citationText(current)
	}

	var updated *models.Record
	err = s.runner.RunInTx(txContext(ctx, current.ParentID), func(ctx context.Context) error {
		rec, err := s.records.Execute(ctx, recordID,
			func(rec *models.Record) error { return rec.CanUpdateTombstone() },
			func(rec *models.Record) { rec.ApplyTombstone(tombstone, now) })
		if err != nil {
			return translateExecute(err)
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "tombstone_updated", "record_id", updated.ID.String())
	return updated, nil
}

// Restore republishes a deleted record: tombstone cleared, version chain
// repointed, identifiers queued for reconciliation. A marked record must be
// unmarked first.
func (s *Service) Restore(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "record.restore")
	defer span.End()
	start := time.Now()
	now := requestcontext.Now(ctx)

	current, err := s.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	parent, err := s.requireOwner(ctx, current, actor)
	if err != nil {
		return nil, err
	}

	var restored *models.Record
	err = s.runner.RunInTx(txContext(ctx, current.ParentID), func(ctx context.Context) error {
		rec, err := s.records.Execute(ctx, recordID,
			func(rec *models.Record) error { return rec.CanRestore() },
			func(rec *models.Record) { rec.ApplyRestore(now) })
		if err != nil {
			return translateExecute(err)
		}
		if err := s.chain.OnRestore(ctx, rec.ParentID, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to repoint version chain")
		}
		restored = rec
		return s.enqueueRegistrations(ctx, rec, parent)
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "record_restored",
		"record_id", restored.ID.String(), "user_id", actor.String())
	if s.metrics != nil {
		s.metrics.RecordsRestored.Inc()
		s.metrics.ObserveOperation("restore", start)
	}
	s.reindex(ctx, restored)
	return restored, nil
}

// MarkForPurge flags a deleted record for destructive removal. The
// tombstone stays.
func (s *Service) MarkForPurge(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	rec, err := s.transition(ctx, recordID, "record_marked_for_purge",
		func(rec *models.Record) error { return rec.CanMark() },
		(*models.Record).ApplyMark)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordsMarked.Inc()
	}
	return rec, nil
}

// UnmarkForPurge returns a marked record to plain deleted.
func (s *Service) UnmarkForPurge(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	rec, err := s.transition(ctx, recordID, "record_unmarked_for_purge",
		func(rec *models.Record) error { return rec.CanUnmark() },
		(*models.Record).ApplyUnmark)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordsUnmarked.Inc()
	}
	return rec, nil
}

// transition runs one guarded status change under the transaction boundary.
// Mark and unmark share this shape: no chain repointing, no jobs.
func (s *Service) transition(ctx context.Context, recordID id.RecordID, event string,
	validate func(rec *models.Record) error,
	apply func(rec *models.Record, now time.Time)) (*models.Record, error) {

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	current, err := s.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireOwner(ctx, current, actor); err != nil {
		return nil, err
	}

	var out *models.Record
	err = s.runner.RunInTx(txContext(ctx, current.ParentID), func(ctx context.Context) error {
		rec, err := s.records.Execute(ctx, recordID, validate,
			func(rec *models.Record) { apply(rec, now) })
		if err != nil {
			return translateExecute(err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, event, "record_id", out.ID.String(), "user_id", actor.String())
	return out, nil
}

// Purge hands a marked record to the purge collaborator. The lifecycle core
// gates the transition; destructive removal happens elsewhere.
func (s *Service) Purge(ctx context.Context, recordID id.RecordID) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "record.purge")
	defer span.End()

	rec, err := s.Get(ctx, recordID)
	if err != nil {
		return err
	}
	if _, err := s.requireOwner(ctx, rec, actor); err != nil {
		return err
	}
	if err := rec.CanPurge(); err != nil {
		return err
	}
	if s.purger == nil {
		return dErrors.New(dErrors.CodeUnavailable, "purge is not configured")
	}
	if err := s.purger.Purge(ctx, rec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge record")
	}

	s.logAudit(ctx, "record_purged", "record_id", rec.ID.String(), "user_id", actor.String())
	if s.metrics != nil {
		s.metrics.RecordsPurged.Inc()
	}
	s.deindex(ctx, rec)
	return nil
}

// LiftEmbargo opens access on a record whose embargo has expired and
// allocates identifiers if the record never had any. Runs without an actor:
// the scheduled worker invokes it.
func (s *Service) LiftEmbargo(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	ctx, span := s.tracer.Start(ctx, "record.lift_embargo")
	defer span.End()
	now := requestcontext.Now(ctx)

	current, err := s.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	parent, err := s.loadParent(ctx, current.ParentID)
	if err != nil {
		return nil, err
	}

	var lifted *models.Record
	err = s.runner.RunInTx(txContext(ctx, current.ParentID), func(ctx context.Context) error {
		rec, err := s.records.Execute(ctx, recordID,
			func(rec *models.Record) error {
				if !rec.Access.EmbargoExpired(now) {
					return dErrors.New(dErrors.CodeValidation, "embargo is absent or still active")
				}
				return nil
			},
			func(rec *models.Record) {
				rec.Access.EmbargoActive = false
				rec.UpdatedAt = now
			})
		if err != nil {
			return translateExecute(err)
		}

		if len(rec.PIDs) == 0 {
			for _, scheme := range s.cfg.RequiredSchemes {
				p, err := s.pids.Create(ctx, rec, scheme)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to allocate identifier")
				}
				rec.SetPID(p)
			}
			if err := s.pids.ReserveAll(ctx, rec); err != nil {
				return err
			}
			if err := s.records.Update(ctx, rec); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist identifiers")
			}
		}
		lifted = rec
		return s.enqueueRegistrations(ctx, rec, parent)
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "embargo_lifted", "record_id", lifted.ID.String())
	if s.metrics != nil {
		s.metrics.EmbargoesLifted.Inc()
	}
	s.reindex(ctx, lifted)
	return lifted, nil
}

// RequestOutcome reports how a deletion request resolved: either the record
// was deleted immediately or a review request was filed.
type RequestOutcome struct {
	Record    *models.Record
	Requested bool
}

// RequestDeletion consults the deletion policies: immediate deletion when
// permitted, otherwise a review request, otherwise refusal.
func (s *Service) RequestDeletion(ctx context.Context, recordID id.RecordID, in DeleteInput) (RequestOutcome, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return RequestOutcome{}, err
	}
	ctx, span := s.tracer.Start(ctx, "record.request_deletion")
	defer span.End()
	now := requestcontext.Now(ctx)

	current, err := s.Get(ctx, recordID)
	if err != nil {
		return RequestOutcome{}, err
	}
	if current.Status != models.StatusPublished {
		return RequestOutcome{}, models.NewDeletionStatusError(models.StatusPublished, current)
	}
	parent, err := s.loadParent(ctx, current.ParentID)
	if err != nil {
		return RequestOutcome{}, err
	}

	if s.reviews != nil {
		open, err := s.reviews.HasOpenRequest(ctx, recordID)
		if err != nil {
			return RequestOutcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check open requests")
		}
		if open {
			return RequestOutcome{}, dErrors.New(dErrors.CodeConflict, "a deletion request is already open for this record")
		}
	}

	decision := s.policies.Evaluate(actor, policyTarget(current, parent), now)
	switch {
	case decision.Immediate.Allowed:
		deleted, err := s.Delete(ctx, recordID, in)
		if err != nil {
			return RequestOutcome{}, err
		}
		return RequestOutcome{Record: deleted}, nil

	case decision.Request.Allowed:
		if s.reviews == nil {
			return RequestOutcome{}, dErrors.New(dErrors.CodeUnavailable, "deletion review is not configured")
		}
		if err := s.reviews.RequestDeletion(ctx, recordID, actor, in.Tombstone.Note); err != nil {
			return RequestOutcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to file deletion request")
		}
		s.logAudit(ctx, "deletion_requested",
			"record_id", recordID.String(), "user_id", actor.String())
		if s.metrics != nil {
			s.metrics.DeletionRequests.Inc()
		}
		return RequestOutcome{Requested: true}, nil

	default:
		return RequestOutcome{}, dErrors.New(dErrors.CodeForbidden, "deletion not permitted for this actor")
	}
}

// buildTombstone normalizes the caller's tombstone input: vocabulary-checked
// removal reason, resolved removing agent, auto-generated citation.
func (s *Service) buildTombstone(ctx context.Context, rec *models.Record, in DeleteInput, actor id.UserID, now time.Time) (models.Tombstone, error) {
	if err := s.validateRemovalReason(ctx, in.Tombstone.RemovalReasonID); err != nil {
		return models.Tombstone{}, err
	}

	removedBy, err := s.resolveAgent(ctx, in.RemovedByRef, actor)
	if err != nil {
		return models.Tombstone{}, err
	}
	tombstone, err := models.NewTombstone(in.Tombstone, removedBy, now)
	if err != nil {
		return models.Tombstone{}, err
	}
	if tombstone.CitationText == "" {
		tombstone.CitationText = citationText(rec)
	}
	return tombstone, nil
}

func (s *Service) resolveAgent(ctx context.Context, ref string, actor id.UserID) (models.Agent, error) {
	if ref == "" || ref == actor.String() {
		return models.UserAgent(actor)
	}
	if ref == "system" {
		return models.SystemAgent(), nil
	}
	if s.resolver == nil {
		return models.Agent{}, dErrors.New(dErrors.CodeValidation, "removed_by reference cannot be resolved")
	}
	resolved, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		return models.Agent{}, dErrors.Wrap(err, dErrors.CodeValidation, "unresolvable removed_by reference")
	}
	return models.UserAgent(resolved)
}

func (s *Service) validateRemovalReason(ctx context.Context, reasonID string) error {
	if reasonID == "" || s.vocab == nil {
		return nil
	}
	ok, err := s.vocab.Validate(ctx, s.cfg.RemovalReasonVocabulary, reasonID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to validate removal reason")
	}
	if !ok {
		return dErrors.Newf(dErrors.CodeValidation, "unknown removal reason %q", reasonID)
	}
	return nil
}

// requireOwner loads the parent and checks the actor owns the chain.
func (s *Service) requireOwner(ctx context.Context, rec *models.Record, actor id.UserID) (*models.Parent, error) {
	parent, err := s.loadParent(ctx, rec.ParentID)
	if err != nil {
		return nil, err
	}
	if parent.OwnerID != actor {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the owner may manage this record")
	}
	return parent, nil
}

// citationText is the fallback citation when the caller supplies none.
func citationText(rec *models.Record) string {
	return fmt.Sprintf("Record %s, version %d", rec.ID.String(), rec.VersionIndex)
}

// translateExecute maps store facts to domain errors, passing typed
// transition errors through untouched.
func translateExecute(err error) error {
	var statusErr *models.DeletionStatusError
	if errors.As(err, &statusErr) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "record not found")
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "record transition failed")
}
