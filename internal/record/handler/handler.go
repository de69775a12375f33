// Package handler wires the record lifecycle endpoints to the service.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"curator/internal/policy"
	"curator/internal/record/models"
	"curator/internal/record/service"
	id "curator/pkg/domain"
	dErrors "curator/pkg/domain-errors"
	"curator/pkg/platform/httputil"
	"curator/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/service.go -package=mocks Service

// Service defines the interface for record lifecycle operations.
type Service interface {
	Get(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	Publish(ctx context.Context, in service.PublishInput) (*models.Record, error)
	Delete(ctx context.Context, recordID id.RecordID, in service.DeleteInput) (*models.Record, error)
	UpdateTombstone(ctx context.Context, recordID id.RecordID, in models.TombstoneInput) (*models.Record, error)
	Restore(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	MarkForPurge(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	UnmarkForPurge(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	Purge(ctx context.Context, recordID id.RecordID) error
	LiftEmbargo(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	RequestDeletion(ctx context.Context, recordID id.RecordID, in service.DeleteInput) (service.RequestOutcome, error)
	EvaluateDeletion(ctx context.Context, recordID id.RecordID) (policy.Decision, error)
}

// Handler wires record lifecycle endpoints to the record service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a record handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts record endpoints on the router. Reads and policy
// evaluation take an optional token; everything that mutates requires one.
func (h *Handler) Register(r chi.Router, requireAuth, optionalAuth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(optionalAuth)
		r.Get("/records/{recordID}", h.HandleGet)
		r.Get("/records/{recordID}/deletion-policy", h.HandleEvaluateDeletion)
	})
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/records", h.HandlePublish)
		r.Delete("/records/{recordID}", h.HandleDelete)
		r.Post("/records/{recordID}/restore", h.HandleRestore)
		r.Put("/records/{recordID}/tombstone", h.HandleUpdateTombstone)
		r.Post("/records/{recordID}/mark", h.HandleMark)
		r.Post("/records/{recordID}/unmark", h.HandleUnmark)
		r.Post("/records/{recordID}/purge", h.HandlePurge)
		r.Post("/records/{recordID}/lift-embargo", h.HandleLiftEmbargo)
		r.Post("/records/{recordID}/deletion-request", h.HandleRequestDeletion)
	})
}

// HandleGet handles GET /records/{recordID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Get(ctx, recordID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec))
}

// HandleEvaluateDeletion handles GET /records/{recordID}/deletion-policy.
// It reports the policy verdicts for the calling actor without mutating
// anything.
func (h *Handler) HandleEvaluateDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	decision, err := h.service.EvaluateDeletion(ctx, recordID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decision)
}

// HandlePublish handles POST /records.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[PublishRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.service.Publish(ctx, req.ToInput())
	if err != nil {
		h.logger.ErrorContext(ctx, "publish failed",
			"request_id", requestID,
			"error", err,
		)
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromRecord(rec))
}

// HandleDelete handles DELETE /records/{recordID}. The tombstone body is
// optional.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeDelete(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Delete(ctx, recordID, req.ToInput())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec))
}

// HandleUpdateTombstone handles PUT /records/{recordID}/tombstone.
func (h *Handler) HandleUpdateTombstone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TombstoneRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	rec, err := h.service.UpdateTombstone(ctx, recordID, req.ToInput())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec))
}

// HandleRestore handles POST /records/{recordID}/restore.
func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Restore)
}

// HandleMark handles POST /records/{recordID}/mark.
func (h *Handler) HandleMark(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkForPurge)
}

// HandleUnmark handles POST /records/{recordID}/unmark.
func (h *Handler) HandleUnmark(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.UnmarkForPurge)
}

// HandleLiftEmbargo handles POST /records/{recordID}/lift-embargo.
func (h *Handler) HandleLiftEmbargo(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.LiftEmbargo)
}

// transition runs one body-less status change endpoint.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, recordID id.RecordID) (*models.Record, error)) {

	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	rec, err := op(ctx, recordID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec))
}

// HandlePurge handles POST /records/{recordID}/purge.
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	if err := h.service.Purge(ctx, recordID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRequestDeletion handles POST /records/{recordID}/deletion-request.
func (h *Handler) HandleRequestDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeDelete(w, r)
	if !ok {
		return
	}

	outcome, err := h.service.RequestDeletion(ctx, recordID, req.ToInput())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := RequestDeletionResponse{Requested: outcome.Requested}
	if outcome.Record != nil {
		resp.Record = FromRecord(outcome.Record)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// decodeDelete reads the optional tombstone body; an absent body yields an
// empty input.
func (h *Handler) decodeDelete(w http.ResponseWriter, r *http.Request) (*DeleteRequest, bool) {
	if r.Body == nil || r.ContentLength == 0 {
		return &DeleteRequest{}, true
	}
	return httputil.DecodeAndPrepare[DeleteRequest](w, r, h.logger, r.Context(), requestcontext.RequestID(r.Context()))
}

func (h *Handler) recordID(w http.ResponseWriter, r *http.Request) (id.RecordID, bool) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed record id"))
		return id.RecordID{}, false
	}
	return recordID, true
}

// writeError maps wrong-state transition errors onto conflicts before the
// generic translation.
func writeError(w http.ResponseWriter, err error) {
	var statusErr *models.DeletionStatusError
	if errors.As(err, &statusErr) {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeConflict, statusErr.Error()))
		return
	}
	httputil.WriteError(w, err)
}
