package handler

import (
	"strings"
	"time"

	"curator/internal/record/models"
	"curator/internal/record/service"
	id "curator/pkg/domain"
	dErrors "curator/pkg/domain-errors"
	platformstrings "curator/pkg/platform/strings"
)

// EmbargoRequest is the embargo portion of a publish payload.
type EmbargoRequest struct {
	Active bool   `json:"active"`
	Until  string `json:"until"`
	Reason string `json:"reason"`

	parsedUntil *time.Time
}

// PublishRequest is the HTTP request body for POST /records. An absent
// parent_id publishes the first version of a new logical item.
type PublishRequest struct {
	ParentID    string          `json:"parent_id"`
	Communities []string        `json:"communities"`
	Embargo     *EmbargoRequest `json:"embargo"`

	parsedParentID *id.ParentID
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *PublishRequest) Validate() error {
	r.ParentID = strings.TrimSpace(r.ParentID)
	r.Communities = platformstrings.DedupeAndTrim(r.Communities)
	if r.ParentID != "" {
		parentID, err := id.ParseParentID(r.ParentID)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "malformed parent_id")
		}
		r.parsedParentID = &parentID
	}

	if r.Embargo != nil && r.Embargo.Until != "" {
		until, err := time.Parse(time.RFC3339, r.Embargo.Until)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "embargo.until must be RFC 3339")
		}
		r.Embargo.parsedUntil = &until
	}
	if r.Embargo != nil && r.Embargo.Active && r.Embargo.parsedUntil == nil {
		return dErrors.New(dErrors.CodeValidation, "embargo.until is required for an active embargo")
	}
	return nil
}

// ToInput converts the validated request to the service input.
func (r *PublishRequest) ToInput() service.PublishInput {
	in := service.PublishInput{
		ParentID:    r.parsedParentID,
		Communities: r.Communities,
	}
	if r.Embargo != nil {
		in.Access = models.Access{
			EmbargoActive: r.Embargo.Active,
			EmbargoUntil:  r.Embargo.parsedUntil,
			EmbargoReason: r.Embargo.Reason,
		}
	}
	return in
}

// TombstoneRequest carries the caller-supplied tombstone fields for delete
// and tombstone-update payloads.
type TombstoneRequest struct {
	RemovalReasonID string `json:"removal_reason_id"`
	Note            string `json:"note"`
	CitationText    string `json:"citation_text"`
	IsVisible       *bool  `json:"is_visible"`
	RemovalDate     string `json:"removal_date"`

	parsedRemovalDate *time.Time
}

// Validate validates and parses the request.
func (r *TombstoneRequest) Validate() error {
	if len(r.Note) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "note must be at most 2000 characters")
	}
	if r.RemovalDate != "" {
		removalDate, err := time.Parse(time.RFC3339, r.RemovalDate)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "removal_date must be RFC 3339")
		}
		r.parsedRemovalDate = &removalDate
	}
	return nil
}

// ToInput converts the validated request to the model input.
func (r *TombstoneRequest) ToInput() models.TombstoneInput {
	return models.TombstoneInput{
		RemovalReasonID: r.RemovalReasonID,
		Note:            r.Note,
		CitationText:    r.CitationText,
		IsVisible:       r.IsVisible,
		RemovalDate:     r.parsedRemovalDate,
	}
}

// DeleteRequest is the HTTP request body for DELETE /records/{recordID} and
// POST /records/{recordID}/deletion-request. The body is optional; an empty
// one produces a minimal tombstone.
type DeleteRequest struct {
	Tombstone TombstoneRequest `json:"tombstone"`
	RemovedBy string           `json:"removed_by"`
}

// Validate validates and parses the request.
func (r *DeleteRequest) Validate() error {
	return r.Tombstone.Validate()
}

// ToInput converts the validated request to the service input.
func (r *DeleteRequest) ToInput() service.DeleteInput {
	return service.DeleteInput{
		Tombstone:    r.Tombstone.ToInput(),
		RemovedByRef: strings.TrimSpace(r.RemovedBy),
	}
}
