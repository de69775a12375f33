package handler

import (
	"time"

	"curator/internal/record/models"
)

// PIDResponse is one identifier entry in a record response.
type PIDResponse struct {
	Identifier string `json:"identifier"`
	Provider   string `json:"provider"`
	Status     string `json:"status"`
}

// EmbargoResponse is the embargo portion of a record response.
type EmbargoResponse struct {
	Active bool       `json:"active"`
	Until  *time.Time `json:"until,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// RecordResponse is the HTTP representation of a record version.
type RecordResponse struct {
	ID        string                  `json:"id"`
	ParentID  string                  `json:"parent_id"`
	Version   int                     `json:"version"`
	Deletion  models.StatusDump       `json:"deletion"`
	Tombstone *models.TombstoneDump   `json:"tombstone,omitempty"`
	PIDs      map[string]PIDResponse  `json:"pids"`
	Embargo   *EmbargoResponse        `json:"embargo,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// FromRecord converts a domain record to an HTTP response.
func FromRecord(rec *models.Record) *RecordResponse {
	resp := &RecordResponse{
		ID:        rec.ID.String(),
		ParentID:  rec.ParentID.String(),
		Version:   rec.VersionIndex,
		Deletion:  rec.Status.Dump(),
		PIDs:      make(map[string]PIDResponse, len(rec.PIDs)),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.Tombstone != nil {
		dump := rec.Tombstone.Dump()
		resp.Tombstone = &dump
	}
	for scheme, p := range rec.PIDs {
		resp.PIDs[scheme] = PIDResponse{
			Identifier: p.Identifier,
			Provider:   p.Provider,
			Status:     string(p.Status),
		}
	}
	if rec.Access.EmbargoActive || rec.Access.EmbargoUntil != nil {
		resp.Embargo = &EmbargoResponse{
			Active: rec.Access.EmbargoActive,
			Until:  rec.Access.EmbargoUntil,
			Reason: rec.Access.EmbargoReason,
		}
	}
	return resp
}

// RequestDeletionResponse reports how a deletion request resolved.
type RequestDeletionResponse struct {
	Requested bool            `json:"request_filed"`
	Record    *RecordResponse `json:"record,omitempty"`
}
