package pid

import (
	"sort"

	"curator/internal/record/models"
)

// Relation link types used in registration payloads.
const (
	RelationHasVersion  = "HasVersion"
	RelationIsVersionOf = "IsVersionOf"
)

// Relation links one identifier to another in the registered metadata.
type Relation struct {
	Type       string `json:"relationType"`
	Scheme     string `json:"relatedIdentifierType"`
	Identifier string `json:"relatedIdentifier"`
}

// Payload is the metadata document sent to the registration authority. The
// full record document is out of scope here; the lifecycle core registers
// the identifier, its landing URL, and the version relations.
type Payload struct {
	Identifier string     `json:"identifier"`
	URL        string     `json:"url"`
	Relations  []Relation `json:"relatedIdentifiers,omitempty"`
}

// buildRecordPayload links one version back to its parent identifier.
func buildRecordPayload(p models.PID, url string, parent *models.Parent) Payload {
	payload := Payload{Identifier: p.Identifier, URL: url}
	if parentPID, ok := parent.PIDValue(p.Scheme); ok {
		payload.Relations = append(payload.Relations, Relation{
			Type:       RelationIsVersionOf,
			Scheme:     p.Scheme,
			Identifier: parentPID.Identifier,
		})
	}
	return payload
}

// buildParentPayload aggregates the current set of non-deleted versions into
// HasVersion relations, newest first. It is recomputed wholesale from state
// on every call, never patched incrementally, which is what makes repeated
// registration idempotent.
func buildParentPayload(p models.PID, url string, siblings []*models.Record) Payload {
	active := make([]*models.Record, 0, len(siblings))
	for _, sibling := range siblings {
		if sibling.IsDeleted() {
			continue
		}
		if _, ok := sibling.PIDValue(p.Scheme); !ok {
			continue
		}
		active = append(active, sibling)
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].VersionIndex > active[j].VersionIndex
	})

	payload := Payload{Identifier: p.Identifier, URL: url}
	for _, version := range active {
		versionPID, _ := version.PIDValue(p.Scheme)
		payload.Relations = append(payload.Relations, Relation{
			Type:       RelationHasVersion,
			Scheme:     p.Scheme,
			Identifier: versionPID.Identifier,
		})
	}
	return payload
}
