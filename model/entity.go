// Package model defines the data types shared by the graph store, the
// extraction providers, and the ingestion/search services: the polymorphic
// Entity node, its nested structured fields, and the directed Relation edge.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/briangormanly/momento/apperr"
)

// SystemLabel is a token from the closed vocabulary applied both as an
// Entity attribute and as a first-class graph label.
type SystemLabel string

const (
	SystemLabelEntry        SystemLabel = "ENTRY"
	SystemLabelEntity       SystemLabel = "ENTITY"
	SystemLabelPerson       SystemLabel = "PERSON"
	SystemLabelLocation     SystemLabel = "LOCATION"
	SystemLabelOrganization SystemLabel = "ORGANIZATION"
	SystemLabelObject       SystemLabel = "OBJECT"
	SystemLabelEvent        SystemLabel = "EVENT"
	SystemLabelConcept      SystemLabel = "CONCEPT"
	SystemLabelObservation  SystemLabel = "OBSERVATION"
)

// SystemLabels is the closed vocabulary; any label not in this set is
// rejected by the graph store's label-application step rather than ever
// being interpolated into a query.
var SystemLabels = []SystemLabel{
	SystemLabelEntry,
	SystemLabelEntity,
	SystemLabelPerson,
	SystemLabelLocation,
	SystemLabelOrganization,
	SystemLabelObject,
	SystemLabelEvent,
	SystemLabelConcept,
	SystemLabelObservation,
}

// IsSystemLabel reports whether s is a member of the closed vocabulary.
func IsSystemLabel(s string) bool {
	for _, l := range SystemLabels {
		if string(l) == s {
			return true
		}
	}
	return false
}

// Entity is the single polymorphic node type of the memory graph.
type Entity struct {
	ID           string                 `json:"id"`
	ExternalID   string                 `json:"external_id,omitempty"`
	Name         string                 `json:"name,omitempty"`
	Summary      string                 `json:"summary,omitempty"`
	Labels       []string               `json:"labels"`
	SystemLabels []SystemLabel          `json:"system_labels"`
	Content      *ContentBlock          `json:"content,omitempty"`
	Attachments  []MediaAttachment      `json:"attachments,omitempty"`
	Embedding    *EmbeddingVector       `json:"embedding,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Observations []Observation          `json:"observations,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// NewEntity builds an Entity from its caller-supplied fields, applying the
// normalization and validation invariants: ENTITY is prepended to
// SystemLabels if absent, both label sets are deduplicated, and an ENTRY
// entity must carry at least one of content, attachments, or metadata.
// The ID is generated if not already set, as is the ID of any Observation
// that doesn't already carry one.
func NewEntity(e Entity) (*Entity, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	for i := range e.Observations {
		if e.Observations[i].ID == "" {
			e.Observations[i].ID = uuid.NewString()
		}
	}

	e.Labels = normalizeLabels(e.Labels)
	e.SystemLabels = normalizeSystemLabels(e.SystemLabels)

	if containsSystemLabel(e.SystemLabels, SystemLabelEntry) {
		hasContent := e.Content != nil && !e.Content.IsEmpty()
		hasAttachments := len(e.Attachments) > 0
		hasMetadata := len(e.Metadata) > 0
		if !hasContent && !hasAttachments && !hasMetadata {
			return nil, apperr.New(apperr.KindValidation,
				"an ENTRY entity must carry non-empty content, attachments, or metadata")
		}
	}

	if e.Embedding != nil && e.Embedding.IsEmpty() {
		return nil, apperr.New(apperr.KindValidation, "embedding vector must be non-empty when present")
	}

	now := e.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}

	return &e, nil
}

// WithSystemLabels returns a copy of e with additional system labels applied
// on top of its existing set, matching the store's monotonic label-union
// semantics across upserts.
func (e Entity) WithSystemLabels(labels ...SystemLabel) Entity {
	e.SystemLabels = normalizeSystemLabels(append(append([]SystemLabel{}, e.SystemLabels...), labels...))
	return e
}

func containsSystemLabel(labels []SystemLabel, target SystemLabel) bool {
	for _, l := range labels {
		if l == target {
			return true
		}
	}
	return false
}

// normalizeLabels trims, drops blanks, and deduplicates case-insensitively
// while preserving the first-seen order and original casing.
func normalizeLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, raw := range labels {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// normalizeSystemLabels deduplicates in insertion order and guarantees
// ENTITY is present, prepending it if the caller omitted it.
func normalizeSystemLabels(labels []SystemLabel) []SystemLabel {
	seen := make(map[SystemLabel]struct{}, len(labels)+1)
	out := make([]SystemLabel, 0, len(labels)+1)

	if !containsSystemLabel(labels, SystemLabelEntity) {
		out = append(out, SystemLabelEntity)
		seen[SystemLabelEntity] = struct{}{}
	}

	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
