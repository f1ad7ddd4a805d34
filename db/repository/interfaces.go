// Package repository implements the graph store adapter (C1) and the
// entity/relation repositories (C2/C3) that sit on top of it.
//
// Architecture:
//
//	A single Neo4j graph is the system of record. EntityRepository owns the
//	polymorphic Entity node - upsert, fetch, list, text search, delete - and
//	is responsible for the JSON-encoded scalar property contract on nested
//	fields. RelationRepository owns directed, dynamically-typed edges
//	between entities, gated by a closed regex on the edge-type name.
package repository

import (
	"context"

	"github.com/briangormanly/momento/model"
)

// EntityRepository upserts, fetches, lists, searches, and deletes Entity
// nodes. Implementations apply system labels as first-class graph labels
// using a fixed, enumerated set of gated statements - never by
// interpolating a label name into a query.
type EntityRepository interface {
	// Upsert matches on ID; on match it overwrites all scalar properties
	// and grows the node's graph labels to include every system label
	// present (labels are never removed by an upsert). On miss it inserts.
	// Returns the stored entity re-read from the node.
	Upsert(ctx context.Context, entity model.Entity) (model.Entity, error)

	// BulkUpsert applies Upsert's semantics to every entity in one query.
	BulkUpsert(ctx context.Context, entities []model.Entity) ([]model.Entity, error)

	// Get returns the entity with the given ID, or an apperr.KindNotFound
	// error when no such entity exists.
	Get(ctx context.Context, id string) (model.Entity, error)

	// List returns up to limit entities after skipping skip of them.
	List(ctx context.Context, limit, skip int) ([]model.Entity, error)

	// Search returns entities whose name or summary contains text,
	// case-insensitively, up to limit results.
	Search(ctx context.Context, text string, limit int) ([]model.Entity, error)

	// Delete detach-deletes the node with the given ID, returning whether
	// a node was actually removed.
	Delete(ctx context.Context, id string) (bool, error)
}

// RelationRepository creates and lists directed edges between entities.
type RelationRepository interface {
	// Create validates relation.RelationType against the closed edge-type
	// pattern before creating the edge; a failed validation never reaches
	// the store.
	Create(ctx context.Context, relation model.Relation) error

	// BulkCreate is best-effort: a failing relation is logged and skipped;
	// the method returns the relations that were actually created.
	BulkCreate(ctx context.Context, relations []model.Relation) ([]model.Relation, error)

	// ListForEntity returns outbound relations from the given entity ID.
	ListForEntity(ctx context.Context, id string) ([]model.Relation, error)
}
