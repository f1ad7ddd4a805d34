package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/apperr"
	"github.com/briangormanly/momento/model"
)

// jsonFields is the reserved set of Entity properties that are JSON-encoded
// scalar strings on the node rather than native Neo4j scalars/arrays,
// because the store's property model admits only primitives and primitive
// arrays.
var jsonFields = []string{"content", "attachments", "embedding", "metadata", "observations"}

// GraphStore is the connection-lifecycle adapter (C1). connect() must be
// called before any repository operation; a repository that discovers the
// store uninitialized fails with a StoreUnavailable error.
type GraphStore struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logrus.Entry
}

// NewGraphStore builds a GraphStore without connecting. Call Connect before
// using it.
func NewGraphStore(log *logrus.Entry) *GraphStore {
	return &GraphStore{log: log.WithField("component", "graphstore")}
}

// Connect creates the shared driver and verifies connectivity. It is safe
// to call only once; calling it again replaces the existing driver.
func (s *GraphStore) Connect(ctx context.Context, uri, username, password, database string, maxConnectionPool int) error {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
		func(c *neo4j.Config) {
			if maxConnectionPool > 0 {
				c.MaxConnectionPoolSize = maxConnectionPool
			}
		},
	)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreUnavailable, "failed to create neo4j driver", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return apperr.Wrap(apperr.KindStoreUnavailable, "failed to connect to neo4j", err)
	}
	s.driver = driver
	s.database = database
	return nil
}

// Close releases the shared driver.
func (s *GraphStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// VerifyConnectivity reports whether the store is reachable, never raising.
func (s *GraphStore) VerifyConnectivity(ctx context.Context) bool {
	if s.driver == nil {
		return false
	}
	return s.driver.VerifyConnectivity(ctx) == nil
}

// session opens a scoped session in the given access mode. Callers must
// always defer session.Close.
func (s *GraphStore) session(ctx context.Context, mode neo4j.AccessMode) (neo4j.SessionWithContext, error) {
	if s.driver == nil {
		return nil, apperr.New(apperr.KindStoreUnavailable, "graph store connection not initialized: call Connect first")
	}
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database}), nil
}

// Neo4jEntityRepository implements EntityRepository (C2) against a GraphStore.
type Neo4jEntityRepository struct {
	store *GraphStore
	log   *logrus.Entry
}

// NewNeo4jEntityRepository wraps a connected GraphStore for entity persistence.
func NewNeo4jEntityRepository(store *GraphStore, log *logrus.Entry) *Neo4jEntityRepository {
	return &Neo4jEntityRepository{store: store, log: log.WithField("component", "entity_repository")}
}

// upsertLabelForeach is the fixed, enumerated set of gated label-apply
// statements. The set of recognized system labels is closed and hard-coded
// here to prevent injection via an unknown label name; it is never built by
// interpolating a label name into the query.
const upsertLabelForeach = `
FOREACH (_ IN CASE WHEN 'ENTRY' IN entity.system_labels THEN [1] ELSE [] END | SET e:ENTRY)
FOREACH (_ IN CASE WHEN 'ENTITY' IN entity.system_labels THEN [1] ELSE [] END | SET e:ENTITY)
FOREACH (_ IN CASE WHEN 'PERSON' IN entity.system_labels THEN [1] ELSE [] END | SET e:PERSON)
FOREACH (_ IN CASE WHEN 'LOCATION' IN entity.system_labels THEN [1] ELSE [] END | SET e:LOCATION)
FOREACH (_ IN CASE WHEN 'ORGANIZATION' IN entity.system_labels THEN [1] ELSE [] END | SET e:ORGANIZATION)
FOREACH (_ IN CASE WHEN 'OBJECT' IN entity.system_labels THEN [1] ELSE [] END | SET e:OBJECT)
FOREACH (_ IN CASE WHEN 'EVENT' IN entity.system_labels THEN [1] ELSE [] END | SET e:EVENT)
FOREACH (_ IN CASE WHEN 'CONCEPT' IN entity.system_labels THEN [1] ELSE [] END | SET e:CONCEPT)
FOREACH (_ IN CASE WHEN 'OBSERVATION' IN entity.system_labels THEN [1] ELSE [] END | SET e:OBSERVATION)
`

func (r *Neo4jEntityRepository) Upsert(ctx context.Context, entity model.Entity) (model.Entity, error) {
	session, err := r.store.session(ctx, neo4j.AccessModeWrite)
	if err != nil {
		return model.Entity{}, err
	}
	defer session.Close(ctx)

	payload, err := serializeEntity(entity)
	if err != nil {
		return model.Entity{}, apperr.Wrap(apperr.KindValidation, "failed to serialize entity", err)
	}

	query := `
WITH $entity AS entity
MERGE (e:Entity {id: entity.id})
SET e = entity
` + upsertLabelForeach + `
RETURN e
`
	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{"entity": payload})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		node, _ := record.Get("e")
		return nodeToEntity(r.log, node.(neo4j.Node))
	})
	if err != nil {
		return model.Entity{}, apperr.Wrap(apperr.KindStoreUnavailable, "failed to upsert entity", err)
	}
	return result.(model.Entity), nil
}

func (r *Neo4jEntityRepository) BulkUpsert(ctx context.Context, entities []model.Entity) ([]model.Entity, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	session, err := r.store.session(ctx, neo4j.AccessModeWrite)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)

	payloads := make([]map[string]interface{}, 0, len(entities))
	for _, e := range entities {
		p, err := serializeEntity(e)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, "failed to serialize entity", err)
		}
		payloads = append(payloads, p)
	}

	query := `
UNWIND $entities AS entity
MERGE (e:Entity {id: entity.id})
SET e = entity
` + upsertLabelForeach + `
RETURN e
`
	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{"entities": payloads})
		if err != nil {
			return nil, err
		}
		var stored []model.Entity
		for res.Next(ctx) {
			node, _ := res.Record().Get("e")
			entity, err := nodeToEntity(r.log, node.(neo4j.Node))
			if err != nil {
				return nil, err
			}
			stored = append(stored, entity)
		}
		return stored, res.Err()
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, "failed to bulk-upsert entities", err)
	}
	return result.([]model.Entity), nil
}

func (r *Neo4jEntityRepository) Get(ctx context.Context, id string) (model.Entity, error) {
	session, err := r.store.session(ctx, neo4j.AccessModeRead)
	if err != nil {
		return model.Entity{}, err
	}
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity {id: $id}) RETURN e`, map[string]interface{}{"id": id})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, apperr.New(apperr.KindNotFound, "entity not found: "+id)
		}
		node, _ := record.Get("e")
		return nodeToEntity(r.log, node.(neo4j.Node))
	})
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return model.Entity{}, err
		}
		return model.Entity{}, apperr.Wrap(apperr.KindStoreUnavailable, "failed to read entity", err)
	}
	return result.(model.Entity), nil
}

func (r *Neo4jEntityRepository) List(ctx context.Context, limit, skip int) ([]model.Entity, error) {
	session, err := r.store.session(ctx, neo4j.AccessModeRead)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity) RETURN e SKIP $skip LIMIT $limit`,
			map[string]interface{}{"skip": int64(skip), "limit": int64(limit)})
		if err != nil {
			return nil, err
		}
		return r.collectEntities(ctx, res)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, "failed to list entities", err)
	}
	return result.([]model.Entity), nil
}

func (r *Neo4jEntityRepository) Search(ctx context.Context, text string, limit int) ([]model.Entity, error) {
	session, err := r.store.session(ctx, neo4j.AccessModeRead)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)

	query := `
MATCH (e:Entity)
WHERE toLower(e.name) CONTAINS toLower($q) OR toLower(e.summary) CONTAINS toLower($q)
RETURN e
LIMIT $limit
`
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{"q": text, "limit": int64(limit)})
		if err != nil {
			return nil, err
		}
		return r.collectEntities(ctx, res)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, "failed to search entities", err)
	}
	return result.([]model.Entity), nil
}

func (r *Neo4jEntityRepository) Delete(ctx context.Context, id string) (bool, error) {
	session, err := r.store.session(ctx, neo4j.AccessModeWrite)
	if err != nil {
		return false, err
	}
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity {id: $id}) DETACH DELETE e RETURN count(e) AS deleted_count`,
			map[string]interface{}{"id": id})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		count, _ := record.Get("deleted_count")
		return count.(int64) > 0, nil
	})
	if err != nil {
		return false, apperr.Wrap(apperr.KindStoreUnavailable, "failed to delete entity", err)
	}
	return result.(bool), nil
}

func (r *Neo4jEntityRepository) collectEntities(ctx context.Context, res neo4j.ResultWithContext) ([]model.Entity, error) {
	var entities []model.Entity
	for res.Next(ctx) {
		node, _ := res.Record().Get("e")
		entity, err := nodeToEntity(r.log, node.(neo4j.Node))
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, res.Err()
}

// Neo4jRelationRepository implements RelationRepository (C3).
type Neo4jRelationRepository struct {
	store *GraphStore
	log   *logrus.Entry
}

func NewNeo4jRelationRepository(store *GraphStore, log *logrus.Entry) *Neo4jRelationRepository {
	return &Neo4jRelationRepository{store: store, log: log.WithField("component", "relation_repository")}
}

func (r *Neo4jRelationRepository) Create(ctx context.Context, relation model.Relation) error {
	validated, err := model.NewRelation(relation.Source, relation.Target, relation.RelationType)
	if err != nil {
		return err
	}

	session, sessErr := r.store.session(ctx, neo4j.AccessModeWrite)
	if sessErr != nil {
		return sessErr
	}
	defer session.Close(ctx)

	// validated.RelationType has already been checked against ^[A-Z0-9_]+$;
	// this is the only query built by string concatenation and that regex
	// gate is the sole defense against injection. Do not relax it.
	query := fmt.Sprintf(`
MATCH (source:Entity {id: $sourceID})
MATCH (target:Entity {id: $targetID})
MERGE (source)-[r:%s]->(target)
`, validated.RelationType)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		return tx.Run(ctx, query, map[string]interface{}{
			"sourceID": validated.Source,
			"targetID": validated.Target,
		})
	})
	if err != nil {
		return apperr.Wrap(apperr.KindStoreUnavailable, "failed to create relation", err)
	}
	return nil
}

func (r *Neo4jRelationRepository) BulkCreate(ctx context.Context, relations []model.Relation) ([]model.Relation, error) {
	created := make([]model.Relation, 0, len(relations))
	for _, relation := range relations {
		if err := r.Create(ctx, relation); err != nil {
			r.log.WithFields(logrus.Fields{
				"source": relation.Source,
				"target": relation.Target,
				"type":   relation.RelationType,
				"error":  err,
			}).Warn("failed to persist relation, skipping")
			continue
		}
		created = append(created, relation)
	}
	return created, nil
}

func (r *Neo4jRelationRepository) ListForEntity(ctx context.Context, id string) ([]model.Relation, error) {
	session, err := r.store.session(ctx, neo4j.AccessModeRead)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)

	query := `
MATCH (source:Entity {id: $id})-[r]->(target:Entity)
RETURN source.id AS source, type(r) AS type, target.id AS target
`
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, query, map[string]interface{}{"id": id})
		if err != nil {
			return nil, err
		}
		var relations []model.Relation
		for res.Next(ctx) {
			rec := res.Record()
			source, _ := rec.Get("source")
			target, _ := rec.Get("target")
			relType, _ := rec.Get("type")
			relations = append(relations, model.Relation{
				Source:       source.(string),
				Target:       target.(string),
				RelationType: relType.(string),
			})
		}
		return relations, res.Err()
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, "failed to list relations", err)
	}
	return result.([]model.Relation), nil
}

// serializeEntity converts an Entity into the map of scalar/array
// properties Neo4j accepts, JSON-encoding the nested structured fields.
func serializeEntity(e model.Entity) (map[string]interface{}, error) {
	systemLabels := make([]string, len(e.SystemLabels))
	for i, l := range e.SystemLabels {
		systemLabels[i] = string(l)
	}

	payload := map[string]interface{}{
		"id":            e.ID,
		"external_id":   e.ExternalID,
		"name":          e.Name,
		"summary":       e.Summary,
		"labels":        e.Labels,
		"system_labels": systemLabels,
		"created_at":    e.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":    e.UpdatedAt.UTC().Format(time.RFC3339),
	}

	jsonValues := map[string]interface{}{
		"content":      e.Content,
		"attachments":  e.Attachments,
		"embedding":    e.Embedding,
		"metadata":     e.Metadata,
		"observations": e.Observations,
	}
	for _, field := range jsonFields {
		value := jsonValues[field]
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", field, err)
		}
		payload[field] = string(encoded)
	}

	return payload, nil
}

// nodeToEntity decodes a Neo4j node into an Entity. A decode failure on a
// JSON-encoded field is logged and the field is dropped to its empty
// default rather than failing the read - corrupt storage must not poison
// retrieval.
func nodeToEntity(log *logrus.Entry, node neo4j.Node) (model.Entity, error) {
	props := node.Props
	entity := model.Entity{
		ID:         stringProp(props, "id"),
		ExternalID: stringProp(props, "external_id"),
		Name:       stringProp(props, "name"),
		Summary:    stringProp(props, "summary"),
		Labels:     stringSliceProp(props, "labels"),
	}

	for _, raw := range stringSliceProp(props, "system_labels") {
		entity.SystemLabels = append(entity.SystemLabels, model.SystemLabel(raw))
	}

	if createdAt, ok := props["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			entity.CreatedAt = t
		}
	}
	if updatedAt, ok := props["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			entity.UpdatedAt = t
		}
	}

	if raw, ok := props["content"].(string); ok && raw != "" && raw != "null" {
		var content model.ContentBlock
		if err := json.Unmarshal([]byte(raw), &content); err != nil {
			log.WithFields(logrus.Fields{"entity_id": entity.ID, "field": "content"}).Warn("failed to decode JSON field, dropping to empty default")
		} else {
			entity.Content = &content
		}
	}
	if raw, ok := props["attachments"].(string); ok && raw != "" && raw != "null" {
		var attachments []model.MediaAttachment
		if err := json.Unmarshal([]byte(raw), &attachments); err != nil {
			log.WithFields(logrus.Fields{"entity_id": entity.ID, "field": "attachments"}).Warn("failed to decode JSON field, dropping to empty default")
		} else {
			entity.Attachments = attachments
		}
	}
	if raw, ok := props["embedding"].(string); ok && raw != "" && raw != "null" {
		var embedding model.EmbeddingVector
		if err := json.Unmarshal([]byte(raw), &embedding); err != nil {
			log.WithFields(logrus.Fields{"entity_id": entity.ID, "field": "embedding"}).Warn("failed to decode JSON field, dropping to empty default")
		} else {
			entity.Embedding = &embedding
		}
	}
	if raw, ok := props["metadata"].(string); ok && raw != "" && raw != "null" {
		var metadata map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			log.WithFields(logrus.Fields{"entity_id": entity.ID, "field": "metadata"}).Warn("failed to decode JSON field, dropping to empty default")
		} else {
			entity.Metadata = metadata
		}
	}
	if raw, ok := props["observations"].(string); ok && raw != "" && raw != "null" {
		var observations []model.Observation
		if err := json.Unmarshal([]byte(raw), &observations); err != nil {
			log.WithFields(logrus.Fields{"entity_id": entity.ID, "field": "observations"}).Warn("failed to decode JSON field, dropping to empty default")
		} else {
			entity.Observations = observations
		}
	}

	return entity, nil
}

func stringProp(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceProp(props map[string]interface{}, key string) []string {
	if s, ok := props[key].([]string); ok {
		return s
	}
	raw, ok := props[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
