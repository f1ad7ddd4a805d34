package ingestion

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/db/repository"
	"github.com/briangormanly/momento/extraction"
	"github.com/briangormanly/momento/model"
)

// Persister writes an extraction result's entities and relations to the
// graph. Relation endpoints produced by a provider may reference an
// extracted entity by its name rather than its generated ID (providers
// never see IDs before an entity is created); Persist resolves those names
// against the IDs just assigned by BulkUpsert before creating edges.
type Persister struct {
	entities  repository.EntityRepository
	relations repository.RelationRepository
	log       *logrus.Entry
}

func NewPersister(entities repository.EntityRepository, relations repository.RelationRepository, log *logrus.Entry) *Persister {
	return &Persister{entities: entities, relations: relations, log: log.WithField("component", "persister")}
}

func (p *Persister) Persist(ctx context.Context, result extraction.Result) error {
	if result.IsEmpty() {
		p.log.Debug("extraction result carried nothing to persist")
		return nil
	}

	nameToID := map[string]string{}
	if len(result.Entities) > 0 {
		saved, err := p.entities.BulkUpsert(ctx, result.Entities)
		if err != nil {
			return err
		}
		for _, e := range saved {
			if e.Name != "" {
				nameToID[e.Name] = e.ID
			}
		}
	}

	if len(result.Relations) == 0 {
		return nil
	}

	resolve := func(endpoint string) string {
		if id, ok := nameToID[endpoint]; ok {
			return id
		}
		return endpoint
	}

	relations := make([]model.Relation, 0, len(result.Relations))
	for _, r := range result.Relations {
		relations = append(relations, model.Relation{
			Source:       resolve(r.Source),
			Target:       resolve(r.Target),
			RelationType: r.RelationType,
		})
	}

	created, err := p.relations.BulkCreate(ctx, relations)
	if err != nil {
		return err
	}
	if len(created) != len(result.Relations) {
		p.log.WithField("skipped", len(result.Relations)-len(created)).Warn("some relations failed validation and were skipped")
	}
	return nil
}
