package extraction

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/model"
)

// entityPayload/relationPayload mirror the JSON schema the extraction
// prompts ask providers to return.
type entityPayload struct {
	Name         string                 `json:"name"`
	Summary      string                 `json:"summary"`
	SystemLabels []string               `json:"system_labels"`
	Labels       []string               `json:"labels"`
	Metadata     map[string]interface{} `json:"metadata"`
}

type relationPayload struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	RelationType string `json:"relationType"`
}

type extractionPayload struct {
	Entities  []entityPayload   `json:"entities"`
	Relations []relationPayload `json:"relations"`
}

// parseExtractionPayload decodes a provider's raw JSON response,
// validating each entity/relation independently - a malformed element is
// logged and skipped rather than failing the whole run. An entirely empty
// payload is itself an error: a provider that parses but yields nothing
// usable is indistinguishable from one that never ran.
func parseExtractionPayload(provider string, log *logrus.Entry, raw string) (Result, error) {
	var parsed extractionPayload
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Result{}, newProviderError(provider, "response is not valid JSON", err)
	}

	entities := make([]model.Entity, 0, len(parsed.Entities))
	for _, ep := range parsed.Entities {
		labels := make([]model.SystemLabel, 0, len(ep.SystemLabels))
		for _, l := range ep.SystemLabels {
			labels = append(labels, model.SystemLabel(l))
		}
		built, err := model.NewEntity(model.Entity{
			Name:         ep.Name,
			Summary:      ep.Summary,
			SystemLabels: labels,
			Labels:       ep.Labels,
			Metadata:     ep.Metadata,
		})
		if err != nil {
			log.WithField("entity", ep.Name).Warn("skipping invalid entity payload")
			continue
		}
		entities = append(entities, *built)
	}

	relations := make([]model.Relation, 0, len(parsed.Relations))
	for _, rp := range parsed.Relations {
		built, err := model.NewRelation(rp.Source, rp.Target, rp.RelationType)
		if err != nil {
			log.WithField("relation_type", rp.RelationType).Warn("skipping invalid relation payload")
			continue
		}
		relations = append(relations, *built)
	}

	if len(entities) == 0 && len(relations) == 0 {
		return Result{}, newProviderError(provider, "provider returned empty payload", nil)
	}

	return Result{Entities: entities, Relations: relations}, nil
}
