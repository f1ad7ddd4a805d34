package extraction

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/model"
)

// personHints, locationHints, organizationHints, and eventHints are the
// same small deterministic word lists the original heuristic extractor
// uses as a stand-in for a real LLM - not a tunable production knob, so
// they stay as package constants rather than config.
var (
	personHints       = map[string]struct{}{"Brian": {}, "Yoli": {}, "Eric": {}, "Darren": {}}
	locationHints     = map[string]struct{}{"Hopewell Junction": {}, "Poughkeepsie": {}}
	organizationHints = map[string]struct{}{"Twilight Florist": {}}
	eventHints        = map[string]struct{}{"date": {}, "meeting": {}, "first date": {}}
	localStopwords    = map[string]struct{}{
		"he": {}, "she": {}, "it": {}, "we": {}, "i": {}, "my": {}, "me": {}, "you": {}, "they": {},
		"december": {}, "october": {}, "mid": {}, "first": {},
	}
)

var capitalizedPattern = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)\b`)

// LocalProvider is a deterministic, LLM-free extractor used for local
// development, testing, and as the fallback target for every other
// provider. It derives candidate entities from capitalized tokens in the
// source text.
type LocalProvider struct {
	log *logrus.Entry
}

func NewLocalProvider(log *logrus.Entry) *LocalProvider {
	return &LocalProvider{log: log.WithField("provider", "local")}
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) Extract(ctx context.Context, entry model.Entity, metadata map[string]interface{}) (Result, error) {
	text := sourceText(entry, metadata)
	if text == "" {
		p.log.Info("entry has no content to analyze; returning empty result")
		return Result{}, nil
	}

	names := extractNamedEntities(text)
	entities := make([]model.Entity, 0, len(names))
	relations := make([]model.Relation, 0, len(names))
	for _, name := range names {
		built, err := buildLocalEntity(name, entry)
		if err != nil {
			continue
		}
		entities = append(entities, *built)

		rel, err := model.NewRelation(entry.ID, built.ID, "MENTIONS")
		if err != nil {
			continue
		}
		relations = append(relations, *rel)
	}

	return Result{Entities: entities, Relations: relations}, nil
}

func extractNamedEntities(text string) []string {
	candidates := map[string]struct{}{}
	for _, match := range capitalizedPattern.FindAllString(text, -1) {
		normalized := strings.TrimSpace(match)
		if _, stop := localStopwords[strings.ToLower(normalized)]; stop {
			continue
		}
		candidates[normalized] = struct{}{}
	}
	for name := range personHints {
		if strings.Contains(text, name) {
			candidates[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(candidates))
	for name := range candidates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func buildLocalEntity(name string, entry model.Entity) (*model.Entity, error) {
	label := inferSystemLabel(name)
	labels := []string{"generated", "extracted"}
	switch label {
	case model.SystemLabelLocation:
		labels = append(labels, "location")
	case model.SystemLabelOrganization:
		labels = append(labels, "organization")
	}

	return model.NewEntity(model.Entity{
		Name:         name,
		SystemLabels: []model.SystemLabel{label},
		Labels:       labels,
		Observations: []model.Observation{
			{Text: "Mentioned alongside entry " + entry.ID, Metadata: map[string]interface{}{"source_entry_id": entry.ID}},
		},
		Metadata: map[string]interface{}{"generated_by": "local-provider", "entity_type": string(label)},
	})
}

func inferSystemLabel(name string) model.SystemLabel {
	lower := strings.ToLower(name)
	if _, ok := locationHints[name]; ok || strings.HasSuffix(lower, "junction") || strings.HasSuffix(lower, "poughkeepsie") {
		return model.SystemLabelLocation
	}
	if _, ok := organizationHints[name]; ok || strings.Contains(name, "Florist") {
		return model.SystemLabelOrganization
	}
	if _, ok := eventHints[lower]; ok || strings.Contains(lower, "date") {
		return model.SystemLabelEvent
	}
	return model.SystemLabelPerson
}
