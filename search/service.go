// Package search implements entity search (C10): case-insensitive text
// search over name/summary with an optional Redis read-through cache, and
// a semantic search entry point that currently proxies to text search while
// reporting which strategy served the request.
package search

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/db/repository"
	"github.com/briangormanly/momento/model"
)

// StrategyTextProxy is reported by SemanticSearch while no embedding-backed
// strategy is wired in; it lets a caller tell the two apart without the
// server ever claiming semantic matching it doesn't yet perform.
const StrategyTextProxy = "text-proxy"

// Result wraps a semantic search's results with the strategy that produced
// them, matching the upstream placeholder contract.
type Result struct {
	Strategy string         `json:"strategy"`
	Results  []model.Entity `json:"results"`
}

// Cache is the subset of db/repository.SearchCache the service depends on.
type Cache interface {
	Get(ctx context.Context, query string, limit int) ([]model.Entity, bool)
	Set(ctx context.Context, query string, limit int, entities []model.Entity) error
}

// Service answers text and semantic search requests against the entity
// repository, optionally consulting a read-through cache first.
type Service struct {
	entities repository.EntityRepository
	cache    Cache
	log      *logrus.Entry
}

// NewService builds a Service. cache may be nil, in which case every
// search goes straight to the entity repository.
func NewService(entities repository.EntityRepository, cache Cache, log *logrus.Entry) *Service {
	return &Service{entities: entities, cache: cache, log: log.WithField("component", "search_service")}
}

// TextSearch returns entities whose name or summary contains query,
// case-insensitively, consulting the cache first when one is configured.
func (s *Service) TextSearch(ctx context.Context, query string, limit int) ([]model.Entity, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, query, limit); ok {
			return cached, nil
		}
	}

	entities, err := s.entities.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, query, limit, entities); err != nil {
			s.log.WithError(err).Warn("failed to populate search cache")
		}
	}

	return entities, nil
}

// SemanticSearch currently delegates to TextSearch, reporting the strategy
// used so clients can distinguish it from a future embedding-backed search.
func (s *Service) SemanticSearch(ctx context.Context, query string, limit int) (Result, error) {
	entities, err := s.TextSearch(ctx, query, limit)
	if err != nil {
		return Result{}, err
	}
	return Result{Strategy: StrategyTextProxy, Results: entities}, nil
}
