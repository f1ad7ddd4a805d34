package search

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangormanly/momento/model"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeEntityRepository struct {
	searchResults []model.Entity
	searchCalls   int
}

func (f *fakeEntityRepository) Upsert(ctx context.Context, e model.Entity) (model.Entity, error) {
	return e, nil
}
func (f *fakeEntityRepository) BulkUpsert(ctx context.Context, entities []model.Entity) ([]model.Entity, error) {
	return entities, nil
}
func (f *fakeEntityRepository) Get(ctx context.Context, id string) (model.Entity, error) {
	return model.Entity{}, nil
}
func (f *fakeEntityRepository) List(ctx context.Context, limit, skip int) ([]model.Entity, error) {
	return nil, nil
}
func (f *fakeEntityRepository) Search(ctx context.Context, text string, limit int) ([]model.Entity, error) {
	f.searchCalls++
	return f.searchResults, nil
}
func (f *fakeEntityRepository) Delete(ctx context.Context, id string) (bool, error) {
	return false, nil
}

type fakeCache struct {
	store map[string][]model.Entity
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: map[string][]model.Entity{}}
}

func (c *fakeCache) Get(ctx context.Context, query string, limit int) ([]model.Entity, bool) {
	v, ok := c.store[query]
	return v, ok
}

func (c *fakeCache) Set(ctx context.Context, query string, limit int, entities []model.Entity) error {
	c.store[query] = entities
	return nil
}

func TestTextSearchHitsRepositoryWithoutCache(t *testing.T) {
	repo := &fakeEntityRepository{searchResults: []model.Entity{{ID: "1", Name: "Brian"}}}
	svc := NewService(repo, nil, discardLogger())

	results, err := svc.TextSearch(context.Background(), "brian", 20)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, repo.searchCalls)
}

func TestTextSearchServesFromCacheOnHit(t *testing.T) {
	repo := &fakeEntityRepository{searchResults: []model.Entity{{ID: "1", Name: "Brian"}}}
	cache := newFakeCache()
	cache.store["brian"] = []model.Entity{{ID: "cached", Name: "Brian"}}
	svc := NewService(repo, cache, discardLogger())

	results, err := svc.TextSearch(context.Background(), "brian", 20)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cached", results[0].ID)
	assert.Equal(t, 0, repo.searchCalls)
}

func TestTextSearchPopulatesCacheOnMiss(t *testing.T) {
	repo := &fakeEntityRepository{searchResults: []model.Entity{{ID: "1", Name: "Brian"}}}
	cache := newFakeCache()
	svc := NewService(repo, cache, discardLogger())

	_, err := svc.TextSearch(context.Background(), "brian", 20)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.searchCalls)
	assert.Contains(t, cache.store, "brian")
}

func TestSemanticSearchReportsTextProxyStrategy(t *testing.T) {
	repo := &fakeEntityRepository{searchResults: []model.Entity{{ID: "1", Name: "Brian"}}}
	svc := NewService(repo, nil, discardLogger())

	result, err := svc.SemanticSearch(context.Background(), "brian", 10)
	require.NoError(t, err)
	assert.Equal(t, StrategyTextProxy, result.Strategy)
	assert.Len(t, result.Results, 1)
}
