package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangormanly/momento/apperr"
	"github.com/briangormanly/momento/config"
	"github.com/briangormanly/momento/dispatch"
	"github.com/briangormanly/momento/extraction"
	"github.com/briangormanly/momento/ingestion"
	"github.com/briangormanly/momento/model"
	"github.com/briangormanly/momento/search"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeEntityRepository struct {
	byID map[string]model.Entity
}

func newFakeEntityRepository() *fakeEntityRepository {
	return &fakeEntityRepository{byID: map[string]model.Entity{}}
}

func (f *fakeEntityRepository) Upsert(ctx context.Context, e model.Entity) (model.Entity, error) {
	f.byID[e.ID] = e
	return e, nil
}

func (f *fakeEntityRepository) BulkUpsert(ctx context.Context, entities []model.Entity) ([]model.Entity, error) {
	for _, e := range entities {
		f.byID[e.ID] = e
	}
	return entities, nil
}

func (f *fakeEntityRepository) Get(ctx context.Context, id string) (model.Entity, error) {
	e, ok := f.byID[id]
	if !ok {
		return model.Entity{}, apperr.New(apperr.KindNotFound, "entity not found: "+id)
	}
	return e, nil
}

func (f *fakeEntityRepository) List(ctx context.Context, limit, skip int) ([]model.Entity, error) {
	out := make([]model.Entity, 0, len(f.byID))
	for _, e := range f.byID {
		out = append(out, e)
	}
	if skip < len(out) {
		out = out[skip:]
	} else {
		out = nil
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeEntityRepository) Search(ctx context.Context, text string, limit int) ([]model.Entity, error) {
	var out []model.Entity
	for _, e := range f.byID {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEntityRepository) Delete(ctx context.Context, id string) (bool, error) {
	_, ok := f.byID[id]
	delete(f.byID, id)
	return ok, nil
}

type fakeRelationRepository struct {
	relations []model.Relation
}

func (f *fakeRelationRepository) Create(ctx context.Context, r model.Relation) error {
	f.relations = append(f.relations, r)
	return nil
}

func (f *fakeRelationRepository) BulkCreate(ctx context.Context, relations []model.Relation) ([]model.Relation, error) {
	f.relations = append(f.relations, relations...)
	return relations, nil
}

func (f *fakeRelationRepository) ListForEntity(ctx context.Context, id string) ([]model.Relation, error) {
	var out []model.Relation
	for _, r := range f.relations {
		if r.Source == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestHandlers() (*Handlers, *fakeEntityRepository, *fakeRelationRepository) {
	entities := newFakeEntityRepository()
	relations := &fakeRelationRepository{}

	registry := extraction.NewRegistry(config.ExtractionConfig{Provider: "local"}, discardLogger())
	pipeline := extraction.NewPipeline(registry, true)
	persister := ingestion.NewPersister(entities, relations, discardLogger())

	svc := ingestion.NewService(entities, pipeline, persister, inlineDispatcher{pipeline: pipeline}, true, discardLogger())
	searchSvc := search.NewService(entities, nil, discardLogger())

	return &Handlers{
		Ingestion: svc,
		Entities:  entities,
		Relations: relations,
		Search:    searchSvc,
		Log:       discardLogger(),
	}, entities, relations
}

type inlineDispatcher struct {
	pipeline *extraction.Pipeline
}

func (d inlineDispatcher) Enqueue(ctx context.Context, job dispatch.Job) error { return nil }

func newEcho() *echo.Echo {
	e := echo.New()
	return e
}

func TestIngestEntryReturns202WithEntryID(t *testing.T) {
	h, _, _ := newTestHandlers()
	e := newEcho()

	body, _ := json.Marshal(map[string]interface{}{"text": "Brian visited Twilight Florist."})
	req := httptest.NewRequest(http.MethodPost, "/graph/entries", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.IngestEntry(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp ingestion.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.EntryID)
}

func TestIngestEntryRejectsEmptyText(t *testing.T) {
	h, _, _ := newTestHandlers()
	e := newEcho()

	body, _ := json.Marshal(map[string]interface{}{"text": ""})
	req := httptest.NewRequest(http.MethodPost, "/graph/entries", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.IngestEntry(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEntityReturns404WhenMissing(t *testing.T) {
	h, _, _ := newTestHandlers()
	e := newEcho()

	req := httptest.NewRequest(http.MethodGet, "/graph/entities/does-not-exist", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("does-not-exist")

	require.NoError(t, h.GetEntity(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetEntityReturnsStoredEntity(t *testing.T) {
	h, entities, _ := newTestHandlers()
	e := newEcho()

	entity, err := model.NewEntity(model.Entity{Name: "Brian", SystemLabels: []model.SystemLabel{model.SystemLabelPerson}})
	require.NoError(t, err)
	entities.byID[entity.ID] = *entity

	req := httptest.NewRequest(http.MethodGet, "/graph/entities/"+entity.ID, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(entity.ID)

	require.NoError(t, h.GetEntity(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListEntitiesReturnsItemsAndTotal(t *testing.T) {
	h, entities, _ := newTestHandlers()
	e := newEcho()

	entity, err := model.NewEntity(model.Entity{Name: "Brian", SystemLabels: []model.SystemLabel{model.SystemLabelPerson}})
	require.NoError(t, err)
	entities.byID[entity.ID] = *entity

	req := httptest.NewRequest(http.MethodGet, "/graph/entities?limit=10&skip=0", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.ListEntities(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp entityListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
}

func TestTextSearchRejectsEmptyQuery(t *testing.T) {
	h, _, _ := newTestHandlers()
	e := newEcho()

	body, _ := json.Marshal(map[string]interface{}{"query": ""})
	req := httptest.NewRequest(http.MethodPost, "/graph/search/text", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.TextSearch(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSemanticSearchReportsStrategy(t *testing.T) {
	h, entities, _ := newTestHandlers()
	e := newEcho()

	entity, err := model.NewEntity(model.Entity{Name: "Twilight Florist", SystemLabels: []model.SystemLabel{model.SystemLabelOrganization}})
	require.NoError(t, err)
	entities.byID[entity.ID] = *entity

	body, _ := json.Marshal(map[string]interface{}{"query": "Twilight"})
	req := httptest.NewRequest(http.MethodPost, "/graph/search/semantic", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.SemanticSearch(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp search.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, search.StrategyTextProxy, resp.Strategy)
}

func TestHealthzAlwaysOK(t *testing.T) {
	h, _, _ := newTestHandlers()
	e := newEcho()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Healthz(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReportsUnavailableWithoutStore(t *testing.T) {
	h, _, _ := newTestHandlers()
	e := newEcho()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Readyz(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatsHandlerReturnsCounters(t *testing.T) {
	h, _, _ := newTestHandlers()
	h.Stats = extraction.NewCounterObserver()
	h.Stats.OnSuccess(model.Entity{}, extraction.Result{})
	e := newEcho()

	req := httptest.NewRequest(http.MethodGet, "/graph/stats", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.StatsHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ExtractionsSucceeded)
}
