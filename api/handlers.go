// Package api implements the HTTP surface (C11) over the ingestion and
// search services: request parsing and validation, auth-context handling,
// and translation of apperr.Kind into HTTP status codes.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/apperr"
	"github.com/briangormanly/momento/db/repository"
	"github.com/briangormanly/momento/extraction"
	"github.com/briangormanly/momento/ingestion"
	"github.com/briangormanly/momento/media"
	"github.com/briangormanly/momento/model"
	"github.com/briangormanly/momento/search"
)

// Handlers holds every service the API surface translates requests into
// calls against.
type Handlers struct {
	Ingestion *ingestion.Service
	Entities  repository.EntityRepository
	Relations repository.RelationRepository
	Search    *search.Service
	Store     *repository.GraphStore
	Stats     *extraction.CounterObserver
	Media     *media.Resolver
	Log       *logrus.Entry
}

// resolveAttachments replaces each attachment's stored URI with a presigned,
// short-lived URL when a media resolver is configured. A resolution failure
// is logged and the attachment is left with its stored URI rather than
// failing the whole response.
func (h *Handlers) resolveAttachments(c echo.Context, entity *model.Entity) {
	if h.Media == nil {
		return
	}
	for i := range entity.Attachments {
		resolved, err := h.Media.Resolve(c.Request().Context(), entity.Attachments[i].URI)
		if err != nil {
			h.Log.WithField("entity_id", entity.ID).WithError(err).Warn("failed to resolve attachment URL")
			continue
		}
		entity.Attachments[i].URI = resolved
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps an apperr.Kind to the HTTP status the error table in
// spec.md §7 calls for; an error that isn't an *apperr.Error is treated as
// an unexpected internal failure.
func writeError(c echo.Context, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case apperr.KindValidation:
			return c.JSON(http.StatusBadRequest, errorResponse{Error: appErr.Message})
		case apperr.KindNotFound:
			return c.JSON(http.StatusNotFound, errorResponse{Error: appErr.Message})
		case apperr.KindExtractionProvider:
			return c.JSON(http.StatusBadGateway, errorResponse{Error: appErr.Message})
		case apperr.KindStoreUnavailable:
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: appErr.Message})
		case apperr.KindOverloaded:
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: appErr.Message})
		}
	}
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// entryRequest is the wire shape of POST /graph/entries, matching the
// upstream EntryIngestionRequest contract.
type entryRequest struct {
	Text                 string                 `json:"text" validate:"required,min=1"`
	Title                string                 `json:"title,omitempty"`
	Summary              string                 `json:"summary,omitempty"`
	Labels               []string               `json:"labels,omitempty"`
	Source               string                 `json:"source,omitempty"`
	Format               string                 `json:"format,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	ProcessSynchronously bool                   `json:"process_synchronously,omitempty"`
}

// IngestEntry handles POST /graph/entries.
func (h *Handlers) IngestEntry(c echo.Context) error {
	var req entryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "text is required"})
	}

	format := model.ContentFormat(req.Format)
	if format == "" {
		format = model.ContentFormatMarkdown
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	if userID := requestUserID(c); userID != "" {
		metadata["submitted_by"] = userID
	}

	resp, err := h.Ingestion.IngestEntry(c.Request().Context(), ingestion.Request{
		Text:                 req.Text,
		Title:                req.Title,
		Summary:              req.Summary,
		Labels:               req.Labels,
		Source:               req.Source,
		Format:               format,
		Metadata:             metadata,
		ProcessSynchronously: req.ProcessSynchronously,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusAccepted, resp)
}

// GetEntity handles GET /graph/entities/:id.
func (h *Handlers) GetEntity(c echo.Context) error {
	entity, err := h.Entities.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	h.resolveAttachments(c, &entity)
	return c.JSON(http.StatusOK, entity)
}

type entityListResponse struct {
	Items []model.Entity `json:"items"`
	Total int            `json:"total"`
}

// ListEntities handles GET /graph/entities?limit=&skip=.
func (h *Handlers) ListEntities(c echo.Context) error {
	limit := queryInt(c, "limit", 20)
	skip := queryInt(c, "skip", 0)

	entities, err := h.Entities.List(c.Request().Context(), limit, skip)
	if err != nil {
		return writeError(c, err)
	}
	for i := range entities {
		h.resolveAttachments(c, &entities[i])
	}

	return c.JSON(http.StatusOK, entityListResponse{Items: entities, Total: len(entities)})
}

// ListRelationsForEntity handles GET /graph/entities/:id/relations.
func (h *Handlers) ListRelationsForEntity(c echo.Context) error {
	relations, err := h.Relations.ListForEntity(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, relations)
}

type searchRequest struct {
	Query string `json:"query" validate:"required,min=1"`
	Limit int    `json:"limit,omitempty"`
}

// TextSearch handles POST /graph/search/text.
func (h *Handlers) TextSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "query is required"})
	}
	limit := clampLimit(req.Limit, 20)

	entities, err := h.Search.TextSearch(c.Request().Context(), req.Query, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, entities)
}

// SemanticSearch handles POST /graph/search/semantic.
func (h *Handlers) SemanticSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "query is required"})
	}
	limit := clampLimit(req.Limit, 10)

	result, err := h.Search.SemanticSearch(c.Request().Context(), req.Query, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Healthz handles GET /healthz: a liveness probe that never touches the
// graph store.
func (h *Handlers) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz: a readiness probe gated on the graph store
// actually being reachable.
func (h *Handlers) Readyz(c echo.Context) error {
	if h.Store == nil || !h.Store.VerifyConnectivity(c.Request().Context()) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

type statsResponse struct {
	ExtractionsSucceeded int64 `json:"extractions_succeeded"`
	ExtractionsFailed    int64 `json:"extractions_failed"`
}

// StatsHandler handles GET /graph/stats: process-lifetime extraction pipeline
// counters, not durable metrics.
func (h *Handlers) StatsHandler(c echo.Context) error {
	if h.Stats == nil {
		return c.JSON(http.StatusOK, statsResponse{})
	}
	return c.JSON(http.StatusOK, statsResponse{
		ExtractionsSucceeded: h.Stats.Succeeded(),
		ExtractionsFailed:    h.Stats.Failed(),
	})
}

func queryInt(c echo.Context, name string, defaultValue int) int {
	v := c.QueryParam(name)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}

func clampLimit(limit, defaultValue int) int {
	if limit <= 0 {
		return defaultValue
	}
	if limit > 100 {
		return 100
	}
	return limit
}
