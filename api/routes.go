package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/briangormanly/momento/config"
)

// SetupRoutes registers every C11 endpoint on e. /healthz and /readyz are
// public; every other route requires a valid bearer token from the external
// auth collaborator.
func SetupRoutes(e *echo.Echo, h *Handlers, cfg *config.Config) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLoggingMiddleware(h.Log))
	if cfg.Server.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit))))
	}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORS.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}

	e.GET("/healthz", h.Healthz)
	e.GET("/readyz", h.Readyz)

	graph := e.Group("/graph")
	graph.Use(jwtMiddleware(cfg.Auth))

	graph.POST("/entries", h.IngestEntry)
	graph.GET("/entities/:id", h.GetEntity)
	graph.GET("/entities", h.ListEntities)
	graph.GET("/entities/:id/relations", h.ListRelationsForEntity)
	graph.POST("/search/text", h.TextSearch)
	graph.POST("/search/semantic", h.SemanticSearch)
	graph.GET("/stats", h.StatsHandler)
}
