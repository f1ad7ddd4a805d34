// Command momento runs the memory graph ingestion and retrieval service: it
// loads configuration, connects to the graph store, wires the extraction
// pipeline and background dispatcher, and serves the HTTP API until
// interrupted.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/api"
	"github.com/briangormanly/momento/common"
	"github.com/briangormanly/momento/config"
	"github.com/briangormanly/momento/db/repository"
	"github.com/briangormanly/momento/dispatch"
	"github.com/briangormanly/momento/extraction"
	"github.com/briangormanly/momento/ingestion"
	"github.com/briangormanly/momento/media"
	"github.com/briangormanly/momento/model"
	"github.com/briangormanly/momento/search"
)

const extractionDispatchWorkers = 4

func main() {
	cfg, err := config.Load(os.Getenv("EXTRACTION_CONFIG_PATH"))
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := common.NewLogger(common.LoggerConfig{
		Level:      common.LogLevel(cfg.Service.LogLevel),
		Format:     cfg.Service.LogFormat,
		Service:    cfg.Service.Name,
		Version:    cfg.Service.Version,
		TimeFormat: time.RFC3339,
	})
	log := logger.WithFields(logrus.Fields{"service": cfg.Service.Name, "version": cfg.Service.Version})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := repository.NewGraphStore(log)
	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.Graph.ConnectTimeout)
	err = store.Connect(connectCtx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database, cfg.Graph.MaxConnectionPool)
	cancelConnect()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to graph store")
	}
	defer store.Close(context.Background())

	entities := repository.NewNeo4jEntityRepository(store, log)
	relations := repository.NewNeo4jRelationRepository(store, log)

	registry := extraction.NewRegistry(cfg.Extraction, log)
	counters := extraction.NewCounterObserver()
	pipeline := extraction.NewPipeline(registry, cfg.Extraction.AllowFallback,
		extraction.NewLoggingObserver(log), counters)

	persister := ingestion.NewPersister(entities, relations, log)

	var resolvedMedia *media.Resolver
	if cfg.Media.Enabled {
		resolvedMedia, err = media.NewResolver(ctx, cfg.Media, os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"), log)
		if err != nil {
			log.WithError(err).Warn("media resolver unavailable, attachment URLs will not be presigned")
			resolvedMedia = nil
		}
	}

	var cache search.Cache
	if cfg.Cache.Enabled {
		redisCache, err := repository.NewSearchCache(cfg.Cache.URL, cfg.Cache.TTL)
		if err != nil {
			log.WithError(err).Warn("search cache unavailable, continuing without it")
		} else {
			cache = redisCache
		}
	}
	searchService := search.NewService(entities, cache, log)

	var ingestionService *ingestion.Service
	dispatcher := dispatch.NewDispatcher(pipeline, extractionDispatchWorkers, func(resultCtx context.Context, entry model.Entity, result extraction.Result, err error) {
		ingestionService.OnExtractionComplete(resultCtx, entry, result, err)
	}, log)
	dispatcher.Start(ctx, extractionDispatchWorkers)
	defer dispatcher.Stop()
	ingestionService = ingestion.NewService(entities, pipeline, persister, dispatcher, !cfg.Extraction.AllowFallback, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handlers := &api.Handlers{
		Ingestion: ingestionService,
		Entities:  entities,
		Relations: relations,
		Search:    searchService,
		Store:     store,
		Stats:     counters,
		Media:     resolvedMedia,
		Log:       log,
	}
	api.SetupRoutes(e, handlers, cfg)

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
