// Package ingestion implements entry ingestion (C9): turning raw incoming
// text into an ENTRY entity, upserting it, and running the extraction
// pipeline over it either inline or in the background, persisting whatever
// the pipeline finds.
package ingestion

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/apperr"
	"github.com/briangormanly/momento/db/repository"
	"github.com/briangormanly/momento/dispatch"
	"github.com/briangormanly/momento/extraction"
	"github.com/briangormanly/momento/model"
)

// defaultEntryName is substituted for the ENTRY entity's name when the
// caller supplies no title.
const defaultEntryName = "Memory Entry"

// Request carries the fields a caller supplies when ingesting a new entry,
// mirroring the upstream EntryIngestionRequest contract.
type Request struct {
	Text                 string
	Title                string
	Summary              string
	Labels               []string
	Source               string
	Format               model.ContentFormat
	Metadata             map[string]interface{}
	ProcessSynchronously bool
}

// Response reports the outcome of an ingestion call.
type Response struct {
	EntryID string `json:"entry_id"`
	Status  string `json:"status"`
}

const (
	statusQueued    = "queued"
	statusProcessed = "processed"
)

// Dispatcher is the subset of dispatch.Dispatcher the service depends on,
// narrowed so tests can substitute a synchronous stand-in.
type Dispatcher interface {
	Enqueue(ctx context.Context, job dispatch.Job) error
}

// Service implements entry ingestion: build the ENTRY entity, upsert it,
// and run extraction either inline (when synchronous processing is
// requested or fallback is disallowed) or via the background Dispatcher.
type Service struct {
	entities    repository.EntityRepository
	pipeline    *extraction.Pipeline
	persister   *Persister
	dispatcher  Dispatcher
	requireSync bool
	log         *logrus.Entry
}

// NewService builds an ingestion Service. requireSync mirrors the upstream
// `not settings.extraction_allow_fallback` rule: when the active provider
// has no local fallback to lean on, every entry is processed inline so a
// provider failure surfaces to the caller instead of vanishing into the
// background.
func NewService(entities repository.EntityRepository, pipeline *extraction.Pipeline, persister *Persister, dispatcher Dispatcher, requireSync bool, log *logrus.Entry) *Service {
	return &Service{
		entities:    entities,
		pipeline:    pipeline,
		persister:   persister,
		dispatcher:  dispatcher,
		requireSync: requireSync,
		log:         log.WithField("component", "ingestion_service"),
	}
}

// IngestEntry builds and upserts the ENTRY entity for req, then runs
// extraction over it synchronously or schedules it in the background,
// returning the entry's ID and a status describing which path was taken.
func (s *Service) IngestEntry(ctx context.Context, req Request) (Response, error) {
	format := req.Format
	if format == "" {
		format = model.ContentFormatMarkdown
	}

	metadata := map[string]interface{}{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["text"] = req.Text
	if req.Source != "" {
		metadata["source"] = req.Source
	}

	name := req.Title
	if name == "" {
		name = defaultEntryName
	}

	entry, err := model.NewEntity(model.Entity{
		Name:         name,
		Summary:      req.Summary,
		Labels:       req.Labels,
		SystemLabels: []model.SystemLabel{model.SystemLabelEntry},
		Content:      &model.ContentBlock{Format: format, Body: req.Text},
		Metadata:     metadata,
	})
	if err != nil {
		return Response{}, err
	}

	saved, err := s.entities.Upsert(ctx, *entry)
	if err != nil {
		return Response{}, err
	}

	runSync := req.ProcessSynchronously || s.requireSync
	if runSync {
		result, err := s.pipeline.Run(ctx, saved, metadata)
		if err != nil {
			s.log.WithField("entry_id", saved.ID).WithError(err).Warn("synchronous extraction failed")
			var providerErr *extraction.ProviderError
			if errors.As(err, &providerErr) {
				return Response{}, apperr.Wrap(apperr.KindExtractionProvider, "extraction provider failed", err)
			}
			return Response{}, err
		}
		if err := s.persister.Persist(ctx, result); err != nil {
			return Response{}, err
		}
		return Response{EntryID: saved.ID, Status: statusProcessed}, nil
	}

	if err := s.dispatcher.Enqueue(ctx, dispatch.Job{Entry: saved, Metadata: metadata}); err != nil {
		return Response{}, err
	}
	return Response{EntryID: saved.ID, Status: statusQueued}, nil
}

// OnExtractionComplete is the dispatch.ResultHandler that persists a
// background extraction run's findings. Wire it into dispatch.NewDispatcher
// so enqueued jobs land in the graph once they finish.
func (s *Service) OnExtractionComplete(ctx context.Context, entry model.Entity, result extraction.Result, err error) {
	if err != nil {
		s.log.WithField("entry_id", entry.ID).WithError(err).Warn("background extraction failed")
		return
	}
	if perr := s.persister.Persist(ctx, result); perr != nil {
		s.log.WithField("entry_id", entry.ID).WithError(perr).Error("failed to persist background extraction result")
	}
}
