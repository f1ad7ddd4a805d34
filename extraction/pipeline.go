package extraction

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/model"
)

// Observer reacts to a pipeline run's outcome - logging, metrics, or both.
type Observer interface {
	OnSuccess(entry model.Entity, result Result)
	OnFailure(entry model.Entity, err error)
}

// LoggingObserver is the pipeline's default observer.
type LoggingObserver struct {
	log *logrus.Entry
}

func NewLoggingObserver(log *logrus.Entry) *LoggingObserver {
	return &LoggingObserver{log: log.WithField("component", "extraction_pipeline")}
}

func (o *LoggingObserver) OnSuccess(entry model.Entity, result Result) {
	o.log.WithFields(logrus.Fields{
		"entry_id":  entry.ID,
		"entities":  len(result.Entities),
		"relations": len(result.Relations),
	}).Info("extraction completed")
}

func (o *LoggingObserver) OnFailure(entry model.Entity, err error) {
	o.log.WithFields(logrus.Fields{"entry_id": entry.ID, "error": err}).Warn("extraction failed")
}

// CounterObserver accumulates run counts for GET /graph/stats. It is safe
// for concurrent use from multiple dispatcher goroutines.
type CounterObserver struct {
	succeeded int64
	failed    int64
}

func NewCounterObserver() *CounterObserver { return &CounterObserver{} }

func (o *CounterObserver) OnSuccess(entry model.Entity, result Result) { atomic.AddInt64(&o.succeeded, 1) }
func (o *CounterObserver) OnFailure(entry model.Entity, err error)     { atomic.AddInt64(&o.failed, 1) }

// Succeeded and Failed report the running totals observed so far.
func (o *CounterObserver) Succeeded() int64 { return atomic.LoadInt64(&o.succeeded) }
func (o *CounterObserver) Failed() int64    { return atomic.LoadInt64(&o.failed) }

// Pipeline coordinates the configured extraction provider with a
// fallback-to-local contract: when the primary provider fails and fallback
// is allowed, the local heuristic provider runs instead of failing the
// whole entry. When fallback is disallowed, a primary-provider failure
// propagates to the caller (the synchronous-ingestion path).
type Pipeline struct {
	registry      *Registry
	observers     []Observer
	allowFallback bool
}

func NewPipeline(registry *Registry, allowFallback bool, observers ...Observer) *Pipeline {
	if len(observers) == 0 {
		observers = []Observer{NewLoggingObserver(logrus.NewEntry(logrus.StandardLogger()))}
	}
	return &Pipeline{registry: registry, observers: observers, allowFallback: allowFallback}
}

func (p *Pipeline) Run(ctx context.Context, entry model.Entity, metadata map[string]interface{}) (Result, error) {
	provider := p.registry.ExtractionProvider()

	result, err := provider.Extract(ctx, entry, metadata)
	if err == nil {
		p.notifySuccess(entry, result)
		return result, nil
	}

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) || !p.allowFallback {
		p.notifyFailure(entry, err)
		return Result{}, err
	}

	fallback := p.registry.FallbackLocal()
	result, fallbackErr := fallback.Extract(ctx, entry, metadata)
	if fallbackErr != nil {
		p.notifyFailure(entry, fallbackErr)
		return Result{}, fallbackErr
	}
	p.notifySuccess(entry, result)
	return result, nil
}

func (p *Pipeline) notifySuccess(entry model.Entity, result Result) {
	for _, o := range p.observers {
		o.OnSuccess(entry, result)
	}
}

func (p *Pipeline) notifyFailure(entry model.Entity, err error) {
	for _, o := range p.observers {
		o.OnFailure(entry, err)
	}
}
