// Package dispatch runs the extraction pipeline for one entry at a time in
// the background (C8), adapted from the teacher's generic worker pool down
// to this service's single-job-per-entry shape: there is no durable queue
// to persist across restarts, only an in-process, bounded-concurrency fan
// out of goroutines - matching the original ingestion flow's use of
// best-effort background tasks rather than a job broker.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/briangormanly/momento/apperr"
	"github.com/briangormanly/momento/extraction"
	"github.com/briangormanly/momento/model"
)

// enqueueTimeout bounds how long Enqueue will wait for a free queue slot
// before giving up. It must stay well under typical client-facing HTTP
// timeouts so a full queue degrades to a fast 503 instead of a hung request.
const enqueueTimeout = 2 * time.Second

// Job is one unit of deferred extraction work.
type Job struct {
	Entry    model.Entity
	Metadata map[string]interface{}
}

// ResultHandler is invoked with a job's outcome once its pipeline run
// completes, successfully or not.
type ResultHandler func(ctx context.Context, entry model.Entity, result extraction.Result, err error)

// Dispatcher bounds how many extraction pipeline runs execute concurrently
// and fires a ResultHandler for each job's outcome.
type Dispatcher struct {
	pipeline  *extraction.Pipeline
	onResult  ResultHandler
	log       *logrus.Entry
	jobs      chan Job
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDispatcher builds a Dispatcher whose bounded job queue holds four jobs
// per worker; the number of worker goroutines is set by Start. Call Start
// before Enqueue.
func NewDispatcher(pipeline *extraction.Pipeline, workers int, onResult ResultHandler, log *logrus.Entry) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		pipeline: pipeline,
		onResult: onResult,
		log:      log.WithField("component", "dispatcher"),
		jobs:     make(chan Job, workers*4),
	}
}

// Start spins up the configured number of worker goroutines. It returns
// immediately; workers run until ctx is canceled or the job channel is
// closed and drained.
func (d *Dispatcher) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.runWorker(ctx, i)
	}
}

func (d *Dispatcher) runWorker(ctx context.Context, id int) {
	defer d.wg.Done()
	log := d.log.WithField("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-d.jobs:
			if !ok {
				return
			}
			d.runJob(ctx, log, job)
		}
	}
}

func (d *Dispatcher) runJob(ctx context.Context, log *logrus.Entry, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{"entry_id": job.Entry.ID, "panic": r}).Error("extraction job panicked")
		}
	}()

	result, err := d.pipeline.Run(ctx, job.Entry, job.Metadata)
	if d.onResult != nil {
		d.onResult(ctx, job.Entry, result, err)
	}
}

// Enqueue schedules a job for background processing. It never runs the
// pipeline on the calling goroutine: spec.md's deferred-mode invariant
// requires the HTTP 202 response to be written before any extraction-provider
// call, so a full queue is handled by waiting briefly for a free slot and,
// failing that, rejecting the job rather than running it inline.
func (d *Dispatcher) Enqueue(ctx context.Context, job Job) error {
	select {
	case d.jobs <- job:
		return nil
	default:
	}

	timer := time.NewTimer(enqueueTimeout)
	defer timer.Stop()
	select {
	case d.jobs <- job:
		return nil
	case <-timer.C:
		d.log.WithField("entry_id", job.Entry.ID).Warn("dispatch queue full, rejecting job")
		return apperr.New(apperr.KindOverloaded, "background extraction queue is full")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the job queue and waits for in-flight workers to finish.
func (d *Dispatcher) Stop() {
	d.closeOnce.Do(func() { close(d.jobs) })
	d.wg.Wait()
}
