package dispatch

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangormanly/momento/config"
	"github.com/briangormanly/momento/extraction"
	"github.com/briangormanly/momento/model"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestDispatcherRunsJobAndInvokesResultHandler(t *testing.T) {
	registry := extraction.NewRegistry(config.ExtractionConfig{Provider: "local"}, discardLogger())
	pipeline := extraction.NewPipeline(registry, true)

	var mu sync.Mutex
	var gotEntry model.Entity
	var gotErr error
	done := make(chan struct{})

	dispatcher := NewDispatcher(pipeline, 2, func(ctx context.Context, entry model.Entity, result extraction.Result, err error) {
		mu.Lock()
		gotEntry = entry
		gotErr = err
		mu.Unlock()
		close(done)
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx, 2)
	defer dispatcher.Stop()

	entry, err := model.NewEntity(model.Entity{
		SystemLabels: []model.SystemLabel{model.SystemLabelEntry},
		Content:      &model.ContentBlock{Format: model.ContentFormatText, Body: "Brian visited Twilight Florist."},
	})
	require.NoError(t, err)

	err = dispatcher.Enqueue(ctx, Job{Entry: *entry})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatcher result")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NoError(t, gotErr)
	assert.Equal(t, entry.ID, gotEntry.ID)
}

// TestDispatcherEnqueueNeverRunsPipelineOnCallingGoroutine guards the
// deferred-mode invariant that the caller gets control back (so the HTTP
// handler can write its response) before any extraction-provider call runs.
// With no workers started, the job channel never drains; Enqueue must give
// up once its caller-supplied context is done rather than fall back to
// running the pipeline inline.
func TestDispatcherEnqueueNeverRunsPipelineOnCallingGoroutine(t *testing.T) {
	registry := extraction.NewRegistry(config.ExtractionConfig{Provider: "local"}, discardLogger())
	pipeline := extraction.NewPipeline(registry, true)

	var calls int32
	dispatcher := NewDispatcher(pipeline, 1, func(ctx context.Context, entry model.Entity, result extraction.Result, err error) {
		atomic.AddInt32(&calls, 1)
	}, discardLogger())
	// Do not Start workers: the job channel (capacity workers*4 = 4) never
	// drains, so every Enqueue past capacity must wait for a slot and then
	// give up - never execute the pipeline on this goroutine.

	entry, err := model.NewEntity(model.Entity{SystemLabels: []model.SystemLabel{model.SystemLabelEntry}, Metadata: map[string]interface{}{"k": "v"}})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, dispatcher.Enqueue(context.Background(), Job{Entry: *entry}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = dispatcher.Enqueue(ctx, Job{Entry: *entry})
	require.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls), "Enqueue must never run the pipeline on the calling goroutine")
}
