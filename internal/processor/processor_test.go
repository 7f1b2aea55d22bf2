package processor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/concurrent-scraper/internal/metrics"
	"github.com/JakeFAU/concurrent-scraper/internal/progress"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestNewDefaultsToGOMAXPROCS(t *testing.T) {
	t.Parallel()

	require.Equal(t, runtime.GOMAXPROCS(0), New().Workers())
	require.Equal(t, 3, New(WithWorkers(3)).Workers())
	require.Equal(t, runtime.GOMAXPROCS(0), New(WithWorkers(0)).Workers())
}

func TestProcessAllSamplePage(t *testing.T) {
	t.Parallel()

	p := New()
	outcomes := p.ProcessAll(context.Background(), []string{samplePage})
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].OK())
	require.Equal(t, "Test Page", outcomes[0].Content.Title)
	require.Equal(t, []string{"https://example.com"}, outcomes[0].Content.Links)
	require.Contains(t, outcomes[0].Content.Text, "Hello World\nTest content")

	snap := p.Recorder().Snapshot()
	require.Equal(t, 1, snap.Successful)
	require.Zero(t, snap.Failed)
	require.Equal(t, int64(len(samplePage)), snap.TotalBytes)
	require.Contains(t, snap.Timings, "document/0")
	require.Contains(t, p.Summary(), "Total Requests: 1")
}

func TestProcessAllPreservesOrder(t *testing.T) {
	t.Parallel()

	docs := make([]string, 50)
	for i := range docs {
		docs[i] = fmt.Sprintf("<title>doc %d</title><a href=\"/%d\">x</a>", i, i)
	}
	p := New(WithWorkers(4))
	outcomes := p.ProcessAll(context.Background(), docs)
	require.Len(t, outcomes, len(docs))
	for i, o := range outcomes {
		require.True(t, o.OK())
		require.Equal(t, i, o.Index)
		require.Equal(t, fmt.Sprintf("doc %d", i), o.Content.Title)
		require.Equal(t, []string{fmt.Sprintf("/%d", i)}, o.Content.Links)
	}

	snap := p.Recorder().Snapshot()
	require.Equal(t, len(docs), snap.Successful)
	require.Len(t, snap.Timings, len(docs))
}

func TestProcessAllEmptyInput(t *testing.T) {
	t.Parallel()

	p := New()
	require.Empty(t, p.ProcessAll(context.Background(), nil))
	require.Contains(t, p.Summary(), "Average Duration: 0s")
}

func TestProcessAllCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(progress.WithBatchID(context.Background(), uuid.New()))
	cancel()
	emitter := &captureEmitter{}
	p := New(WithWorkers(1), WithEmitter(emitter))
	outcomes := p.ProcessAll(ctx, []string{samplePage, samplePage})
	for _, o := range outcomes {
		require.ErrorIs(t, o.Err, context.Canceled)
	}
	require.Equal(t, 2, p.Recorder().Snapshot().Failed)

	require.Equal(t, 2, emitter.Len())
	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	for _, evt := range emitter.events {
		require.Equal(t, progress.StageProcessDone, evt.Stage)
		require.False(t, evt.OK)
		require.Equal(t, context.Canceled.Error(), evt.Note)
	}
}

func TestProcessAllEmitsAndSharesRecorder(t *testing.T) {
	t.Parallel()

	recorder := metrics.NewRecorder()
	emitter := &captureEmitter{}
	p := New(WithRecorder(recorder), WithEmitter(emitter), WithLogger(nil))
	require.Same(t, recorder, p.Recorder())

	p.ProcessAll(context.Background(), []string{samplePage})
	require.Zero(t, emitter.Len())

	ctx := progress.WithBatchID(context.Background(), uuid.New())
	p.ProcessAll(ctx, []string{samplePage, "<p>x</p>"})
	require.Equal(t, 2, emitter.Len())
	require.Equal(t, 3, recorder.Snapshot().Successful)
}
