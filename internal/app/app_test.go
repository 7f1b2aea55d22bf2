package app_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurrent-scraper/internal/app"
	"github.com/JakeFAU/concurrent-scraper/internal/config"
	"github.com/JakeFAU/concurrent-scraper/internal/fetcher"
	"github.com/JakeFAU/concurrent-scraper/internal/storage"
	"github.com/JakeFAU/concurrent-scraper/internal/storage/memory"
)

func testConfig() config.Config {
	return config.Config{
		Fetch: config.FetchConfig{
			MaxConcurrent:  2,
			RequestTimeout: time.Second,
		},
		Progress: config.ProgressConfig{
			Enabled:      true,
			BufferSize:   64,
			MaxBatchWait: 10 * time.Millisecond,
		},
		Storage: storage.Config{Backend: storage.BackendMemory},
		Server:  config.ServerConfig{Port: 8080},
		Logging: config.LoggingConfig{Level: "info"},
	}
}

func pageTransport(calls *atomic.Int32) fetcher.TransportFunc {
	return func(_ context.Context, url string) (fetcher.Response, error) {
		if calls != nil {
			calls.Add(1)
		}
		if strings.Contains(url, "bad") {
			return fetcher.Response{}, errors.New("connection refused")
		}
		body := fmt.Sprintf(`<html><head><title>%s</title></head><body><p>hello world!</p><a href="/x">x</a></body></html>`, url)
		return fetcher.Response{StatusCode: 200, Body: []byte(body)}, nil
	}
}

func newTestApp(t *testing.T, cfg config.Config, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithTransport(pageTransport(nil)),
		app.WithRegisterer(prometheus.NewRegistry()),
	}, opts...)
	a, err := app.New(cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close(context.Background())
	})
	return a
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Fetch.MaxConcurrent = 0
	_, err := app.New(cfg, zap.NewNop(), app.WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
}

func TestRunBatch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	a := newTestApp(t, testConfig(), app.WithTransport(pageTransport(&calls)))

	report, err := a.RunBatch(context.Background(), []string{"https://ok1", "https://bad1", "https://ok2"}, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, report.Fetched, 3)
	require.Len(t, report.Processed, 2)
	assert.Equal(t, []string{
		"Page 1: Title: 'https://ok1', 1 links found, Content length: 12 chars",
		"Page 2: Title: 'https://ok2', 1 links found, Content length: 12 chars",
	}, report.Lines())
	assert.Contains(t, report.FetchSummary, "Total Requests: 3")
	assert.Contains(t, report.FetchSummary, "Successful: 2")
}

func TestRunBatchRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	_, err := a.RunBatch(context.Background(), nil, 0)
	require.ErrorIs(t, err, app.ErrNoURLs)
}

func TestRunBatchRejectsNegativeConcurrency(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	_, err := a.RunBatch(context.Background(), []string{"https://ok"}, -1)
	require.ErrorIs(t, err, fetcher.ErrInvalidConcurrency)
}

func TestBatchProgressTracksRun(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	report, err := a.RunBatch(context.Background(), []string{"https://ok1", "https://bad1"}, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		counts, ok := a.BatchProgress(report.BatchID)
		return ok && counts.Done
	}, time.Second, 10*time.Millisecond)

	counts, _ := a.BatchProgress(report.BatchID)
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 1, counts.Fetched)
	assert.Equal(t, 1, counts.FetchFailed)
	assert.Equal(t, 1, counts.Processed)
}

func TestBatchProgressDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Progress.Enabled = false
	a := newTestApp(t, cfg)
	report, err := a.RunBatch(context.Background(), []string{"https://ok"}, 0)
	require.NoError(t, err)

	_, ok := a.BatchProgress(report.BatchID)
	assert.False(t, ok)
}

func TestDownloadWritesToStore(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	a := newTestApp(t, testConfig(), app.WithStore(store))

	batch, err := a.Download(context.Background(), []string{"https://example.com/a.html", "https://bad/b.html"}, 0)
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)
	assert.True(t, batch.Results[0].OK())
	assert.False(t, batch.Results[1].OK())

	body, ok := store.Get(batch.ID.String() + "/a.html")
	require.True(t, ok)
	assert.Contains(t, string(body), "<title>https://example.com/a.html</title>")
}

func TestBatchProgressTracksDownload(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), app.WithStore(memory.NewBlobStore()))
	batch, err := a.Download(context.Background(), []string{"https://example.com/a.html", "https://bad/b.html"}, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		counts, ok := a.BatchProgress(batch.ID)
		return ok && counts.Done
	}, time.Second, 10*time.Millisecond)

	counts, _ := a.BatchProgress(batch.ID)
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 1, counts.Fetched)
	assert.Equal(t, 1, counts.FetchFailed)
	assert.Zero(t, counts.Processed)
}

func TestStoreBuiltFromConfig(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	first, err := a.Store(context.Background())
	require.NoError(t, err)
	second, err := a.Store(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}
