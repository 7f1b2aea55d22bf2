package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
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
)

const testConfigYAML = `
logging:
  development: false
  level: error
progress:
  enabled: true
  max_batch_wait: 10ms
urls:
  - https://example.com/one
  - https://example.com/two
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scraper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func fakeFactory(calls *atomic.Int32) appFactory {
	transport := fetcher.TransportFunc(func(_ context.Context, url string) (fetcher.Response, error) {
		calls.Add(1)
		if strings.Contains(url, "bad") {
			return fetcher.Response{}, errors.New("connection refused")
		}
		body := `<html><head><title>T</title></head><body><h1>Hi</h1><a href="/a">a</a></body></html>`
		return fetcher.Response{StatusCode: 200, Body: []byte(body)}, nil
	})
	return func(cfg config.Config, _ *zap.Logger) (App, error) {
		a, err := app.New(cfg, zap.NewNop(),
			app.WithTransport(transport),
			app.WithRegisterer(prometheus.NewRegistry()),
		)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

func execute(t *testing.T, factory appFactory, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(factory)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScrapePrintsReport(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	cfgPath := writeConfig(t, testConfigYAML)
	out, err := execute(t, fakeFactory(&calls), "--config", cfgPath,
		"scrape", "--max-concurrent", "2", "https://ok/1", "https://bad/2", "https://ok/3")
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, out, "Starting concurrent fetch of 3 URLs (max 2 in flight)")
	assert.Contains(t, out, "Fetch Metrics:")
	assert.Contains(t, out, "Total Requests: 3")
	assert.Contains(t, out, "Failed fetches:")
	assert.Contains(t, out, "https://bad/2: request failed: connection refused")
	assert.Contains(t, out, "Processing Metrics:")
	assert.Contains(t, out, "Results Summary:")
	assert.Contains(t, out, "Page 1: Title: 'T', 1 links found, Content length: 2 chars")
	assert.Contains(t, out, "Page 2: Title: 'T', 1 links found, Content length: 2 chars")
	assert.NotContains(t, out, "Page 3:")
}

func TestScrapeDefaultsToConfiguredURLs(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	cfgPath := writeConfig(t, testConfigYAML)
	out, err := execute(t, fakeFactory(&calls), "--config", cfgPath, "scrape")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, out, "Starting concurrent fetch of 2 URLs (max 3 in flight)")
}

func TestScrapeRejectsNegativeConcurrency(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	cfgPath := writeConfig(t, testConfigYAML)
	_, err := execute(t, fakeFactory(&calls), "--config", cfgPath, "scrape", "--max-concurrent=-1", "https://ok")
	require.ErrorIs(t, err, fetcher.ErrInvalidConcurrency)
	assert.Zero(t, calls.Load())
}

func TestDownloadWritesFiles(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	outDir := t.TempDir()
	cfgPath := writeConfig(t, testConfigYAML)
	out, err := execute(t, fakeFactory(&calls), "--config", cfgPath,
		"download", "--out", outDir, "https://ok/page.html", "https://bad/missing.html")
	require.NoError(t, err)

	assert.Contains(t, out, "Downloaded: https://ok/page.html")
	assert.Contains(t, out, "Error downloading https://bad/missing.html")

	matches, err := filepath.Glob(filepath.Join(outDir, "*", "page.html"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	body, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "<title>T</title>")
}

func TestInvalidConfigFails(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	cfgPath := writeConfig(t, "fetch:\n  max_concurrent: 0\n")
	_, err := execute(t, fakeFactory(&calls), "--config", cfgPath, "scrape", "https://ok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent")
}

func TestFactoryErrorIsReported(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, testConfigYAML)
	failing := func(config.Config, *zap.Logger) (App, error) {
		return nil, errors.New("no network")
	}
	_, err := execute(t, failing, "--config", cfgPath, "scrape", "https://ok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize application services")
}

func TestBatchURLs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a"}, batchURLs([]string{"a"}, config.Config{URLs: []string{"b"}}))
	assert.Equal(t, []string{"b"}, batchURLs(nil, config.Config{URLs: []string{"b"}}))
	assert.Equal(t, config.DefaultURLs, batchURLs(nil, config.Config{}))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, srv, ln, zap.NewNop())
	}()

	url := fmt.Sprintf("http://%s/healthz", ln.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:gosec,noctx // local test server
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
