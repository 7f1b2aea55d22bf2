package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/concurrent-scraper/internal/fetcher"
	"github.com/JakeFAU/concurrent-scraper/internal/progress"
	"github.com/JakeFAU/concurrent-scraper/internal/storage/memory"
)

func TestFileName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://example.com/docs/README.md":      "README.md",
		"https://example.com/":                    "index.html",
		"https://example.com":                     "index.html",
		"https://example.com/a/b/?q=1":            "b",
		"https://example.com/file.txt?download=1": "file.txt",
		"bad1":                                    "bad1",
		"":                                        "index.html",
	}
	for in, want := range cases {
		require.Equal(t, want, FileName(in), in)
	}
}

func TestObjectNamesDisambiguatesRepeats(t *testing.T) {
	t.Parallel()

	got := ObjectNames([]string{
		"https://a.test/README.md",
		"https://b.test/README.md",
		"https://a.test/",
		"https://c.test/README-1.md",
		"https://d.test/README.md",
		"https://b.test/",
	})
	require.Equal(t, []string{
		"README.md",
		"README-1.md",
		"index.html",
		"README-1-1.md",
		"README-2.md",
		"index-1.html",
	}, got)
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}

func newFetcher(t *testing.T, pages map[string]string) *fetcher.Fetcher {
	t.Helper()
	transport := fetcher.TransportFunc(func(_ context.Context, url string) (fetcher.Response, error) {
		body, ok := pages[url]
		if !ok {
			return fetcher.Response{}, errors.New("connection refused")
		}
		return fetcher.Response{StatusCode: 200, Body: []byte(body)}, nil
	})
	f, err := fetcher.New(fetcher.Config{MaxConcurrent: 2}, transport)
	require.NoError(t, err)
	return f
}

func TestDownloadAllStoresSuccessfulBodies(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"https://a.test/README.md": "# readme",
		"https://b.test/":          "<html>home</html>",
	}
	store := memory.NewBlobStore()
	d := New(newFetcher(t, pages), store, WithWriteLimit(1), WithLogger(nil))
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	d.newID = func() uuid.UUID { return id }

	batch := d.DownloadAll(context.Background(), []string{
		"https://a.test/README.md",
		"https://missing.test/x.txt",
		"https://b.test/",
		"https://a.test/README.md",
	})
	require.Equal(t, id, batch.ID)
	require.Len(t, batch.Results, 4)

	first := batch.Results[0]
	require.True(t, first.OK())
	require.Equal(t, id.String()+"/README.md", first.Path)
	require.Equal(t, "memory://"+id.String()+"/README.md", first.URI)
	require.Equal(t, len("# readme"), first.Bytes)
	sum := sha256.Sum256([]byte("# readme"))
	require.Equal(t, hex.EncodeToString(sum[:]), first.SHA256)

	require.False(t, batch.Results[1].OK())
	require.ErrorIs(t, batch.Results[1].Err, fetcher.ErrTransport)
	require.Empty(t, batch.Results[1].URI)

	require.Equal(t, id.String()+"/index.html", batch.Results[2].Path)
	require.Equal(t, id.String()+"/README-1.md", batch.Results[3].Path)

	data, ok := store.Get(id.String() + "/index.html")
	require.True(t, ok)
	require.Equal(t, "<html>home</html>", string(data))
	require.Len(t, store.Paths(), 3)
	require.Equal(t, int64(3), d.Completed())

	d.DownloadAll(context.Background(), []string{"https://b.test/"})
	require.Equal(t, int64(4), d.Completed())
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func TestDownloadAllEmitsBatchBoundaries(t *testing.T) {
	t.Parallel()

	rec := &captureEmitter{}
	d := New(newFetcher(t, map[string]string{"https://a.test/x": "x"}), memory.NewBlobStore(), WithEmitter(rec))
	batch := d.DownloadAll(context.Background(), []string{"https://a.test/x", "https://missing.test/y"})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 2)
	start, done := rec.events[0], rec.events[1]
	require.Equal(t, progress.StageBatchStart, start.Stage)
	require.Equal(t, batch.ID, start.BatchID)
	require.Equal(t, 2, start.Total)
	require.Equal(t, progress.StageBatchDone, done.Stage)
	require.Equal(t, batch.ID, done.BatchID)
	require.Equal(t, 2, done.Total)
	require.False(t, done.OK)
}

func TestDownloadAllReportsStorageFailures(t *testing.T) {
	t.Parallel()

	d := New(newFetcher(t, map[string]string{"https://a.test/x": "x"}), failingStore{})
	batch := d.DownloadAll(context.Background(), []string{"https://a.test/x"})
	require.Len(t, batch.Results, 1)
	require.ErrorContains(t, batch.Results[0].Err, "disk full")
	require.NotEmpty(t, batch.Results[0].SHA256)
	require.Zero(t, d.Completed())
}

func TestContentType(t *testing.T) {
	t.Parallel()

	require.Equal(t, "application/octet-stream", contentType(nil))
	require.True(t, strings.HasPrefix(contentType([]byte("<html><body>x</body></html>")), "text/html"))
}
