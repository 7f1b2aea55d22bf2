// Package downloader saves fetched URLs to a blob store, one object per URL.
package downloader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/concurrent-scraper/internal/fetcher"
	"github.com/JakeFAU/concurrent-scraper/internal/id"
	"github.com/JakeFAU/concurrent-scraper/internal/progress"
	"github.com/JakeFAU/concurrent-scraper/internal/storage"
)

const (
	defaultFilename    = "index.html"
	defaultWriteLimit  = 8
	defaultContentType = "application/octet-stream"
)

// BatchFetcher is the fetch stage used for downloads.
type BatchFetcher interface {
	FetchAll(ctx context.Context, urls []string) []fetcher.Outcome
}

// Result describes one download.
type Result struct {
	URL    string `json:"url"`
	Path   string `json:"path"`
	URI    string `json:"uri,omitempty"`
	Bytes  int    `json:"bytes"`
	SHA256 string `json:"sha256,omitempty"`
	Err    error  `json:"-"`
}

// OK reports whether the object was fetched and stored.
func (r Result) OK() bool {
	return r.Err == nil
}

// Batch is the outcome of DownloadAll.
type Batch struct {
	ID      uuid.UUID     `json:"id"`
	Results []Result      `json:"results"`
	Elapsed time.Duration `json:"elapsed"`
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Downloader) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithEmitter publishes BATCH_START and BATCH_DONE events.
func WithEmitter(e progress.Emitter) Option {
	return func(d *Downloader) {
		if e != nil {
			d.emitter = e
		}
	}
}

// WithWriteLimit caps concurrent blob writes.
func WithWriteLimit(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.writeLimit = n
		}
	}
}

// Downloader fetches URLs through a BatchFetcher and writes each body to a
// BlobStore under <batch id>/<file name>.
type Downloader struct {
	fetcher    BatchFetcher
	store      storage.BlobStore
	logger     *zap.Logger
	emitter    progress.Emitter
	writeLimit int
	completed  atomic.Int64
	newID      func() uuid.UUID
}

// New builds a Downloader.
func New(f BatchFetcher, store storage.BlobStore, opts ...Option) *Downloader {
	d := &Downloader{
		fetcher:    f,
		store:      store,
		logger:     zap.NewNop(),
		emitter:    progress.Discard,
		writeLimit: defaultWriteLimit,
		newID:      id.New,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Completed returns how many objects have been stored over the
// Downloader's lifetime.
func (d *Downloader) Completed() int64 {
	return d.completed.Load()
}

// DownloadAll fetches every URL and stores each successful body. Results are
// aligned with urls; fetch and storage failures are reported per item.
func (d *Downloader) DownloadAll(ctx context.Context, urls []string) Batch {
	start := time.Now()
	batch := Batch{ID: d.newID(), Results: make([]Result, len(urls))}
	ctx = progress.WithBatchID(ctx, batch.ID)
	d.emitter.Emit(progress.Event{
		BatchID: batch.ID,
		Stage:   progress.StageBatchStart,
		Total:   len(urls),
	})

	names := ObjectNames(urls)
	outcomes := d.fetcher.FetchAll(ctx, urls)

	var g errgroup.Group
	g.SetLimit(d.writeLimit)
	for i, o := range outcomes {
		objectPath := path.Join(batch.ID.String(), names[i])
		batch.Results[i] = Result{URL: o.URL, Path: objectPath}
		if !o.OK() {
			batch.Results[i].Err = o.Err
			continue
		}
		g.Go(func() error {
			batch.Results[i] = d.storeOne(ctx, objectPath, o)
			return nil
		})
	}
	_ = g.Wait()

	batch.Elapsed = time.Since(start)
	stored := countOK(batch.Results)
	d.emitter.Emit(progress.Event{
		BatchID: batch.ID,
		Stage:   progress.StageBatchDone,
		Total:   len(urls),
		OK:      stored == len(urls),
		Dur:     batch.Elapsed,
	})
	d.logger.Info("downloads completed",
		zap.Stringer("batch_id", batch.ID),
		zap.Int("requested", len(urls)),
		zap.Int("stored", stored),
		zap.Int64("completed_total", d.completed.Load()),
		zap.Duration("elapsed", batch.Elapsed),
	)
	return batch
}

func (d *Downloader) storeOne(ctx context.Context, objectPath string, o fetcher.Outcome) Result {
	sum := sha256.Sum256(o.Body)
	res := Result{
		URL:    o.URL,
		Path:   objectPath,
		Bytes:  len(o.Body),
		SHA256: hex.EncodeToString(sum[:]),
	}
	uri, err := d.store.PutObject(ctx, objectPath, contentType(o.Body), bytes.NewReader(o.Body))
	if err != nil {
		res.Err = fmt.Errorf("store %s: %w", objectPath, err)
		d.logger.Warn("store failed", zap.String("url", o.URL), zap.Error(err))
		return res
	}
	res.URI = uri
	d.completed.Add(1)
	return res
}

func contentType(body []byte) string {
	if len(body) == 0 {
		return defaultContentType
	}
	return http.DetectContentType(body)
}

func countOK(results []Result) int {
	n := 0
	for _, r := range results {
		if r.OK() {
			n++
		}
	}
	return n
}

// FileName returns the last path segment of rawURL, or index.html when the
// URL has no usable segment.
func FileName(rawURL string) string {
	var segment string
	if u, err := url.Parse(rawURL); err == nil {
		segment = path.Base(u.Path)
	} else {
		segment = rawURL[strings.LastIndex(rawURL, "/")+1:]
	}
	switch segment {
	case "", ".", "..", "/":
		return defaultFilename
	}
	return segment
}

// ObjectNames maps each URL to a file name, suffixing repeats with -1, -2 and
// so on so that no two URLs in a batch share an object.
func ObjectNames(urls []string) []string {
	names := make([]string, len(urls))
	used := make(map[string]bool, len(urls))
	for i, u := range urls {
		name := FileName(u)
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		used[name] = true
		names[i] = name
	}
	return names
}
