// Package fetcher downloads batches of URLs concurrently while keeping at
// most MaxConcurrent requests in flight.
package fetcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurrent-scraper/internal/gate"
	"github.com/JakeFAU/concurrent-scraper/internal/metrics"
	"github.com/JakeFAU/concurrent-scraper/internal/progress"
)

// Config bounds a Fetcher.
type Config struct {
	// MaxConcurrent is the admission gate capacity; it must be positive.
	MaxConcurrent int
	// RequestTimeout, when positive, caps each individual GET.
	RequestTimeout time.Duration
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithRecorder shares an existing Recorder instead of allocating one.
func WithRecorder(r *metrics.Recorder) Option {
	return func(f *Fetcher) {
		if r != nil {
			f.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEmitter publishes one FETCH_DONE event per completed request.
func WithEmitter(e progress.Emitter) Option {
	return func(f *Fetcher) {
		if e != nil {
			f.emitter = e
		}
	}
}

// Fetcher runs bounded concurrent GETs through a Transport.
type Fetcher struct {
	cfg       Config
	transport Transport
	gate      *gate.Gate
	recorder  *metrics.Recorder
	logger    *zap.Logger
	emitter   progress.Emitter
}

// New builds a Fetcher. It fails with ErrInvalidConcurrency when
// cfg.MaxConcurrent is not positive.
func New(cfg Config, transport Transport, opts ...Option) (*Fetcher, error) {
	if cfg.MaxConcurrent <= 0 {
		return nil, ErrInvalidConcurrency
	}
	if transport == nil {
		return nil, errors.New("fetcher transport is required")
	}
	g, err := gate.New(cfg.MaxConcurrent)
	if err != nil {
		return nil, err
	}
	f := &Fetcher{
		cfg:       cfg,
		transport: transport,
		gate:      g,
		recorder:  metrics.NewRecorder(),
		logger:    zap.NewNop(),
		emitter:   progress.Discard,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// FetchAll fetches every URL and returns one Outcome per input, in input
// order. Duplicates are fetched once per occurrence. Individual failures are
// reported in their Outcome and never abort the batch.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Outcome {
	f.recorder.StartOperation()
	outcomes := make([]Outcome, len(urls))

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = f.fetchOne(ctx, i, url)
		}()
	}
	wg.Wait()

	f.logger.Info("fetch batch complete",
		zap.Int("urls", len(urls)),
		zap.Int("high_water", f.gate.HighWater()),
		zap.Duration("elapsed", f.recorder.Elapsed()),
	)
	return outcomes
}

func (f *Fetcher) fetchOne(ctx context.Context, index int, url string) Outcome {
	if err := f.gate.Acquire(ctx); err != nil {
		f.logger.Warn("admission denied", zap.String("url", url), zap.Error(err))
		return Outcome{URL: url, Err: &Error{Kind: KindAdmission, URL: url, Err: err}}
	}
	defer f.gate.Release()

	reqCtx := ctx
	if f.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := f.transport.Get(reqCtx, url)
	elapsed := time.Since(start)
	if err != nil {
		f.recorder.RecordFailure(url, elapsed)
		metrics.ObserveFetch(url, metrics.ResultFailure, 0, elapsed)
		f.emit(ctx, index, url, false, 0, elapsed, err.Error())
		f.logger.Warn("fetch failed",
			zap.String("url", url),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return Outcome{
			URL:      url,
			Duration: elapsed,
			Err:      &Error{Kind: KindTransport, URL: url, Err: err},
		}
	}

	size := len(resp.Body)
	f.recorder.RecordSuccess(url, elapsed, size)
	metrics.ObserveFetch(url, metrics.ResultSuccess, size, elapsed)
	f.emit(ctx, index, url, true, size, elapsed, "")
	f.logger.Debug("fetched",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", size),
		zap.Duration("duration", elapsed),
	)
	return Outcome{
		URL:        url,
		Content:    decodeLossy(resp.Body),
		Body:       resp.Body,
		Bytes:      size,
		StatusCode: resp.StatusCode,
		Duration:   elapsed,
	}
}

func (f *Fetcher) emit(ctx context.Context, index int, url string, ok bool, size int, dur time.Duration, note string) {
	id := progress.BatchIDFrom(ctx)
	if id == uuid.Nil {
		return
	}
	f.emitter.Emit(progress.Event{
		BatchID: id,
		Stage:   progress.StageFetchDone,
		Site:    metrics.SanitizeSite(url),
		URL:     url,
		Index:   index,
		Bytes:   int64(size),
		OK:      ok,
		Dur:     dur,
		Note:    note,
	})
}

// Summary renders the performance summary for everything fetched so far.
func (f *Fetcher) Summary() string {
	return f.recorder.Summary()
}

// Recorder exposes the underlying Recorder.
func (f *Fetcher) Recorder() *metrics.Recorder {
	return f.recorder
}

// Close shuts the admission gate. Later fetches fail with
// ErrAdmissionUnavailable; requests already admitted run to completion.
func (f *Fetcher) Close() {
	f.gate.Close()
}

// HighWater reports the peak number of simultaneous requests.
func (f *Fetcher) HighWater() int {
	return f.gate.HighWater()
}
