// Package processor extracts structured content from fetched HTML documents
// on a bounded pool of workers.
package processor

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/concurrent-scraper/internal/metrics"
	"github.com/JakeFAU/concurrent-scraper/internal/progress"
)

// Outcome is the per-document result of ProcessAll.
type Outcome struct {
	Index    int           `json:"index"`
	Content  Content       `json:"content"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// OK reports whether extraction succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Option customizes a Processor.
type Option func(*Processor)

// WithWorkers sets the pool size. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithRecorder shares an existing Recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(p *Processor) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithEmitter publishes one PROCESS_DONE event per document.
func WithEmitter(e progress.Emitter) Option {
	return func(p *Processor) {
		if e != nil {
			p.emitter = e
		}
	}
}

// Processor runs Extract over many documents in parallel.
type Processor struct {
	workers  int
	recorder *metrics.Recorder
	logger   *zap.Logger
	emitter  progress.Emitter
}

// New builds a Processor sized to GOMAXPROCS unless WithWorkers overrides it.
func New(opts ...Option) *Processor {
	p := &Processor{
		workers:  runtime.GOMAXPROCS(0),
		recorder: metrics.NewRecorder(),
		logger:   zap.NewNop(),
		emitter:  progress.Discard,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the pool size.
func (p *Processor) Workers() int {
	return p.workers
}

// ProcessAll extracts every document and returns one Outcome per input, in
// input order. A failing document never affects the others. When ctx is
// canceled, documents not yet started fail with the context error.
func (p *Processor) ProcessAll(ctx context.Context, docs []string) []Outcome {
	p.recorder.StartOperation()
	outcomes := make([]Outcome, len(docs))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, doc := range docs {
		g.Go(func() error {
			outcomes[i] = p.processOne(ctx, i, doc)
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("process batch complete",
		zap.Int("documents", len(docs)),
		zap.Int("workers", p.workers),
		zap.Duration("elapsed", p.recorder.Elapsed()),
	)
	return outcomes
}

func (p *Processor) processOne(ctx context.Context, index int, doc string) Outcome {
	key := fmt.Sprintf("document/%d", index)
	if err := ctx.Err(); err != nil {
		p.recorder.RecordFailure(key, 0)
		metrics.ObserveProcess(metrics.ResultFailure, 0)
		p.emit(ctx, index, false, 0, 0, err.Error())
		return Outcome{Index: index, Err: err}
	}

	start := time.Now()
	content, err := Extract(doc)
	elapsed := time.Since(start)
	if err != nil {
		p.recorder.RecordFailure(key, elapsed)
		metrics.ObserveProcess(metrics.ResultFailure, elapsed)
		p.emit(ctx, index, false, 0, elapsed, err.Error())
		p.logger.Warn("document processing failed", zap.Int("index", index), zap.Error(err))
		return Outcome{Index: index, Duration: elapsed, Err: err}
	}

	p.recorder.RecordSuccess(key, elapsed, len(doc))
	metrics.ObserveProcess(metrics.ResultSuccess, elapsed)
	p.emit(ctx, index, true, len(doc), elapsed, "")
	return Outcome{Index: index, Content: content, Duration: elapsed}
}

func (p *Processor) emit(ctx context.Context, index int, ok bool, size int, dur time.Duration, note string) {
	id := progress.BatchIDFrom(ctx)
	if id == uuid.Nil {
		return
	}
	p.emitter.Emit(progress.Event{
		BatchID: id,
		Stage:   progress.StageProcessDone,
		Index:   index,
		Bytes:   int64(size),
		OK:      ok,
		Dur:     dur,
		Note:    note,
	})
}

// Summary renders the performance summary for every document processed so far.
func (p *Processor) Summary() string {
	return p.recorder.Summary()
}

// Recorder exposes the underlying Recorder.
func (p *Processor) Recorder() *metrics.Recorder {
	return p.recorder
}
