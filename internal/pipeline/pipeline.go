// Package pipeline runs a fetch stage followed by a processing stage over
// one batch of URLs and assembles the combined report.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurrent-scraper/internal/fetcher"
	"github.com/JakeFAU/concurrent-scraper/internal/id"
	"github.com/JakeFAU/concurrent-scraper/internal/processor"
	"github.com/JakeFAU/concurrent-scraper/internal/progress"
)

// Fetcher is the fetch stage.
type Fetcher interface {
	FetchAll(ctx context.Context, urls []string) []fetcher.Outcome
	Summary() string
}

// Processor is the processing stage.
type Processor interface {
	ProcessAll(ctx context.Context, docs []string) []processor.Outcome
	Summary() string
}

// ProcessedPage pairs a successfully fetched URL with its processing outcome.
type ProcessedPage struct {
	URL     string            `json:"url"`
	Outcome processor.Outcome `json:"outcome"`
}

// Report is the result of one Run.
type Report struct {
	BatchID        uuid.UUID         `json:"batch_id"`
	Fetched        []fetcher.Outcome `json:"fetched"`
	FetchSummary   string            `json:"fetch_summary"`
	Processed      []ProcessedPage   `json:"processed"`
	ProcessSummary string            `json:"process_summary"`
	FetchElapsed   time.Duration     `json:"fetch_elapsed"`
	ProcessElapsed time.Duration     `json:"process_elapsed"`
	Elapsed        time.Duration     `json:"elapsed"`
}

// Lines renders one line per processed page, numbered from 1.
func (r Report) Lines() []string {
	lines := make([]string, 0, len(r.Processed))
	for i, page := range r.Processed {
		o := page.Outcome
		if !o.OK() {
			lines = append(lines, fmt.Sprintf("Page %d: Error processing content: %v", i+1, o.Err))
			continue
		}
		lines = append(lines, fmt.Sprintf("Page %d: Title: '%s', %d links found, Content length: %d chars",
			i+1, o.Content.Title, len(o.Content.Links), len(o.Content.Text)))
	}
	return lines
}

// FetchFailures returns the outcomes of every failed fetch.
func (r Report) FetchFailures() []fetcher.Outcome {
	var failed []fetcher.Outcome
	for _, o := range r.Fetched {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithEmitter publishes BATCH_START and BATCH_DONE events.
func WithEmitter(e progress.Emitter) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.emitter = e
		}
	}
}

// Pipeline wires a fetch stage to a processing stage.
type Pipeline struct {
	fetcher   Fetcher
	processor Processor
	logger    *zap.Logger
	emitter   progress.Emitter
	newID     func() uuid.UUID
}

// New builds a Pipeline.
func New(f Fetcher, p Processor, opts ...Option) *Pipeline {
	pl := &Pipeline{
		fetcher:   f,
		processor: p,
		logger:    zap.NewNop(),
		emitter:   progress.Discard,
		newID:     id.New,
	}
	for _, opt := range opts {
		opt(pl)
	}
	return pl
}

// Run fetches urls, processes the successful bodies in input order, and
// returns both stages' results and summaries.
func (p *Pipeline) Run(ctx context.Context, urls []string) Report {
	report := Report{BatchID: p.newID()}
	ctx = progress.WithBatchID(ctx, report.BatchID)
	logger := p.logger.With(zap.Stringer("batch_id", report.BatchID))

	p.emitter.Emit(progress.Event{
		BatchID: report.BatchID,
		Stage:   progress.StageBatchStart,
		Total:   len(urls),
	})
	logger.Info("batch started", zap.Int("urls", len(urls)))

	start := time.Now()
	report.Fetched = p.fetcher.FetchAll(ctx, urls)
	report.FetchElapsed = time.Since(start)
	report.FetchSummary = p.fetcher.Summary()

	var (
		docs  []string
		pages []string
	)
	for _, o := range report.Fetched {
		if !o.OK() {
			logger.Warn("fetch failed", zap.String("url", o.URL), zap.Error(o.Err))
			continue
		}
		docs = append(docs, o.Content)
		pages = append(pages, o.URL)
	}

	processStart := time.Now()
	processed := p.processor.ProcessAll(ctx, docs)
	report.ProcessElapsed = time.Since(processStart)
	report.ProcessSummary = p.processor.Summary()

	report.Processed = make([]ProcessedPage, len(processed))
	for i, o := range processed {
		report.Processed[i] = ProcessedPage{URL: pages[i], Outcome: o}
		if o.OK() {
			logger.Debug("page processed",
				zap.String("url", pages[i]),
				zap.String("title", o.Content.Title),
				zap.Int("links", len(o.Content.Links)),
			)
		} else {
			logger.Warn("page processing failed", zap.String("url", pages[i]), zap.Error(o.Err))
		}
	}
	report.Elapsed = time.Since(start)

	p.emitter.Emit(progress.Event{
		BatchID: report.BatchID,
		Stage:   progress.StageBatchDone,
		Total:   len(urls),
		OK:      len(report.FetchFailures()) == 0,
		Dur:     report.Elapsed,
	})
	logger.Info("batch finished",
		zap.Int("fetched", len(docs)),
		zap.Int("processed", len(processed)),
		zap.Duration("fetch_elapsed", report.FetchElapsed),
		zap.Duration("process_elapsed", report.ProcessElapsed),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report
}
