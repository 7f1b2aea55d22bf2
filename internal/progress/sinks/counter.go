package sinks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurrent-scraper/internal/progress"
)

// BatchCounts is the running tally for one batch.
type BatchCounts struct {
	Total       int
	Fetched     int
	FetchFailed int
	Processed   int
	Bytes       int64
	Done        bool
}

const defaultRetainFinished = 256

// CounterOption customizes a CounterSink.
type CounterOption func(*CounterSink)

// WithRetainFinished sets how many finished batches stay queryable. Older
// finished batches are evicted as new ones complete.
func WithRetainFinished(n int) CounterOption {
	return func(s *CounterSink) {
		if n > 0 {
			s.retain = n
		}
	}
}

// CounterSink keeps per-batch tallies and logs a line as each batch
// advances. Only the most recently finished batches are retained.
type CounterSink struct {
	logger *zap.Logger
	retain int

	mu       sync.Mutex
	batches  map[uuid.UUID]*BatchCounts
	finished []uuid.UUID
}

// NewCounterSink builds a CounterSink.
func NewCounterSink(logger *zap.Logger, opts ...CounterOption) *CounterSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CounterSink{
		logger:  logger,
		retain:  defaultRetainFinished,
		batches: make(map[uuid.UUID]*BatchCounts),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Consume folds the events into the per-batch tallies.
func (s *CounterSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		counts := s.countsFor(evt.BatchID)
		switch evt.Stage {
		case progress.StageBatchStart:
			counts.Total = evt.Total
		case progress.StageFetchDone:
			if evt.OK {
				counts.Fetched++
				counts.Bytes += evt.Bytes
			} else {
				counts.FetchFailed++
			}
			s.logger.Info("fetch progress",
				zap.Stringer("batch_id", evt.BatchID),
				zap.Int("done", counts.Fetched+counts.FetchFailed),
				zap.Int("total", counts.Total),
			)
		case progress.StageProcessDone:
			counts.Processed++
		case progress.StageBatchDone:
			if !counts.Done {
				counts.Done = true
				s.retire(evt.BatchID)
			}
			s.logger.Info("batch finished",
				zap.Stringer("batch_id", evt.BatchID),
				zap.Int("fetched", counts.Fetched),
				zap.Int("fetch_failed", counts.FetchFailed),
				zap.Int("processed", counts.Processed),
				zap.Int64("bytes", counts.Bytes),
				zap.Duration("elapsed", evt.Dur),
			)
		}
	}
	return nil
}

func (s *CounterSink) countsFor(id uuid.UUID) *BatchCounts {
	counts, ok := s.batches[id]
	if !ok {
		counts = &BatchCounts{}
		s.batches[id] = counts
	}
	return counts
}

// retire records id as finished and evicts the oldest finished batches
// beyond the retention limit. Callers hold s.mu.
func (s *CounterSink) retire(id uuid.UUID) {
	s.finished = append(s.finished, id)
	for len(s.finished) > s.retain {
		delete(s.batches, s.finished[0])
		s.finished = s.finished[1:]
	}
}

// Counts returns a copy of the tally for id.
func (s *CounterSink) Counts(id uuid.UUID) (BatchCounts, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts, ok := s.batches[id]
	if !ok {
		return BatchCounts{}, false
	}
	return *counts, true
}

// Forget drops the tally for id.
func (s *CounterSink) Forget(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches, id)
	for i, done := range s.finished {
		if done == id {
			s.finished = append(s.finished[:i], s.finished[i+1:]...)
			break
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *CounterSink) Close(context.Context) error {
	return nil
}
