package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/concurrent-scraper/internal/progress"
)

// PrometheusSink exports batch lifecycle metrics. Per-request fetch metrics
// live in the metrics package; this sink only tracks whole batches.
type PrometheusSink struct {
	batchesStarted   prometheus.Counter
	batchesCompleted prometheus.Counter
	batchesRunning   prometheus.Gauge
	batchRuntime     prometheus.Histogram
	batchSize        prometheus.Histogram

	tracker *batchTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		batchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_batches_started_total",
			Help: "Total scrape batches that have started.",
		}),
		batchesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_batches_completed_total",
			Help: "Total scrape batches that have completed.",
		}),
		batchesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_batches_running",
			Help: "Current number of running scrape batches.",
		}),
		batchRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scraper_batch_runtime_seconds",
			Help:    "Wall time per completed batch.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scraper_batch_urls",
			Help:    "Number of URLs submitted per batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		tracker: newBatchTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.batchesStarted,
		s.batchesCompleted,
		s.batchesRunning,
		s.batchRuntime,
		s.batchSize,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageBatchStart:
			s.batchesStarted.Inc()
			s.batchSize.Observe(float64(evt.Total))
			if s.tracker.start(evt.BatchID) {
				s.batchesRunning.Inc()
			}
		case progress.StageBatchDone:
			s.batchesCompleted.Inc()
			if evt.Dur > 0 {
				s.batchRuntime.Observe(evt.Dur.Seconds())
			}
			if s.tracker.complete(evt.BatchID) {
				s.batchesRunning.Dec()
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type batchTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newBatchTracker() *batchTracker {
	return &batchTracker{running: make(map[uuid.UUID]struct{})}
}

func (t *batchTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *batchTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
