package metrics

import (
	"fmt"
	"maps"
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of a Recorder's aggregates.
type Snapshot struct {
	StartedAt  time.Time                `json:"started_at"`
	Timings    map[string]time.Duration `json:"timings"`
	Successful int                      `json:"successful"`
	Failed     int                      `json:"failed"`
	TotalBytes int64                    `json:"total_bytes"`
}

// Total returns the number of completed operations.
func (s Snapshot) Total() int {
	return s.Successful + s.Failed
}

// AverageDuration divides the sum of recorded timings by the completed
// operation count. Repeated keys keep only their last timing while still
// counting every call, so the average understates batches with duplicates.
func (s Snapshot) AverageDuration() time.Duration {
	total := s.Total()
	if total == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range s.Timings {
		sum += d
	}
	return sum / time.Duration(total)
}

// Recorder accumulates success/failure counts, per-key timings, and byte
// totals for one batch. It is safe for concurrent use; all mutation goes
// through its methods.
type Recorder struct {
	mu         sync.RWMutex
	startedAt  time.Time
	timings    map[string]time.Duration
	successful int
	failed     int
	totalBytes int64
	now        func() time.Time
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		timings: make(map[string]time.Duration),
		now:     time.Now,
	}
}

// StartOperation marks the start of a batch, overwriting any earlier mark.
func (r *Recorder) StartOperation() {
	r.mu.Lock()
	r.startedAt = r.now()
	r.mu.Unlock()
}

// RecordSuccess counts a successful operation and stores its duration under key.
func (r *Recorder) RecordSuccess(key string, d time.Duration, bytes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings[key] = d
	r.successful++
	if bytes > 0 {
		r.totalBytes += int64(bytes)
	}
}

// RecordFailure counts a failed operation and stores its duration under key.
func (r *Recorder) RecordFailure(key string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings[key] = d
	r.failed++
}

// Snapshot copies the current aggregates under the read lock.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		StartedAt:  r.startedAt,
		Timings:    maps.Clone(r.timings),
		Successful: r.successful,
		Failed:     r.failed,
		TotalBytes: r.totalBytes,
	}
}

// Elapsed reports the time since StartOperation, or zero if it was never called.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.RLock()
	started := r.startedAt
	r.mu.RUnlock()
	if started.IsZero() {
		return 0
	}
	return r.now().Sub(started)
}

// Summary renders the human-readable performance report.
func (r *Recorder) Summary() string {
	return r.Snapshot().Summary()
}

// Summary renders the snapshot as the performance report printed by the CLI.
func (s Snapshot) Summary() string {
	return fmt.Sprintf(
		"Performance Summary:\n"+
			"Total Requests: %d\n"+
			"Successful: %d\n"+
			"Failed: %d\n"+
			"Average Duration: %s\n"+
			"Total Data: %d bytes",
		s.Total(),
		s.Successful,
		s.Failed,
		s.AverageDuration().Round(time.Microsecond),
		s.TotalBytes,
	)
}
