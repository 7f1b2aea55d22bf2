// Package progress carries per-batch progress events from the fetch and
// processing stages to pluggable sinks. Events are batched on a background
// goroutine so emitters never block on slow consumers.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageBatchStart  Stage = "BATCH_START"
	StageFetchDone   Stage = "FETCH_DONE"
	StageProcessDone Stage = "PROCESS_DONE"
	StageBatchDone   Stage = "BATCH_DONE"
)

// Event captures one step of a scrape batch.
type Event struct {
	// BatchID groups every event emitted for one pipeline run.
	BatchID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Site is the host label of URL; required for fetch completions.
	Site string
	URL  string
	// Total is the number of URLs in the batch, set on BATCH_START.
	Total int
	// Index is the position of the URL or document within its stage.
	Index int
	Bytes int64
	// OK is false when the fetch or processing step failed.
	OK  bool
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.BatchID == uuid.Nil {
		return errors.New("batch id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBatchStart:
		if e.Total < 0 {
			return errors.New("batch start total must be >= 0")
		}
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
	case StageProcessDone, StageBatchDone:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
