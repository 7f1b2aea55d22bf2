package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurrent-scraper/internal/progress/sinks"
)

// ProgressReader looks up the running tally for a batch.
type ProgressReader interface {
	BatchProgress(id uuid.UUID) (sinks.BatchCounts, bool)
}

// ProgressHandler exposes read-only batch progress endpoints.
type ProgressHandler struct {
	reader ProgressReader
	logger *zap.Logger
}

// NewProgressHandler wires the reader and logger.
func NewProgressHandler(reader ProgressReader, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{reader: reader, logger: logger}
}

// GetBatch handles GET /v1/batches/{batch_id}. It returns {"batch": {...}} on
// success, 400 for malformed IDs, 404 for unknown batches, or 503 when
// progress tracking is not wired.
func (h *ProgressHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "progress tracking unavailable")
		return
	}
	batchID, err := parseBatchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	counts, ok := h.reader.BatchProgress(batchID)
	if !ok {
		h.logger.Debug("batch not found", zap.Stringer("batch_id", batchID))
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": toBatchDTO(batchID, counts)})
}

func parseBatchID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "batch_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("batch_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid batch_id")
	}
	return id, nil
}

func toBatchDTO(id uuid.UUID, c sinks.BatchCounts) batchDTO {
	return batchDTO{
		BatchID:     id.String(),
		Total:       c.Total,
		Fetched:     c.Fetched,
		FetchFailed: c.FetchFailed,
		Processed:   c.Processed,
		Bytes:       c.Bytes,
		Done:        c.Done,
	}
}

type batchDTO struct {
	BatchID     string `json:"batch_id"`
	Total       int    `json:"total"`
	Fetched     int    `json:"fetched"`
	FetchFailed int    `json:"fetch_failed"`
	Processed   int    `json:"processed"`
	Bytes       int64  `json:"bytes"`
	Done        bool   `json:"done"`
}
