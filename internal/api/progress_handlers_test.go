package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurrent-scraper/internal/progress/sinks"
)

type mapProgressReader map[uuid.UUID]sinks.BatchCounts

func (m mapProgressReader) BatchProgress(id uuid.UUID) (sinks.BatchCounts, bool) {
	c, ok := m[id]
	return c, ok
}

func withBatchParam(req *http.Request, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("batch_id", value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestProgressHandlerGetBatch(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	reader := mapProgressReader{id: {Total: 3, Fetched: 2, FetchFailed: 1, Processed: 2, Bytes: 512, Done: true}}
	handler := NewProgressHandler(reader, zap.NewNop())

	req := withBatchParam(httptest.NewRequest(http.MethodGet, "/v1/batches/"+id.String(), nil), id.String())
	rec := httptest.NewRecorder()
	handler.GetBatch(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Batch batchDTO `json:"batch"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, batchDTO{
		BatchID:     id.String(),
		Total:       3,
		Fetched:     2,
		FetchFailed: 1,
		Processed:   2,
		Bytes:       512,
		Done:        true,
	}, payload.Batch)
}

func TestProgressHandlerGetBatchErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		reader ProgressReader
		param  string
		status int
	}{
		{name: "invalid id", reader: mapProgressReader{}, param: "nope", status: http.StatusBadRequest},
		{name: "missing id", reader: mapProgressReader{}, param: "", status: http.StatusBadRequest},
		{name: "unknown", reader: mapProgressReader{}, param: uuid.NewString(), status: http.StatusNotFound},
		{name: "no reader", reader: nil, param: uuid.NewString(), status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			handler := NewProgressHandler(tc.reader, nil)
			req := withBatchParam(httptest.NewRequest(http.MethodGet, "/v1/batches/x", nil), tc.param)
			rec := httptest.NewRecorder()
			handler.GetBatch(rec, req)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}
