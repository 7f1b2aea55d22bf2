package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurrent-scraper/internal/config"
	"github.com/JakeFAU/concurrent-scraper/internal/downloader"
	"github.com/JakeFAU/concurrent-scraper/internal/fetcher"
	"github.com/JakeFAU/concurrent-scraper/internal/metrics"
	"github.com/JakeFAU/concurrent-scraper/internal/pipeline"
)

const (
	defaultRequestTimeout = 60 * time.Second
	maxRequestBodyBytes   = 1 << 20
)

// Scraper runs one fetch and process batch. A zero maxConcurrent selects the
// configured default.
type Scraper interface {
	RunBatch(ctx context.Context, urls []string, maxConcurrent int) (pipeline.Report, error)
}

// Downloads fetches a batch into blob storage.
type Downloads interface {
	Download(ctx context.Context, urls []string, maxConcurrent int) (downloader.Batch, error)
}

// Service is everything the server needs from the application layer.
type Service interface {
	Scraper
	Downloads
	ProgressReader
}

// Server wires HTTP handlers to the scraper service.
type Server struct {
	router   chi.Router
	svc      Service
	progress *ProgressHandler
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc Service, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:      svc,
		progress: NewProgressHandler(svc, logger),
		logger:   logger,
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scrape", s.scrape)
		r.Post("/download", s.download)
		r.Get("/batches/{batch_id}", s.progress.GetBatch)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.svc == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type batchRequest struct {
	URLs          []string `json:"urls"`
	MaxConcurrent int      `json:"max_concurrent"`
}

func decodeBatchRequest(w http.ResponseWriter, r *http.Request) (batchRequest, error) {
	var req batchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return batchRequest{}, errors.New("invalid JSON")
	}
	if len(req.URLs) == 0 {
		return batchRequest{}, errors.New("urls required")
	}
	if req.MaxConcurrent < 0 {
		return batchRequest{}, errors.New("max_concurrent must be >= 0")
	}
	return req, nil
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBatchRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := s.svc.RunBatch(r.Context(), req.URLs, req.MaxConcurrent)
	if err != nil {
		s.writeBatchError(w, "scrape", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBatchRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	batch, err := s.svc.Download(r.Context(), req.URLs, req.MaxConcurrent)
	if err != nil {
		s.writeBatchError(w, "download", err)
		return
	}
	writeJSON(w, http.StatusOK, toDownloadDTO(batch))
}

func (s *Server) writeBatchError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, fetcher.ErrInvalidConcurrency):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type reportDTO struct {
	BatchID          string     `json:"batch_id"`
	FetchSummary     string     `json:"fetch_summary"`
	ProcessSummary   string     `json:"process_summary"`
	FetchElapsedMS   int64      `json:"fetch_elapsed_ms"`
	ProcessElapsedMS int64      `json:"process_elapsed_ms"`
	ElapsedMS        int64      `json:"elapsed_ms"`
	Fetched          []fetchDTO `json:"fetched"`
	Pages            []pageDTO  `json:"pages"`
	Lines            []string   `json:"lines"`
}

type fetchDTO struct {
	URL        string `json:"url"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
	Bytes      int    `json:"bytes"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type pageDTO struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Links      []string `json:"links"`
	TextLength int      `json:"text_length"`
	Error      string   `json:"error,omitempty"`
}

func toReportDTO(report pipeline.Report) reportDTO {
	dto := reportDTO{
		BatchID:          report.BatchID.String(),
		FetchSummary:     report.FetchSummary,
		ProcessSummary:   report.ProcessSummary,
		FetchElapsedMS:   report.FetchElapsed.Milliseconds(),
		ProcessElapsedMS: report.ProcessElapsed.Milliseconds(),
		ElapsedMS:        report.Elapsed.Milliseconds(),
		Fetched:          make([]fetchDTO, 0, len(report.Fetched)),
		Pages:            make([]pageDTO, 0, len(report.Processed)),
		Lines:            report.Lines(),
	}
	for _, o := range report.Fetched {
		dto.Fetched = append(dto.Fetched, fetchDTO{
			URL:        o.URL,
			OK:         o.OK(),
			StatusCode: o.StatusCode,
			Bytes:      o.Bytes,
			DurationMS: o.Duration.Milliseconds(),
			Error:      errString(o.Err),
		})
	}
	for _, page := range report.Processed {
		c := page.Outcome.Content
		dto.Pages = append(dto.Pages, pageDTO{
			URL:        page.URL,
			Title:      c.Title,
			Links:      c.Links,
			TextLength: len(c.Text),
			Error:      errString(page.Outcome.Err),
		})
	}
	return dto
}

type downloadDTO struct {
	BatchID   string        `json:"batch_id"`
	ElapsedMS int64         `json:"elapsed_ms"`
	Results   []downloadRow `json:"results"`
}

type downloadRow struct {
	URL    string `json:"url"`
	Path   string `json:"path"`
	URI    string `json:"uri,omitempty"`
	Bytes  int    `json:"bytes"`
	SHA256 string `json:"sha256,omitempty"`
	Error  string `json:"error,omitempty"`
}

func toDownloadDTO(batch downloader.Batch) downloadDTO {
	dto := downloadDTO{
		BatchID:   batch.ID.String(),
		ElapsedMS: batch.Elapsed.Milliseconds(),
		Results:   make([]downloadRow, 0, len(batch.Results)),
	}
	for _, res := range batch.Results {
		dto.Results = append(dto.Results, downloadRow{
			URL:    res.URL,
			Path:   res.Path,
			URI:    res.URI,
			Bytes:  res.Bytes,
			SHA256: res.SHA256,
			Error:  errString(res.Err),
		})
	}
	return dto
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the ID assigned by the request ID middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("error", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
