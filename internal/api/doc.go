// Package api hosts the HTTP server, middleware, and REST handlers for the
// scraper service. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scrape runs a fetch and process batch and returns its report.
//   - POST /v1/download fetches a batch into the configured blob store.
//   - GET /v1/batches/{batch_id} reports live progress for a batch.
package api
