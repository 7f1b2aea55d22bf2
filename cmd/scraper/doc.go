// Package main hosts the scraper entrypoint.
//
// Architecture overview:
//   - Fetch stage: internal/fetcher issues one GET per URL through a colly-backed transport, admitting at most
//     fetch.max_concurrent requests at a time via the semaphore in internal/gate. Results keep input order and
//     failures stay per item.
//   - Process stage: internal/processor parses each fetched page with goquery on an errgroup worker pool sized
//     by process.workers (GOMAXPROCS when zero) and extracts title, links, and heading/paragraph text.
//   - Pipeline: internal/pipeline tags each run with a batch UUID, feeds successful fetches to the processor, and
//     returns a Report with per-stage performance summaries and elapsed times.
//   - Downloads: internal/downloader stores raw bodies in the configured BlobStore (local, memory, or GCS) under
//     <batch id>/<file name>.
//   - Progress & metrics: stage events flow through the progress Hub to log, counter, and Prometheus sinks;
//     per-site fetch metrics and HTTP request metrics are exported on /metrics.
//
// Commands:
//   - scraper scrape [urls...] --max-concurrent K prints both summaries and the per-page listing.
//   - scraper download [urls...] --out DIR writes bodies to blob storage.
//   - scraper serve exposes the same operations over HTTP and drains on SIGTERM.
//
// Configuration comes from an optional --config file plus SCRAPER_* environment variables, e.g.
// SCRAPER_FETCH_MAX_CONCURRENT=5 or SCRAPER_STORAGE_BACKEND=gcs.
package main
