// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawl and /v1/load to run one crawl batch or one load pass.
//     Each is single-flight; a second concurrent request gets 409. A load
//     dir is resolved inside records.dir.
//   - GET /v1/records, /v1/state, /v1/info and /v1/runs for inspection.
package api
