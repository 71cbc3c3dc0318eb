// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start a pipeline run, GET /v1/runs/{run_id} to follow it.
//   - GET /v1/projects and /v1/projects/lookup?url= for read-only record access.
package api
