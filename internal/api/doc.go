// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/audits to submit a page for auditing.
//   - GET /v1/audits/{audit_key} for job status.
//   - GET /v1/runs/{run_key} and /v1/runs/{run_key}/tickets.csv for results.
package api
