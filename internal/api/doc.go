// Package api hosts the HTTP server, middleware, and REST handlers for the
// archiver. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/collections lists bookmark collections.
//   - POST /api/save archives a URL; POST /api/save-html archives
//     client-supplied HTML for a URL.
//   - GET /archives/* serves pages from the local storage backend.
//   - Everything else falls through to the optional static frontend.
package api
