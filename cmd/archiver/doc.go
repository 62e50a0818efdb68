// Package main hosts the archiver entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes /api/collections, /api/save and /api/save-html plus health and
//     metrics endpoints. Request bodies are decoded into archive.Request values and handed to the archiver.
//   - Pipeline: internal/service.Archiver canonicalizes the URL, fetches the page (colly, chromedp or auto
//     promotion between the two behind a per-domain rate limiter), absolutizes resource references, derives the
//     title, cover and filename, then uploads the HTML and asks the store for a shareable link.
//   - Bookmarks & fanout: the link is registered in Raindrop through internal/bookmark/raindrop. An archived event
//     is published to Pub/Sub when enabled; publish failures never fail the request.
//   - Configuration & plumbing: Viper populates config from ARCHIVER_* env vars and an optional YAML file; zap
//     provides structured logging; Prometheus metrics are exported via the metrics middleware and /metrics.
//
// Quick checklist:
//   - Set RAINDROP_ACCESS_TOKEN (or ARCHIVER_BOOKMARK_TOKEN).
//   - Pick a storage backend: ARCHIVER_STORAGE_BACKEND=gcs with ARCHIVER_STORAGE_GCS_BUCKET, or local/memory.
//   - Run locally: go run ./cmd/archiver serve --config config.yaml
//   - One-shot: go run ./cmd/archiver save https://example.com/post --collection 12345
package main
