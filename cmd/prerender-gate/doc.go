// Package main hosts the prerender gate entrypoint.
//
// Architecture overview:
//   - HTTP: internal/server builds a chi router with request ids, zap access logs, panic recovery and
//     Prometheus metrics. /healthz, /readyz and /metrics are answered by the gate itself.
//   - Prerendering: every other request runs through the internal/prerender middleware. GET requests from
//     crawlers (bot user agents or _escaped_fragment_) that are not excluded by extension or the blacklist
//     are answered with a snapshot fetched from prerender.backend_url. Everything else is passed through.
//   - Upstream: the wrapped application is either a reverse proxy to upstream.url or a file server over
//     upstream.static_dir. Exactly one must be configured.
//   - Configuration: Viper reads an optional YAML file (-config) with GATE_* environment overrides,
//     e.g. GATE_PRERENDER_TOKEN or GATE_UPSTREAM_URL.
//
// Quick checklist:
//   - Run locally: go run ./cmd/prerender-gate -config config.yaml
//   - Self-hosted rendering: run ./cmd/render-backend and point prerender.backend_url at it.
package main
