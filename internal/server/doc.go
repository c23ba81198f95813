// Package server assembles the HTTP servers for both binaries. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - Everything else goes to the prerender middleware and the upstream on
//     the gate, or to the renderer on the render backend.
package server
