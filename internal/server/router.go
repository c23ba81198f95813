package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/prerender-gate/internal/metrics"
)

// Middleware is a standard router middleware.
type Middleware = func(http.Handler) http.Handler

func newBaseRouter(gen IDGenerator, echoRequestID bool, logger *zap.Logger) chi.Router {
	metrics.Init()
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(gen, echoRequestID))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// NewGateRouter serves the probe and metrics routes and sends every other
// request through prerender to upstream.
func NewGateRouter(prerender Middleware, upstream http.Handler, gen IDGenerator, logger *zap.Logger) http.Handler {
	r := newBaseRouter(gen, false, logger)
	r.With(prerender).Handle("/*", upstream)
	return r
}

// NewRenderRouter serves the probe and metrics routes and hands every other
// request to render.
func NewRenderRouter(render http.Handler, gen IDGenerator, logger *zap.Logger) http.Handler {
	r := newBaseRouter(gen, true, logger)
	r.Handle("/*", render)
	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
