package renderer

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/prerender-gate/internal/metrics"
	"github.com/JakeFAU/prerender-gate/internal/prerender"
)

// Handler serves GET /<page URL> from a Renderer.
type Handler struct {
	renderer Renderer
	token    string
	logger   *zap.Logger
}

// NewHandler builds a Handler. A non-empty token is required in the
// X-Prerender-Token header of every request.
func NewHandler(renderer Renderer, token string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Handler{renderer: renderer, token: token, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.token != "" && !tokenMatches(r.Header.Get(prerender.HeaderPrerenderToken), h.token) {
		http.Error(w, "invalid prerender token", http.StatusUnauthorized)
		return
	}
	pageURL, err := PageURL(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger := h.logger.With(zap.String("page", pageURL))
	page, err := h.renderer.Render(r.Context(), pageURL, forwardHeaders(r))
	if err != nil {
		metrics.ObserveRender("error")
		logger.Warn("render failed", zap.Error(err))
		http.Error(w, "render failed", http.StatusBadGateway)
		return
	}
	metrics.ObserveRender(strconv.Itoa(page.StatusCode))
	logger.Debug("page rendered", zap.Int("status", page.StatusCode), zap.String("final_url", page.URL))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(page.StatusCode)
	if _, err := w.Write([]byte(page.HTML)); err != nil {
		logger.Debug("write rendered page", zap.Error(err))
	}
}

type pageURLError string

func (e pageURLError) Error() string { return string(e) }

// PageURL extracts the absolute page URL from the request path.
func PageURL(r *http.Request) (string, error) {
	raw := r.RequestURI
	if raw == "" {
		raw = r.URL.RequestURI()
	}
	raw = strings.TrimPrefix(raw, "/")
	// Some proxies collapse the double slash after the scheme.
	for _, scheme := range []string{"http:", "https:"} {
		if strings.HasPrefix(raw, scheme+"/") && !strings.HasPrefix(raw, scheme+"//") {
			raw = scheme + "//" + strings.TrimPrefix(raw, scheme+"/")
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", pageURLError("malformed page url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", pageURLError("page url must be an absolute http(s) url")
	}
	return u.String(), nil
}

// forwardHeaders picks the request headers that are passed on to the page.
func forwardHeaders(r *http.Request) http.Header {
	out := http.Header{}
	for _, key := range []string{"Accept-Language", "Cookie"} {
		if v := r.Header.Get(key); v != "" {
			out.Set(key, v)
		}
	}
	return out
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
