package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/prerender-gate/internal/config"
)

// NewUpstream builds the application the gate wraps: a reverse proxy for
// cfg.URL or a file server for cfg.StaticDir.
func NewUpstream(cfg config.UpstreamConfig, logger *zap.Logger) (http.Handler, error) {
	if cfg.URL != "" {
		target, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse upstream url: %w", err)
		}
		return newReverseProxy(target, logger), nil
	}
	info, err := os.Stat(cfg.StaticDir)
	if err != nil {
		return nil, fmt.Errorf("stat upstream static dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("upstream static dir %q is not a directory", cfg.StaticDir)
	}
	return http.FileServer(http.Dir(cfg.StaticDir)), nil
}

func newReverseProxy(target *url.URL, logger *zap.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("upstream request failed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, "upstream unavailable")
		},
	}
}
