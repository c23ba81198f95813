package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/prerender-gate/internal/config"
	"github.com/JakeFAU/prerender-gate/internal/prerender"
)

const googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

type fixedIDGen struct{ id string }

func (f fixedIDGen) NewID() (string, error) { return f.id, nil }

func gateConfig(upstreamURL, backendURL string) config.Config {
	return config.Config{
		Server:   config.ServerConfig{Port: 8080, ShutdownTimeoutSeconds: 1},
		Upstream: config.UpstreamConfig{URL: upstreamURL},
		Prerender: config.PrerenderConfig{
			BackendURL:     backendURL,
			Token:          "gate-token",
			TimeoutSeconds: 5,
		},
	}
}

func newUpstreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "yes")
		_, _ = io.WriteString(w, "app:"+r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGatePassesBrowsersToUpstream(t *testing.T) {
	t.Parallel()

	upstream := newUpstreamServer(t)
	app, err := BuildGate(gateConfig(upstream.URL, "http://render.invalid/"), zap.NewNop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/products/1", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/120.0")
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "app:/products/1", rec.Body.String())
	require.Equal(t, "yes", rec.Header().Get("X-Upstream"))
	require.Empty(t, rec.Header().Get(prerender.HeaderPrerenderedOn))
	require.Empty(t, rec.Header().Get(HeaderRequestID))
}

func TestGatePassThroughHeadersMatchUpstream(t *testing.T) {
	t.Parallel()

	upstream := newUpstreamServer(t)
	app, err := BuildGate(gateConfig(upstream.URL, "http://render.invalid/"), zap.NewNop())
	require.NoError(t, err)

	direct, err := http.Get(upstream.URL + "/about")
	require.NoError(t, err)
	direct.Body.Close()

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about", nil))

	viaGate := rec.Header().Clone()
	for _, h := range []http.Header{viaGate, direct.Header} {
		h.Del("Date")
	}
	require.Equal(t, direct.Header, viaGate)
}

func TestGatePrerendersBots(t *testing.T) {
	t.Parallel()

	type seen struct {
		uri, token, agent string
	}
	seenCh := make(chan seen, 1)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCh <- seen{uri: r.RequestURI, token: r.Header.Get(prerender.HeaderPrerenderToken), agent: r.UserAgent()}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>snapshot</html>")
	}))
	t.Cleanup(backend.Close)
	upstream := newUpstreamServer(t)

	app, err := BuildGate(gateConfig(upstream.URL, backend.URL), zap.NewNop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://shop.test/products/1?color=red", nil)
	req.Header.Set("User-Agent", googlebotUA)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "<html>snapshot</html>", rec.Body.String())
	require.Equal(t, "text/html", rec.Header().Get("Content-Type"))
	require.Empty(t, rec.Header().Get("X-Upstream"))
	_, err = time.Parse(time.RFC3339, rec.Header().Get(prerender.HeaderPrerenderedOn))
	require.NoError(t, err)

	got := <-seenCh
	require.Equal(t, "/http://shop.test/products/1?color=red", got.uri)
	require.Equal(t, "gate-token", got.token)
	require.Equal(t, googlebotUA, got.agent)
}

func TestGateStaticUpstream(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello from disk"), 0o600))

	cfg := gateConfig("", "http://render.invalid/")
	cfg.Upstream = config.UpstreamConfig{StaticDir: dir}
	app, err := BuildGate(cfg, zap.NewNop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hello.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello from disk", rec.Body.String())
}

func TestBuildGateRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := BuildGate(gateConfig("", "http://render.invalid/"), zap.NewNop())
	require.Error(t, err)

	_, err = BuildGate(gateConfig("http://app.test", "not-a-url"), zap.NewNop())
	require.ErrorIs(t, err, prerender.ErrInvalidArgument)

	cfg := gateConfig("", "http://render.invalid/")
	cfg.Upstream = config.UpstreamConfig{StaticDir: filepath.Join(t.TempDir(), "missing")}
	_, err = BuildGate(cfg, zap.NewNop())
	require.Error(t, err)
}

func TestGateUpstreamUnavailable(t *testing.T) {
	t.Parallel()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	app, err := BuildGate(gateConfig(deadURL, "http://render.invalid/"), zap.NewNop())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProbeAndMetricsRoutes(t *testing.T) {
	t.Parallel()

	h := NewRenderRouter(http.NotFoundHandler(), fixedIDGen{id: "req-1"}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get(HeaderRequestID))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDIsPreserved(t *testing.T) {
	t.Parallel()

	var seen string
	h := NewRenderRouter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}), fixedIDGen{id: "generated"}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/http://shop.test/", nil)
	req.Header.Set(HeaderRequestID, "from-client")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "from-client", seen)
	require.Equal(t, "from-client", rec.Header().Get(HeaderRequestID))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := NewRenderRouter(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), fixedIDGen{id: "req-panic"}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/http://shop.test/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestAppServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	closed := false
	app := &App{
		logger:          zap.NewNop(),
		handler:         NewRenderRouter(http.NotFoundHandler(), fixedIDGen{id: "x"}, zap.NewNop()),
		shutdownTimeout: time.Second,
		closers:         []func(){func() { closed = true }},
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	require.True(t, closed)
}

func TestBuildRenderBackendWarnsWithoutToken(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		token string
		warns int
	}{
		{token: "", warns: 1},
		{token: "secret", warns: 0},
	} {
		core, logs := observer.New(zapcore.WarnLevel)
		cfg := config.Config{
			Server: config.ServerConfig{ShutdownTimeoutSeconds: 1},
			Render: config.RenderConfig{Port: 3000, Token: tc.token, MaxParallel: 1, NavTimeoutSec: 1},
		}
		app, err := BuildRenderBackend(cfg, zap.New(core))
		require.NoError(t, err)
		app.Close()
		require.Equal(t, tc.warns, logs.FilterMessageSnippet("render.token is empty").Len())
	}
}
