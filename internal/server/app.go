package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/prerender-gate/internal/clock/system"
	"github.com/JakeFAU/prerender-gate/internal/config"
	"github.com/JakeFAU/prerender-gate/internal/id/uuid"
	"github.com/JakeFAU/prerender-gate/internal/metrics"
	"github.com/JakeFAU/prerender-gate/internal/prerender"
	"github.com/JakeFAU/prerender-gate/internal/renderer"
)

// App is a runnable HTTP server plus the resources it must release.
type App struct {
	logger          *zap.Logger
	port            int
	handler         http.Handler
	shutdownTimeout time.Duration
	closers         []func()
}

// Handler returns the root handler for use with http.Server or tests.
func (a *App) Handler() http.Handler {
	return a.handler
}

// BuildGate wires the prerender middleware in front of the configured upstream.
func BuildGate(cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.ValidateGate(); err != nil {
		return nil, fmt.Errorf("gate config: %w", err)
	}
	pcfg, err := cfg.PrerenderConfig()
	if err != nil {
		return nil, fmt.Errorf("prerender config: %w", err)
	}
	upstream, err := NewUpstream(cfg.Upstream, logger.Named("upstream"))
	if err != nil {
		return nil, err
	}
	mw, err := prerender.Handler(pcfg,
		prerender.WithFetcher(prerender.NewHTTPFetcher(cfg.PrerenderTimeout())),
		prerender.WithClock(system.New()),
		prerender.WithLogger(logger.Named("prerender")),
		prerender.WithObserver(metrics.NewObserver()),
	)
	if err != nil {
		return nil, fmt.Errorf("prerender middleware: %w", err)
	}
	logger.Info("gate configured",
		zap.String("backend_url", pcfg.BackendURL()),
		zap.Bool("token", pcfg.PrerenderToken() != ""),
		zap.String("upstream_url", cfg.Upstream.URL),
		zap.String("upstream_static_dir", cfg.Upstream.StaticDir),
		zap.Int("bot_user_agents", len(pcfg.BotUserAgents())),
		zap.Int("ignored_extensions", len(pcfg.IgnoredExtensions())),
	)
	return &App{
		logger:          logger,
		port:            cfg.Server.Port,
		handler:         NewGateRouter(mw, upstream, uuid.NewUUIDGenerator(), logger.Named("http")),
		shutdownTimeout: cfg.ShutdownTimeout(),
	}, nil
}

// BuildRenderBackend wires the headless Chrome renderer.
func BuildRenderBackend(cfg config.Config, logger *zap.Logger) (*App, error) {
	chrome, err := renderer.NewChromedp(renderer.Config{
		MaxParallel:       cfg.Render.MaxParallel,
		UserAgent:         cfg.Render.UserAgent,
		NavigationTimeout: cfg.NavTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("renderer init failed: %w", err)
	}
	logger.Info("render backend configured",
		zap.Int("max_parallel", cfg.Render.MaxParallel),
		zap.Duration("nav_timeout", cfg.NavTimeout()),
		zap.Bool("token", cfg.Render.Token != ""),
	)
	if cfg.Render.Token == "" {
		logger.Warn("render.token is empty; the backend will render any URL it is sent")
	}
	h := renderer.NewHandler(chrome, cfg.Render.Token, logger.Named("renderer"))
	return &App{
		logger:          logger,
		port:            cfg.Render.Port,
		handler:         NewRenderRouter(h, uuid.NewUUIDGenerator(), logger.Named("http")),
		shutdownTimeout: cfg.ShutdownTimeout(),
		closers:         []func(){chrome.Close},
	}, nil
}

// Run listens on the configured port and blocks until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then drains in-flight requests.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()

	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close releases the app's resources.
func (a *App) Close() {
	for _, closeFn := range a.closers {
		closeFn()
	}
	a.closers = nil
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}
