package prerender

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/negroni"
	"go.uber.org/zap"
)

// Header names exchanged with clients and the backend.
const (
	HeaderPrerenderToken = "X-Prerender-Token"
	HeaderPrerenderedOn  = "X-Prerendered-On"
)

// Outcome classifies a backend fetch.
type Outcome string

// Fetch outcomes.
const (
	OutcomeSuccess      Outcome = "success"
	OutcomeBackendError Outcome = "backend_error"
	OutcomeFailure      Outcome = "failure"
)

// Clock supplies the X-Prerendered-On timestamp.
type Clock interface {
	Now() time.Time
}

// Observer receives decision and fetch events, typically for metrics.
type Observer interface {
	ObserveDecision(d Decision)
	ObserveFetch(outcome Outcome, elapsed time.Duration)
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

type nopObserver struct{}

func (nopObserver) ObserveDecision(Decision) {}
func (nopObserver) ObserveFetch(Outcome, time.Duration) {}

// Option customizes a Middleware.
type Option func(*Middleware)

// WithFetcher replaces the default HTTPFetcher. A nil fetcher disables
// prerendering, so every request passes through.
func WithFetcher(f Fetcher) Option {
	return func(m *Middleware) { m.fetcher = f }
}

// WithClock sets the clock used for X-Prerendered-On.
func WithClock(c Clock) Option {
	return func(m *Middleware) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Middleware) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(m *Middleware) {
		if o != nil {
			m.observer = o
		}
	}
}

// Middleware serves prerendered snapshots to crawlers and passes every other
// request to the wrapped handler.
type Middleware struct {
	cfg      *Config
	next     http.Handler
	fetcher  Fetcher
	clock    Clock
	logger   *zap.Logger
	observer Observer
}

// New wraps next. The middleware keeps a private copy of cfg. A nil next
// answers pass-through requests with 404.
func New(next http.Handler, cfg *Config, opts ...Option) (*Middleware, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidArgument)
	}
	if next == nil {
		next = http.NotFoundHandler()
	}
	m := &Middleware{
		cfg:      cfg.Clone(),
		next:     next,
		fetcher:  NewHTTPFetcher(DefaultTimeout),
		clock:    wallClock{},
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Handler returns cfg as a router middleware, e.g. for chi's Use.
func Handler(cfg *Config, opts ...Option) (func(http.Handler) http.Handler, error) {
	m, err := New(nil, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.serve(w, r, next)
		})
	}, nil
}

// Negroni adapts the middleware to a negroni chain; pass-through requests
// continue down the chain.
func (m *Middleware) Negroni() negroni.Handler {
	return negroni.HandlerFunc(func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		m.serve(w, r, next)
	})
}

// ServeHTTP implements http.Handler.
func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.serve(w, r, m.next)
}

func (m *Middleware) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	decision := m.cfg.Decide(r)
	m.observer.ObserveDecision(decision)
	if !decision.Prerender || m.fetcher == nil {
		next.ServeHTTP(w, r)
		return
	}
	m.prerender(w, r, decision)
}

func (m *Middleware) prerender(w http.ResponseWriter, r *http.Request, decision Decision) {
	target := m.cfg.TargetURL(r)
	header := http.Header{}
	if token := m.cfg.PrerenderToken(); token != "" {
		header.Set(HeaderPrerenderToken, token)
	}
	if agent := r.UserAgent(); agent != "" {
		header.Set("User-Agent", agent)
	}

	start := time.Now()
	snapshot, err := m.fetcher.Fetch(r.Context(), target, header)
	elapsed := time.Since(start)

	status, body, outcome := resolve(snapshot, err)
	m.observer.ObserveFetch(outcome, elapsed)

	logger := m.logger.With(
		zap.String("url", target),
		zap.String("reason", string(decision.Reason)),
		zap.Int("status", status),
		zap.Duration("elapsed", elapsed),
	)
	switch outcome {
	case OutcomeFailure:
		logger.Warn("prerender fetch failed", zap.Error(err))
	case OutcomeBackendError:
		logger.Info("prerender backend error", zap.Error(err))
	default:
		logger.Debug("prerender served")
	}

	h := w.Header()
	if outcome == OutcomeSuccess {
		for _, key := range []string{"Content-Type", "Location"} {
			if v := snapshot.Header.Get(key); v != "" {
				h.Set(key, v)
			}
		}
	}
	h.Set(HeaderPrerenderedOn, m.clock.Now().Format(time.RFC3339))
	w.WriteHeader(status)
	if len(body) == 0 {
		return
	}
	if _, err := w.Write(body); err != nil {
		m.logger.Debug("write prerendered body", zap.Error(err))
	}
}

func resolve(snapshot *Snapshot, err error) (int, []byte, Outcome) {
	var backendErr *BackendError
	switch {
	case err == nil && snapshot != nil && validStatus(snapshot.StatusCode):
		return snapshot.StatusCode, snapshot.Body, OutcomeSuccess
	case errors.As(err, &backendErr) && validStatus(backendErr.StatusCode):
		return backendErr.StatusCode, backendErr.Body, OutcomeBackendError
	default:
		return http.StatusInternalServerError, nil, OutcomeFailure
	}
}

func validStatus(code int) bool {
	return code >= 200 && code <= 999
}
