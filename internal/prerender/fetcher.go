package prerender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a backend fetch when no timeout is configured.
const DefaultTimeout = 30 * time.Second

const maxSnapshotBytes = 16 << 20

// ErrSnapshotTooLarge is returned when a backend body exceeds the size cap.
var ErrSnapshotTooLarge = errors.New("prerender snapshot too large")

// Snapshot is a rendered page returned by a backend.
type Snapshot struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher retrieves a snapshot from the render backend.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) (*Snapshot, error)
}

// BackendError is returned when the backend answered with an error status.
type BackendError struct {
	StatusCode int
	Body       []byte
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("prerender backend returned status %d", e.StatusCode)
}

// HTTPFetcher implements Fetcher over net/http. Redirects are returned to
// the caller rather than followed.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds an HTTPFetcher whose requests time out after timeout
// (DefaultTimeout when zero).
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewHTTPFetcherWithClient(&http.Client{Timeout: timeout})
}

// NewHTTPFetcherWithClient wraps a copy of client that does not follow
// redirects. The caller's client is left untouched.
func NewHTTPFetcherWithClient(client *http.Client) *HTTPFetcher {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &HTTPFetcher{client: &c}
}

// Fetch issues a single GET to url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, header http.Header) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read backend body: %w", err)
	}
	if len(body) > maxSnapshotBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrSnapshotTooLarge, maxSnapshotBytes)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &BackendError{StatusCode: resp.StatusCode, Body: body}
	}
	return &Snapshot{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
