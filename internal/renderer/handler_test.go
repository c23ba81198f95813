package renderer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/prerender-gate/internal/prerender"
)

type fakeRenderer struct {
	gotURL    string
	gotHeader http.Header
	page      Page
	err       error
}

func (f *fakeRenderer) Render(_ context.Context, pageURL string, header http.Header) (Page, error) {
	f.gotURL = pageURL
	f.gotHeader = header
	return f.page, f.err
}

func TestHandlerRendersPage(t *testing.T) {
	t.Parallel()

	fake := &fakeRenderer{page: Page{StatusCode: http.StatusOK, HTML: "<html>rendered</html>"}}
	h := NewHandler(fake, "", zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/https://shop.test/p/1?ref=x", nil)
	req.Header.Set("Accept-Language", "de")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "<html>rendered</html>", rec.Body.String())
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, "https://shop.test/p/1?ref=x", fake.gotURL)
	require.Equal(t, "de", fake.gotHeader.Get("Accept-Language"))
}

func TestHandlerPropagatesPageStatus(t *testing.T) {
	t.Parallel()

	fake := &fakeRenderer{page: Page{StatusCode: http.StatusNotFound, HTML: "<html>404</html>"}}
	rec := httptest.NewRecorder()
	NewHandler(fake, "", nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/http://shop.test/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "<html>404</html>", rec.Body.String())
}

func TestHandlerRenderFailureIs502(t *testing.T) {
	t.Parallel()

	fake := &fakeRenderer{err: errors.New("chrome crashed")}
	rec := httptest.NewRecorder()
	NewHandler(fake, "", nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/http://shop.test/", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotContains(t, rec.Body.String(), "chrome crashed")
}

func TestHandlerRequiresToken(t *testing.T) {
	t.Parallel()

	fake := &fakeRenderer{page: Page{StatusCode: http.StatusOK, HTML: "ok"}}
	h := NewHandler(fake, "secret", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/http://shop.test/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, fake.gotURL)

	req := httptest.NewRequest(http.MethodGet, "/http://shop.test/", nil)
	req.Header.Set(prerender.HeaderPrerenderToken, "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerRejectsNonGet(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewHandler(&fakeRenderer{}, "", nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/http://shop.test/", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target  string
		want    string
		wantErr bool
	}{
		{target: "/http://shop.test/", want: "http://shop.test/"},
		{target: "/https://shop.test/a?b=c", want: "https://shop.test/a?b=c"},
		{target: "/https:/shop.test/collapsed", want: "https://shop.test/collapsed"},
		{target: "/", wantErr: true},
		{target: "/shop.test/page", wantErr: true},
		{target: "/ftp://shop.test/file", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.target, func(t *testing.T) {
			t.Parallel()
			got, err := PageURL(httptest.NewRequest(http.MethodGet, tt.target, nil))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
