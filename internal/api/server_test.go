package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
	"github.com/joalvis1996/archive-saver-web/internal/config"
)

func TestServer_Save_Succeeds(t *testing.T) {
	t.Parallel()

	fake := &fakeArchiver{result: archive.Result{
		Link:      "https://storage.googleapis.com/bucket/web-archives/www.example.com_42.html",
		Title:     "Example",
		DomainTag: "www.example.com",
	}}
	rec := serve(newTestServer(fake, config.Config{}, Options{}),
		http.MethodPost, "/api/save", `{"url":"http://m.example.com/page?document_srl=42","collectionId":7}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, savedMessage, body["message"])
	assert.Equal(t, fake.result.Link, body["link"])
	assert.Equal(t, "www.example.com", body["domain"])

	got := fake.lastRequest()
	assert.Equal(t, "http://m.example.com/page?document_srl=42", got.URL)
	assert.Equal(t, "7", got.CollectionID)
	assert.Empty(t, got.HTML)
}

func TestServer_Save_AcceptsStringCollectionID(t *testing.T) {
	t.Parallel()

	fake := &fakeArchiver{}
	rec := serve(newTestServer(fake, config.Config{}, Options{}),
		http.MethodPost, "/api/save", `{"url":"https://example.com","collectionId":"-1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "-1", fake.lastRequest().CollectionID)
}

func TestServer_Save_IgnoresHTML(t *testing.T) {
	t.Parallel()

	fake := &fakeArchiver{}
	rec := serve(newTestServer(fake, config.Config{}, Options{}),
		http.MethodPost, "/api/save", `{"url":"https://example.com","collectionId":1,"html":"<p>x</p>"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fake.lastRequest().HTML)
}

func TestServer_Save_BadRequests(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"invalid json":       `{invalid`,
		"missing url":        `{"collectionId":1}`,
		"missing collection": `{"url":"https://example.com"}`,
		"word collection":    `{"url":"https://example.com","collectionId":"reading"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fake := &fakeArchiver{}
			rec := serve(newTestServer(fake, config.Config{}, Options{}), http.MethodPost, "/api/save", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
			assert.Zero(t, fake.calls())
		})
	}
}

func TestServer_Save_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("canonicalize: %w", archive.ErrInvalidURL), http.StatusBadRequest},
		{fmt.Errorf("fetch page: %w", archive.ErrFetch), http.StatusBadGateway},
		{archive.ErrMetadataExtraction, http.StatusUnprocessableEntity},
		{fmt.Errorf("upload: %w", archive.ErrStorage), http.StatusBadGateway},
		{fmt.Errorf("create bookmark: %w", archive.ErrBookmark), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("hash artifact: boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			t.Parallel()
			fake := &fakeArchiver{saveErr: tc.err}
			rec := serve(newTestServer(fake, config.Config{}, Options{}),
				http.MethodPost, "/api/save", `{"url":"https://example.com","collectionId":1}`)
			require.Equal(t, tc.want, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.err.Error(), body["error"])
		})
	}
}

func TestServer_SaveHTML(t *testing.T) {
	t.Parallel()

	fake := &fakeArchiver{}
	srv := newTestServer(fake, config.Config{}, Options{})

	rec := serve(srv, http.MethodPost, "/api/save-html", `{"url":"https://example.com","collectionId":1,"html":"<p>hi</p>"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>hi</p>", fake.lastRequest().HTML)

	rec = serve(srv, http.MethodPost, "/api/save-html", `{"url":"https://example.com","collectionId":1,"html":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, fake.calls())
}

func TestServer_Collections(t *testing.T) {
	t.Parallel()

	fake := &fakeArchiver{collections: []archive.Collection{{ID: 7, Title: "Reading", Count: 2}}}
	rec := serve(newTestServer(fake, config.Config{}, Options{}), http.MethodGet, "/api/collections", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"_id":7,"title":"Reading","count":2}]`, rec.Body.String())
}

func TestServer_Collections_Failure(t *testing.T) {
	t.Parallel()

	fake := &fakeArchiver{collectionsErr: fmt.Errorf("%w: status 401", archive.ErrBookmark)}
	rec := serve(newTestServer(fake, config.Config{}, Options{}), http.MethodGet, "/api/collections", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "status 401")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	srv := newTestServer(&fakeArchiver{}, cfg, Options{})

	rec := serve(srv, http.MethodGet, "/api/collections", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/collections", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(srv, http.MethodGet, "/api/collections?api_key=secret", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Probes stay open.
	rec = serve(srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeArchiver{}, config.Config{}, Options{})
	rec := serve(srv, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")

	rec = serve(srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_PanicRecovered(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(&fakeArchiver{panicMsg: "kaboom"}, config.Config{}, Options{}),
		http.MethodPost, "/api/save", `{"url":"https://example.com","collectionId":1}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestServer_ServesArchives(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "web-archives"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web-archives", "a.html"), []byte("<p>saved</p>"), 0o600))

	srv := newTestServer(&fakeArchiver{}, config.Config{}, Options{ArchivesDir: dir})
	rec := serve(srv, http.MethodGet, "/archives/web-archives/a.html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>saved</p>", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = serve(srv, http.MethodGet, "/archives/web-archives/missing.html", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StaticFrontendFallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<div id=app></div>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600))

	srv := newTestServer(&fakeArchiver{}, config.Config{}, Options{StaticDir: dir})

	rec := serve(srv, http.MethodGet, "/app.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = serve(srv, http.MethodGet, "/collections/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "id=app")

	rec = serve(srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "id=app")

	rec = serve(srv, http.MethodGet, "/../../etc/passwd", "")
	assert.NotContains(t, rec.Body.String(), "root:")
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeArchiver{}, config.Config{}, Options{})
	rec := serve(srv, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadGateway, statusFor(fmt.Errorf("%w: %w", archive.ErrFetch, context.DeadlineExceeded)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("other")))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
	require.NotNil(t, buf)
}

// --- helpers/fakes ---

type fakeArchiver struct {
	mu             sync.Mutex
	requests       []archive.Request
	result         archive.Result
	saveErr        error
	panicMsg       string
	collections    []archive.Collection
	collectionsErr error
	// waitForDeadline makes calls block until the request context expires.
	waitForDeadline bool
}

func (f *fakeArchiver) Save(ctx context.Context, req archive.Request) (archive.Result, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.waitForDeadline {
		<-ctx.Done()
		return archive.Result{}, fmt.Errorf("fetch page: %w: %w", archive.ErrFetch, ctx.Err())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.saveErr != nil {
		return archive.Result{}, f.saveErr
	}
	return f.result, nil
}

func (f *fakeArchiver) Collections(ctx context.Context) ([]archive.Collection, error) {
	if f.waitForDeadline {
		<-ctx.Done()
		return nil, fmt.Errorf("list collections: %w: %w", archive.ErrBookmark, ctx.Err())
	}
	if f.collectionsErr != nil {
		return nil, f.collectionsErr
	}
	return f.collections, nil
}

func (f *fakeArchiver) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeArchiver) lastRequest() archive.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return archive.Request{}
	}
	return f.requests[len(f.requests)-1]
}

func TestServer_RequestDeadlineAnswersGatewayTimeout(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Server.RequestTimeoutSeconds = 1
	srv := newTestServer(&fakeArchiver{waitForDeadline: true}, cfg, Options{})

	for _, tc := range []struct {
		method, target, body string
	}{
		{http.MethodPost, "/api/save", `{"url":"https://slow.example.com","collectionId":1}`},
		{http.MethodGet, "/api/collections", ""},
	} {
		rec := serve(srv, tc.method, tc.target, tc.body)
		require.Equal(t, http.StatusGatewayTimeout, rec.Code, tc.target)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body["error"], "deadline exceeded")
	}
}

func TestTimeoutMiddlewareSetsDeadline(t *testing.T) {
	t.Parallel()

	var hasDeadline bool
	h := timeoutMiddleware(time.Minute)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, hasDeadline)
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(a Archiver, cfg config.Config, opts Options) *Server {
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 5
	}
	return NewServer(a, cfg, opts, zap.NewNop())
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}
