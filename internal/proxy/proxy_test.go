package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovalev/taskgw/internal/backend"
	"github.com/dkovalev/taskgw/internal/util"
)

func testTarget(t *testing.T, baseURL, pathPrefix, rewritePrefix string) *backend.Target {
	t.Helper()
	u, err := url.Parse(baseURL)
	require.NoError(t, err)
	return &backend.Target{
		Name:          "tasks",
		BaseURL:       u,
		PathPrefix:    pathPrefix,
		RewritePrefix: rewritePrefix,
	}
}

func inboundRequest(method, target string, body io.Reader) *http.Request {
	r := httptest.NewRequest(method, target, body)
	ctx := util.ContextWithCorrelationID(r.Context(), "corr-123")
	ctx = util.ContextWithStartTime(ctx, time.Now())
	return r.WithContext(ctx)
}

func TestProxy_ForwardStreamingGET(t *testing.T) {
	var gotPath, gotQuery string
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotHeader = r.Header.Clone()
		w.Header().Set("X-Backend-Marker", "tasks-service")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer srv.Close()

	p := New(Config{Timeout: 2 * time.Second, ServiceName: "taskgw"})
	target := testTarget(t, srv.URL, "/api/tasks", "/tasks")

	w := httptest.NewRecorder()
	r := inboundRequest("GET", "/api/tasks/42/media?page=2", nil)

	outcome := p.Forward(w, r, target)

	assert.Equal(t, ErrorKindNone, outcome.Kind)
	assert.Equal(t, http.StatusTeapot, outcome.StatusCode)

	assert.Equal(t, "/tasks/42/media", gotPath)
	assert.Equal(t, "page=2", gotQuery)
	assert.Equal(t, "corr-123", gotHeader.Get(util.HeaderCorrelationID))
	assert.Equal(t, "taskgw", gotHeader.Get(util.HeaderForwardedBy))
	assert.NotEmpty(t, gotHeader.Get(util.HeaderRequestID))
	assert.Equal(t, "http", gotHeader.Get("X-Forwarded-Proto"))
	assert.NotEmpty(t, gotHeader.Get("X-Forwarded-For"))

	resp := w.Result()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "tasks-service", resp.Header.Get("X-Backend-Marker"))
	assert.Equal(t, "corr-123", resp.Header.Get(util.HeaderCorrelationID))
	assert.NotEmpty(t, resp.Header.Get(util.HeaderResponseTime))

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "short and stout", string(body))
}

func TestProxy_ForwardBufferingPOST(t *testing.T) {
	var gotBody string
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	p := New(Config{Timeout: 2 * time.Second, ServiceName: "taskgw"})
	target := testTarget(t, srv.URL, "/api/tasks", "/tasks")

	w := httptest.NewRecorder()
	r := inboundRequest("POST", "/api/tasks", strings.NewReader(`{"title":"laundry"}`))
	r.Header.Set("Content-Type", "application/json")

	outcome := p.Forward(w, r, target)

	assert.Equal(t, ErrorKindNone, outcome.Kind)
	assert.Equal(t, http.StatusCreated, outcome.StatusCode)
	assert.Equal(t, `{"title":"laundry"}`, gotBody)
	assert.Equal(t, "application/json", gotContentType)

	resp := w.Result()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "corr-123", resp.Header.Get(util.HeaderCorrelationID))

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `{"id":7}`, string(body))
}

func TestProxy_ForwardStripsHopHeaders(t *testing.T) {
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(Config{Timeout: 2 * time.Second, ServiceName: "taskgw"})
	target := testTarget(t, srv.URL, "/api/tasks", "/tasks")

	w := httptest.NewRecorder()
	r := inboundRequest("POST", "/api/tasks", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Proxy-Authorization", "Basic xyz")
	r.Header.Set("Keep-Alive", "timeout=5")

	p.Forward(w, r, target)

	assert.Empty(t, gotHeader.Get("Proxy-Authorization"))
	assert.Empty(t, gotHeader.Get("Keep-Alive"))
}

func TestProxy_ForwardUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	deadURL := srv.URL
	srv.Close()

	p := New(Config{Timeout: 2 * time.Second, ServiceName: "taskgw"})
	target := testTarget(t, deadURL, "/api/tasks", "/tasks")

	t.Run("streaming", func(t *testing.T) {
		w := httptest.NewRecorder()
		outcome := p.Forward(w, inboundRequest("GET", "/api/tasks", nil), target)

		assert.Equal(t, ErrorKindUnreachable, outcome.Kind)
		assert.Error(t, outcome.Err)
		assert.False(t, outcome.ResponseWritten())
	})

	t.Run("buffering", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := inboundRequest("POST", "/api/tasks", strings.NewReader("{}"))
		r.Header.Set("Content-Type", "application/json")
		outcome := p.Forward(w, r, target)

		assert.Equal(t, ErrorKindUnreachable, outcome.Kind)
		assert.Error(t, outcome.Err)
		assert.False(t, outcome.ResponseWritten())
	})
}

func TestProxy_ForwardTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	// Registered after srv.Close so it runs first: the handler must be
	// released before Close waits on active connections.
	defer close(release)

	p := New(Config{Timeout: 50 * time.Millisecond, ServiceName: "taskgw"})
	target := testTarget(t, srv.URL, "/api/tasks", "/tasks")

	t.Run("streaming", func(t *testing.T) {
		w := httptest.NewRecorder()
		outcome := p.Forward(w, inboundRequest("GET", "/api/tasks", nil), target)

		assert.Equal(t, ErrorKindTimeout, outcome.Kind)
	})

	t.Run("buffering", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := inboundRequest("PUT", "/api/tasks/1", strings.NewReader("{}"))
		r.Header.Set("Content-Type", "application/json")
		outcome := p.Forward(w, r, target)

		assert.Equal(t, ErrorKindTimeout, outcome.Kind)
	})
}

func TestProxy_ForwardMultipartStreams(t *testing.T) {
	var gotContentType string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(Config{Timeout: 2 * time.Second, ServiceName: "taskgw"})
	target := testTarget(t, srv.URL, "/api/media", "/media")

	payload := "--frame\r\nContent-Disposition: form-data; name=\"file\"; filename=\"p.jpg\"\r\n\r\nJPEGDATA\r\n--frame--\r\n"
	w := httptest.NewRecorder()
	r := inboundRequest("POST", "/api/media", strings.NewReader(payload))
	r.Header.Set("Content-Type", "multipart/form-data; boundary=frame")

	outcome := p.Forward(w, r, target)

	assert.Equal(t, ErrorKindNone, outcome.Kind)
	assert.Equal(t, http.StatusOK, outcome.StatusCode)
	assert.Equal(t, payload, gotBody)
	assert.Contains(t, gotContentType, "multipart/form-data")
}

func TestProxy_ForwardPassesThrough5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend on fire", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(Config{Timeout: 2 * time.Second, ServiceName: "taskgw"})
	target := testTarget(t, srv.URL, "/api/tasks", "/tasks")

	w := httptest.NewRecorder()
	outcome := p.Forward(w, inboundRequest("GET", "/api/tasks", nil), target)

	// A 5xx is passed through verbatim but still counts as a backend
	// failure for the breaker.
	assert.Equal(t, ErrorKindNone, outcome.Kind)
	assert.Equal(t, http.StatusInternalServerError, outcome.StatusCode)
	assert.True(t, outcome.BackendFailure())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
