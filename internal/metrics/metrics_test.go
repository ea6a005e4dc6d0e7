package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestNewIsolatedRegistries(t *testing.T) {
	// Two instances must not collide on collector registration.
	a := New()
	b := New()
	require.NotSame(t, a.Registry(), b.Registry())
}

func TestObserveHTTPRequestAppearsInScrape(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest(http.MethodGet, "/healthz", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, `http_requests_total{code="200",method="GET"} 1`)
	require.Contains(t, body, "http_request_duration_seconds_bucket")
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/articles/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/articles/42", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	require.Contains(t, body, `http_requests_total{code="404",method="GET"} 1`)
	require.True(t, strings.Contains(body, "/articles/{id}"), "route pattern recorded, not the raw path")
}
