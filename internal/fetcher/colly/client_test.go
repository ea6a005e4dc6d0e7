package collyclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetReturnsBodyAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "lettercrawl-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(Config{UserAgent: "lettercrawl-test", Timeout: 5 * time.Second})
	body, status, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"ok":true}`, string(body))
}

func TestGetSurfacesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	client := New(Config{Timeout: 5 * time.Second})
	body, status, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "slow down", string(body))
}

func TestGetRepeatedURL(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := New(Config{Timeout: 5 * time.Second})
	for i := 0; i < 2; i++ {
		_, status, err := client.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)
	}
	require.Equal(t, 2, hits)
}

func TestGetUnreachableHost(t *testing.T) {
	client := New(Config{Timeout: time.Second})
	_, _, err := client.Get(context.Background(), "http://127.0.0.1:1/nope")
	require.Error(t, err)
}

func TestGetCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := New(Config{Timeout: time.Second})
	_, _, err := client.Get(ctx, "http://example.invalid")
	require.ErrorIs(t, err, context.Canceled)
}
