package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collyclient "github.com/lettercrawl/lettercrawl/internal/fetcher/colly"
)

// listingServer serves fixed page sizes, then empty pages.
func listingServer(t *testing.T, pageSizes []int, failures map[int]int) (*httptest.Server, *[]int) {
	t.Helper()
	var offsets []int
	remaining := map[int]int{}
	for offset, n := range failures {
		remaining[offset] = n
	}
	page := func(offset, size int) []map[string]any {
		items := make([]map[string]any, 0, size)
		for i := 0; i < size; i++ {
			items = append(items, map[string]any{
				"id":            fmt.Sprintf("a-%d", offset+i),
				"title":         fmt.Sprintf("Issue %d", offset+i),
				"canonical_url": fmt.Sprintf("https://example.org/p/%d", offset+i),
				"audience":      "everyone",
				"wordcount":     1200 + i,
			})
		}
		return items
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		require.Equal(t, "new", r.URL.Query().Get("sort"))

		if remaining[offset] > 0 {
			remaining[offset]--
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		offsets = append(offsets, offset)
		pageIdx := offset / limit
		size := 0
		if pageIdx < len(pageSizes) {
			size = pageSizes[pageIdx]
		}
		_ = json.NewEncoder(w).Encode(page(offset, size))
	}))
	return srv, &offsets
}

func newLister(baseURL string, maxRetries int) *Fetcher {
	client := collyclient.New(collyclient.Config{Timeout: 5 * time.Second})
	return New(Config{
		BaseURL:    baseURL,
		PageSize:   12,
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
		APIDelay:   time.Millisecond,
	}, client, zap.NewNop())
}

func TestFetchAllStopsAtEmptyPage(t *testing.T) {
	srv, offsets := listingServer(t, []int{12, 12, 5}, nil)
	defer srv.Close()

	tasks, err := newLister(srv.URL, 2).FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 29)
	require.Equal(t, []int{0, 12, 24, 36}, *offsets, "fetch stops at the first empty page")
	require.Equal(t, "a-0", tasks[0].ID)
	require.Equal(t, "https://example.org/p/28", tasks[28].URL)
	require.Equal(t, "everyone", tasks[0].Meta["audience"])
	require.Equal(t, "1200", tasks[0].Meta["wordcount"])
}

func TestFetchAllRetriesFlakyPage(t *testing.T) {
	srv, _ := listingServer(t, []int{3}, map[int]int{0: 2})
	defer srv.Close()

	tasks, err := newLister(srv.URL, 3).FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 3)
}

func TestFetchAllFatalAfterExhaustion(t *testing.T) {
	srv, _ := listingServer(t, []int{3}, map[int]int{0: 10})
	defer srv.Close()

	_, err := newLister(srv.URL, 2).FetchAll(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "retries exhausted")
}

func TestParsePageRejectsMissingID(t *testing.T) {
	_, err := parsePage([]byte(`[{"title":"no id"}]`))
	require.Error(t, err)
}

func TestParsePageScalars(t *testing.T) {
	tasks, err := parsePage([]byte(`[{"id":7,"title":"n","canonical_url":"u","tags":["x"],"likes":3}]`))
	require.NoError(t, err)
	require.Equal(t, "7", tasks[0].ID)
	require.Equal(t, "3", tasks[0].Meta["likes"])
	require.NotContains(t, tasks[0].Meta, "tags")
}
