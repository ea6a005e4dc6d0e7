package headless

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
)

type pageState struct {
	status int
	navErr error
	text   string
	html   string
}

// scriptedHandle serves one pageState per navigation attempt.
type scriptedHandle struct {
	states    []pageState
	nav       int
	reloads   int
	evaluated []string
}

func (h *scriptedHandle) current() pageState {
	idx := h.nav - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(h.states) {
		idx = len(h.states) - 1
	}
	return h.states[idx]
}

func (h *scriptedHandle) Navigate(_ context.Context, _ string) (int, error) {
	h.nav++
	st := h.current()
	if st.navErr != nil {
		return 0, st.navErr
	}
	return st.status, nil
}

func (h *scriptedHandle) Text(context.Context) (string, error) { return h.current().text, nil }
func (h *scriptedHandle) HTML(context.Context) (string, error) { return h.current().html, nil }
func (h *scriptedHandle) Evaluate(_ context.Context, expr string) error {
	h.evaluated = append(h.evaluated, expr)
	return nil
}
func (h *scriptedHandle) Reload(context.Context) error {
	h.reloads++
	return nil
}

type fakePool struct {
	handle crawler.PageHandle
	err    error
	held   int
}

func (p *fakePool) Acquire(context.Context) (crawler.PageHandle, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.held++
	return p.handle, nil
}
func (p *fakePool) Release(crawler.PageHandle) { p.held-- }
func (p *fakePool) Close(context.Context) error {
	return nil
}

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) {}

func goodPage() pageState {
	body := strings.Repeat("substantial article text ", 20)
	return pageState{
		status: 200,
		text:   body,
		html:   "<html><body><article>" + body + "</article></body></html>",
	}
}

func newTestFetcher(h crawler.PageHandle, meter *crawler.RateLimitMeter) *Fetcher {
	cfg := crawler.Config{MaxRetries: 3, RetryDelay: time.Millisecond}.Normalize()
	policy := crawler.NewRetryPolicy(cfg)
	return New(Options{
		Pool:       &fakePool{handle: h},
		Strategy:   NewBaseStrategy(0, policy, noPause{}, rand.New(rand.NewSource(1))),
		Policy:     policy,
		Candidates: []crawler.SelectorCandidate{{Selector: "article", MinLength: 100}},
		Pauser:     noPause{},
		Meter:      meter,
	})
}

func TestFetchSucceedsFirstAttempt(t *testing.T) {
	h := &scriptedHandle{states: []pageState{goodPage()}}
	f := newTestFetcher(h, nil)

	out, err := f.Fetch(context.Background(), crawler.ArticleTask{ID: "a1", URL: "https://example.org/p/1"})
	require.NoError(t, err)
	require.True(t, out.OK())
	require.Equal(t, 1, out.Attempts)
	require.Contains(t, out.Markup, "<article>")
}

func TestFetchRecoversAfterTwoRateLimits(t *testing.T) {
	h := &scriptedHandle{states: []pageState{
		{status: 429},
		{status: 429},
		goodPage(),
	}}
	meter := crawler.NewRateLimitMeter(time.Millisecond)
	f := newTestFetcher(h, meter)

	out, err := f.Fetch(context.Background(), crawler.ArticleTask{ID: "a1", URL: "https://example.org/p/1"})
	require.NoError(t, err)
	require.True(t, out.OK())
	require.Equal(t, 3, out.Attempts)
	require.EqualValues(t, 2, meter.BatchSignals())
}

func TestFetchSoftFailsOnPersistentMarker(t *testing.T) {
	blocked := pageState{
		status: 200,
		text:   "Checking your browser before accessing",
		html:   "<html><body>Checking your browser before accessing</body></html>",
	}
	h := &scriptedHandle{states: []pageState{blocked}}
	f := newTestFetcher(h, nil)

	out, err := f.Fetch(context.Background(), crawler.ArticleTask{ID: "a1", URL: "https://example.org/p/1"})
	require.NoError(t, err, "marker exhaustion is a soft failure")
	require.False(t, out.OK())
	require.Equal(t, crawler.FailBlocked, out.Kind)
	require.Equal(t, 4, out.Attempts, "max retries + 1")
	require.Contains(t, out.Reason, "marker:")
}

func TestFetchRetriesShortContent(t *testing.T) {
	short := pageState{status: 200, text: "tiny", html: "<html><body>tiny</body></html>"}
	h := &scriptedHandle{states: []pageState{short, goodPage()}}
	f := newTestFetcher(h, nil)

	out, err := f.Fetch(context.Background(), crawler.ArticleTask{ID: "a1", URL: "https://example.org/p/1"})
	require.NoError(t, err)
	require.True(t, out.OK())
	require.Equal(t, 2, out.Attempts)
}

func TestFetchPropagatesPoolErrors(t *testing.T) {
	cfg := crawler.Config{MaxRetries: 1, RetryDelay: time.Millisecond}.Normalize()
	policy := crawler.NewRetryPolicy(cfg)
	f := New(Options{
		Pool:     &fakePool{err: errors.New("browser unavailable")},
		Strategy: NewBaseStrategy(0, policy, noPause{}, rand.New(rand.NewSource(1))),
		Policy:   policy,
		Pauser:   noPause{},
	})
	_, err := f.Fetch(context.Background(), crawler.ArticleTask{ID: "a1"})
	require.ErrorContains(t, err, "browser unavailable")
}

func TestFetchReleasesHandle(t *testing.T) {
	h := &scriptedHandle{states: []pageState{goodPage()}}
	pool := &fakePool{handle: h}
	cfg := crawler.Config{MaxRetries: 1, RetryDelay: time.Millisecond}.Normalize()
	policy := crawler.NewRetryPolicy(cfg)
	f := New(Options{
		Pool:       pool,
		Strategy:   NewBaseStrategy(0, policy, noPause{}, rand.New(rand.NewSource(1))),
		Policy:     policy,
		Candidates: []crawler.SelectorCandidate{{Selector: "article", MinLength: 100}},
		Pauser:     noPause{},
	})
	_, err := f.Fetch(context.Background(), crawler.ArticleTask{ID: "a1"})
	require.NoError(t, err)
	require.Zero(t, pool.held)
}
