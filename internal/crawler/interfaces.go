package crawler

import (
	"context"
	"time"
)

// PageHandle is one exclusively-held render handle backed by a browser tab.
// A handle must never be used by two in-flight tasks at once; the pool
// enforces that through acquire/release semantics.
type PageHandle interface {
	// Navigate loads the URL and returns the HTTP status of the document
	// response. A zero status means the renderer saw no document response.
	Navigate(ctx context.Context, url string) (int, error)
	// Text returns the rendered document's visible text.
	Text(ctx context.Context) (string, error)
	// HTML returns the rendered document's outer HTML.
	HTML(ctx context.Context) (string, error)
	// Evaluate runs a script expression in the page, discarding the result.
	Evaluate(ctx context.Context, expr string) error
	// Reload re-navigates the current page, dropping the rendered state.
	Reload(ctx context.Context) error
}

// HandlePool owns the fixed set of render handles.
type HandlePool interface {
	// Acquire blocks until a handle is free or ctx is done. The handle is
	// exclusively held until Release is called.
	Acquire(ctx context.Context) (PageHandle, error)
	Release(h PageHandle)
	// Close tears the pool down: handles first, then the browser.
	Close(ctx context.Context) error
}

// FetchStrategy supplies the tunable behavior around a fetch attempt. The
// base strategy does the minimum; the evasive strategy decorates it with
// human-like pacing and interaction.
type FetchStrategy interface {
	// BeforeNavigate runs before each navigation attempt (pacing delays).
	BeforeNavigate(ctx context.Context, h PageHandle) error
	// AfterNavigate runs after a successful navigation, before extraction.
	AfterNavigate(ctx context.Context, h PageHandle) error
	// OnBlocked reacts to a rate-limit or anti-bot signal and returns the
	// cooldown to wait before the next attempt.
	OnBlocked(ctx context.Context, h PageHandle, attempt int) (time.Duration, error)
}

// ArticleFetcher runs the full per-article fetch state machine.
type ArticleFetcher interface {
	Fetch(ctx context.Context, task ArticleTask) (FetchOutcome, error)
}

// MetadataLister retrieves the complete task list from the listing endpoint.
type MetadataLister interface {
	FetchAll(ctx context.Context) ([]ArticleTask, error)
}

// ByteFetcher performs a plain HTTP GET and returns the response bytes.
// It backs the metadata lister and the image downloader.
type ByteFetcher interface {
	Get(ctx context.Context, url string) ([]byte, int, error)
}

// ResultSink persists one self-contained article unit. The directory layout
// below OutputDir is owned by the sink.
type ResultSink interface {
	SaveResult(ctx context.Context, result ArticleResult) error
}

// Hasher computes digests for content addressing and integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}
