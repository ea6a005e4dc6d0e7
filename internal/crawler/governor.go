package crawler

import (
	"context"
	"fmt"
)

// Governor bounds simultaneous article and image work with two independent
// counting semaphores. Article slots gate the whole per-article pipeline;
// image slots gate individual image fetches and are sized larger since an
// image fetch is much cheaper than a rendered article.
type Governor struct {
	articles chan struct{}
	images   chan struct{}
}

// NewGovernor sizes the semaphores from the run config.
func NewGovernor(cfg Config) *Governor {
	cfg = cfg.Normalize()
	return &Governor{
		articles: make(chan struct{}, cfg.MaxConcurrentArticles),
		images:   make(chan struct{}, cfg.MaxConcurrentImages),
	}
}

// AcquireArticle claims an article slot, blocking until one frees or ctx is
// done. The returned func releases the slot and must always be called.
func (g *Governor) AcquireArticle(ctx context.Context) (func(), error) {
	return acquire(ctx, g.articles, "article")
}

// AcquireImage claims an image slot.
func (g *Governor) AcquireImage(ctx context.Context) (func(), error) {
	return acquire(ctx, g.images, "image")
}

func acquire(ctx context.Context, sem chan struct{}, what string) (func(), error) {
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire %s slot: %w", what, ctx.Err())
	}
}
