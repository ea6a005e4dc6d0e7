package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("handle pool closed")

// Config controls the chromedp pool.
type Config struct {
	// Handles is the requested pool size; clamped to [1, crawler.HandleCap].
	Handles int
	// UserAgent is the default UA when no fingerprint overrides it.
	UserAgent string
	// NavigationTimeout bounds each handle operation.
	NavigationTimeout time.Duration
	// Fingerprint, when set, customizes each handle once at creation time.
	Fingerprint FingerprintFunc
}

// Pool is a fixed-size pool of render handles over one shared browser.
// Handles rotate round-robin through a free-list channel; channel semantics
// guarantee each handle is held by at most one task at a time. Teardown
// happens in reverse creation order: tabs, then the browser, then the
// allocator.
type Pool struct {
	handles     []*Handle
	free        chan crawler.PageHandle
	browserCtx  context.Context
	browserStop context.CancelFunc
	allocStop   context.CancelFunc
	logger      *zap.Logger
	closed      atomic.Bool
}

// NewPool starts the browser and opens the handle tabs.
func NewPool(cfg Config, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := cfg.Handles
	if n <= 0 {
		n = 1
	}
	if n > crawler.HandleCap {
		n = crawler.HandleCap
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = crawler.DefaultBrowserTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocStop := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocStop()
		return nil, fmt.Errorf("browser warmup: %w", err)
	}

	p := &Pool{
		free:        make(chan crawler.PageHandle, n),
		browserCtx:  browserCtx,
		browserStop: browserStop,
		allocStop:   allocStop,
		logger:      logger,
	}
	for i := 0; i < n; i++ {
		h, err := newHandle(i, browserCtx, cfg.NavigationTimeout)
		if err != nil {
			p.teardown()
			return nil, fmt.Errorf("create handle %d: %w", i, err)
		}
		if cfg.Fingerprint != nil {
			if err := cfg.Fingerprint(h.tabCtx); err != nil {
				h.close()
				p.teardown()
				return nil, fmt.Errorf("fingerprint handle %d: %w", i, err)
			}
		}
		p.handles = append(p.handles, h)
		p.free <- h
	}
	logger.Info("render handle pool ready", zap.Int("handles", n))
	return p, nil
}

// Acquire blocks until a handle frees or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (crawler.PageHandle, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	select {
	case h := <-p.free:
		return h, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire handle: %w", ctx.Err())
	}
}

// Release returns a handle to the back of the rotation. Releasing after
// Close is a no-op.
func (p *Pool) Release(h crawler.PageHandle) {
	if h == nil || p.closed.Load() {
		return
	}
	select {
	case p.free <- h:
	default:
		p.logger.Warn("release on full free list, dropping handle")
	}
}

// Close tears the pool down in reverse creation order.
func (p *Pool) Close(_ context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.teardown()
	return nil
}

func (p *Pool) teardown() {
	for i := len(p.handles) - 1; i >= 0; i-- {
		p.handles[i].close()
	}
	p.browserStop()
	p.allocStop()
}
