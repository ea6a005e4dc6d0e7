// Package browser owns the headless-browser resources: a fixed pool of
// exclusively-held page handles backed by chromedp tabs.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Handle is one render handle: a dedicated browser tab plus the bookkeeping
// needed to read the HTTP status of the last document navigation.
type Handle struct {
	id      int
	tabCtx  context.Context
	cancel  context.CancelFunc
	timeout time.Duration

	mu         sync.Mutex
	lastStatus int
	currentURL string
}

func newHandle(id int, browserCtx context.Context, timeout time.Duration) (*Handle, error) {
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab %d: %w", id, err)
	}
	h := &Handle{
		id:      id,
		tabCtx:  tabCtx,
		cancel:  cancel,
		timeout: timeout,
	}
	chromedp.ListenTarget(tabCtx, h.captureResponse)
	return h, nil
}

func (h *Handle) captureResponse(ev interface{}) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument {
		return
	}
	h.mu.Lock()
	h.lastStatus = int(resp.Response.Status)
	h.mu.Unlock()
}

// Navigate loads url and returns the HTTP status of the document response.
// Navigation transport errors are returned; HTTP error statuses are not.
func (h *Handle) Navigate(ctx context.Context, url string) (int, error) {
	h.mu.Lock()
	h.lastStatus = 0
	h.currentURL = url
	h.mu.Unlock()

	err := h.run(ctx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return 0, fmt.Errorf("navigate %s: %w", url, err)
	}
	h.mu.Lock()
	status := h.lastStatus
	h.mu.Unlock()
	return status, nil
}

// Text returns the rendered document's visible text.
func (h *Handle) Text(ctx context.Context) (string, error) {
	var text string
	if err := h.run(ctx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page text: %w", err)
	}
	return text, nil
}

// HTML returns the rendered document's outer HTML.
func (h *Handle) HTML(ctx context.Context) (string, error) {
	var html string
	if err := h.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

// Evaluate runs a script expression in the page, discarding the result.
func (h *Handle) Evaluate(ctx context.Context, expr string) error {
	if err := h.run(ctx, chromedp.Evaluate(expr, nil)); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

// Reload drops the rendered state and re-navigates the current page.
func (h *Handle) Reload(ctx context.Context) error {
	err := h.run(ctx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (h *Handle) run(ctx context.Context, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(h.tabCtx, h.timeout)
	defer cancel()

	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		// Surface the caller's cancellation rather than the tab's.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if ctxErr := taskCtx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (h *Handle) close() {
	h.cancel()
}

// forwardCancel propagates parent cancellation into cancel until the
// returned stop func is called.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
