// Package metadata retrieves the full article task list from the paginated
// listing endpoint.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
)

// DefaultPageSize matches the listing endpoint's maximum page size.
const DefaultPageSize = 12

// Config controls the lister.
type Config struct {
	// BaseURL is the listing endpoint, e.g. https://example.org/api/v1/archive.
	BaseURL string
	// PageSize is the limit parameter per page.
	PageSize int
	// Sort is the fixed sort parameter (default "new").
	Sort string
	// MaxRetries caps per-page retry attempts.
	MaxRetries int
	// RetryDelay seeds the exponential per-page backoff.
	RetryDelay time.Duration
	// APIDelay is the fixed pacing between successful page fetches,
	// independent of retry backoff.
	APIDelay time.Duration
}

// Fetcher implements crawler.MetadataLister over a ByteFetcher.
type Fetcher struct {
	cfg     Config
	client  crawler.ByteFetcher
	limiter *rate.Limiter
	pauser  crawler.Pauser
	logger  *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, client crawler.ByteFetcher, logger *zap.Logger) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Sort == "" {
		cfg.Sort = "new"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = crawler.DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = crawler.DefaultRetryDelay
	}
	if cfg.APIDelay <= 0 {
		cfg.APIDelay = crawler.DefaultAPIDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(cfg.APIDelay), 1),
		pauser:  crawler.TimerPauser{},
		logger:  logger,
	}
}

// FetchAll walks the listing with increasing offsets until a page comes
// back empty. A page that exhausts its retries fails the whole operation:
// without a complete task list there is nothing to resume into.
func (f *Fetcher) FetchAll(ctx context.Context) ([]crawler.ArticleTask, error) {
	var tasks []crawler.ArticleTask
	for offset := 0; ; offset += f.cfg.PageSize {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("listing pacing: %w", err)
		}
		page, err := f.fetchPage(ctx, offset)
		if err != nil {
			return nil, fmt.Errorf("listing offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}
		tasks = append(tasks, page...)
		f.logger.Debug("listing page fetched",
			zap.Int("offset", offset), zap.Int("items", len(page)), zap.Int("total", len(tasks)))
	}
	f.logger.Info("listing complete", zap.Int("tasks", len(tasks)))
	return tasks, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, offset int) ([]crawler.ArticleTask, error) {
	pageURL, err := f.pageURL(offset)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.cfg.RetryDelay * time.Duration(1<<(attempt-1))
			f.pauser.Pause(ctx, backoff)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		body, status, err := f.client.Get(ctx, pageURL)
		if err != nil {
			lastErr = err
			continue
		}
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("listing status %d", status)
			continue
		}
		page, err := parsePage(body)
		if err != nil {
			lastErr = err
			continue
		}
		return page, nil
	}
	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (f *Fetcher) pageURL(offset int) (string, error) {
	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse listing url: %w", err)
	}
	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(f.cfg.PageSize))
	q.Set("sort", f.cfg.Sort)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parsePage decodes one listing page. Known fields map onto the task;
// remaining scalar fields are kept as opaque source metadata.
func parsePage(body []byte) ([]crawler.ArticleTask, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode listing page: %w", err)
	}
	tasks := make([]crawler.ArticleTask, 0, len(raw))
	for i, item := range raw {
		task := crawler.ArticleTask{Meta: map[string]string{}}
		for key, value := range item {
			switch key {
			case "id":
				task.ID = rawScalar(value)
			case "title":
				task.Title = rawScalar(value)
			case "canonical_url":
				task.URL = rawScalar(value)
			default:
				if s := rawScalar(value); s != "" {
					task.Meta[key] = s
				}
			}
		}
		if task.ID == "" {
			return nil, fmt.Errorf("listing item %d has no id", i)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// rawScalar renders a JSON scalar as a string; objects and arrays are
// dropped.
func rawScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" ||
		strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return ""
	}
	return trimmed
}
