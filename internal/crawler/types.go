// Package crawler defines the core types and interfaces of the crawl engine.
package crawler

import (
	"time"
)

// Config holds the settings for one crawl run. It is immutable once the
// engine is constructed; the wiring layer (cmd) is responsible for filling
// it from whatever configuration source it prefers.
type Config struct {
	BaseURL               string
	OutputDir             string
	MaxConcurrentArticles int
	MaxConcurrentImages   int
	MaxRetries            int
	RetryDelay            time.Duration
	RequestTimeout        time.Duration
	APIDelay              time.Duration
	ArticleDelay          time.Duration
	BrowserTimeout        time.Duration
	EnableResume          bool
	BatchSize             int
}

// Defaults applied when a Config field is left at its zero value.
const (
	DefaultMaxConcurrentArticles = 3
	DefaultMaxConcurrentImages   = 8
	DefaultMaxRetries            = 3
	DefaultRetryDelay            = 2 * time.Second
	DefaultRequestTimeout        = 30 * time.Second
	DefaultAPIDelay              = time.Second
	DefaultArticleDelay          = 2 * time.Second
	DefaultBrowserTimeout        = 45 * time.Second
	DefaultBatchSize             = 10

	// HandleCap bounds the render-handle pool regardless of the configured
	// article concurrency; each handle keeps a browser tab alive.
	HandleCap = 8
)

// Normalize returns a copy of the config with zero values replaced by defaults.
func (c Config) Normalize() Config {
	if c.MaxConcurrentArticles <= 0 {
		c.MaxConcurrentArticles = DefaultMaxConcurrentArticles
	}
	if c.MaxConcurrentImages <= 0 {
		c.MaxConcurrentImages = DefaultMaxConcurrentImages
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.APIDelay <= 0 {
		c.APIDelay = DefaultAPIDelay
	}
	if c.ArticleDelay <= 0 {
		c.ArticleDelay = DefaultArticleDelay
	}
	if c.BrowserTimeout <= 0 {
		c.BrowserTimeout = DefaultBrowserTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// ArticleTask is one unit of crawl work: a single source document announced
// by the metadata listing. Tasks are read-only after creation.
type ArticleTask struct {
	ID    string            `json:"id"`
	Title string            `json:"title"`
	URL   string            `json:"canonical_url"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// ImageRecord describes one downloaded (or dedup-reused) image.
type ImageRecord struct {
	URL       string `json:"url"`
	LocalPath string `json:"local_path"`
	Hash      string `json:"hash"`
	Bytes     int64  `json:"bytes"`
}

// ArticleResult is the self-contained output produced for one article.
type ArticleResult struct {
	ArticleID   string        `json:"article_id"`
	Title       string        `json:"title"`
	URL         string        `json:"url"`
	Content     string        `json:"content"`
	ContentHash string        `json:"content_hash"`
	Images      []ImageRecord `json:"images"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// Empty reports whether the result carries no content (the soft-failure
// sentinel produced after retry exhaustion).
func (r ArticleResult) Empty() bool {
	return r.Content == ""
}

// FailureKind classifies a failed fetch attempt.
type FailureKind string

// Failure kinds observed during article fetching.
const (
	FailNone         FailureKind = ""
	FailTimeout      FailureKind = "timeout"
	FailRateLimited  FailureKind = "rate-limited"
	FailBlocked      FailureKind = "anti-bot-marker"
	FailContentShort FailureKind = "content-too-short"
	FailNavigation   FailureKind = "navigation"
)

// Blocking reports whether the kind indicates a rate-limit or anti-bot wall,
// which earns the longer cooldown path rather than ordinary backoff.
func (k FailureKind) Blocking() bool {
	return k == FailRateLimited || k == FailBlocked
}

// FetchOutcome is the terminal result of a ContentFetcher invocation.
type FetchOutcome struct {
	Markup   string
	Attempts int
	Kind     FailureKind
	Reason   string
}

// OK reports whether the fetch produced usable markup.
func (o FetchOutcome) OK() bool {
	return o.Kind == FailNone && o.Markup != ""
}

// Stats aggregates the outcome of one CrawlAll run.
type Stats struct {
	Processed int               `json:"processed"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Images    int               `json:"images"`
	Elapsed   time.Duration     `json:"elapsed"`
	Reasons   map[string]string `json:"reasons,omitempty"`
}

// SelectorCandidate is one entry of the ordered extraction list: a CSS
// selector paired with the minimum text length it must yield to win.
type SelectorCandidate struct {
	Selector  string
	MinLength int
}

// DefaultCandidates covers the common newsletter article containers.
var DefaultCandidates = []SelectorCandidate{
	{Selector: "article .post-content", MinLength: 200},
	{Selector: "article", MinLength: 200},
	{Selector: ".available-content", MinLength: 150},
	{Selector: "main", MinLength: 300},
}

// MinBodyLength is the last-resort threshold applied to the full page body.
const MinBodyLength = 100
