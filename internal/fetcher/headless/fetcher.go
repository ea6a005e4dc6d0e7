// Package headless implements the per-article fetch state machine over the
// render-handle pool, with pluggable fetch strategies.
package headless

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
)

// Fetcher drives NAVIGATE -> CHECK_STATUS -> CHECK_ANTIBOT_MARKERS ->
// EXTRACT attempts until success, retry exhaustion, or a fatal resource
// error. Ordinary fetch failures never surface as errors; exhaustion yields
// a soft-fail outcome and the batch continues.
type Fetcher struct {
	pool       crawler.HandlePool
	strategy   crawler.FetchStrategy
	policy     *crawler.RetryPolicy
	scanner    *crawler.MarkerScanner
	candidates []crawler.SelectorCandidate
	pauser     crawler.Pauser
	meter      *crawler.RateLimitMeter
	logger     *zap.Logger
}

// Options bundles the fetcher collaborators.
type Options struct {
	Pool       crawler.HandlePool
	Strategy   crawler.FetchStrategy
	Policy     *crawler.RetryPolicy
	Scanner    *crawler.MarkerScanner
	Candidates []crawler.SelectorCandidate
	Pauser     crawler.Pauser
	Meter      *crawler.RateLimitMeter
	Logger     *zap.Logger
}

// New builds a Fetcher.
func New(opts Options) *Fetcher {
	if opts.Pauser == nil {
		opts.Pauser = crawler.TimerPauser{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.Candidates) == 0 {
		opts.Candidates = crawler.DefaultCandidates
	}
	if opts.Scanner == nil {
		opts.Scanner = crawler.NewMarkerScanner(crawler.DefaultMarkerPhrases)
	}
	return &Fetcher{
		pool:       opts.Pool,
		strategy:   opts.Strategy,
		policy:     opts.Policy,
		scanner:    opts.Scanner,
		candidates: opts.Candidates,
		pauser:     opts.Pauser,
		meter:      opts.Meter,
		logger:     opts.Logger,
	}
}

// Fetch acquires a handle and runs the attempt loop for one article. The
// returned error is non-nil only for resource failures (pool exhausted or
// closed, run canceled); everything else is reported via the outcome.
func (f *Fetcher) Fetch(ctx context.Context, task crawler.ArticleTask) (crawler.FetchOutcome, error) {
	handle, err := f.pool.Acquire(ctx)
	if err != nil {
		return crawler.FetchOutcome{}, fmt.Errorf("article %s: %w", task.ID, err)
	}
	defer f.pool.Release(handle)

	var outcome crawler.FetchOutcome
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return outcome, fmt.Errorf("article %s: %w", task.ID, err)
		}
		markup, kind, reason := f.attempt(ctx, handle, task)
		outcome.Attempts = attempt + 1
		if kind == crawler.FailNone {
			outcome.Markup = markup
			outcome.Kind = crawler.FailNone
			outcome.Reason = ""
			return outcome, nil
		}
		outcome.Kind = kind
		outcome.Reason = reason
		f.logger.Debug("fetch attempt failed",
			zap.String("article_id", task.ID),
			zap.Int("attempt", attempt+1),
			zap.String("kind", string(kind)),
			zap.String("reason", reason),
		)

		if !f.policy.ShouldRetry(kind, attempt) {
			return outcome, nil
		}
		if kind.Blocking() {
			if f.meter != nil {
				f.meter.Observe()
			}
			cooldown, blockErr := f.strategy.OnBlocked(ctx, handle, attempt)
			if blockErr != nil {
				f.logger.Warn("block reaction failed",
					zap.String("article_id", task.ID), zap.Error(blockErr))
			}
			f.pauser.Pause(ctx, cooldown)
		} else {
			f.pauser.Pause(ctx, f.policy.Backoff(kind, attempt))
		}
	}
}

func (f *Fetcher) attempt(
	ctx context.Context,
	handle crawler.PageHandle,
	task crawler.ArticleTask,
) (markup string, kind crawler.FailureKind, reason string) {
	if err := f.strategy.BeforeNavigate(ctx, handle); err != nil {
		return "", crawler.Classify(err), "pre-navigation: " + short(err)
	}

	status, err := handle.Navigate(ctx, task.URL)
	if err != nil {
		return "", crawler.Classify(err), short(err)
	}
	if status == http.StatusTooManyRequests {
		return "", crawler.FailRateLimited, "http 429"
	}

	if err := f.strategy.AfterNavigate(ctx, handle); err != nil {
		return "", crawler.Classify(err), "post-navigation: " + short(err)
	}

	text, err := handle.Text(ctx)
	if err != nil {
		return "", crawler.Classify(err), short(err)
	}
	if phrase := f.scanner.Match(text); phrase != "" {
		return "", crawler.FailBlocked, "marker: " + phrase
	}

	html, err := handle.HTML(ctx)
	if err != nil {
		return "", crawler.Classify(err), short(err)
	}
	ext, ok := crawler.ExtractContent(html, task.URL, f.candidates)
	if !ok {
		return "", crawler.FailContentShort, "no candidate met minimum length"
	}
	return ext.Markup, crawler.FailNone, ""
}

// short keeps persisted failure reasons compact.
func short(err error) string {
	msg := err.Error()
	const maxLen = 120
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
