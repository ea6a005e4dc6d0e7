// Package orchestrator drives the crawl pipeline: listing, batching,
// fan-out, checkpointing, and run statistics.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lettercrawl/lettercrawl/internal/clock/system"
	"github.com/lettercrawl/lettercrawl/internal/crawler"
	iduuid "github.com/lettercrawl/lettercrawl/internal/id/uuid"
	"github.com/lettercrawl/lettercrawl/internal/images"
	"github.com/lettercrawl/lettercrawl/internal/progress"
	"github.com/lettercrawl/lettercrawl/internal/transform"
)

// ImageDownloader fetches a set of image pairs, one entry per pair in order,
// with nil entries marking failed downloads.
type ImageDownloader interface {
	DownloadBatch(ctx context.Context, pairs []images.Pair) []*crawler.ImageRecord
}

// ContentTransformer renders fetched markup into a portable document.
type ContentTransformer interface {
	Transform(markup string, records []*crawler.ImageRecord) (transform.Document, error)
}

// IDGenerator mints run ids, time-ordered so runs sort by start.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Lister      crawler.MetadataLister
	Fetcher     crawler.ArticleFetcher
	Images      ImageDownloader
	Transformer ContentTransformer
	Sink        crawler.ResultSink
	Tracker     *progress.Tracker
	Store       progress.Store
	Governor    *crawler.Governor
	Meter       *crawler.RateLimitMeter
	Pauser      crawler.Pauser
	Emitter     progress.Emitter
	Clock       crawler.Clock
	IDs         IDGenerator
	Logger      *zap.Logger
}

// Orchestrator executes CrawlAll over the configured collaborators.
type Orchestrator struct {
	cfg  crawler.Config
	deps Deps
}

// New validates the collaborators and constructs an Orchestrator.
func New(cfg crawler.Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Lister == nil:
		return nil, fmt.Errorf("metadata lister is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("article fetcher is required")
	case deps.Images == nil:
		return nil, fmt.Errorf("image downloader is required")
	case deps.Transformer == nil:
		return nil, fmt.Errorf("transformer is required")
	case deps.Sink == nil:
		return nil, fmt.Errorf("result sink is required")
	case deps.Tracker == nil:
		return nil, fmt.Errorf("progress tracker is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("checkpoint store is required")
	case deps.Governor == nil:
		return nil, fmt.Errorf("concurrency governor is required")
	}
	if deps.Meter == nil {
		deps.Meter = crawler.NewRateLimitMeter(cfg.ArticleDelay)
	}
	if deps.Pauser == nil {
		deps.Pauser = crawler.TimerPauser{}
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = iduuid.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg.Normalize(), deps: deps}, nil
}

// runState aggregates per-run counters across concurrent article pipelines.
type runState struct {
	runID [16]byte

	mu        sync.Mutex
	processed int
	failed    int
	imageRefs int
	reasons   map[string]string
	fatal     error
}

func (r *runState) addProcessed() {
	r.mu.Lock()
	r.processed++
	r.mu.Unlock()
}

func (r *runState) addFailed(id, reason string) {
	r.mu.Lock()
	r.failed++
	r.reasons[id] = reason
	r.mu.Unlock()
}

func (r *runState) addImages(n int) {
	r.mu.Lock()
	r.imageRefs += n
	r.mu.Unlock()
}

func (r *runState) setFatal(err error) {
	r.mu.Lock()
	if r.fatal == nil {
		r.fatal = err
	}
	r.mu.Unlock()
}

func (r *runState) fatalErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

// CrawlAll lists every article, drops already-processed ids when resume is
// enabled, and works through the remainder in sequential batches. Per-article
// failures are recorded and never abort the run; only a listing failure or a
// render-infrastructure failure does.
func (o *Orchestrator) CrawlAll(ctx context.Context) (crawler.Stats, error) {
	start := o.deps.Clock.Now()
	rawID, err := o.deps.IDs.NewRawID()
	if err != nil {
		rawID = uuid.New()
	}
	run := &runState{
		runID:   progress.UUIDToBytes(rawID),
		reasons: map[string]string{},
	}
	o.emit(run, progress.Event{Stage: progress.StageRunStart})

	if o.cfg.EnableResume {
		state, err := o.deps.Store.Load(ctx)
		if err != nil {
			return crawler.Stats{}, fmt.Errorf("loading checkpoint: %w", err)
		}
		o.deps.Tracker.Restore(state)
	}

	tasks, err := o.deps.Lister.FetchAll(ctx)
	if err != nil {
		return crawler.Stats{}, fmt.Errorf("listing articles: %w", err)
	}

	pending := make([]crawler.ArticleTask, 0, len(tasks))
	skipped := 0
	for _, task := range tasks {
		if o.cfg.EnableResume && o.deps.Tracker.IsProcessed(task.ID) {
			skipped++
			continue
		}
		pending = append(pending, task)
	}
	o.deps.Logger.Info("crawl plan ready",
		zap.Int("listed", len(tasks)),
		zap.Int("pending", len(pending)),
		zap.Int("skipped", skipped),
	)

	for offset := 0; offset < len(pending); offset += o.cfg.BatchSize {
		end := offset + o.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := o.runBatch(ctx, run, pending[offset:end]); err != nil {
			return o.stats(run, skipped, start), err
		}

		delay := o.deps.Meter.EndBatch()
		if end < len(pending) && delay > 0 {
			o.deps.Pauser.Pause(ctx, delay)
		}
		if err := ctx.Err(); err != nil {
			return o.stats(run, skipped, start), err
		}
	}

	stats := o.stats(run, skipped, start)
	o.emit(run, progress.Event{Stage: progress.StageRunDone, Dur: stats.Elapsed})
	o.deps.Logger.Info("crawl finished",
		zap.Int("processed", stats.Processed),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("images", stats.Images),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return stats, nil
}

// runBatch fans the batch out through the governor and waits for it to
// drain. The checkpoint is saved only after the batch quiesces, so the save
// always sees a consistent snapshot.
func (o *Orchestrator) runBatch(ctx context.Context, run *runState, batch []crawler.ArticleTask) error {
	batchStart := o.deps.Clock.Now()
	bctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, task := range batch {
		wg.Add(1)
		go func(task crawler.ArticleTask) {
			defer wg.Done()
			release, err := o.deps.Governor.AcquireArticle(bctx)
			if err != nil {
				return
			}
			defer release()
			if err := o.processArticle(bctx, run, task); err != nil {
				run.setFatal(err)
				cancel()
			}
		}(task)
	}
	wg.Wait()

	if err := run.fatalErr(); err != nil {
		return err
	}
	if err := o.deps.Store.Save(ctx, o.deps.Tracker.Snapshot()); err != nil {
		o.deps.Logger.Warn("checkpoint save failed", zap.Error(err))
	}
	o.emit(run, progress.Event{
		Stage: progress.StageBatchDone,
		Dur:   o.deps.Clock.Now().Sub(batchStart),
	})
	return nil
}

// processArticle runs one article pipeline. The returned error is reserved
// for infrastructure failures that must abort the run; everything else is
// recorded as a soft failure.
func (o *Orchestrator) processArticle(ctx context.Context, run *runState, task crawler.ArticleTask) error {
	started := o.deps.Clock.Now()

	outcome, err := o.deps.Fetcher.Fetch(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("fetching article %s: %w", task.ID, err)
	}

	if !outcome.OK() {
		reason := outcome.Reason
		if reason == "" {
			reason = string(outcome.Kind)
		}
		o.deps.Tracker.MarkFailed(task.ID, reason)
		run.addFailed(task.ID, reason)
		if outcome.Kind.Blocking() {
			o.emit(run, progress.Event{
				Stage:     progress.StageRateLimited,
				ArticleID: task.ID,
				URL:       task.URL,
				Note:      reason,
			})
		}
		o.emit(run, progress.Event{
			Stage:     progress.StageArticleFailed,
			ArticleID: task.ID,
			URL:       task.URL,
			Attempts:  outcome.Attempts,
			Dur:       o.deps.Clock.Now().Sub(started),
			Note:      reason,
		})
		o.deps.Logger.Warn("article failed",
			zap.String("article_id", task.ID),
			zap.Int("attempts", outcome.Attempts),
			zap.String("reason", reason),
		)
		return nil
	}

	urls, err := crawler.ImageURLs(outcome.Markup, task.URL)
	if err != nil {
		o.deps.Logger.Warn("image scan failed",
			zap.String("article_id", task.ID), zap.Error(err))
		urls = nil
	}
	pairs := images.PairsForURLs(urls)
	records := o.deps.Images.DownloadBatch(ctx, pairs)
	saved := make([]crawler.ImageRecord, 0, len(records))
	for i, rec := range records {
		if rec == nil {
			continue
		}
		saved = append(saved, *rec)
		o.emit(run, progress.Event{
			Stage:     progress.StageImageDone,
			ArticleID: task.ID,
			URL:       pairs[i].URL,
			Bytes:     rec.Bytes,
		})
	}
	run.addImages(len(saved))

	doc, err := o.deps.Transformer.Transform(outcome.Markup, records)
	if err != nil {
		reason := "transform failed"
		o.deps.Tracker.MarkFailed(task.ID, reason)
		run.addFailed(task.ID, reason)
		o.deps.Logger.Warn("transform failed",
			zap.String("article_id", task.ID), zap.Error(err))
		return nil
	}

	result := crawler.ArticleResult{
		ArticleID:   task.ID,
		Title:       task.Title,
		URL:         task.URL,
		Content:     doc.Text,
		ContentHash: doc.Hash,
		Images:      saved,
		ProcessedAt: o.deps.Clock.Now(),
	}
	if err := o.deps.Sink.SaveResult(ctx, result); err != nil {
		reason := "persist failed"
		o.deps.Tracker.MarkFailed(task.ID, reason)
		run.addFailed(task.ID, reason)
		o.deps.Logger.Warn("persist failed",
			zap.String("article_id", task.ID), zap.Error(err))
		return nil
	}

	o.deps.Tracker.MarkProcessed(task.ID)
	run.addProcessed()
	o.emit(run, progress.Event{
		Stage:     progress.StageArticleDone,
		ArticleID: task.ID,
		URL:       task.URL,
		Attempts:  outcome.Attempts,
		Dur:       o.deps.Clock.Now().Sub(started),
	})
	return nil
}

func (o *Orchestrator) stats(run *runState, skipped int, start time.Time) crawler.Stats {
	run.mu.Lock()
	defer run.mu.Unlock()
	reasons := make(map[string]string, len(run.reasons))
	for id, reason := range run.reasons {
		reasons[id] = reason
	}
	return crawler.Stats{
		Processed: run.processed,
		Failed:    run.failed,
		Skipped:   skipped,
		Images:    run.imageRefs,
		Elapsed:   o.deps.Clock.Now().Sub(start),
		Reasons:   reasons,
	}
}

func (o *Orchestrator) emit(run *runState, evt progress.Event) {
	evt.RunID = run.runID
	evt.TS = o.deps.Clock.Now()
	o.deps.Emitter.Emit(evt)
}
