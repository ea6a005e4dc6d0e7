package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lettercrawl/lettercrawl/internal/progress"
)

// PrometheusSink exports crawl progress metrics. It owns the collectors for
// article outcomes, image downloads, batch timing, and rate-limit signals.
type PrometheusSink struct {
	articlesTotal    *prometheus.CounterVec
	articleAttempts  prometheus.Histogram
	imagesTotal      prometheus.Counter
	imageBytesTotal  prometheus.Counter
	batchDuration    prometheus.Histogram
	rateLimitSignals prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		articlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lettercrawl_articles_total",
			Help: "Articles completed partitioned by result.",
		}, []string{"result"}),
		articleAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lettercrawl_article_attempts",
			Help:    "Fetch attempts per finished article.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		imagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lettercrawl_images_total",
			Help: "Images downloaded.",
		}),
		imageBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lettercrawl_image_bytes_total",
			Help: "Bytes of image payloads downloaded.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lettercrawl_batch_duration_seconds",
			Help:    "Wall time per completed batch.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		rateLimitSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lettercrawl_rate_limit_signals_total",
			Help: "Rate-limit or anti-bot signals observed.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.articlesTotal,
		s.articleAttempts,
		s.imagesTotal,
		s.imageBytesTotal,
		s.batchDuration,
		s.rateLimitSignals,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume folds the batch into the collectors.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageArticleDone:
			s.articlesTotal.WithLabelValues("processed").Inc()
			s.articleAttempts.Observe(float64(evt.Attempts))
		case progress.StageArticleFailed:
			s.articlesTotal.WithLabelValues("failed").Inc()
			s.articleAttempts.Observe(float64(evt.Attempts))
		case progress.StageImageDone:
			s.imagesTotal.Inc()
			s.imageBytesTotal.Add(float64(evt.Bytes))
		case progress.StageBatchDone:
			s.batchDuration.Observe(evt.Dur.Seconds())
		case progress.StageRateLimited:
			s.rateLimitSignals.Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
