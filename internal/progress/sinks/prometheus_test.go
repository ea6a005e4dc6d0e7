package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/lettercrawl/lettercrawl/internal/progress"
)

func TestPrometheusSinkCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	run := progress.UUIDToBytes(uuid.New())
	now := time.Now().UTC()
	batch := []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageArticleDone, ArticleID: "a1", Attempts: 1},
		{RunID: run, TS: now, Stage: progress.StageArticleFailed, ArticleID: "a2", Attempts: 4, Note: "rate-limited"},
		{RunID: run, TS: now, Stage: progress.StageImageDone, ArticleID: "a1", Bytes: 2048},
		{RunID: run, TS: now, Stage: progress.StageRateLimited},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, float64(1), testutil.ToFloat64(sink.articlesTotal.WithLabelValues("processed")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.articlesTotal.WithLabelValues("failed")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.imagesTotal))
	require.Equal(t, float64(2048), testutil.ToFloat64(sink.imageBytesTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.rateLimitSignals))
}

func TestPrometheusSinkDoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
