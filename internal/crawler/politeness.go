package crawler

import (
	"context"
	"sync/atomic"
	"time"
)

// Pauser abstracts how the engine backs off between units of work.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPauser waits on a timer but exits early when ctx is done.
type TimerPauser struct{}

// Pause sleeps for delay or until ctx is canceled.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// RateLimitMeter counts rate-limit signals observed within the current
// batch and drives the adaptive inter-batch delay: the delay escalates
// while batches keep tripping limits and resets after a clean batch.
type RateLimitMeter struct {
	base    time.Duration
	max     time.Duration
	signals atomic.Int64
	streak  atomic.Int64
}

// NewRateLimitMeter builds a meter with the given base inter-batch delay.
func NewRateLimitMeter(base time.Duration) *RateLimitMeter {
	if base <= 0 {
		base = DefaultArticleDelay
	}
	return &RateLimitMeter{base: base, max: base * 8}
}

// Observe records one rate-limit signal for the current batch.
func (m *RateLimitMeter) Observe() {
	m.signals.Add(1)
}

// BatchSignals returns the count observed since the last EndBatch.
func (m *RateLimitMeter) BatchSignals() int64 {
	return m.signals.Load()
}

// EndBatch closes out the batch and returns the delay to apply before the
// next one: base when the batch was clean, doubled per consecutive dirty
// batch otherwise, capped at 8x.
func (m *RateLimitMeter) EndBatch() time.Duration {
	dirty := m.signals.Swap(0) > 0
	if !dirty {
		m.streak.Store(0)
		return m.base
	}
	streak := m.streak.Add(1)
	delay := m.base
	for i := int64(0); i < streak && delay < m.max; i++ {
		delay *= 2
	}
	if delay > m.max {
		delay = m.max
	}
	return delay
}
