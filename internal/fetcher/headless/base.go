package headless

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
)

// BaseStrategy is the default fetch behavior: a short jittered delay before
// each navigation, no interaction simulation, and the policy's rate-limit
// cooldown on block.
type BaseStrategy struct {
	delay  time.Duration
	policy *crawler.RetryPolicy
	pauser crawler.Pauser

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBaseStrategy builds the base strategy. delay is the pre-navigation
// pacing delay (usually Config.ArticleDelay).
func NewBaseStrategy(delay time.Duration, policy *crawler.RetryPolicy, pauser crawler.Pauser, rng *rand.Rand) *BaseStrategy {
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &BaseStrategy{delay: delay, policy: policy, pauser: pauser, rng: rng}
}

// BeforeNavigate applies the jittered pacing delay.
func (s *BaseStrategy) BeforeNavigate(ctx context.Context, _ crawler.PageHandle) error {
	s.pauser.Pause(ctx, s.jittered(s.delay))
	return nil
}

// AfterNavigate does nothing in the base engine.
func (s *BaseStrategy) AfterNavigate(context.Context, crawler.PageHandle) error {
	return nil
}

// OnBlocked returns the policy's rate-limit cooldown without touching the
// page.
func (s *BaseStrategy) OnBlocked(_ context.Context, _ crawler.PageHandle, attempt int) (time.Duration, error) {
	return s.policy.Backoff(crawler.FailRateLimited, attempt), nil
}

// jittered spreads delay across [0.5d, 1.5d).
func (s *BaseStrategy) jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	s.mu.Lock()
	factor := 0.5 + s.rng.Float64()
	s.mu.Unlock()
	return time.Duration(float64(d) * factor)
}
