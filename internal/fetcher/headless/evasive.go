package headless

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
)

// Evasive cooldown and pacing constants. The block cooldown sits an order
// of magnitude above ordinary backoff.
const (
	evasiveExtraDelayMin = 2 * time.Second
	evasiveExtraDelayMax = 6 * time.Second
	evasiveBlockCooldown = 30 * time.Second
	evasiveBlockJitter   = 15 * time.Second
)

// EvasiveStrategy decorates another strategy with human-like behavior:
// longer jittered pre-navigation delays, a randomized scroll/pointer
// sequence before extraction, and a forced page reload plus a much longer
// cooldown when a block is detected. Per-handle fingerprints are applied by
// the pool at handle creation, not here.
type EvasiveStrategy struct {
	inner  crawler.FetchStrategy
	pauser crawler.Pauser
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEvasiveStrategy wraps inner with the evasive behavior.
func NewEvasiveStrategy(inner crawler.FetchStrategy, pauser crawler.Pauser, rng *rand.Rand, logger *zap.Logger) *EvasiveStrategy {
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvasiveStrategy{inner: inner, pauser: pauser, rng: rng, logger: logger}
}

// BeforeNavigate delegates to the wrapped strategy and then adds the longer
// evasive delay.
func (s *EvasiveStrategy) BeforeNavigate(ctx context.Context, h crawler.PageHandle) error {
	if err := s.inner.BeforeNavigate(ctx, h); err != nil {
		return err
	}
	s.pauser.Pause(ctx, s.between(evasiveExtraDelayMin, evasiveExtraDelayMax))
	return nil
}

// AfterNavigate delegates and then mimics a human skimming the page.
func (s *EvasiveStrategy) AfterNavigate(ctx context.Context, h crawler.PageHandle) error {
	if err := s.inner.AfterNavigate(ctx, h); err != nil {
		return err
	}
	for _, expr := range s.interactionScripts() {
		if err := h.Evaluate(ctx, expr); err != nil {
			return fmt.Errorf("simulate interaction: %w", err)
		}
		s.pauser.Pause(ctx, s.between(150*time.Millisecond, 600*time.Millisecond))
	}
	return nil
}

// OnBlocked reloads the page so the next attempt starts from a fresh
// document, then returns the long evasive cooldown. The wrapped strategy's
// cooldown is superseded.
func (s *EvasiveStrategy) OnBlocked(ctx context.Context, h crawler.PageHandle, _ int) (time.Duration, error) {
	cooldown := evasiveBlockCooldown + s.between(0, evasiveBlockJitter)
	if err := h.Reload(ctx); err != nil {
		return cooldown, fmt.Errorf("reload after block: %w", err)
	}
	return cooldown, nil
}

func (s *EvasiveStrategy) interactionScripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	scripts := []string{
		fmt.Sprintf("window.scrollBy(0, %d);", 200+s.rng.Intn(600)),
		fmt.Sprintf(
			"document.dispatchEvent(new MouseEvent('mousemove', {clientX: %d, clientY: %d}));",
			s.rng.Intn(1200), s.rng.Intn(700),
		),
		fmt.Sprintf("window.scrollBy(0, %d);", 100+s.rng.Intn(400)),
	}
	// Occasionally scroll back up, the way a reader rechecks the headline.
	if s.rng.Intn(3) == 0 {
		scripts = append(scripts, "window.scrollTo(0, 0);")
	}
	return scripts
}

func (s *EvasiveStrategy) between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}
