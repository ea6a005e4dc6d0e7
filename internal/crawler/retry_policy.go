package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"time"
)

// RetryPolicy decides whether a failed attempt earns another try and how
// long to wait before it, with a distinct longer cooldown for blocking
// (rate-limit / anti-bot) failures.
type RetryPolicy struct {
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	blockCooldown time.Duration
}

// NewRetryPolicy builds a policy from the run config.
func NewRetryPolicy(cfg Config) *RetryPolicy {
	return &RetryPolicy{
		maxRetries:    cfg.MaxRetries,
		baseDelay:     cfg.RetryDelay,
		maxDelay:      cfg.RetryDelay * 16,
		blockCooldown: cfg.RetryDelay * 4,
	}
}

// MaxRetries returns the retry cap (attempts are capped at MaxRetries+1).
func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// ShouldRetry reports whether attempt (zero-based) may be followed by
// another try for the given failure kind.
func (p *RetryPolicy) ShouldRetry(kind FailureKind, attempt int) bool {
	if kind == FailNone {
		return false
	}
	return attempt < p.maxRetries
}

// Backoff returns the wait before the attempt following attempt
// (zero-based). Blocking failures get a cooldown that starts above the
// ordinary backoff and grows with the same exponent; both are jittered and
// non-decreasing in attempt up to the cap.
func (p *RetryPolicy) Backoff(kind FailureKind, attempt int) time.Duration {
	base := float64(p.baseDelay)
	if kind.Blocking() {
		base = float64(p.blockCooldown)
	}
	delay := base * math.Pow(2, float64(attempt))
	ceiling := float64(p.maxDelay)
	if kind.Blocking() {
		ceiling = float64(p.maxDelay) * 4
	}
	if delay > ceiling {
		delay = ceiling
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

// Classify maps a fetch error to a failure kind.
func Classify(err error) FailureKind {
	if err == nil {
		return FailNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailTimeout
	}
	return FailNavigation
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
