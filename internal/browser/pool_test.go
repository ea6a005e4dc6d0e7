package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
)

type stubHandle struct{ id int }

func (s *stubHandle) Navigate(context.Context, string) (int, error) { return 200, nil }
func (s *stubHandle) Text(context.Context) (string, error)          { return "", nil }
func (s *stubHandle) HTML(context.Context) (string, error)          { return "", nil }
func (s *stubHandle) Evaluate(context.Context, string) error        { return nil }
func (s *stubHandle) Reload(context.Context) error                  { return nil }

func newTestPool(handles ...crawler.PageHandle) *Pool {
	p := &Pool{
		free:        make(chan crawler.PageHandle, len(handles)),
		browserStop: func() {},
		allocStop:   func() {},
		logger:      zap.NewNop(),
	}
	for _, h := range handles {
		p.free <- h
	}
	return p
}

func TestPoolRoundRobinRotation(t *testing.T) {
	a, b := &stubHandle{id: 0}, &stubHandle{id: 1}
	p := newTestPool(a, b)

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, a, first)

	second, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, b, second)

	// Released handles rejoin at the back of the rotation.
	p.Release(first)
	p.Release(second)
	third, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, a, third)
}

func TestPoolAcquireBlocksUntilRelease(t *testing.T) {
	h := &stubHandle{}
	p := newTestPool(h)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "handle must be exclusively held")

	p.Release(held)
	again, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, h, again)
}

func TestPoolAcquireAfterClose(t *testing.T) {
	p := newTestPool(&stubHandle{})
	require.NoError(t, p.Close(context.Background()))
	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)
}
