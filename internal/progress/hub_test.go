package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func validEvent(stage Stage) Event {
	return Event{
		RunID:     UUIDToBytes(uuid.New()),
		TS:        time.Now().UTC(),
		Stage:     stage,
		ArticleID: "a1",
	}
}

func TestHubDeliversAndFlushesOnClose(t *testing.T) {
	sink := &captureSink{}
	hub := NewHub(HubConfig{MaxBatchWait: time.Hour}, sink)

	hub.Emit(validEvent(StageArticleDone))
	hub.Emit(validEvent(StageBatchDone))
	require.NoError(t, hub.Close(context.Background()))

	events := sink.snapshot()
	require.Len(t, events, 2)
	require.True(t, sink.closed)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	sink := &captureSink{}
	hub := NewHub(HubConfig{}, sink)

	hub.Emit(Event{Stage: StageArticleDone}) // missing run id and timestamp
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.snapshot())
}

func TestEventValidate(t *testing.T) {
	evt := validEvent(StageArticleDone)
	require.NoError(t, evt.Validate())

	evt.ArticleID = ""
	require.Error(t, evt.Validate())

	run := validEvent(StageRunStart)
	run.ArticleID = ""
	require.NoError(t, run.Validate())

	bad := validEvent("WAT")
	require.Error(t, bad.Validate())
}
