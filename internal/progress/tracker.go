// Package progress tracks completed, failed, and downloaded work across a
// crawl run and persists it as a resumable checkpoint.
package progress

import (
	"sort"
	"sync"
)

// State is the serialized checkpoint form.
type State struct {
	Processed []string          `json:"processed"`
	Failed    map[string]string `json:"failed"`
	Images    []string          `json:"downloaded_images"`
}

// Tracker is the in-memory checkpoint. Mutations arrive concurrently from
// article and image tasks; Snapshot is only taken at batch boundaries when
// no mutation is in flight.
type Tracker struct {
	mu        sync.Mutex
	processed map[string]struct{}
	failed    map[string]string
	images    map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		processed: make(map[string]struct{}),
		failed:    make(map[string]string),
		images:    make(map[string]struct{}),
	}
}

// Restore replaces the tracker contents with a loaded checkpoint.
func (t *Tracker) Restore(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed = make(map[string]struct{}, len(state.Processed))
	for _, id := range state.Processed {
		t.processed[id] = struct{}{}
	}
	t.failed = make(map[string]string, len(state.Failed))
	for id, reason := range state.Failed {
		t.failed[id] = reason
	}
	t.images = make(map[string]struct{}, len(state.Images))
	for _, url := range state.Images {
		t.images[url] = struct{}{}
	}
}

// MarkProcessed records a completed article. Membership is permanent for
// the run; the id is never scheduled again. A previously recorded failure
// for the id is cleared.
func (t *Tracker) MarkProcessed(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed[id] = struct{}{}
	delete(t.failed, id)
}

// IsProcessed reports whether the article already completed.
func (t *Tracker) IsProcessed(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.processed[id]
	return ok
}

// MarkFailed records a soft failure with a short reason string.
func (t *Tracker) MarkFailed(id, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, done := t.processed[id]; done {
		return
	}
	t.failed[id] = reason
}

// MarkImage records an image URL in the dedup ledger and reports whether it
// was new.
func (t *Tracker) MarkImage(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.images[url]; ok {
		return false
	}
	t.images[url] = struct{}{}
	return true
}

// HasImage reports whether the URL was already downloaded this run or a
// prior resumed one.
func (t *Tracker) HasImage(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.images[url]
	return ok
}

// FailedReasons returns a copy of the failure map.
func (t *Tracker) FailedReasons() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.failed))
	for id, reason := range t.failed {
		out[id] = reason
	}
	return out
}

// Counts returns processed/failed/image totals.
func (t *Tracker) Counts() (processed, failed, images int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.processed), len(t.failed), len(t.images)
}

// Snapshot produces the serializable state with deterministic ordering.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := State{
		Processed: make([]string, 0, len(t.processed)),
		Failed:    make(map[string]string, len(t.failed)),
		Images:    make([]string, 0, len(t.images)),
	}
	for id := range t.processed {
		state.Processed = append(state.Processed, id)
	}
	for id, reason := range t.failed {
		state.Failed[id] = reason
	}
	for url := range t.images {
		state.Images = append(state.Images, url)
	}
	sort.Strings(state.Processed)
	sort.Strings(state.Images)
	return state
}
