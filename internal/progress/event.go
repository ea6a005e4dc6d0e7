package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the kind of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageArticleDone   Stage = "ARTICLE_DONE"
	StageArticleFailed Stage = "ARTICLE_FAILED"
	StageImageDone     Stage = "IMAGE_DONE"
	StageBatchDone     Stage = "BATCH_DONE"
	StageRateLimited   Stage = "RATE_LIMITED"
)

// Event captures a single milestone of crawler progress.
type Event struct {
	// RunID identifies the crawl run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// ArticleID scopes article and image events to a task.
	ArticleID string
	// URL is the optional page or image URL.
	URL string
	// Bytes carries the payload size for image downloads.
	Bytes int64
	// Attempts records how many fetch attempts the article took.
	Attempts int
	// Dur captures execution latency for articles and batches.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. a failure reason).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageBatchDone, StageRateLimited:
	case StageArticleDone, StageArticleFailed, StageImageDone:
		if e.ArticleID == "" {
			return fmt.Errorf("%s requires article id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
