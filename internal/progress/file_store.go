package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Store persists checkpoint snapshots.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// FileStore keeps the checkpoint as a JSON file. Saves are atomic
// (write-then-rename) so a crash mid-write never corrupts the previous
// good checkpoint.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore builds a store rooted at path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}
}

// Load reads the checkpoint. A missing or unparsable file yields an empty
// state and a warning; a fresh run must never abort on a bad checkpoint.
func (s *FileStore) Load(_ context.Context) (State, error) {
	empty := State{Failed: map[string]string{}}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("checkpoint unreadable, starting empty",
				zap.String("path", s.path), zap.Error(err))
		}
		return empty, nil
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("checkpoint unparsable, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return empty, nil
	}
	if state.Failed == nil {
		state.Failed = map[string]string{}
	}
	return state, nil
}

// Save serializes the state next to the target and renames it into place.
func (s *FileStore) Save(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create checkpoint dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint %s: %w", s.path, err)
	}
	return nil
}
