// Package local implements a local filesystem article store.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
)

// Config captures the parameters for the local filesystem article store.
type Config struct {
	// BaseDir is the root directory where article units will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ArticleStore writes one self-contained unit per article under BaseDir:
// articles/<id>/content.md with the portable text and articles/<id>/article.json
// with the metadata record. Image files live under the shared images/ tree the
// downloader owns; the metadata record carries their relative paths and hashes.
type ArticleStore struct {
	baseDir string
	logger  *zap.Logger
}

// New creates a new local filesystem-backed article store.
func New(cfg Config, logger *zap.Logger) (*ArticleStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	return &ArticleStore{baseDir: cfg.BaseDir, logger: logger}, nil
}

// articleRecord is the on-disk metadata document for one article unit.
type articleRecord struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	URL         string                `json:"url"`
	ContentHash string                `json:"content_hash"`
	ProcessedAt string                `json:"processed_at"`
	Images      []crawler.ImageRecord `json:"images"`
}

// SaveResult persists the article unit. The content hash in article.json is
// the fingerprint of content.md as written; downstream uploaders verify it.
func (s *ArticleStore) SaveResult(ctx context.Context, result crawler.ArticleResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(result.ArticleID) == "" {
		return fmt.Errorf("article id is required")
	}

	dir := filepath.Join(s.baseDir, "articles", sanitizeID(result.ArticleID))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create article directory: %w", err)
	}

	contentPath := filepath.Join(dir, "content.md")
	if err := os.WriteFile(contentPath, []byte(result.Content), 0o600); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}

	record := articleRecord{
		ID:          result.ArticleID,
		Title:       result.Title,
		URL:         result.URL,
		ContentHash: result.ContentHash,
		ProcessedAt: result.ProcessedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Images:      result.Images,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode article record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "article.json"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write article record: %w", err)
	}

	s.logger.Debug("saved article unit",
		zap.String("article_id", result.ArticleID),
		zap.String("dir", dir),
		zap.Int("images", len(result.Images)),
	)
	return nil
}

// sanitizeID maps an arbitrary article id onto a single path element.
func sanitizeID(id string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
	mapped = strings.Trim(mapped, ".")
	if mapped == "" {
		mapped = "article"
	}
	return mapped
}
