package local_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
	"github.com/lettercrawl/lettercrawl/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()}, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("CreatesMissingDirectory", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "nested", "out")
		_, err := local.New(local.Config{BaseDir: base}, zap.NewNop())
		require.NoError(t, err)
		info, err := os.Stat(base)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file}, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestSaveResult(t *testing.T) {
	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base}, zap.NewNop())
	require.NoError(t, err)

	result := crawler.ArticleResult{
		ArticleID:   "post-42",
		Title:       "The Letter",
		URL:         "https://letters.example.com/p/the-letter",
		Content:     "# The Letter\n\nbody text",
		ContentHash: "deadbeef",
		Images: []crawler.ImageRecord{
			{URL: "https://cdn.example.com/a.png", LocalPath: "images/a.png", Hash: "h1", Bytes: 10},
		},
		ProcessedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveResult(context.Background(), result))

	dir := filepath.Join(base, "articles", "post-42")
	content, err := os.ReadFile(filepath.Join(dir, "content.md"))
	require.NoError(t, err)
	assert.Equal(t, result.Content, string(content))

	raw, err := os.ReadFile(filepath.Join(dir, "article.json"))
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(raw, &record))
	assert.Equal(t, "post-42", record["id"])
	assert.Equal(t, "deadbeef", record["content_hash"])
	assert.Equal(t, "2026-03-01T12:00:00Z", record["processed_at"])
}

func TestSaveResultSanitizesID(t *testing.T) {
	base := t.TempDir()
	store, err := local.New(local.Config{BaseDir: base}, zap.NewNop())
	require.NoError(t, err)

	result := crawler.ArticleResult{
		ArticleID:   "../weird id/..",
		Content:     "x",
		ProcessedAt: time.Now(),
	}
	require.NoError(t, store.SaveResult(context.Background(), result))

	entries, err := os.ReadDir(filepath.Join(base, "articles"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "/")
	assert.NotContains(t, entries[0].Name(), "..")
}

func TestSaveResultRejectsEmptyID(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.Error(t, store.SaveResult(context.Background(), crawler.ArticleResult{}))
}
