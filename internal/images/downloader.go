// Package images downloads article images concurrently, content-addressed
// and deduplicated across the whole run.
package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
	"github.com/lettercrawl/lettercrawl/internal/progress"
)

// FileHasher digests byte payloads and existing files.
type FileHasher interface {
	Hash(data []byte) (string, error)
	HashFile(path string) (string, int64, error)
}

// Pair names one image download: the remote URL and the path to write,
// relative to the downloader root.
type Pair struct {
	URL     string
	RelPath string
}

// Downloader fetches image bytes through the plain-HTTP client. For a given
// URL at most one network fetch happens per run: concurrent requests for
// the same URL serialize on a per-URL lock, and later requests reuse the
// file already on disk.
type Downloader struct {
	root     string
	client   crawler.ByteFetcher
	hasher   FileHasher
	tracker  *progress.Tracker
	governor *crawler.Governor
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]*sync.Mutex
}

// New builds a Downloader rooted at root.
func New(
	root string,
	client crawler.ByteFetcher,
	hasher FileHasher,
	tracker *progress.Tracker,
	governor *crawler.Governor,
	logger *zap.Logger,
) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		root:     root,
		client:   client,
		hasher:   hasher,
		tracker:  tracker,
		governor: governor,
		logger:   logger,
		inFlight: make(map[string]*sync.Mutex),
	}
}

// Download fetches one image. When the URL is already in the dedup ledger
// and the destination file exists, the hash is recomputed from the file and
// no network call is made.
func (d *Downloader) Download(ctx context.Context, pair Pair) (crawler.ImageRecord, error) {
	lock := d.urlLock(pair.URL)
	lock.Lock()
	defer lock.Unlock()

	dest := filepath.Join(d.root, pair.RelPath)
	if d.tracker.HasImage(pair.URL) {
		if record, ok := d.reuseExisting(pair, dest); ok {
			return record, nil
		}
		// Ledger entry without a file (e.g. resumed run with a cleaned
		// output dir); fall through to a fresh fetch.
	}

	release, err := d.governor.AcquireImage(ctx)
	if err != nil {
		return crawler.ImageRecord{}, err
	}
	defer release()

	body, status, err := d.client.Get(ctx, pair.URL)
	if err != nil {
		return crawler.ImageRecord{}, fmt.Errorf("image %s: %w", pair.URL, err)
	}
	if status < 200 || status >= 300 {
		return crawler.ImageRecord{}, fmt.Errorf("image %s: status %d", pair.URL, status)
	}
	hash, err := d.hasher.Hash(body)
	if err != nil {
		return crawler.ImageRecord{}, fmt.Errorf("hash image %s: %w", pair.URL, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return crawler.ImageRecord{}, fmt.Errorf("create image dir: %w", err)
	}
	if err := os.WriteFile(dest, body, 0o600); err != nil {
		return crawler.ImageRecord{}, fmt.Errorf("write image %s: %w", dest, err)
	}
	d.tracker.MarkImage(pair.URL)

	return crawler.ImageRecord{
		URL:       pair.URL,
		LocalPath: pair.RelPath,
		Hash:      hash,
		Bytes:     int64(len(body)),
	}, nil
}

// DownloadBatch dispatches all downloads concurrently, bounded by the image
// semaphore. A failed entry is nil at its index and never aborts siblings.
func (d *Downloader) DownloadBatch(ctx context.Context, pairs []Pair) []*crawler.ImageRecord {
	records := make([]*crawler.ImageRecord, len(pairs))
	var wg sync.WaitGroup
	for i, pair := range pairs {
		wg.Add(1)
		go func(idx int, p Pair) {
			defer wg.Done()
			record, err := d.Download(ctx, p)
			if err != nil {
				d.logger.Warn("image download failed",
					zap.String("url", p.URL), zap.Error(err))
				return
			}
			records[idx] = &record
		}(i, pair)
	}
	wg.Wait()
	return records
}

func (d *Downloader) reuseExisting(pair Pair, dest string) (crawler.ImageRecord, bool) {
	hash, size, err := d.hasher.HashFile(dest)
	if err != nil {
		return crawler.ImageRecord{}, false
	}
	return crawler.ImageRecord{
		URL:       pair.URL,
		LocalPath: pair.RelPath,
		Hash:      hash,
		Bytes:     size,
	}, true
}

func (d *Downloader) urlLock(url string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.inFlight[url]
	if !ok {
		lock = &sync.Mutex{}
		d.inFlight[url] = lock
	}
	return lock
}
