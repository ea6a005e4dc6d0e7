package images

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

var knownExtensions = map[string]struct{}{
	".avif": {},
	".gif":  {},
	".jpeg": {},
	".jpg":  {},
	".png":  {},
	".svg":  {},
	".webp": {},
}

// PairsForURLs derives a deterministic local path for each image URL. The
// filename is keyed on the URL, so two articles referencing the same URL map
// onto one shared file.
func PairsForURLs(urls []string) []Pair {
	pairs := make([]Pair, 0, len(urls))
	for _, u := range urls {
		pairs = append(pairs, Pair{URL: u, RelPath: relPathFor(u)})
	}
	return pairs
}

func relPathFor(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	name := hex.EncodeToString(sum[:8])

	ext := ""
	if parsed, err := url.Parse(raw); err == nil {
		candidate := strings.ToLower(path.Ext(parsed.Path))
		if _, ok := knownExtensions[candidate]; ok {
			ext = candidate
		}
	}
	return path.Join("images", name+ext)
}
