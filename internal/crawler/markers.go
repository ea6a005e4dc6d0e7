package crawler

import (
	"bytes"
	"strings"
)

// MarkerScanner detects anti-bot walls from the rendered document text.
// Many challenge pages return HTTP 200, so a textual scan is treated the
// same as an explicit 429.
type MarkerScanner struct {
	phrases [][]byte
}

// DefaultMarkerPhrases covers the common block/challenge pages.
var DefaultMarkerPhrases = []string{
	"too many requests",
	"rate limit exceeded",
	"verify you are human",
	"checking your browser",
	"access denied",
	"unusual traffic",
	"captcha",
	"cf-challenge",
}

// NewMarkerScanner builds a scanner over the given phrases; empty phrases
// are dropped and matching is case-insensitive.
func NewMarkerScanner(phrases []string) *MarkerScanner {
	lowered := make([][]byte, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(p)))
	}
	return &MarkerScanner{phrases: lowered}
}

// Match returns the first blocking phrase found in text, or "" when clean.
func (s *MarkerScanner) Match(text string) string {
	if s == nil || len(s.phrases) == 0 || text == "" {
		return ""
	}
	lower := bytes.ToLower([]byte(text))
	for _, p := range s.phrases {
		if bytes.Contains(lower, p) {
			return string(p)
		}
	}
	return ""
}
