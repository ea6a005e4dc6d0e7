package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Extraction is the winning result of the candidate walk: the markup of the
// chosen container plus its visible text.
type Extraction struct {
	Markup string
	Text   string
}

// ExtractContent tries the ordered (selector, minimum-length) candidates
// against the rendered HTML and returns the first whose text clears its
// threshold. When none qualify it falls back to readability extraction and
// finally to the full page body, both still subject to MinBodyLength. The
// boolean result is false when nothing qualified.
func ExtractContent(html string, pageURL string, candidates []SelectorCandidate) (Extraction, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Extraction{}, false
	}

	for _, cand := range candidates {
		if cand.Selector == "" {
			continue
		}
		sel := doc.Find(cand.Selector).First()
		if sel.Length() == 0 {
			continue
		}
		text := normalizeSpace(sel.Text())
		if len(text) >= cand.MinLength {
			markup, htmlErr := goquery.OuterHtml(sel)
			if htmlErr != nil {
				continue
			}
			return Extraction{Markup: markup, Text: text}, true
		}
	}

	if ext, ok := extractReadable(html, pageURL); ok {
		return ext, true
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return Extraction{}, false
	}
	text := normalizeSpace(body.Text())
	if len(text) < MinBodyLength {
		return Extraction{}, false
	}
	markup, err := goquery.OuterHtml(body)
	if err != nil {
		return Extraction{}, false
	}
	return Extraction{Markup: markup, Text: text}, true
}

func extractReadable(html string, pageURL string) (Extraction, bool) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = nil
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return Extraction{}, false
	}
	text := normalizeSpace(article.TextContent)
	if len(text) < MinBodyLength || article.Content == "" {
		return Extraction{}, false
	}
	return Extraction{Markup: article.Content, Text: text}, true
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ImageURLs returns the absolute URLs of <img> elements inside markup, in
// document order, resolved against base. Duplicate URLs are preserved so
// index correspondence with downloaded records holds.
func ImageURLs(markup string, base string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}
	var urls []string
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return
		}
		urls = append(urls, resolveURL(baseURL, src))
	})
	return urls, nil
}

func resolveURL(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if base == nil || parsed.IsAbs() {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}
