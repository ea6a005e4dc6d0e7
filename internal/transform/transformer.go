// Package transform renders extracted article markup into portable text.
package transform

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
)

// Document is the portable rendering of one article.
type Document struct {
	Text string
	Hash string
}

// Transformer converts markup into portable text and fingerprints it.
type Transformer struct {
	hasher crawler.Hasher
	logger *zap.Logger
}

func New(hasher crawler.Hasher, logger *zap.Logger) *Transformer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{hasher: hasher, logger: logger}
}

// Transform renders the markup tree into text blocks. Image references are
// rewritten to the local relative path of the record at the same document
// position; records that are nil (failed downloads) keep the remote URL.
// The hash covers the final text, not the markup.
func (t *Transformer) Transform(markup string, images []*crawler.ImageRecord) (Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return Document{}, fmt.Errorf("parsing markup: %w", err)
	}

	r := &renderer{images: images, current: &strings.Builder{}}
	r.walk(root)
	r.flush()

	text := strings.TrimSpace(strings.Join(r.blocks, "\n\n"))
	hash, err := t.hasher.Hash([]byte(text))
	if err != nil {
		return Document{}, fmt.Errorf("hashing content: %w", err)
	}
	doc := Document{Text: text, Hash: hash}
	t.logger.Debug("transformed article",
		zap.Int("blocks", len(r.blocks)),
		zap.Int("images", r.imageIndex),
		zap.String("content_hash", doc.Hash),
	)
	return doc, nil
}

type renderer struct {
	blocks     []string
	current    *strings.Builder
	images     []*crawler.ImageRecord
	imageIndex int
}

func (r *renderer) flush() {
	block := normalizeSpace(r.current.String())
	r.current.Reset()
	if block != "" {
		r.blocks = append(r.blocks, block)
	}
}

func (r *renderer) walk(n *html.Node) {
	if n.Type == html.TextNode {
		r.current.WriteString(n.Data)
		return
	}
	if n.Type != html.ElementNode && n.Type != html.DocumentNode {
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Iframe:
		return
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		r.flush()
		r.current.WriteString(headingPrefix(n.DataAtom))
		r.walkChildren(n)
		r.flush()
		return
	case atom.P, atom.Blockquote, atom.Figcaption, atom.Table:
		r.flush()
		r.walkChildren(n)
		r.flush()
		return
	case atom.Li:
		r.flush()
		r.current.WriteString("- ")
		r.walkChildren(n)
		r.flush()
		return
	case atom.Br:
		r.current.WriteString(" ")
		return
	case atom.Hr:
		r.flush()
		return
	case atom.A:
		r.renderLink(n)
		return
	case atom.Img:
		r.renderImage(n)
		return
	case atom.Strong, atom.B:
		r.current.WriteString("**")
		r.walkChildren(n)
		r.current.WriteString("**")
		return
	case atom.Em, atom.I:
		r.current.WriteString("*")
		r.walkChildren(n)
		r.current.WriteString("*")
		return
	}

	r.walkChildren(n)
}

func (r *renderer) walkChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
}

func (r *renderer) renderLink(n *html.Node) {
	href := attr(n, "href")
	outer := r.current
	label := &strings.Builder{}
	r.current = label
	r.walkChildren(n)
	r.current = outer

	text := normalizeSpace(label.String())
	switch {
	case text == "" && href == "":
	case text == "":
		r.current.WriteString(href)
	case href == "" || href == text || strings.HasPrefix(href, "#"):
		r.current.WriteString(text)
	default:
		r.current.WriteString(fmt.Sprintf("[%s](%s)", text, href))
	}
}

// renderImage consumes one slot of the image list per <img> in document
// order, matching the order the downloads were scheduled in.
func (r *renderer) renderImage(n *html.Node) {
	src := attr(n, "src")
	if src == "" {
		return
	}
	target := src
	if r.imageIndex < len(r.images) {
		if rec := r.images[r.imageIndex]; rec != nil && rec.LocalPath != "" {
			target = rec.LocalPath
		}
	}
	r.imageIndex++

	alt := normalizeSpace(attr(n, "alt"))
	if alt == "" {
		alt = "image"
	}
	r.current.WriteString(fmt.Sprintf(" ![%s](%s) ", alt, target))
}

func headingPrefix(a atom.Atom) string {
	switch a {
	case atom.H1:
		return "# "
	case atom.H2:
		return "## "
	case atom.H3:
		return "### "
	case atom.H4:
		return "#### "
	case atom.H5:
		return "##### "
	default:
		return "###### "
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
