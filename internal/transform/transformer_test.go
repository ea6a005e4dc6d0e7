package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
	"github.com/lettercrawl/lettercrawl/internal/hash/sha256"
)

func newTransformer() *Transformer {
	return New(sha256.New(), zap.NewNop())
}

func TestTransformRendersBlocks(t *testing.T) {
	markup := `<article>
		<h1>Weekly Letter</h1>
		<p>First paragraph with <strong>bold</strong> and <em>italic</em> text.</p>
		<ul><li>one</li><li>two</li></ul>
		<p>See <a href="https://example.com/more">the archive</a>.</p>
	</article>`

	doc, err := newTransformer().Transform(markup, nil)
	require.NoError(t, err)

	require.Contains(t, doc.Text, "# Weekly Letter")
	require.Contains(t, doc.Text, "**bold**")
	require.Contains(t, doc.Text, "*italic*")
	require.Contains(t, doc.Text, "- one")
	require.Contains(t, doc.Text, "- two")
	require.Contains(t, doc.Text, "[the archive](https://example.com/more)")

	blocks := strings.Split(doc.Text, "\n\n")
	require.Equal(t, "# Weekly Letter", blocks[0])
}

func TestTransformRewritesImagesByIndex(t *testing.T) {
	markup := `<div>
		<img src="https://cdn.example.com/a.png" alt="chart">
		<p>body</p>
		<img src="https://cdn.example.com/b.png">
	</div>`
	images := []*crawler.ImageRecord{
		{URL: "https://cdn.example.com/a.png", LocalPath: "images/a.png", Hash: "h1"},
		{URL: "https://cdn.example.com/b.png", LocalPath: "images/b.png", Hash: "h2"},
	}

	doc, err := newTransformer().Transform(markup, images)
	require.NoError(t, err)
	require.Contains(t, doc.Text, "![chart](images/a.png)")
	require.Contains(t, doc.Text, "![image](images/b.png)")
	require.NotContains(t, doc.Text, "cdn.example.com")
}

func TestTransformKeepsRemoteURLForFailedDownload(t *testing.T) {
	markup := `<p><img src="https://cdn.example.com/a.png"><img src="https://cdn.example.com/b.png"></p>`
	images := []*crawler.ImageRecord{
		nil,
		{URL: "https://cdn.example.com/b.png", LocalPath: "images/b.png"},
	}

	doc, err := newTransformer().Transform(markup, images)
	require.NoError(t, err)
	require.Contains(t, doc.Text, "![image](https://cdn.example.com/a.png)")
	require.Contains(t, doc.Text, "![image](images/b.png)")
}

func TestTransformHashCoversFinalText(t *testing.T) {
	markup := `<p>stable content</p>`
	tr := newTransformer()

	doc, err := tr.Transform(markup, nil)
	require.NoError(t, err)
	want, err := sha256.New().Hash([]byte(doc.Text))
	require.NoError(t, err)
	require.Equal(t, want, doc.Hash)

	again, err := tr.Transform(markup, nil)
	require.NoError(t, err)
	require.Equal(t, doc.Hash, again.Hash)
}

func TestTransformDropsScriptAndStyle(t *testing.T) {
	markup := `<div><script>alert(1)</script><style>p{}</style><p>kept</p></div>`

	doc, err := newTransformer().Transform(markup, nil)
	require.NoError(t, err)
	require.Equal(t, "kept", doc.Text)
}

func TestTransformSelfLinkCollapsesToText(t *testing.T) {
	markup := `<p><a href="#fn1">note</a> and <a href="https://x.test">https://x.test</a></p>`

	doc, err := newTransformer().Transform(markup, nil)
	require.NoError(t, err)
	require.Equal(t, "note and https://x.test", doc.Text)
}
