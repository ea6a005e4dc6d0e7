package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkerScannerMatchesCaseInsensitive(t *testing.T) {
	s := NewMarkerScanner(DefaultMarkerPhrases)
	require.Equal(t, "too many requests", s.Match("<h1>Too Many Requests</h1>"))
	require.Equal(t, "checking your browser", s.Match("please wait, Checking Your Browser before access"))
	require.Empty(t, s.Match("<article>perfectly ordinary newsletter</article>"))
}

func TestMarkerScannerIgnoresBlankPhrases(t *testing.T) {
	s := NewMarkerScanner([]string{"", "  ", "blocked"})
	require.Empty(t, s.Match(""))
	require.Equal(t, "blocked", s.Match("you have been BLOCKED"))
}
