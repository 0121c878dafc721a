package filings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CachedFilingWins(t *testing.T) {
	dataDir := t.TempDir()
	cached := "NVIDIA Corporation annual report. Data Center revenue grew."
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "NVDA"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "NVDA", cacheFileName), []byte(cached), 0o644))

	// No identity configured: any network path would return empty, so a
	// non-empty result proves the cache was used
	loader := NewLoader(dataDir, "")
	corpus := loader.Load(context.Background(), "nvda")

	assert.Equal(t, cached, corpus)
}

func TestLoad_NoIdentityNoCache(t *testing.T) {
	loader := NewLoader(t.TempDir(), "")

	corpus := loader.Load(context.Background(), "NVDA")
	assert.Empty(t, corpus, "without an EDGAR identity the corpus must stay empty")
}

func TestLoad_EmptyCacheFileIgnored(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "NVDA"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "NVDA", cacheFileName), nil, 0o644))

	loader := NewLoader(dataDir, "")
	corpus := loader.Load(context.Background(), "NVDA")

	assert.Empty(t, corpus, "an empty cache file is not a usable corpus")
}

func TestStripHTML(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text untouched",
			in:   "Revenue was $60.9 billion.",
			want: "Revenue was $60.9 billion.",
		},
		{
			name: "tags removed",
			in:   "<p>Revenue was <b>$60.9 billion</b>.</p>",
			want: "Revenue was $60.9 billion .",
		},
		{
			name: "whitespace collapsed",
			in:   "<div>\n  Item 1A.\n\n  Risk   Factors\n</div>",
			want: "Item 1A. Risk Factors",
		},
		{
			name: "attributes do not leak",
			in:   `<a href="https://example.com">link</a> text`,
			want: "link text",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stripHTML(tc.in))
		})
	}
}
