package feed_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"rss-media-bus/internal/feed"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Sample Feed</title>
    <item>
      <title>Headline &amp; more</title>
      <link>https://example.com/a</link>
      <guid>guid-a</guid>
      <description>&lt;p&gt;Body &amp; text&lt;/p&gt;</description>
      <category>politics</category>
      <pubDate>` + time.Now().Format(time.RFC1123Z) + `</pubDate>
    </item>
    <item>
      <title>Stale</title>
      <link>https://example.com/old</link>
      <guid>guid-old</guid>
      <description>old news</description>
      <pubDate>Mon, 01 Jan 2001 00:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func TestNormalizer_Normalize_StripsMarkupAndAppliesCutoff(t *testing.T) {
	n := feed.NewNormalizer()

	title, articles, err := n.Normalize("example_com", []byte(sampleRSS))
	require.NoError(t, err)
	require.Equal(t, "Sample Feed", title)

	// the 2001 entry must be dropped by the default 24h age cutoff
	require.Len(t, articles, 1)

	got := articles[0]
	if diff := cmp.Diff("Headline & more", got.Title); diff != "" {
		t.Errorf("Title mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Body & text", got.Description); diff != "" {
		t.Errorf("Description mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("politics", got.Category); diff != "" {
		t.Errorf("Category mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "example_com", got.FeedID)
}

func TestNormalizer_Normalize_RejectsEntryMissingTitleAndLink(t *testing.T) {
	const rss = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Feed</title>
    <item>
      <description>no title, no link, no guid</description>
      <pubDate>` + rfc1123Now() + `</pubDate>
    </item>
  </channel>
</rss>`

	n := feed.NewNormalizer()
	_, articles, err := n.Normalize("feed", []byte(rss))
	require.NoError(t, err)
	require.Empty(t, articles)
}

func rfc1123Now() string {
	return time.Now().Format(time.RFC1123Z)
}

func TestNormalizer_Normalize_CustomMaxAgeAdmitsOlderEntry(t *testing.T) {
	n := feed.NewNormalizer().WithMaxAge(100 * 365 * 24 * time.Hour)

	_, articles, err := n.Normalize("feed", []byte(sampleRSS))
	require.NoError(t, err)
	require.Len(t, articles, 2)
}
