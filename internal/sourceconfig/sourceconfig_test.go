package sourceconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const baseConfig = `
feeds:
  - url: https://example.com/rss.xml
    name: Example
    group: news
  - url: https://blocked.example.org/feed
    name: Blocked
    active: false
    proxy:
      url: http://proxy.internal:8080
      region: us
`

func TestLoader_LoadBuildsFeeds(t *testing.T) {
	path := writeConfig(t, baseConfig)
	loader := New(path)

	feeds, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, feeds, 2)

	assert.Equal(t, "example_com", feeds[0].ID)
	assert.Equal(t, "https://example.com/rss.xml", feeds[0].URL)
	assert.Equal(t, "Example", feeds[0].Name)
	assert.Equal(t, "news", feeds[0].Group)
	assert.True(t, feeds[0].Active)
	assert.False(t, feeds[0].ProxyRequired)

	assert.False(t, feeds[1].Active)
	assert.True(t, feeds[1].ProxyRequired)
	require.NotNil(t, feeds[1].Proxy)
	assert.Equal(t, "http://proxy.internal:8080", feeds[1].Proxy.URL)
	assert.Equal(t, "us", feeds[1].Proxy.Region)
}

func TestLoader_LoadMissingURL(t *testing.T) {
	path := writeConfig(t, "feeds:\n  - name: no-url\n")
	loader := New(path)

	_, err := loader.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url is required")
}

func TestLoader_LoadMissingFile(t *testing.T) {
	loader := New("/nonexistent/path/sources.yaml")
	_, err := loader.Load(context.Background())
	require.Error(t, err)
}

func TestLoader_LoadCanceledContext(t *testing.T) {
	path := writeConfig(t, baseConfig)
	loader := New(path)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx)
	require.Error(t, err)
}
