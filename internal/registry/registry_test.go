package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rss-media-bus/internal/domain/entity"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "recipients.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const baseConfig = `
recipients:
  - tenant_id: acme
    channel_id: main
    chat_id: "-1001"
    allowed_feeds: [example_com]
    fallback_filter:
      mode: exclude
      keywords: [spam]
    routes:
      example_com:
        topic_id: 5
`

func TestRegistry_LoadBuildsChannel(t *testing.T) {
	path := writeConfig(t, baseConfig)
	reg := New(path)
	require.NoError(t, reg.Load())

	channels := reg.Channels()
	require.Len(t, channels, 1)
	c := channels[0]
	assert.Equal(t, "acme", c.TenantID)
	assert.Equal(t, "main", c.ChannelID)
	assert.Equal(t, "-1001", c.ChatID)
	assert.True(t, c.AllowsFeed("example_com"))
	assert.False(t, c.AllowsFeed("other_com"))

	topicID, filter, ok := c.ResolveRoute("example_com")
	require.True(t, ok)
	assert.Equal(t, int64(5), topicID)
	require.NotNil(t, filter)
	assert.Equal(t, entity.FilterExclude, filter.Mode)

	assert.WithinDuration(t, time.Now(), c.Watermark, 5*time.Second)
}

func TestRegistry_ReloadPreservesWatermarkForSurvivingChannel(t *testing.T) {
	path := writeConfig(t, baseConfig)
	reg := New(path)
	require.NoError(t, reg.Load())

	reg.AdvanceWatermark("acme/main", time.Unix(1000, 0))

	require.NoError(t, reg.Load())
	channels := reg.Channels()
	require.Len(t, channels, 1)
	assert.Equal(t, time.Unix(1000, 0), channels[0].Watermark)
}

func TestRegistry_ReloadDropsDisappearedChannelAndSeedsNewOneAtNow(t *testing.T) {
	path := writeConfig(t, baseConfig)
	reg := New(path)
	require.NoError(t, reg.Load())
	reg.AdvanceWatermark("acme/main", time.Unix(1000, 0))

	require.NoError(t, os.WriteFile(path, []byte(`
recipients:
  - tenant_id: acme
    channel_id: secondary
    chat_id: "-1002"
`), 0o600))
	require.NoError(t, reg.Load())

	channels := reg.Channels()
	require.Len(t, channels, 1)
	assert.Equal(t, "secondary", channels[0].ChannelID)
	assert.WithinDuration(t, time.Now(), channels[0].Watermark, 5*time.Second)
}

func TestRegistry_LoadRejectsUnknownFilterMode(t *testing.T) {
	path := writeConfig(t, `
recipients:
  - tenant_id: acme
    channel_id: main
    chat_id: "-1001"
    fallback_filter:
      mode: bogus
`)
	reg := New(path)
	assert.Error(t, reg.Load())
}

func TestRegistry_LoadRejectsMissingChatID(t *testing.T) {
	path := writeConfig(t, `
recipients:
  - tenant_id: acme
    channel_id: main
`)
	reg := New(path)
	assert.Error(t, reg.Load())
}

func TestRegistry_LoadRejectsMissingBotTokenEnvValue(t *testing.T) {
	path := writeConfig(t, `
recipients:
  - tenant_id: acme
    channel_id: main
    chat_id: "-1001"
    bot_token_env: THIS_ENV_VAR_SHOULD_NOT_BE_SET_xyz
`)
	reg := New(path)
	assert.Error(t, reg.Load())
}
