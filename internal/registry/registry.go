// Package registry implements the RecipientRegistry: the in-memory view
// of configured delivery channels loaded from an on-disk YAML file. It
// follows the teacher's internal/config pattern (struct tags, os.ReadFile,
// yaml.Unmarshal, a validate pass) generalized from a single flat config
// struct to a keyed set of entity.RecipientChannel values that survives
// reload without losing in-flight watermarks.
package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"rss-media-bus/internal/domain/entity"
)

// fileConfig mirrors the on-disk recipients.yaml shape.
type fileConfig struct {
	Recipients []recipientConfig `yaml:"recipients"`
}

type recipientConfig struct {
	TenantID       string                 `yaml:"tenant_id"`
	ChannelID      string                 `yaml:"channel_id"`
	BotTokenEnv    string                 `yaml:"bot_token_env"`
	ChatID         string                 `yaml:"chat_id"`
	AllowedFeeds   []string               `yaml:"allowed_feeds"`
	FallbackFilter *filterConfig          `yaml:"fallback_filter"`
	Routes         map[string]routeConfig `yaml:"routes"`
}

type routeConfig struct {
	TopicID int64         `yaml:"topic_id"`
	Filter  *filterConfig `yaml:"filter"`
}

type filterConfig struct {
	Mode             string   `yaml:"mode"`
	Keywords         []string `yaml:"keywords"`
	Fields           []string `yaml:"fields"`
	CaseSensitive    bool     `yaml:"case_sensitive"`
	MinMatches       int      `yaml:"min_matches"`
	PriorityKeywords []string `yaml:"priority_keywords"`
}

// Registry holds the currently loaded set of recipient channels, keyed by
// entity.RecipientChannel.Key(). It is safe for concurrent reads by the
// Dispatcher and reload by a single background goroutine.
type Registry struct {
	path string

	mu       sync.RWMutex
	channels map[string]*entity.RecipientChannel
}

// New returns a Registry that reads its configuration from path. Call
// Load once before first use; channel data is empty until then.
func New(path string) *Registry {
	return &Registry{path: path, channels: make(map[string]*entity.RecipientChannel)}
}

// Load parses the configured YAML file and replaces the in-memory channel
// set. Per spec 4.6's reload contract: a (tenant, channel) pair that
// survives the reload keeps its prior watermark; a newly appearing pair
// starts at time.Now(); a pair that disappears is dropped without
// draining whatever it had queued.
func (r *Registry) Load() error {
	// #nosec G304 -- path comes from process configuration, not user input
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read recipients config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse recipients config: %w", err)
	}

	next := make(map[string]*entity.RecipientChannel, len(cfg.Recipients))
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rc := range cfg.Recipients {
		channel, err := buildChannel(rc)
		if err != nil {
			return fmt.Errorf("recipient %s/%s: %w", rc.TenantID, rc.ChannelID, err)
		}

		key := channel.Key()
		if existing, ok := r.channels[key]; ok {
			channel.Watermark = existing.Watermark
		} else {
			channel.Watermark = now
		}
		next[key] = channel
	}

	r.channels = next
	return nil
}

// Channels returns a stable snapshot of the currently loaded channels for
// the Dispatcher to range over. The returned slice and its elements must
// not be mutated by the caller except via AdvanceWatermark.
func (r *Registry) Channels() []*entity.RecipientChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.RecipientChannel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	return out
}

// AdvanceWatermark sets the watermark of the channel identified by key to
// t. It is a no-op if the channel no longer exists (dropped by a reload
// that raced with an in-flight dispatch tick).
func (r *Registry) AdvanceWatermark(key string, t time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.channels[key]; ok {
		c.Watermark = t
	}
}

func buildChannel(rc recipientConfig) (*entity.RecipientChannel, error) {
	if rc.TenantID == "" || rc.ChannelID == "" {
		return nil, fmt.Errorf("tenant_id and channel_id are required")
	}
	if rc.ChatID == "" {
		return nil, fmt.Errorf("chat_id is required")
	}

	token := os.Getenv(rc.BotTokenEnv)
	if rc.BotTokenEnv != "" && token == "" {
		return nil, fmt.Errorf("bot_token_env %q is set but empty", rc.BotTokenEnv)
	}

	var allowed map[string]bool
	if len(rc.AllowedFeeds) > 0 {
		allowed = make(map[string]bool, len(rc.AllowedFeeds))
		for _, f := range rc.AllowedFeeds {
			allowed[f] = true
		}
	}

	fallback, err := buildFilterSpec(rc.FallbackFilter)
	if err != nil {
		return nil, fmt.Errorf("fallback_filter: %w", err)
	}

	routes := make(map[string]entity.FeedRoute, len(rc.Routes))
	for feedID, route := range rc.Routes {
		spec, err := buildFilterSpec(route.Filter)
		if err != nil {
			return nil, fmt.Errorf("route %s filter: %w", feedID, err)
		}
		routes[feedID] = entity.FeedRoute{TopicID: route.TopicID, Filter: spec}
	}

	return &entity.RecipientChannel{
		TenantID:       rc.TenantID,
		ChannelID:      rc.ChannelID,
		BotToken:       token,
		ChatID:         rc.ChatID,
		AllowedFeeds:   allowed,
		Routes:         routes,
		FallbackFilter: fallback,
	}, nil
}

func buildFilterSpec(fc *filterConfig) (*entity.FilterSpec, error) {
	if fc == nil {
		return nil, nil
	}

	mode := entity.FilterMode(fc.Mode)
	switch mode {
	case entity.FilterAll, entity.FilterInclude, entity.FilterExclude, entity.FilterPriority, "":
	default:
		return nil, fmt.Errorf("unknown filter mode %q", fc.Mode)
	}

	fields := make([]entity.Field, 0, len(fc.Fields))
	for _, f := range fc.Fields {
		fields = append(fields, entity.Field(f))
	}

	return &entity.FilterSpec{
		Mode:             mode,
		Keywords:         fc.Keywords,
		Fields:           fields,
		CaseSensitive:    fc.CaseSensitive,
		MinMatches:       fc.MinMatches,
		PriorityKeywords: fc.PriorityKeywords,
	}, nil
}
