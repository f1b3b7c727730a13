package entity

import (
	"strings"
	"time"
)

// FeedRoute is one entry in a recipient channel's routing table: it maps
// a feed id to a chat topic and, optionally, a filter that overrides the
// channel's fallback filter for that feed only.
type FeedRoute struct {
	TopicID int64
	Filter  *FilterSpec
}

// RecipientChannel is one delivery target: a chat credential and chat id,
// scoped to a set of feeds and routed through per-feed topics and filters.
// Watermark is process-local, in-memory state mutated only by the
// dispatcher that owns this channel.
type RecipientChannel struct {
	TenantID      string
	ChannelID     string
	BotToken      string
	ChatID        string
	AllowedFeeds  map[string]bool // empty/nil means "all feeds allowed"
	Routes        map[string]FeedRoute
	FallbackFilter *FilterSpec
	Watermark     time.Time
}

// Key returns the (tenant, channel) identity pair as a single string,
// suitable for use as a map key when diffing registry snapshots across a
// reload.
func (r *RecipientChannel) Key() string {
	return r.TenantID + "/" + r.ChannelID
}

// AllowsFeed reports whether this channel accepts articles from feedID,
// honoring the "empty allow-list means all feeds" rule.
func (r *RecipientChannel) AllowsFeed(feedID string) bool {
	if len(r.AllowedFeeds) == 0 {
		return true
	}
	return r.AllowedFeeds[feedID]
}

// ResolveRoute finds the topic and filter to apply for feedID, with exact
// key match first, then a tolerant substring match in either direction
// (subdomain/apex variance), then the channel's fallback filter with no
// topic id. The returned bool is false when no topic id resolves and the
// article must therefore be dropped.
func (r *RecipientChannel) ResolveRoute(feedID string) (topicID int64, filter *FilterSpec, ok bool) {
	if route, found := r.Routes[feedID]; found {
		if route.Filter != nil {
			return route.TopicID, route.Filter, true
		}
		return route.TopicID, r.FallbackFilter, true
	}

	for key, route := range r.Routes {
		if containsEither(key, feedID) {
			if route.Filter != nil {
				return route.TopicID, route.Filter, true
			}
			return route.TopicID, r.FallbackFilter, true
		}
	}

	return 0, r.FallbackFilter, false
}

func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
