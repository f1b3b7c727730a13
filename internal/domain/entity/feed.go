package entity

import (
	"regexp"
	"strings"
	"time"
)

// Feed represents a pollable RSS/Atom source in the system.
// It carries crawl metadata and optional proxy routing, and is mutated
// only by the Ingestor (title, LastUpdatedAt, FirstParseDone).
type Feed struct {
	ID             string
	URL            string
	Name           string
	Group          string
	Active         bool
	ProxyRequired  bool
	Proxy          *ProxyConfig
	FirstParseDone bool
	LastUpdatedAt  time.Time
}

// ProxyConfig describes an outbound proxy assignment for a feed.
type ProxyConfig struct {
	URL    string
	Region string
}

// multiPartSuffixes lists registrable suffixes that are themselves two
// labels long, so the apex-domain derivation below keeps three labels
// instead of the generic two (e.g. "bbc.co.uk", not "co.uk").
var multiPartSuffixes = map[string]bool{
	"co.uk":  true,
	"co.jp":  true,
	"com.au": true,
	"com.br": true,
	"org.uk": true,
	"ne.jp":  true,
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveFeedID builds a stable short identifier for a feed URL from its
// apex domain. It is used both as the feed's primary key and as the
// routing key recipients reference in topics_mapping.
func DeriveFeedID(rawURL string) string {
	host := hostFromURL(rawURL)
	if host == "" {
		return ""
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return sanitizeID(host)
	}

	lastTwo := strings.Join(labels[len(labels)-2:], ".")
	if multiPartSuffixes[lastTwo] && len(labels) >= 3 {
		apex := strings.Join(labels[len(labels)-3:], ".")
		return sanitizeID(apex)
	}
	return sanitizeID(lastTwo)
}

func hostFromURL(rawURL string) string {
	rest := rawURL
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		rest = rest[:idx]
	}
	if idx := strings.Index(rest, "@"); idx >= 0 {
		rest = rest[idx+1:]
	}
	if idx := strings.LastIndex(rest, ":"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.ToLower(rest)
}

func sanitizeID(s string) string {
	s = strings.ReplaceAll(s, ".", "_")
	return nonAlnum.ReplaceAllString(s, "_")
}
