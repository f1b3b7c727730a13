// Package entity defines the core domain entities and validation logic for
// the RSS bus: feeds, articles, recipient channels and filter specs, along
// with their invariants and domain-specific errors.
package entity

import "time"

// MediaKind distinguishes the kind of attachment carried by an article.
type MediaKind string

const (
	MediaEnclosure MediaKind = "enclosure"
	MediaImage     MediaKind = "image"
	MediaVideo     MediaKind = "video"
)

// Media is one attachment extracted from an entry's enclosures or
// vendor-prefixed image/video extensions.
type Media struct {
	Kind      MediaKind `json:"kind"`
	URL       string    `json:"url"`
	MIME      string    `json:"mime,omitempty"`
	Length    int64     `json:"length,omitempty"`
	Source    string    `json:"source,omitempty"`
	Copyright string    `json:"copyright,omitempty"`
}

// Article is the canonical, normalized, stored form of a feed entry.
// It is immutable after insert; identity is its Link (or, when the link
// is absent, the feed-assigned GUID).
type Article struct {
	ID          int64
	FeedID      string
	Title       string
	Link        string
	GUID        string
	Description string
	Content     string
	Author      string
	PublishedAt time.Time
	UpdatedAt   time.Time
	Category    string
	Tags        []string
	Media       []Media
	Extensions  map[string]string
	IngestedAt  time.Time
}

// Validate enforces the normalizer's admission invariants: a non-empty
// title and at least one of link or guid to key on.
func (a *Article) Validate() error {
	if a.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if a.Link == "" && a.GUID == "" {
		return &ValidationError{Field: "link", Message: "link or guid is required"}
	}
	return nil
}
