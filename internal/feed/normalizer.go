package feed

import (
	"bytes"
	"html"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"rss-media-bus/internal/domain/entity"
)

// defaultMaxAge drops entries published before this cutoff, guarding
// against a first-time feed adoption flooding recipients with its
// entire backlog.
const defaultMaxAge = 24 * time.Hour

// vendorExtensionNS is the vendor extension namespace the reference
// crawler reads news_id/content_type/newsline from.
const vendorExtensionNS = "rbc_news"

// Normalizer parses raw feed bytes via gofeed and maps each entry to a
// canonical entity.Article, applying an age cutoff and dropping
// entries that fail Article.Validate.
type Normalizer struct {
	parser *gofeed.Parser
	maxAge time.Duration
}

// NewNormalizer builds a Normalizer with the default 24h age cutoff.
func NewNormalizer() *Normalizer {
	return &Normalizer{parser: gofeed.NewParser(), maxAge: defaultMaxAge}
}

// WithMaxAge overrides the age cutoff, mainly for tests.
func (n *Normalizer) WithMaxAge(d time.Duration) *Normalizer {
	n.maxAge = d
	return n
}

// Normalize parses raw and returns the feed's display name plus every
// entry that passed the age cutoff and admission validation.
func (n *Normalizer) Normalize(feedID string, raw []byte) (feedTitle string, articles []*entity.Article, err error) {
	parsed, err := n.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", nil, &entity.ParsingError{Err: err}
	}

	cutoff := time.Now().Add(-n.maxAge)
	now := time.Now().UTC()

	articles = make([]*entity.Article, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		article := toArticle(feedID, item, now)
		if article.PublishedAt.Before(cutoff) {
			continue
		}
		if err := article.Validate(); err != nil {
			continue
		}
		articles = append(articles, article)
	}

	return parsed.Title, articles, nil
}

func toArticle(feedID string, item *gofeed.Item, ingestedAt time.Time) *entity.Article {
	published := ingestedAt
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	}

	var updated time.Time
	if item.UpdatedParsed != nil {
		updated = item.UpdatedParsed.UTC()
	}

	author := ""
	if item.Author != nil {
		author = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		author = item.Authors[0].Name
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}

	category := ""
	if len(item.Categories) > 0 {
		category = item.Categories[0]
	}

	article := &entity.Article{
		FeedID:      feedID,
		Title:       strings.TrimSpace(item.Title),
		Link:        item.Link,
		GUID:        item.GUID,
		Description: stripMarkup(item.Description),
		Content:     stripMarkup(content),
		Author:      author,
		PublishedAt: published,
		UpdatedAt:   updated,
		Category:    category,
		Tags:        collectTags(item),
		Media:       collectMedia(item),
		Extensions:  collectExtensions(item),
		IngestedAt:  ingestedAt,
	}
	return article
}

// stripMarkup removes inline HTML tags and unescapes entities, using
// goquery the way the reference HTML-cleanup step does for any markup
// embedded in a feed's description/content fields.
func stripMarkup(raw string) string {
	if raw == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(html.UnescapeString(raw))
	}
	return strings.TrimSpace(html.UnescapeString(doc.Text()))
}

// collectTags merges standardized categories with the vendor-prefixed
// tag extension, preserving order and dropping duplicates.
func collectTags(item *gofeed.Item) []string {
	seen := make(map[string]bool, len(item.Categories))
	tags := make([]string, 0, len(item.Categories))
	for _, c := range item.Categories {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		tags = append(tags, c)
	}

	for _, ext := range vendorExtensionValues(item, "tag") {
		if ext == "" || seen[ext] {
			continue
		}
		seen[ext] = true
		tags = append(tags, ext)
	}

	return tags
}

// collectMedia gathers enclosures plus vendor-prefixed image/video
// extensions into a single ordered list.
func collectMedia(item *gofeed.Item) []entity.Media {
	media := make([]entity.Media, 0, len(item.Enclosures))
	for _, e := range item.Enclosures {
		media = append(media, entity.Media{
			Kind: entity.MediaEnclosure,
			URL:  e.URL,
			MIME: e.Type,
		})
	}

	if ext, ok := vendorExtension(item, "image"); ok {
		media = append(media, entity.Media{
			Kind:      entity.MediaImage,
			URL:       childValue(ext, "url"),
			MIME:      orDefault(childValue(ext, "type"), "image/jpeg"),
			Source:    childValue(ext, "source"),
			Copyright: childValue(ext, "copyright"),
		})
	}
	if ext, ok := vendorExtension(item, "video"); ok {
		media = append(media, entity.Media{
			Kind:      entity.MediaVideo,
			URL:       childValue(ext, "url"),
			MIME:      orDefault(childValue(ext, "type"), "video/mp4"),
			Copyright: childValue(ext, "copyright"),
		})
	}

	return media
}

// collectExtensions passes through the vendor news_id/content_type/
// newsline fields verbatim, defaulting content_type to "article" as
// the reference crawler does.
func collectExtensions(item *gofeed.Item) map[string]string {
	ext := map[string]string{
		"news_id":      firstVendorValue(item, "news_id"),
		"content_type": orDefault(firstVendorValue(item, "type"), "article"),
		"newsline":     firstVendorValue(item, "newsline"),
	}
	return ext
}

func vendorExtension(item *gofeed.Item, field string) (map[string][]gofeed.Extension, bool) {
	ns, ok := item.Extensions[vendorExtensionNS]
	if !ok {
		return nil, false
	}
	values, ok := ns[field]
	if !ok || len(values) == 0 {
		return nil, false
	}
	return values[0].Children, true
}

func vendorExtensionValues(item *gofeed.Item, field string) []string {
	ns, ok := item.Extensions[vendorExtensionNS]
	if !ok {
		return nil
	}
	values, ok := ns[field]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.Value)
	}
	return out
}

func firstVendorValue(item *gofeed.Item, field string) string {
	ns, ok := item.Extensions[vendorExtensionNS]
	if !ok {
		return ""
	}
	values, ok := ns[field]
	if !ok || len(values) == 0 {
		return ""
	}
	return values[0].Value
}

func childValue(children map[string][]gofeed.Extension, name string) string {
	vs, ok := children[name]
	if !ok || len(vs) == 0 {
		return ""
	}
	return vs[0].Value
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
