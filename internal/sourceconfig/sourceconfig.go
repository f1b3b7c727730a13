// Package sourceconfig implements ingest.SourceLoader: it rebuilds the
// Ingestor's feed set from an on-disk sources.yaml file. It follows the
// same teacher-derived internal/config pattern (os.ReadFile, yaml.Unmarshal,
// a validate pass) that internal/registry uses for recipients.yaml, applied
// here to feed entries instead of recipient channels.
package sourceconfig

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rss-media-bus/internal/domain/entity"
)

// fileConfig mirrors the on-disk sources.yaml shape.
type fileConfig struct {
	Feeds []feedConfig `yaml:"feeds"`
}

type feedConfig struct {
	URL       string       `yaml:"url"`
	Name      string       `yaml:"name"`
	Group     string       `yaml:"group"`
	Active    *bool        `yaml:"active"`
	ProxyHint *proxyConfig `yaml:"proxy"`
}

type proxyConfig struct {
	URL    string `yaml:"url"`
	Region string `yaml:"region"`
}

// Loader reads and parses path into entity.Feed values on demand. Unlike
// registry.Registry it keeps no state between calls: the Ingestor consults
// it once per reload and writes the result straight through Store.RegisterFeed,
// so there is nothing to cache here.
type Loader struct {
	path string
}

// New returns a Loader that reads its feed list from path.
func New(path string) *Loader {
	return &Loader{path: path}
}

// Load parses path and returns one entity.Feed per entry. A feed's ID is
// always derived from its URL, never taken from the file, so renaming a
// feed in sources.yaml can never orphan its article history.
func (l *Loader) Load(ctx context.Context) ([]*entity.Feed, error) {
	// #nosec G304 -- path comes from process configuration, not user input
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read sources config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse sources config: %w", err)
	}

	feeds := make([]*entity.Feed, 0, len(cfg.Feeds))
	for _, fc := range cfg.Feeds {
		if fc.URL == "" {
			return nil, fmt.Errorf("feed entry %q: url is required", fc.Name)
		}
		id := entity.DeriveFeedID(fc.URL)
		if id == "" {
			return nil, fmt.Errorf("feed %q: could not derive id from url %q", fc.Name, fc.URL)
		}

		active := true
		if fc.Active != nil {
			active = *fc.Active
		}

		var proxy *entity.ProxyConfig
		if fc.ProxyHint != nil && fc.ProxyHint.URL != "" {
			proxy = &entity.ProxyConfig{URL: fc.ProxyHint.URL, Region: fc.ProxyHint.Region}
		}

		feeds = append(feeds, &entity.Feed{
			ID:            id,
			URL:           fc.URL,
			Name:          fc.Name,
			Group:         fc.Group,
			Active:        active,
			ProxyRequired: proxy != nil,
			Proxy:         proxy,
		})
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return feeds, nil
}
