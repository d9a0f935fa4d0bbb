package feeds

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
)

// sourcesFile represents the structure of the feeds configuration file.
// Older deployments list feeds under top_stories.
type sourcesFile struct {
	Feeds      []SourceConfig `json:"feeds" yaml:"feeds"`
	TopStories []SourceConfig `json:"top_stories" yaml:"top_stories"`
}

// SourceConfig is a single feed entry as declared in the configuration file.
type SourceConfig struct {
	Domain   string            `json:"domain" yaml:"domain"`
	RSSURL   string            `json:"rss_url" yaml:"rss_url"`
	FeedURL  string            `json:"feed_url" yaml:"feed_url"`
	BadPaths []string          `json:"bad_paths" yaml:"bad_paths"`
	Match    string            `json:"match" yaml:"match"`
	Format   string            `json:"format" yaml:"format"`
	Enabled  *bool             `json:"enabled" yaml:"enabled"`
	Headers  map[string]string `json:"headers" yaml:"headers"`
}

// LoadSources reads the feeds file at path and returns the enabled feed sources.
func LoadSources(path string) ([]domain.FeedSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("feeds file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feeds file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	return ParseSources([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
}

// ParseSources decodes, sanitises and validates a feeds document.
func ParseSources(data []byte, ext string) ([]domain.FeedSource, error) {
	doc, err := decodeSources(data, ext)
	if err != nil {
		return nil, err
	}

	entries := append(doc.Feeds, doc.TopStories...)
	if len(entries) == 0 {
		return nil, errors.New("feeds file contains no feed entries")
	}

	seen := make(map[string]struct{}, len(entries))
	out := make([]domain.FeedSource, 0, len(entries))
	for i, entry := range entries {
		cfg := sanitizeSource(entry)
		if err := validateSource(cfg); err != nil {
			return nil, fmt.Errorf("feeds[%d]: %w", i, err)
		}
		if !cfg.enabled() {
			continue
		}
		if _, dup := seen[cfg.FeedURL]; dup {
			return nil, fmt.Errorf("duplicate feed url %q", cfg.FeedURL)
		}
		seen[cfg.FeedURL] = struct{}{}
		out = append(out, cfg.toSource())
	}
	return out, nil
}

// decodeSources attempts to decode the feeds file content using the decoder matching ext.
func decodeSources(data []byte, ext string) (sourcesFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var lastErr error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var doc sourcesFile
		if err := d.fn(data, &doc); err != nil {
			lastErr = fmt.Errorf("decode %s feeds: %w", d.name, err)
			continue
		}
		return doc, nil
	}
	if lastErr != nil {
		return sourcesFile{}, lastErr
	}
	return sourcesFile{}, errors.New("feeds file format not recognized (expected YAML or JSON)")
}

// sanitizeSource trims and normalizes the feed entry fields.
func sanitizeSource(cfg SourceConfig) SourceConfig {
	cfg.Domain = strings.ToLower(strings.TrimSpace(cfg.Domain))
	cfg.RSSURL = strings.TrimSpace(cfg.RSSURL)
	cfg.FeedURL = strings.TrimSpace(cfg.FeedURL)
	if cfg.FeedURL == "" {
		cfg.FeedURL = cfg.RSSURL
	}
	cfg.Match = strings.ToLower(strings.TrimSpace(cfg.Match))
	if cfg.Match == "" {
		cfg.Match = string(domain.MatchDomain)
	}
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.Format == "" {
		cfg.Format = string(domain.FormatRSS)
	}

	paths := make([]string, 0, len(cfg.BadPaths))
	for _, p := range cfg.BadPaths {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	cfg.BadPaths = paths

	if len(cfg.Headers) > 0 {
		headers := make(map[string]string, len(cfg.Headers))
		for k, v := range cfg.Headers {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k == "" || v == "" {
				continue
			}
			headers[k] = v
		}
		cfg.Headers = headers
	}
	return cfg
}

// validateSource checks that required fields are present and well formed.
func validateSource(cfg SourceConfig) error {
	if cfg.Domain == "" {
		return errors.New("domain is required")
	}
	if cfg.FeedURL == "" {
		return fmt.Errorf("rss_url or feed_url is required for feed %q", cfg.Domain)
	}
	u, err := url.Parse(cfg.FeedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("feed url %q for feed %q is not an absolute http(s) url", cfg.FeedURL, cfg.Domain)
	}
	switch domain.MatchMode(cfg.Match) {
	case domain.MatchDomain, domain.MatchSubdomain:
	default:
		return fmt.Errorf("match %q not supported for feed %q", cfg.Match, cfg.Domain)
	}
	switch domain.FeedFormat(cfg.Format) {
	case domain.FormatRSS, domain.FormatSitemap:
	default:
		return fmt.Errorf("format %q not supported for feed %q", cfg.Format, cfg.Domain)
	}
	return nil
}

func (cfg SourceConfig) enabled() bool {
	return cfg.Enabled == nil || *cfg.Enabled
}

func (cfg SourceConfig) toSource() domain.FeedSource {
	return domain.FeedSource{
		Domain:   cfg.Domain,
		FeedURL:  cfg.FeedURL,
		BadPaths: cfg.BadPaths,
		Match:    domain.MatchMode(cfg.Match),
		Format:   domain.FeedFormat(cfg.Format),
		Headers:  cfg.Headers,
	}
}
