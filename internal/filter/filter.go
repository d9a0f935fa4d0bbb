package filter

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/Adda-Baaj/jist-harvester/internal/dedup"
	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
	"github.com/Adda-Baaj/jist-harvester/pkg/feeds"
)

// Resolver follows an article link to its canonical post-redirect URL.
type Resolver interface {
	Resolve(ctx context.Context, url string, headers map[string]string) (feeds.Page, error)
}

// Filter turns raw feed items into articles, dropping ads, duplicates and
// items that cannot be resolved.
type Filter struct {
	resolver Resolver
	dedup    dedup.Checker
	policy   *bluemonday.Policy
	log      logger.Logger
}

// New builds a Filter.
func New(resolver Resolver, checker dedup.Checker, log logger.Logger) *Filter {
	return &Filter{
		resolver: resolver,
		dedup:    checker,
		policy:   bluemonday.StrictPolicy(),
		log:      logger.Ensure(log),
	}
}

// Filter applies the per-item pipeline: title check, dedup on the pre-redirect
// hash, redirect resolution, ad and bad-path checks, description cleanup.
// Every returned error is a skip reason (see domain.IsSkip) or a context error.
// outcome may be nil.
func (f *Filter) Filter(ctx context.Context, outcome *domain.RunOutcome, raw domain.RawFeedItem, feed domain.FeedSource) (domain.Article, error) {
	b := articleBuilder{domain: feed.Domain}

	if raw.Title == nil || strings.TrimSpace(*raw.Title) == "" {
		return domain.Article{}, domain.ErrMissingTitle
	}
	b.title = strings.TrimSpace(*raw.Title)

	link := strings.TrimSpace(raw.Link)
	if link == "" {
		return domain.Article{}, fmt.Errorf("%w: item %q has no link", domain.ErrResolutionFailed, b.title)
	}
	b.urlHash = feeds.HashURL(link)

	if f.dedup != nil {
		exists, err := f.dedup.Exists(ctx, b.urlHash)
		switch {
		case err != nil && ctx.Err() != nil:
			return domain.Article{}, ctx.Err()
		case errors.Is(err, domain.ErrLookupUnavailable):
			if outcome != nil {
				outcome.Update(func(o *domain.RunOutcome) { o.DedupAnomalies++ })
			}
		case exists:
			return domain.Article{}, fmt.Errorf("%w: %s", domain.ErrAlreadyIngested, b.urlHash)
		}
	}

	page, err := f.resolver.Resolve(ctx, link, map[string]string{"Accept": "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"})
	if err != nil {
		if ctx.Err() != nil {
			return domain.Article{}, ctx.Err()
		}
		return domain.Article{}, fmt.Errorf("%w: %w", domain.ErrResolutionFailed, err)
	}
	b.articleURL = strings.TrimSpace(page.URL)

	host, err := publisherHost(b.articleURL)
	if err != nil {
		return domain.Article{}, fmt.Errorf("%w: %w", domain.ErrResolutionFailed, err)
	}
	if !hostMatches(host, feed) {
		return domain.Article{}, fmt.Errorf("%w: host %s is not %s", domain.ErrAdDetected, host, feed.Domain)
	}
	if p, bad := matchedBadPath(b.articleURL, feed.BadPaths); bad {
		return domain.Article{}, fmt.Errorf("%w: %s matches bad path %q", domain.ErrAdDetected, b.articleURL, p)
	}

	if raw.Description != nil {
		b.description = f.stripTags(*raw.Description)
	}
	if b.description == "" {
		b.description = f.stripTags(metaDescription(page.Body))
		f.log.DebugObj("feed item has no description", "item_no_description", map[string]any{
			"domain":      feed.Domain,
			"article_url": b.articleURL,
			"from_meta":   b.description != "",
		})
	}
	if raw.PubDate != nil {
		b.pubDate = strings.TrimSpace(*raw.PubDate)
	}

	return b.build()
}

// stripTags removes markup from feed text and decodes entities.
func (f *Filter) stripTags(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(f.policy.Sanitize(s)))
}

// articleBuilder collects one item's fields before the Article is constructed.
type articleBuilder struct {
	domain      string
	title       string
	description string
	pubDate     string
	articleURL  string
	urlHash     string
}

func (b articleBuilder) build() (domain.Article, error) {
	switch {
	case b.title == "":
		return domain.Article{}, domain.ErrMissingTitle
	case b.articleURL == "", b.urlHash == "":
		return domain.Article{}, fmt.Errorf("%w: incomplete item %q", domain.ErrResolutionFailed, b.title)
	case b.domain == "":
		return domain.Article{}, fmt.Errorf("%w: item %q has no feed domain", domain.ErrAdDetected, b.title)
	}
	return domain.Article{
		Domain:      b.domain,
		Title:       b.title,
		Description: b.description,
		PubDate:     b.pubDate,
		ArticleURL:  b.articleURL,
		URLHash:     b.urlHash,
	}, nil
}
