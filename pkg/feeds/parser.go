package feeds

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
	"github.com/Adda-Baaj/jist-harvester/internal/retry"
)

// Parser turns a fetched feed body into raw items. Some generators emit
// truncated markup intermittently, so the structural parse of the same body is
// retried up to maxRetries more times before the feed is declared malformed.
type Parser struct {
	maxRetries int
	log        logger.Logger
}

// NewParser builds a Parser with the given retry ceiling.
func NewParser(maxRetries int, log logger.Logger) *Parser {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Parser{maxRetries: maxRetries, log: logger.Ensure(log)}
}

// Parse decodes body according to format.
func (p *Parser) Parse(ctx context.Context, body []byte, format domain.FeedFormat) ([]domain.RawFeedItem, error) {
	decode := decoderFor(format)
	if decode == nil {
		return nil, fmt.Errorf("%w: unsupported feed format %q", domain.ErrMalformedFeed, format)
	}

	policy := retry.Policy{
		Name:       "parse",
		MaxRetries: p.maxRetries,
		Retryable:  func(error) bool { return ctx.Err() == nil },
		Log:        p.log,
	}

	var items []domain.RawFeedItem
	attempts, err := policy.Do(ctx, func(int) error {
		parsed, err := decode(body)
		if err != nil {
			return err
		}
		items = parsed
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %d attempts: %w", domain.ErrMalformedFeed, attempts, err)
	}
	return items, nil
}

func decoderFor(format domain.FeedFormat) func([]byte) ([]domain.RawFeedItem, error) {
	switch format {
	case "", domain.FormatRSS:
		return parseRSS
	case domain.FormatSitemap:
		return parseGoogleNewsSitemap
	default:
		return nil
	}
}

// parseRSS parses RSS, Atom or JSON feeds with gofeed.
// A fresh gofeed parser is used per call because its sub-parsers keep state.
func parseRSS(body []byte) ([]domain.RawFeedItem, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	items := make([]domain.RawFeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		items = append(items, domain.RawFeedItem{
			Title:       optional(item.Title),
			Description: optional(item.Description),
			PubDate:     optional(item.Published),
			Link:        itemLink(item),
		})
	}
	return items, nil
}

func itemLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}
