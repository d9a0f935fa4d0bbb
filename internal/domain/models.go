package domain

import "strings"

// Domain contains core models shared by the ingestion pipeline.

// MatchMode selects how a resolved article host is compared against a feed's domain.
type MatchMode string

const (
	// MatchDomain compares the registrable domain label (cnn for www.cnn.com).
	MatchDomain MatchMode = "domain"
	// MatchSubdomain compares the leftmost non-www host label (abcnews for abcnews.go.com).
	MatchSubdomain MatchMode = "subdomain"
)

// FeedFormat selects the structural parser used for a feed body.
type FeedFormat string

const (
	FormatRSS     FeedFormat = "rss"
	FormatSitemap FeedFormat = "sitemap"
)

// FeedSource is one configured feed. It is immutable once loaded.
type FeedSource struct {
	Domain   string
	FeedURL  string
	BadPaths []string
	Match    MatchMode
	Format   FeedFormat
	Headers  map[string]string
}

// RawFeedItem is a parsed feed entry before filtering. Nil fields were absent in the feed.
type RawFeedItem struct {
	Title       *string
	Description *string
	PubDate     *string
	Link        string
}

// Article is the unit that flows through AMP resolution and forwarding.
type Article struct {
	Domain      string `json:"domain"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PubDate     string `json:"pub_date"`
	ArticleURL  string `json:"article_url"`
	URLHash     string `json:"url_hash"`
	AmpURL      string `json:"amp_url"`
	ArticleText string `json:"article_text"`
	Summary     string `json:"summary"`
	ArticleHash string `json:"article_hash"`
}

// HasAmp reports whether the article has a resolved AMP URL.
func (a Article) HasAmp() bool {
	return strings.TrimSpace(a.AmpURL) != ""
}

// AmpURLError describes why the AMP API could not resolve one URL.
type AmpURLError struct {
	Code    string
	Message string
}

// AmpBatchResult is the outcome of resolving one or more batches of URLs.
type AmpBatchResult struct {
	Resolved map[string]string
	Failed   map[string]AmpURLError
}

// NewAmpBatchResult returns an empty result with initialised maps.
func NewAmpBatchResult() AmpBatchResult {
	return AmpBatchResult{
		Resolved: make(map[string]string),
		Failed:   make(map[string]AmpURLError),
	}
}

// Merge copies other into r. Later resolutions win.
func (r AmpBatchResult) Merge(other AmpBatchResult) {
	for k, v := range other.Resolved {
		r.Resolved[k] = v
	}
	for k, v := range other.Failed {
		r.Failed[k] = v
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
