package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
	"github.com/Adda-Baaj/jist-harvester/internal/metrics"
	"github.com/Adda-Baaj/jist-harvester/pkg/feeds"
)

const (
	defaultFeedWorkers = 4
	skipDuplicateURL   = "duplicate_url"
)

// SourceLoader returns the feeds to ingest. It is called once per run.
type SourceLoader func() ([]domain.FeedSource, error)

// FileSources loads feeds from a YAML or JSON file on every call.
func FileSources(path string) SourceLoader {
	return func() ([]domain.FeedSource, error) { return feeds.LoadSources(path) }
}

type FeedFetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

type FeedParser interface {
	Parse(ctx context.Context, body []byte, format domain.FeedFormat) ([]domain.RawFeedItem, error)
}

type ItemFilter interface {
	Filter(ctx context.Context, outcome *domain.RunOutcome, raw domain.RawFeedItem, feed domain.FeedSource) (domain.Article, error)
}

type AmpResolver interface {
	ResolveAll(ctx context.Context, outcome *domain.RunOutcome, urls []string) (domain.AmpBatchResult, error)
}

type Forwarder interface {
	Forward(ctx context.Context, outcome *domain.RunOutcome, articles []domain.Article) []domain.Article
}

// Deps are the stages a run is assembled from.
type Deps struct {
	Sources SourceLoader
	Fetcher FeedFetcher
	Parser  FeedParser
	Filter  ItemFilter
	Amp     AmpResolver
	Forward Forwarder
}

// Orchestrator runs one full ingestion pass: feeds, AMP resolution, forwarding.
type Orchestrator struct {
	deps        Deps
	feedWorkers int
	log         logger.Logger
}

// NewOrchestrator validates deps and builds an Orchestrator.
func NewOrchestrator(deps Deps, feedWorkers int, log logger.Logger) (*Orchestrator, error) {
	switch {
	case deps.Sources == nil:
		return nil, errors.New("pipeline: source loader is required")
	case deps.Fetcher == nil, deps.Parser == nil:
		return nil, errors.New("pipeline: fetcher and parser are required")
	case deps.Filter == nil:
		return nil, errors.New("pipeline: filter is required")
	case deps.Amp == nil:
		return nil, errors.New("pipeline: amp resolver is required")
	case deps.Forward == nil:
		return nil, errors.New("pipeline: forwarder is required")
	}
	if feedWorkers <= 0 {
		feedWorkers = defaultFeedWorkers
	}
	return &Orchestrator{deps: deps, feedWorkers: feedWorkers, log: logger.Ensure(log)}, nil
}

// Run performs one ingestion pass. Only a source loading failure or
// cancellation is returned as an error; every other failure is contained and
// reflected in the outcome.
func (o *Orchestrator) Run(ctx context.Context) (*domain.RunOutcome, error) {
	outcome := domain.NewRunOutcome()

	sources, err := o.deps.Sources()
	if err != nil {
		metrics.RunsTotal.WithLabelValues("config_error").Inc()
		return outcome, fmt.Errorf("load feed sources: %w", err)
	}
	o.log.InfoObj("run started", "run_start", map[string]any{"feeds": len(sources)})

	articles := collapseByURL(outcome, o.ingest(ctx, outcome, sources), o.log)
	outcome.Update(func(out *domain.RunOutcome) { out.ItemsKept = len(articles) })

	if err := ctx.Err(); err != nil {
		return o.finish(outcome, err)
	}

	urls := make([]string, 0, len(articles))
	for _, art := range articles {
		urls = append(urls, art.ArticleURL)
	}
	amps, err := o.deps.Amp.ResolveAll(ctx, outcome, urls)
	if err != nil {
		return o.finish(outcome, err)
	}

	ready := attachAmp(outcome, articles, amps, o.log)
	o.deps.Forward.Forward(ctx, outcome, ready)

	return o.finish(outcome, ctx.Err())
}

func (o *Orchestrator) finish(outcome *domain.RunOutcome, err error) (*domain.RunOutcome, error) {
	result := "ok"
	if err != nil {
		result = "cancelled"
	}
	metrics.RunsTotal.WithLabelValues(result).Inc()

	snapshot := outcome.Snapshot()
	snapshot["result"] = result
	o.log.InfoObj("run finished", "run_outcome", snapshot)
	return outcome, err
}

// ingest processes every feed concurrently. A failing feed contributes no
// articles and never affects the others. Articles are returned in feed order.
func (o *Orchestrator) ingest(ctx context.Context, outcome *domain.RunOutcome, sources []domain.FeedSource) []domain.Article {
	var (
		mu      sync.Mutex
		perFeed = make([][]domain.Article, len(sources))
		g       errgroup.Group
	)
	g.SetLimit(o.feedWorkers)

	for i, feed := range sources {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			kept, err := o.ingestFeed(ctx, outcome, feed)
			if err != nil {
				if ctx.Err() == nil {
					o.feedFailed(outcome, feed, err)
				}
				return nil
			}
			outcome.Update(func(out *domain.RunOutcome) { out.FeedsOK++ })

			mu.Lock()
			perFeed[i] = kept
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var articles []domain.Article
	for _, kept := range perFeed {
		articles = append(articles, kept...)
	}
	return articles
}

func (o *Orchestrator) ingestFeed(ctx context.Context, outcome *domain.RunOutcome, feed domain.FeedSource) ([]domain.Article, error) {
	body, err := o.deps.Fetcher.Fetch(ctx, feed.FeedURL, feeds.Headers(feed))
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	items, err := o.deps.Parser.Parse(ctx, body, feed.Format)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	var kept []domain.Article
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		art, err := o.deps.Filter.Filter(ctx, outcome, item, feed)
		if err != nil {
			if !domain.IsSkip(err) && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			reason := domain.SkipReason(err)
			outcome.Skip(reason)
			metrics.ItemsSkipped.WithLabelValues(reason).Inc()
			o.log.DebugObj("feed item skipped", "item_skipped", map[string]any{
				"domain": feed.Domain,
				"link":   item.Link,
				"reason": reason,
				"error":  err.Error(),
			})
			continue
		}
		kept = append(kept, art)
	}

	o.log.InfoObj("feed ingested", "feed_done", map[string]any{
		"domain":   feed.Domain,
		"feed_url": feed.FeedURL,
		"items":    len(items),
		"kept":     len(kept),
	})
	return kept, nil
}

func (o *Orchestrator) feedFailed(outcome *domain.RunOutcome, feed domain.FeedSource, err error) {
	outcome.Update(func(out *domain.RunOutcome) { out.FeedsFailed++ })
	metrics.FeedFailures.WithLabelValues(feed.Domain).Inc()
	o.log.ErrorObj("feed unavailable for this run", "feed_failed", map[string]any{
		"domain":   feed.Domain,
		"feed_url": feed.FeedURL,
		"error":    err.Error(),
	})
}

// collapseByURL keeps the first article for each resolved URL. The same story
// often arrives under several tracking links or in more than one feed.
func collapseByURL(outcome *domain.RunOutcome, articles []domain.Article, log logger.Logger) []domain.Article {
	seen := make(map[string]struct{}, len(articles))
	out := make([]domain.Article, 0, len(articles))
	for _, art := range articles {
		if _, dup := seen[art.ArticleURL]; dup {
			outcome.Skip(skipDuplicateURL)
			metrics.ItemsSkipped.WithLabelValues(skipDuplicateURL).Inc()
			log.DebugObj("duplicate article in run", "item_skipped", map[string]any{
				"domain":      art.Domain,
				"article_url": art.ArticleURL,
				"reason":      skipDuplicateURL,
			})
			continue
		}
		seen[art.ArticleURL] = struct{}{}
		out = append(out, art)
	}
	return out
}

// attachAmp sets AmpURL on every article resolved by exact URL and drops the rest.
func attachAmp(outcome *domain.RunOutcome, articles []domain.Article, amps domain.AmpBatchResult, log logger.Logger) []domain.Article {
	ready := make([]domain.Article, 0, len(articles))
	noAmp := 0
	for _, art := range articles {
		if amp := amps.Resolved[art.ArticleURL]; amp != "" {
			art.AmpURL = amp
			ready = append(ready, art)
			continue
		}
		noAmp++
		fields := map[string]any{"domain": art.Domain, "article_url": art.ArticleURL}
		if failure, ok := amps.Failed[art.ArticleURL]; ok {
			fields["error_code"] = failure.Code
			fields["error"] = failure.Message
		}
		log.DebugObj("article has no amp url", "article_no_amp", fields)
	}
	outcome.Update(func(out *domain.RunOutcome) { out.ArticlesNoAmp += noAmp })
	return ready
}
