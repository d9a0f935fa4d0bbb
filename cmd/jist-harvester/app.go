package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adda-Baaj/jist-harvester/internal/amp"
	"github.com/Adda-Baaj/jist-harvester/internal/config"
	"github.com/Adda-Baaj/jist-harvester/internal/dedup"
	"github.com/Adda-Baaj/jist-harvester/internal/filter"
	"github.com/Adda-Baaj/jist-harvester/internal/forward"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
	"github.com/Adda-Baaj/jist-harvester/internal/pipeline"
	"github.com/Adda-Baaj/jist-harvester/internal/retry"
	"github.com/Adda-Baaj/jist-harvester/pkg/feeds"
	"github.com/Adda-Baaj/jist-harvester/pkg/httpclient"
	"github.com/Adda-Baaj/jist-harvester/pkg/publishers"
)

// app is a fully wired harvester.
type app struct {
	runner *pipeline.Runner
	cache  *dedup.SeenCache
	fanout *publishers.Fanout
}

// newApp wires every stage from cfg. The feeds file is read once up front so
// a bad path fails before any run starts; each run reloads it.
func newApp(ctx context.Context, cfg *config.Config, feedsPath string, log logger.Logger) (*app, error) {
	if _, err := feeds.LoadSources(feedsPath); err != nil {
		return nil, fmt.Errorf("feeds file: %w", err)
	}

	client := httpclient.NewRestyClientWithOptions(httpclient.Options{
		Timeout:   cfg.HTTPTimeout,
		UserAgent: cfg.UserAgent,
	})
	fetcher := feeds.NewFetcher(client, retry.FetchPolicy(cfg.FetchMaxRetries, cfg.FetchRetryDelay, cfg.RateLimitCooldown), log)

	var cache *dedup.SeenCache
	if cfg.SeenCachePath != "" {
		c, err := dedup.OpenSeenCache(cfg.SeenCachePath)
		if err != nil {
			return nil, err
		}
		cache = c
	}
	gate := dedup.NewGate(client, cfg.DedupURL, cache, log)

	sinks, err := publishers.LoadConfig(cfg.PublishersFile)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	pubs, err := publishers.DefaultRegistry().Build(ctx, sinks, log)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	fanout := publishers.NewFanout(pubs, cfg.PublishTimeout, log)

	resolver := amp.NewResolver(amp.NewClient(client, cfg.AmpEndpoint, cfg.AmpAPIKey, log), amp.Config{
		Concurrency:      cfg.AmpBatchConcurrency,
		QuotaCooldown:    cfg.AmpQuotaCooldown,
		TransportRetries: cfg.AmpTransportRetries,
		TransportDelay:   cfg.AmpTransportDelay,
	}, log)

	stage := forward.NewStage(client, forward.Config{
		ExtractorURL:   cfg.ExtractorURL,
		SummarizerURL:  cfg.SummarizerURL,
		PersistenceURL: cfg.PersistenceURL,
		Workers:        cfg.ForwardWorkers,
	}, gate, fanout, log)

	orch, err := pipeline.NewOrchestrator(pipeline.Deps{
		Sources: pipeline.FileSources(feedsPath),
		Fetcher: fetcher,
		Parser:  feeds.NewParser(cfg.ParseMaxRetries, log),
		Filter:  filter.New(fetcher, gate, log),
		Amp:     resolver,
		Forward: stage,
	}, cfg.FeedWorkers, log)
	if err != nil {
		_ = fanout.Close()
		_ = cache.Close()
		return nil, err
	}

	seen, err := cache.Len()
	if err != nil {
		log.Warn("seen cache unreadable: " + err.Error())
	}
	log.InfoObj("harvester wired", "app_ready", map[string]any{
		"feeds_file":         feedsPath,
		"publishers":         fanout.Len(),
		"seen_cache":         cfg.SeenCachePath != "",
		"seen_cache_entries": seen,
	})
	return &app{runner: pipeline.NewRunner(orch.Run, log), cache: cache, fanout: fanout}, nil
}

func (a *app) Close() error {
	a.runner.Wait()
	return errors.Join(a.fanout.Close(), a.cache.Close())
}
