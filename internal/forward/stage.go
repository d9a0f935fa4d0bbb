package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
	"github.com/Adda-Baaj/jist-harvester/internal/metrics"
	"github.com/Adda-Baaj/jist-harvester/pkg/httpclient"
)

const defaultWorkers = 4

// Config locates the downstream services.
type Config struct {
	ExtractorURL   string
	SummarizerURL  string
	PersistenceURL string
	Workers        int
}

// Marker remembers persisted url hashes.
type Marker interface {
	MarkIngested(urlHash string) error
}

// Notifier is told about every persisted article.
type Notifier interface {
	Notify(ctx context.Context, art domain.Article)
}

type extractResponse struct {
	ArticleText string `json:"article_text"`
	ArticleHash string `json:"article_hash"`
}

type summarizeRequest struct {
	ArticleText string `json:"article_text"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

// Stage sends articles through extraction, summarization and persistence.
type Stage struct {
	client   httpclient.Client
	cfg      Config
	marker   Marker
	notifier Notifier
	log      logger.Logger
}

// NewStage builds a Stage. marker and notifier may be nil.
func NewStage(client httpclient.Client, cfg Config, marker Marker, notifier Notifier, log logger.Logger) *Stage {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	cfg.ExtractorURL = strings.TrimRight(cfg.ExtractorURL, "/")
	cfg.SummarizerURL = strings.TrimRight(cfg.SummarizerURL, "/")
	cfg.PersistenceURL = strings.TrimRight(cfg.PersistenceURL, "/")
	return &Stage{client: client, cfg: cfg, marker: marker, notifier: notifier, log: logger.Ensure(log)}
}

// Forward processes articles with a bounded worker pool and returns the ones
// the persistence service accepted. Articles without an AMP URL are never sent.
// Dispatch stops when ctx is cancelled; an article in flight is abandoned before
// its next step, so a cancelled article is never persisted.
func (s *Stage) Forward(ctx context.Context, outcome *domain.RunOutcome, articles []domain.Article) []domain.Article {
	if outcome == nil {
		outcome = domain.NewRunOutcome()
	}
	if len(articles) == 0 {
		return nil
	}

	persisted := make([]bool, len(articles))
	out := make([]domain.Article, len(articles))
	jobCh := make(chan int)
	var wg sync.WaitGroup

	workerCount := min(len(articles), s.cfg.Workers)
	for workerID := range workerCount {
		wg.Add(1)
		go s.worker(ctx, outcome, articles, jobCh, out, persisted, &wg, workerID)
	}

dispatch:
	for idx := range articles {
		select {
		case <-ctx.Done():
			break dispatch
		case jobCh <- idx:
		}
	}
	close(jobCh)
	wg.Wait()

	var accepted []domain.Article
	for i, ok := range persisted {
		if ok {
			accepted = append(accepted, out[i])
		}
	}
	return accepted
}

func (s *Stage) worker(
	ctx context.Context,
	outcome *domain.RunOutcome,
	articles []domain.Article,
	jobCh <-chan int,
	out []domain.Article,
	persisted []bool,
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for idx := range jobCh {
		if ctx.Err() != nil {
			return
		}
		art, ok := s.forwardOne(ctx, outcome, articles[idx], workerID)
		out[idx] = art
		persisted[idx] = ok
	}
}

// forwardOne runs one article through the three stages, in order.
func (s *Stage) forwardOne(ctx context.Context, outcome *domain.RunOutcome, art domain.Article, workerID int) (domain.Article, bool) {
	if !art.HasAmp() {
		s.discard(art, domain.StageExtraction, workerID, fmt.Errorf("article has no amp url"))
		return art, false
	}

	var extracted extractResponse
	if err := s.call(ctx, outcome, domain.StageExtraction, s.cfg.ExtractorURL+"/parse", art, &extracted); err != nil {
		s.discard(art, domain.StageExtraction, workerID, err)
		return art, false
	}
	if strings.TrimSpace(extracted.ArticleText) == "" || strings.TrimSpace(extracted.ArticleHash) == "" {
		s.discard(art, domain.StageExtraction, workerID, fmt.Errorf("%w: missing article_text or article_hash", domain.ErrMalformedResponse))
		return art, false
	}
	art.ArticleText = extracted.ArticleText
	art.ArticleHash = extracted.ArticleHash

	if ctx.Err() != nil {
		return art, false
	}

	var summarized summarizeResponse
	if err := s.call(ctx, outcome, domain.StageSummarization, s.cfg.SummarizerURL+"/summarize", summarizeRequest{ArticleText: art.ArticleText}, &summarized); err != nil {
		s.discard(art, domain.StageSummarization, workerID, err)
		return art, false
	}
	if strings.TrimSpace(summarized.Summary) == "" {
		s.discard(art, domain.StageSummarization, workerID, fmt.Errorf("%w: missing summary", domain.ErrMalformedResponse))
		return art, false
	}
	art.Summary = summarized.Summary

	if ctx.Err() != nil {
		return art, false
	}

	return art, s.persist(ctx, outcome, art, workerID)
}

// persist posts the article and interprets the store's status codes.
func (s *Stage) persist(ctx context.Context, outcome *domain.RunOutcome, art domain.Article, workerID int) bool {
	resp, err := s.client.PostJSON(ctx, s.cfg.PersistenceURL+"/postArticle", art, nil)
	status := domain.StatusNoResponse
	if err == nil {
		status = resp.StatusCode()
	}
	s.record(outcome, domain.StagePersistence, status)

	fields := map[string]any{
		"worker_id":   workerID,
		"domain":      art.Domain,
		"article_url": art.ArticleURL,
		"status":      status,
	}
	switch {
	case err != nil:
		fields["error"] = err.Error()
		s.log.ErrorObj("persistence request failed", "persist_error", fields)
		return false
	case status == http.StatusCreated:
		s.log.InfoObj("article persisted", "persist_ok", fields)
		outcome.Update(func(o *domain.RunOutcome) { o.ArticlesPersisted++ })
		s.afterPersist(ctx, art)
		return true
	case status == http.StatusBadRequest:
		fields["body"] = httpclient.Snippet(resp.Body())
		s.log.WarnObj("persistence rejected article data", "persist_bad_data", fields)
	case status == http.StatusInternalServerError:
		fields["body"] = httpclient.Snippet(resp.Body())
		s.log.ErrorObj("persistence insert failed", "persist_insert_failed", fields)
	default:
		fields["body"] = httpclient.Snippet(resp.Body())
		s.log.WarnObj("persistence returned unexpected status", "persist_anomaly", fields)
	}
	return false
}

func (s *Stage) afterPersist(ctx context.Context, art domain.Article) {
	if s.marker != nil {
		if err := s.marker.MarkIngested(art.URLHash); err != nil {
			s.log.WarnObj("seen cache write failed", "seen_cache_error", map[string]any{
				"url_hash": art.URLHash,
				"error":    err.Error(),
			})
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, art)
	}
}

// call posts payload to endpoint, tallies the status and decodes a 2xx JSON body into dst.
func (s *Stage) call(ctx context.Context, outcome *domain.RunOutcome, stage domain.Stage, endpoint string, payload, dst any) error {
	resp, err := s.client.PostJSON(ctx, endpoint, payload, nil)
	if err != nil {
		s.record(outcome, stage, domain.StatusNoResponse)
		return fmt.Errorf("%s request: %w", stage, err)
	}
	s.record(outcome, stage, resp.StatusCode())

	if !httpclient.IsSuccess(resp.StatusCode()) {
		return fmt.Errorf("%w: %s returned status %d body: %s",
			domain.ErrMalformedResponse, stage, resp.StatusCode(), httpclient.Snippet(resp.Body()))
	}
	if err := json.Unmarshal(resp.Body(), dst); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", domain.ErrMalformedResponse, stage, err)
	}
	return nil
}

func (s *Stage) record(outcome *domain.RunOutcome, stage domain.Stage, status int) {
	outcome.Record(stage, status)
	metrics.ObserveStage(string(stage), status)
}

func (s *Stage) discard(art domain.Article, stage domain.Stage, workerID int, err error) {
	s.log.WarnObj("article discarded", "forward_discard", map[string]any{
		"worker_id":   workerID,
		"stage":       string(stage),
		"domain":      art.Domain,
		"article_url": art.ArticleURL,
		"error":       err.Error(),
	})
}
