package dedup

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
	"github.com/Adda-Baaj/jist-harvester/internal/metrics"
	"github.com/Adda-Baaj/jist-harvester/pkg/httpclient"
)

// Checker answers whether an article with the given url hash was already ingested.
type Checker interface {
	Exists(ctx context.Context, urlHash string) (bool, error)
}

// Gate queries the article store's existence endpoint, consulting an optional
// local SeenCache first.
type Gate struct {
	client  httpclient.Client
	baseURL string
	cache   *SeenCache
	log     logger.Logger
}

// NewGate builds a Gate against the store at baseURL. cache may be nil.
func NewGate(client httpclient.Client, baseURL string, cache *SeenCache, log logger.Logger) *Gate {
	return &Gate{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   cache,
		log:     logger.Ensure(log),
	}
}

// Exists returns true only for a definitive "found". Unexpected statuses and
// transport failures return false together with domain.ErrLookupUnavailable so
// the caller proceeds with the item.
func (g *Gate) Exists(ctx context.Context, urlHash string) (bool, error) {
	if seen, err := g.cache.Has(urlHash); err != nil {
		g.log.WarnObj("seen cache lookup failed", "seen_cache_error", map[string]any{
			"url_hash": urlHash,
			"error":    err.Error(),
		})
	} else if seen {
		return true, nil
	}

	endpoint := g.baseURL + "/articleExists?" + url.Values{"url_hash": {urlHash}}.Encode()
	resp, err := g.client.Get(ctx, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, g.anomaly(urlHash, fmt.Errorf("%w: %w", domain.ErrLookupUnavailable, err))
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		if err := g.cache.Mark(urlHash); err != nil {
			g.log.WarnObj("seen cache write failed", "seen_cache_error", map[string]any{
				"url_hash": urlHash,
				"error":    err.Error(),
			})
		}
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, g.anomaly(urlHash, fmt.Errorf("%w: existence check returned status %d", domain.ErrLookupUnavailable, resp.StatusCode()))
	}
}

// MarkIngested records a freshly persisted article in the local cache.
func (g *Gate) MarkIngested(urlHash string) error {
	return g.cache.Mark(urlHash)
}

func (g *Gate) anomaly(urlHash string, err error) error {
	metrics.DedupAnomalies.Inc()
	g.log.WarnObj("existence lookup unavailable, treating as new", "dedup_anomaly", map[string]any{
		"url_hash": urlHash,
		"error":    err.Error(),
	})
	return err
}
