package feeds

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
	"github.com/Adda-Baaj/jist-harvester/internal/retry"
	"github.com/Adda-Baaj/jist-harvester/pkg/httpclient"
)

// Page is a fetched document together with the URL it was finally served from.
type Page struct {
	URL      string
	Status   int
	Body     []byte
	Attempts int
}

// Fetcher performs GETs under a bounded retry policy. Connection failures are
// returned at once; decode failures and 429 responses are retried.
type Fetcher struct {
	client httpclient.Client
	policy retry.Policy
	log    logger.Logger
}

// NewFetcher builds a Fetcher. A nil client uses the default resty client.
func NewFetcher(client httpclient.Client, policy retry.Policy, log logger.Logger) *Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	log = logger.Ensure(log)
	if policy.Log == nil {
		policy.Log = log
	}
	return &Fetcher{client: client, policy: policy, log: log}
}

// Fetch retrieves a feed body. Any non-2xx final status is an error.
func (f *Fetcher) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	page, err := f.get(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	if !httpclient.IsSuccess(page.Status) {
		return nil, &httpclient.StatusError{URL: url, Status: page.Status, Body: httpclient.Snippet(page.Body)}
	}
	return page.Body, nil
}

// Resolve follows redirects for url and returns the final page, whatever its status.
func (f *Fetcher) Resolve(ctx context.Context, url string, headers map[string]string) (Page, error) {
	return f.get(ctx, url, headers)
}

func (f *Fetcher) get(ctx context.Context, url string, headers map[string]string) (Page, error) {
	var page Page
	attempts, err := f.policy.Do(ctx, func(attempt int) error {
		resp, err := f.client.Get(ctx, url, headers)
		if err != nil {
			return err
		}
		if resp.StatusCode() == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s returned status %d", domain.ErrRateLimited, url, resp.StatusCode())
		}
		page = Page{
			URL:    httpclient.FinalURL(resp),
			Status: resp.StatusCode(),
			Body:   resp.Body(),
		}
		if page.URL == "" {
			page.URL = url
		}
		return nil
	})
	page.Attempts = attempts
	if err != nil {
		return page, fmt.Errorf("get %s: %w", url, err)
	}
	return page, nil
}
