package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultUserAgent    = "jist-harvester/1.0 (+https://github.com/Adda-Baaj/jist-harvester)"
	defaultMaxRedirects = 10
)

// Client is the outbound HTTP surface used by fetchers and service clients.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error)
	PostJSON(ctx context.Context, url string, body any, headers map[string]string) (*resty.Response, error)
}

// Options tunes a resty-backed client.
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxRedirects int
}

// RestyClient implements Client with go-resty.
type RestyClient struct {
	rc *resty.Client
}

// NewRestyClient returns a client with the given timeout and default settings.
func NewRestyClient(timeout time.Duration) *RestyClient {
	return NewRestyClientWithOptions(Options{Timeout: timeout})
}

// NewRestyClientWithOptions returns a client configured from opts.
func NewRestyClientWithOptions(opts Options) *RestyClient {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}

	rc := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(opts.MaxRedirects))

	return &RestyClient{rc: rc}
}

// Get issues a GET request. Transport errors are classified, see Classify.
func (c *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(url)
	if err != nil {
		return resp, Classify(err)
	}
	return resp, nil
}

// PostJSON issues a POST request with body encoded as JSON.
func (c *RestyClient) PostJSON(ctx context.Context, url string, body any, headers map[string]string) (*resty.Response, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return resp, Classify(err)
	}
	return resp, nil
}

// FinalURL returns the URL of the last request in the redirect chain.
func FinalURL(resp *resty.Response) string {
	if resp == nil || resp.RawResponse == nil || resp.RawResponse.Request == nil || resp.RawResponse.Request.URL == nil {
		if resp != nil && resp.Request != nil {
			return resp.Request.URL
		}
		return ""
	}
	return resp.RawResponse.Request.URL.String()
}

// IsSuccess reports whether status is a 2xx code.
func IsSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// Snippet returns a truncated body excerpt for logs and error messages.
func Snippet(body []byte) string {
	const maxLen = 512
	s := string(body)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d body: %s", e.URL, e.Status, e.Body)
}
