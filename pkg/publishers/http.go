package publishers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Adda-Baaj/jist-harvester/pkg/httpclient"
)

// httpPublisher posts events to a webhook.
type httpPublisher struct {
	id      string
	url     string
	method  string
	headers map[string]string
	rc      *resty.Client
}

func newHTTPPublisher(_ context.Context, cfg SinkConfig, _ Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}
	return &httpPublisher{
		id:      cfg.ID,
		url:     cfg.HTTP.URL,
		method:  cfg.HTTP.Method,
		headers: cfg.HTTP.Headers,
		rc:      resty.New().SetTimeout(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second),
	}, nil
}

func (p *httpPublisher) ID() string   { return p.id }
func (p *httpPublisher) Type() string { return TypeHTTP }

func (p *httpPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := p.rc.R().
		SetContext(ctx).
		SetHeaders(p.headers).
		SetHeader("Content-Type", "application/json").
		SetBody(evt).
		Execute(p.method, p.url)
	if err != nil {
		return fmt.Errorf("%s %s: %w", p.method, p.url, httpclient.Classify(err))
	}
	if !httpclient.IsSuccess(resp.StatusCode()) {
		return &httpclient.StatusError{URL: p.url, Status: resp.StatusCode(), Body: httpclient.Snippet(resp.Body())}
	}
	return nil
}
