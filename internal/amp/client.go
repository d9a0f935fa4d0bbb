package amp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
	"github.com/Adda-Baaj/jist-harvester/pkg/httpclient"
)

// MaxBatchSize is the AMP URL API's per-request limit.
const MaxBatchSize = 50

// DefaultEndpoint is the Google AMP URL API batch lookup.
const DefaultEndpoint = "https://acceleratedmobilepageurl.googleapis.com/v1/ampUrls:batchGet"

type batchRequest struct {
	URLs []string `json:"urls"`
}

type batchResponse struct {
	AmpURLs   []ampURL        `json:"ampUrls"`
	URLErrors []urlError      `json:"urlErrors"`
	Error     json.RawMessage `json:"error"`
}

type ampURL struct {
	OriginalURL string `json:"originalUrl"`
	AmpURL      string `json:"ampUrl"`
	CdnAmpURL   string `json:"cdnAmpUrl"`
}

type urlError struct {
	OriginalURL  string `json:"originalUrl"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// apiError is the top-level error envelope. code arrives as a number or a
// status string depending on the API front end.
type apiError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Status  string          `json:"status"`
}

// parseEnvelope returns nil when raw is absent or null. Any other value is an
// envelope error, even one that does not match the usual object shape.
func parseEnvelope(raw json.RawMessage) *apiError {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var e apiError
	if err := json.Unmarshal(raw, &e); err != nil {
		var msg string
		if json.Unmarshal(raw, &msg) != nil {
			msg = trimmed
		}
		return &apiError{Message: msg}
	}
	return &e
}

// code renders Code without JSON quoting.
func (e *apiError) code() string {
	var s string
	if err := json.Unmarshal(e.Code, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(e.Code))
}

func (e *apiError) quota() bool {
	code := e.code()
	return code == strconv.Itoa(http.StatusTooManyRequests) ||
		strings.EqualFold(code, "RESOURCE_EXHAUSTED") ||
		strings.EqualFold(e.Status, "RESOURCE_EXHAUSTED")
}

// Client calls the AMP URL API.
type Client struct {
	http     httpclient.Client
	endpoint string
	apiKey   string
	log      logger.Logger
}

// NewClient builds a Client. An empty endpoint uses DefaultEndpoint.
func NewClient(client httpclient.Client, endpoint, apiKey string, log logger.Logger) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		http:     client,
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
		log:      logger.Ensure(log),
	}
}

// BatchGet resolves up to MaxBatchSize URLs in one request.
//
// An error envelope yields domain.ErrQuotaExceeded (or domain.ErrAmpAPI for
// other API errors); a failed request or an unreadable body yields
// domain.ErrTransportFailure. Per-URL errors never fail the call.
func (c *Client) BatchGet(ctx context.Context, urls []string) (domain.AmpBatchResult, error) {
	result := domain.NewAmpBatchResult()
	if len(urls) == 0 {
		return result, nil
	}
	if len(urls) > MaxBatchSize {
		return result, fmt.Errorf("amp batch of %d urls exceeds limit %d", len(urls), MaxBatchSize)
	}

	resp, err := c.http.PostJSON(ctx, c.requestURL(), batchRequest{URLs: urls}, nil)
	if err != nil {
		return result, fmt.Errorf("%w: %w", domain.ErrTransportFailure, err)
	}

	var body batchResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		if resp.StatusCode() == http.StatusTooManyRequests {
			return result, fmt.Errorf("%w: status %d", domain.ErrQuotaExceeded, resp.StatusCode())
		}
		return result, fmt.Errorf("%w: status %d undecodable body %s: %w",
			domain.ErrTransportFailure, resp.StatusCode(), httpclient.Snippet(resp.Body()), err)
	}

	if apiErr := parseEnvelope(body.Error); apiErr != nil {
		return result, envelopeError(apiErr)
	}
	if !httpclient.IsSuccess(resp.StatusCode()) {
		return result, fmt.Errorf("%w: status %d body %s",
			domain.ErrTransportFailure, resp.StatusCode(), httpclient.Snippet(resp.Body()))
	}

	for _, a := range body.AmpURLs {
		target := strings.TrimSpace(a.CdnAmpURL)
		if target == "" {
			target = strings.TrimSpace(a.AmpURL)
		}
		if a.OriginalURL == "" || target == "" {
			continue
		}
		result.Resolved[a.OriginalURL] = target
	}
	for _, e := range body.URLErrors {
		if e.OriginalURL == "" {
			continue
		}
		result.Failed[e.OriginalURL] = domain.AmpURLError{Code: e.ErrorCode, Message: e.ErrorMessage}
	}

	c.log.DebugObj("amp batch resolved", "amp_batch", map[string]any{
		"requested": len(urls),
		"resolved":  len(result.Resolved),
		"failed":    len(result.Failed),
	})
	return result, nil
}

func (c *Client) requestURL() string {
	if c.apiKey == "" {
		return c.endpoint
	}
	sep := "?"
	if strings.Contains(c.endpoint, "?") {
		sep = "&"
	}
	return c.endpoint + sep + url.Values{"key": {c.apiKey}}.Encode()
}

func envelopeError(e *apiError) error {
	if e.quota() {
		return fmt.Errorf("%w: %s %s", domain.ErrQuotaExceeded, e.code(), e.Message)
	}
	return fmt.Errorf("%w: %s %s %s", domain.ErrAmpAPI, e.code(), e.Status, e.Message)
}
