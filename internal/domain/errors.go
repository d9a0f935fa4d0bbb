package domain

import "errors"

// Transport and feed-level failures.
var (
	ErrConnectionFailure = errors.New("connection failure")
	ErrDecodeFailure     = errors.New("decode failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedFeed     = errors.New("malformed feed")
)

// Per-item skip reasons. None of them is fatal to a feed.
var (
	ErrMissingTitle     = errors.New("missing title")
	ErrAlreadyIngested  = errors.New("already ingested")
	ErrResolutionFailed = errors.New("resolution failed")
	ErrAdDetected       = errors.New("ad detected")
)

// External collaborator failures.
var (
	ErrLookupUnavailable = errors.New("lookup unavailable")
	ErrQuotaExceeded     = errors.New("amp quota exceeded")
	ErrAmpAPI            = errors.New("amp api error")
	ErrTransportFailure  = errors.New("transport failure")
	ErrMalformedResponse = errors.New("malformed response")
)

// IsSkip reports whether err is a per-item skip reason.
func IsSkip(err error) bool {
	return errors.Is(err, ErrMissingTitle) ||
		errors.Is(err, ErrAlreadyIngested) ||
		errors.Is(err, ErrResolutionFailed) ||
		errors.Is(err, ErrAdDetected)
}

// SkipReason returns a short label for a skip error, used for logs and metrics.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingTitle):
		return "missing_title"
	case errors.Is(err, ErrAlreadyIngested):
		return "already_ingested"
	case errors.Is(err, ErrResolutionFailed):
		return "resolution_failed"
	case errors.Is(err, ErrAdDetected):
		return "ad_detected"
	default:
		return "other"
	}
}
