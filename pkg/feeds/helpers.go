package feeds

import (
	"crypto/md5" //nolint:gosec // content address shared with the article store, not a security boundary
	"encoding/hex"
	"strings"
	"time"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/pkg/httpclient"
)

// DefaultHTTPClient returns the resty client used when none is supplied.
func DefaultHTTPClient() httpclient.Client { return httpclient.NewRestyClient(15 * time.Second) }

// HashURL returns the dedup key for a pre-redirect article link.
// The link is trimmed before hashing so feed whitespace never changes the key.
func HashURL(link string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(link)))
	return hex.EncodeToString(sum[:])
}

// Headers returns the request headers for a feed, falling back to an XML-friendly Accept header.
func Headers(src domain.FeedSource) map[string]string {
	headers := make(map[string]string, len(src.Headers)+1)
	headers["Accept"] = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"
	for k, v := range src.Headers {
		headers[k] = v
	}
	return headers
}

// optional returns nil for blank text so absent feed fields stay distinguishable.
func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return domain.StringPtr(s)
}
