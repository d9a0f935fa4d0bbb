package filter

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
)

// publisherHost extracts the lower-cased host of a resolved article URL.
func publisherHost(resolved string) (string, error) {
	u, err := url.Parse(resolved)
	if err != nil {
		return "", fmt.Errorf("parse resolved url: %w", err)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("resolved url %q has no host", resolved)
	}
	return host, nil
}

// registrable splits host into its registrable domain (cnn.com) and that
// domain's label without the public suffix (cnn).
func registrable(host string) (string, string) {
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, host
	}
	suffix, _ := publicsuffix.PublicSuffix(etld1)
	return etld1, strings.TrimSuffix(etld1, "."+suffix)
}

// hostMatches reports whether host belongs to the feed's publisher.
//
// In domain mode the registrable label must equal the feed domain (or the
// registrable domain, when the feed domain carries a suffix). In subdomain mode
// the leftmost non-www label must equal the feed domain, for publishers that
// live under a shared registrable domain such as abcnews.go.com.
func hostMatches(host string, feed domain.FeedSource) bool {
	want := strings.ToLower(strings.TrimSpace(feed.Domain))
	if want == "" {
		return false
	}

	switch feed.Match {
	case domain.MatchSubdomain:
		if strings.Contains(want, ".") {
			return host == want || strings.HasSuffix(host, "."+want)
		}
		return firstLabel(host) == want
	default:
		etld1, label := registrable(host)
		if strings.Contains(want, ".") {
			return etld1 == want
		}
		return label == want
	}
}

func firstLabel(host string) string {
	host = strings.TrimPrefix(host, "www.")
	if i := strings.IndexByte(host, '.'); i >= 0 {
		return host[:i]
	}
	return host
}

// matchedBadPath returns the first configured bad path found in resolved.
func matchedBadPath(resolved string, badPaths []string) (string, bool) {
	for _, p := range badPaths {
		if p != "" && strings.Contains(resolved, p) {
			return p, true
		}
	}
	return "", false
}
