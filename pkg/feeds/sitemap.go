package feeds

import (
	"encoding/xml"
	"strings"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
)

type googleNewsSitemap struct {
	XMLName xml.Name        `xml:"urlset"`
	URLs    []googleNewsURL `xml:"url"`
}

type googleNewsURL struct {
	Loc  string           `xml:"loc"`
	News googleNewsDetail `xml:"news"`
}

type googleNewsDetail struct {
	PublicationDate string `xml:"publication_date"`
	Keywords        string `xml:"keywords"`
	Title           string `xml:"title"`
}

// parseGoogleNewsSitemap parses a Google News sitemap into raw feed items.
// Entries without a loc are dropped.
func parseGoogleNewsSitemap(data []byte) ([]domain.RawFeedItem, error) {
	var sitemap googleNewsSitemap
	if err := xml.Unmarshal(data, &sitemap); err != nil {
		return nil, err
	}

	items := make([]domain.RawFeedItem, 0, len(sitemap.URLs))
	for _, entry := range sitemap.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		items = append(items, domain.RawFeedItem{
			Title:   optional(entry.News.Title),
			PubDate: optional(entry.News.PublicationDate),
			Link:    loc,
		})
	}
	return items, nil
}
