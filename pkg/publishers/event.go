package publishers

import (
	"context"
	"time"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
)

// EventArticlePersisted is emitted once the persistence service accepted an article.
const EventArticlePersisted = "article.persisted"

// Logger is the logging contract used by sinks.
type Logger = logger.Logger

// Event is the payload delivered to every sink.
type Event struct {
	Type        string    `json:"type"`
	URLHash     string    `json:"url_hash"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title"`
	ArticleURL  string    `json:"article_url"`
	AmpURL      string    `json:"amp_url"`
	Summary     string    `json:"summary,omitempty"`
	PubDate     string    `json:"pub_date,omitempty"`
	ArticleHash string    `json:"article_hash,omitempty"`
	EmittedAt   time.Time `json:"emitted_at"`
}

// NewPersistedEvent describes a persisted article.
func NewPersistedEvent(art domain.Article, at time.Time) Event {
	return Event{
		Type:        EventArticlePersisted,
		URLHash:     art.URLHash,
		Domain:      art.Domain,
		Title:       art.Title,
		ArticleURL:  art.ArticleURL,
		AmpURL:      art.AmpURL,
		Summary:     art.Summary,
		PubDate:     art.PubDate,
		ArticleHash: art.ArticleHash,
		EmittedAt:   at.UTC(),
	}
}

// Publisher delivers events to one sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

func ensureLogger(log Logger) Logger {
	return logger.Ensure(log)
}
