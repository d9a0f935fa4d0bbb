package forward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/pkg/httpclient"
)

// downstream fakes the extractor, summarizer and persistence services in one
// server. Behaviour is keyed by article title.
type downstream struct {
	mu        sync.Mutex
	persisted []domain.Article
}

func (d *downstream) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/parse", func(w http.ResponseWriter, r *http.Request) {
		var art domain.Article
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&art))
		switch art.Title {
		case "extract-500":
			w.WriteHeader(http.StatusInternalServerError)
		case "extract-garbage":
			_, _ = w.Write([]byte("not json"))
		default:
			_ = json.NewEncoder(w).Encode(map[string]string{
				"article_text": "body of " + art.Title,
				"article_hash": "hash-" + art.URLHash,
			})
		}
	})
	mux.HandleFunc("/summarize", func(w http.ResponseWriter, r *http.Request) {
		var req summarizeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.ArticleText == "body of summary-empty" {
			_ = json.NewEncoder(w).Encode(map[string]string{"summary": ""})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"summary": "short " + req.ArticleText})
	})
	mux.HandleFunc("/postArticle", func(w http.ResponseWriter, r *http.Request) {
		var art domain.Article
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&art))
		switch art.Title {
		case "persist-400":
			w.WriteHeader(http.StatusBadRequest)
		case "persist-500":
			w.WriteHeader(http.StatusInternalServerError)
		case "persist-409":
			w.WriteHeader(http.StatusConflict)
		default:
			d.mu.Lock()
			d.persisted = append(d.persisted, art)
			d.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		}
	})
	return mux
}

type recordingMarker struct {
	mu     sync.Mutex
	hashes []string
}

func (m *recordingMarker) MarkIngested(h string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes = append(m.hashes, h)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *recordingNotifier) Notify(context.Context, domain.Article) {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

func article(title string) domain.Article {
	return domain.Article{
		Domain:     "example",
		Title:      title,
		ArticleURL: "https://example.com/" + title,
		URLHash:    "h-" + title,
		AmpURL:     "https://example-com.cdn.ampproject.org/c/s/example.com/" + title,
	}
}

func newStage(t *testing.T, d *downstream, marker Marker, notifier Notifier) *Stage {
	t.Helper()
	srv := httptest.NewServer(d.handler(t))
	t.Cleanup(srv.Close)
	return NewStage(httpclient.NewRestyClient(5*time.Second), Config{
		ExtractorURL:   srv.URL,
		SummarizerURL:  srv.URL + "/",
		PersistenceURL: srv.URL,
		Workers:        3,
	}, marker, notifier, nil)
}

func TestForwardHappyPath(t *testing.T) {
	d := &downstream{}
	marker := &recordingMarker{}
	notifier := &recordingNotifier{}
	stage := newStage(t, d, marker, notifier)
	outcome := domain.NewRunOutcome()

	got := stage.Forward(context.Background(), outcome, []domain.Article{article("a"), article("b")})

	require.Len(t, got, 2)
	for _, art := range got {
		assert.Equal(t, "body of "+art.Title, art.ArticleText)
		assert.Equal(t, "hash-"+art.URLHash, art.ArticleHash)
		assert.Equal(t, "short body of "+art.Title, art.Summary)
	}
	require.Len(t, d.persisted, 2)
	assert.NotEmpty(t, d.persisted[0].Summary)
	assert.ElementsMatch(t, []string{"h-a", "h-b"}, marker.hashes)
	assert.Equal(t, 2, notifier.count)
	assert.Equal(t, 2, outcome.ArticlesPersisted)
	for _, st := range domain.Stages {
		assert.Equal(t, 2, outcome.StageTotal(st), string(st))
	}
}

func TestForwardTallyMatchesArticlesReachingEachStage(t *testing.T) {
	d := &downstream{}
	stage := newStage(t, d, nil, nil)
	outcome := domain.NewRunOutcome()

	articles := []domain.Article{
		article("ok"),
		article("extract-500"),
		article("extract-garbage"),
		article("summary-empty"),
		article("persist-400"),
		article("persist-500"),
		article("persist-409"),
	}
	got := stage.Forward(context.Background(), outcome, articles)

	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Title)
	assert.Equal(t, 1, outcome.ArticlesPersisted)

	assert.Equal(t, 7, outcome.StageTotal(domain.StageExtraction))
	assert.Equal(t, 1, outcome.Count(domain.StageExtraction, http.StatusInternalServerError))
	assert.Equal(t, 6, outcome.Count(domain.StageExtraction, http.StatusOK))

	assert.Equal(t, 5, outcome.StageTotal(domain.StageSummarization))

	assert.Equal(t, 4, outcome.StageTotal(domain.StagePersistence))
	assert.Equal(t, 1, outcome.Count(domain.StagePersistence, http.StatusCreated))
	assert.Equal(t, 1, outcome.Count(domain.StagePersistence, http.StatusBadRequest))
	assert.Equal(t, 1, outcome.Count(domain.StagePersistence, http.StatusInternalServerError))
	assert.Equal(t, 1, outcome.Count(domain.StagePersistence, http.StatusConflict))
}

func TestForwardUnreachableServiceTalliesNoResponse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	stage := NewStage(httpclient.NewRestyClient(2*time.Second), Config{
		ExtractorURL:   base,
		SummarizerURL:  base,
		PersistenceURL: base,
	}, nil, nil, nil)
	outcome := domain.NewRunOutcome()

	got := stage.Forward(context.Background(), outcome, []domain.Article{article("a"), article("b")})
	assert.Empty(t, got)
	assert.Equal(t, 2, outcome.Count(domain.StageExtraction, domain.StatusNoResponse))
	assert.Zero(t, outcome.StageTotal(domain.StageSummarization))
	assert.Zero(t, outcome.StageTotal(domain.StagePersistence))
}

func TestForwardSkipsArticlesWithoutAmp(t *testing.T) {
	d := &downstream{}
	stage := newStage(t, d, nil, nil)
	outcome := domain.NewRunOutcome()

	art := article("a")
	art.AmpURL = ""
	got := stage.Forward(context.Background(), outcome, []domain.Article{art})
	assert.Empty(t, got)
	assert.Zero(t, outcome.StageTotal(domain.StageExtraction))
}

func TestForwardCancelledNeverPersists(t *testing.T) {
	d := &downstream{}
	stage := newStage(t, d, nil, nil)
	outcome := domain.NewRunOutcome()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := stage.Forward(ctx, outcome, []domain.Article{article("a"), article("b"), article("c")})
	assert.Empty(t, got)
	assert.Empty(t, d.persisted)
	assert.Zero(t, outcome.StageTotal(domain.StagePersistence))
}

func TestForwardEmptyInput(t *testing.T) {
	stage := NewStage(nil, Config{}, nil, nil, nil)
	assert.Nil(t, stage.Forward(context.Background(), nil, nil))
}
