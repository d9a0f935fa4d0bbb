package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/pkg/httpclient"
)

func persistedArticle() domain.Article {
	return domain.Article{
		Domain:      "thehindu",
		Title:       "Monsoon arrives early",
		ArticleURL:  "https://www.thehindu.com/news/monsoon",
		URLHash:     "9b1c",
		AmpURL:      "https://www-thehindu-com.cdn.ampproject.org/c/s/www.thehindu.com/news/monsoon/amp",
		Summary:     "It rained.",
		PubDate:     "Mon, 02 Jun 2025 06:00:00 GMT",
		ArticleHash: "f00d",
	}
}

func TestNewPersistedEvent(t *testing.T) {
	at := time.Date(2025, 6, 2, 11, 30, 0, 0, time.FixedZone("IST", 19800))
	evt := NewPersistedEvent(persistedArticle(), at)

	assert.Equal(t, EventArticlePersisted, evt.Type)
	assert.Equal(t, "9b1c", evt.URLHash)
	assert.Equal(t, "thehindu", evt.Domain)
	assert.Equal(t, "f00d", evt.ArticleHash)
	assert.Equal(t, time.UTC, evt.EmittedAt.Location())
}

func TestHTTPPublisher(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "token", r.Header.Get("X-Token"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	pubs, err := DefaultRegistry().Build(context.Background(), []SinkConfig{
		SinkConfig{ID: "hook", Type: TypeHTTP, HTTP: &HTTPConfig{URL: srv.URL}}.sanitize(),
	}, nil)
	require.NoError(t, err)
	require.Len(t, pubs, 1)

	pub := pubs[0].(*httpPublisher)
	pub.method = http.MethodPut
	pub.headers = map[string]string{"X-Token": "token"}

	require.NoError(t, pub.Publish(context.Background(), NewPersistedEvent(persistedArticle(), time.Now())))
	assert.Equal(t, "9b1c", got.URLHash)
	assert.Equal(t, "hook", pub.ID())
	assert.Equal(t, TypeHTTP, pub.Type())
}

func TestHTTPPublisherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	pub, err := newHTTPPublisher(context.Background(), SinkConfig{ID: "hook", Type: TypeHTTP, HTTP: &HTTPConfig{URL: srv.URL}}.sanitize(), nil)
	require.NoError(t, err)

	err = pub.Publish(context.Background(), Event{})
	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
}

func TestRegistryBuildUnknownType(t *testing.T) {
	_, err := NewRegistry(nil).Build(context.Background(), []SinkConfig{{ID: "a", Type: TypeHTTP}}, nil)
	assert.ErrorContains(t, err, "no publisher registered")
}

type fakeSQS struct {
	input *sqs.SendMessageInput
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = in
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-2")}, nil
}

func TestSQSSender(t *testing.T) {
	client := &fakeSQS{}
	pub := &queuePublisher{
		id:       "q",
		provider: QueueProviderAWSSQS,
		sender:   &sqsSender{queueURL: "https://sqs/q", client: client, log: ensureLogger(nil)},
	}

	require.NoError(t, pub.Publish(context.Background(), NewPersistedEvent(persistedArticle(), time.Now())))
	require.NotNil(t, client.input)
	assert.Equal(t, "https://sqs/q", aws.ToString(client.input.QueueUrl))
	assert.Equal(t, "thehindu", aws.ToString(client.input.MessageAttributes["domain"].StringValue))
	assert.Equal(t, EventArticlePersisted, aws.ToString(client.input.MessageAttributes["event_type"].StringValue))

	var body Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.input.MessageBody)), &body))
	assert.Equal(t, "Monsoon arrives early", body.Title)
}

func TestSNSSender(t *testing.T) {
	client := &fakeSNS{}
	sender := &snsSender{topicARN: "arn:aws:sns:ap-south-1:1:jist", client: client, log: ensureLogger(nil)}

	evt := NewPersistedEvent(persistedArticle(), time.Now())
	evt.Title = strings.Repeat("x", 150)
	require.NoError(t, sender.Send(context.Background(), evt))
	assert.Len(t, aws.ToString(client.input.Subject), 100)
	assert.Equal(t, "arn:aws:sns:ap-south-1:1:jist", aws.ToString(client.input.TopicArn))

	client.err = errors.New("throttled")
	pub := &queuePublisher{id: "t", provider: QueueProviderAWSSNS, sender: sender}
	assert.ErrorContains(t, pub.Publish(context.Background(), evt), "aws-sns: sns publish: throttled")
}

type stubPublisher struct {
	id   string
	err  error
	mu   sync.Mutex
	seen []Event
}

func (s *stubPublisher) ID() string   { return s.id }
func (s *stubPublisher) Type() string { return "stub" }

func (s *stubPublisher) Publish(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, evt)
	return s.err
}

func TestFanoutNotifiesEveryPublisher(t *testing.T) {
	ok := &stubPublisher{id: "ok"}
	failing := &stubPublisher{id: "bad", err: errors.New("down")}
	fan := NewFanout([]Publisher{ok, failing}, time.Second, nil)

	fan.Notify(context.Background(), persistedArticle())

	require.Len(t, ok.seen, 1)
	require.Len(t, failing.seen, 1)
	assert.Equal(t, "9b1c", ok.seen[0].URLHash)
	assert.Equal(t, 2, fan.Len())
	assert.NoError(t, fan.Close())
}

func TestNilFanout(t *testing.T) {
	var fan *Fanout
	assert.Zero(t, fan.Len())
	fan.Notify(context.Background(), persistedArticle())
	assert.NoError(t, fan.Close())
}
