package publishers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
publishers:
  - id: webhook
    type: http
    http:
      url: " https://hooks.example.com/jist "
      headers:
        Authorization: "Bearer ${JIST_TEST_TOKEN}"
        " ": dropped
  - id: fifo
    type: queue
    queue:
      provider: AWS-SQS
      sqs:
        queue_url: https://sqs.ap-south-1.amazonaws.com/123/jist.fifo
        region: ap-south-1
  - id: off
    type: queue
    enabled: false
    queue:
      provider: unknown
`

func TestLoadConfigYAML(t *testing.T) {
	t.Setenv("JIST_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "publishers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfgs, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfgs, 2, "disabled sink is skipped before validation")

	hook := cfgs[0]
	assert.Equal(t, TypeHTTP, hook.Type)
	assert.Equal(t, "https://hooks.example.com/jist", hook.HTTP.URL)
	assert.Equal(t, "POST", hook.HTTP.Method)
	assert.Equal(t, httpDefaultTimeoutSeconds, hook.HTTP.TimeoutSeconds)
	assert.Equal(t, map[string]string{"Authorization": "Bearer s3cret"}, hook.HTTP.Headers)

	q := cfgs[1]
	assert.Equal(t, QueueProviderAWSSQS, q.Queue.Provider)
	assert.Equal(t, "ap-south-1", q.Queue.SQS.Region)
	assert.Empty(t, q.Queue.SQS.AccessKeyID)
}

func TestParseConfigJSON(t *testing.T) {
	data := []byte(`{"publishers":[{"id":"t","type":"queue","queue":{"provider":"gcp","gcp":{"project_id":"p","topic":"articles"}}}]}`)
	cfgs, err := ParseConfig(data, ".json")
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, "articles", cfgs[0].Queue.GCP.Topic)

	cfgs, err = ParseConfig(data, "")
	require.NoError(t, err)
	assert.Len(t, cfgs, 1)
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfgs, err := LoadConfig("  ")
	assert.NoError(t, err)
	assert.Nil(t, cfgs)
}

func TestParseConfigRejects(t *testing.T) {
	tests := map[string]string{
		"missing id":       `{"publishers":[{"type":"http","http":{"url":"https://x"}}]}`,
		"missing type":     `{"publishers":[{"id":"a"}]}`,
		"unknown type":     `{"publishers":[{"id":"a","type":"smtp"}]}`,
		"relative url":     `{"publishers":[{"id":"a","type":"http","http":{"url":"/hook"}}]}`,
		"no queue block":   `{"publishers":[{"id":"a","type":"queue"}]}`,
		"unknown provider": `{"publishers":[{"id":"a","type":"queue","queue":{"provider":"azure"}}]}`,
		"sqs no region":    `{"publishers":[{"id":"a","type":"queue","queue":{"provider":"aws-sqs","sqs":{"queue_url":"q"}}}]}`,
		"half credentials": `{"publishers":[{"id":"a","type":"queue","queue":{"provider":"aws-sns","sns":{"topic_arn":"t","region":"r","access_key_id":"k"}}}]}`,
		"gcp no topic":     `{"publishers":[{"id":"a","type":"queue","queue":{"provider":"gcp","gcp":{"project_id":"p"}}}]}`,
		"duplicate id":     `{"publishers":[{"id":"a","type":"http","http":{"url":"https://x"}},{"id":"a","type":"http","http":{"url":"https://y"}}]}`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc), ".json")
			assert.Error(t, err)
		})
	}
}

func TestParseConfigUnknownExtension(t *testing.T) {
	_, err := ParseConfig([]byte(`publishers: []`), ".toml")
	assert.ErrorContains(t, err, "not supported")
}
