package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/jist-harvester/internal/amp"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 20, cfg.FetchMaxRetries)
	assert.Equal(t, 2*time.Second, cfg.FetchRetryDelay)
	assert.Equal(t, 10*time.Second, cfg.RateLimitCooldown)
	assert.Equal(t, 20, cfg.ParseMaxRetries)
	assert.Equal(t, 30*time.Second, cfg.AmpQuotaCooldown)
	assert.Equal(t, 5, cfg.AmpTransportRetries)
	assert.Equal(t, amp.DefaultEndpoint, cfg.AmpEndpoint)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Empty(t, cfg.SeenCachePath)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JIST_EXTRACTOR_URL", " http://extractor:8000/ ")
	t.Setenv("JIST_FETCH_RETRY_DELAY", "500ms")
	t.Setenv("JIST_FEED_WORKERS", "9")
	t.Setenv("JIST_LOG_LEVEL", "DEBUG")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://extractor:8000", cfg.ExtractorURL)
	assert.Equal(t, 500*time.Millisecond, cfg.FetchRetryDelay)
	assert.Equal(t, 9, cfg.FeedWorkers)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JIST_SUMMARIZER_URL=http://summarizer:9000\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("JIST_SUMMARIZER_URL") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://summarizer:9000", cfg.SummarizerURL)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("JIST_DEDUP_URL", "http://store:5000")
	t.Setenv("JIST_EXTRACTOR_URL", "http://extractor:8000")
	t.Setenv("JIST_SUMMARIZER_URL", "http://summarizer:9000")
	t.Setenv("JIST_PERSISTENCE_URL", "http://store:5000")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	cfg.ExtractorURL = ""
	cfg.SummarizerURL = "summarizer"
	cfg.FeedWorkers = 0
	cfg.LogFormat = "xml"
	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "JIST_EXTRACTOR_URL is required")
	assert.ErrorContains(t, err, "JIST_SUMMARIZER_URL must be an absolute URL")
	assert.ErrorContains(t, err, "worker counts")
	assert.ErrorContains(t, err, "JIST_LOG_FORMAT")
}
