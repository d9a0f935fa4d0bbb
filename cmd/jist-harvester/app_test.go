package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Adda-Baaj/jist-harvester/internal/config"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("JIST_DEDUP_URL", "http://127.0.0.1:1")
	t.Setenv("JIST_EXTRACTOR_URL", "http://127.0.0.1:1")
	t.Setenv("JIST_SUMMARIZER_URL", "http://127.0.0.1:1")
	t.Setenv("JIST_PERSISTENCE_URL", "http://127.0.0.1:1")
	t.Setenv("JIST_SEEN_CACHE_PATH", filepath.Join(t.TempDir(), "seen.db"))
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewAppRejectsMissingFeedsFile(t *testing.T) {
	_, err := newApp(context.Background(), testConfig(t), filepath.Join(t.TempDir(), "nope.yaml"), logger.NopLogger{})
	assert.ErrorContains(t, err, "feeds file")
}

func TestNewAppWiresEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feeds:\n  - domain: thehindu\n    rss_url: https://www.thehindu.com/news/feeder/default.rss\n"), 0o600))

	a, err := newApp(context.Background(), testConfig(t), path, logger.NopLogger{})
	require.NoError(t, err)
	assert.NotNil(t, a.cache)
	assert.Zero(t, a.fanout.Len())
	assert.False(t, a.runner.Running())
	assert.NoError(t, a.Close())
}

func TestRunCommandRequiresFeedsFile(t *testing.T) {
	envFile := ""
	cmd := runCmd(&envFile)
	cmd.SetArgs([]string{})
	cmd.SetOut(new(nopWriter))
	cmd.SetErr(new(nopWriter))
	assert.Error(t, cmd.Execute())
}

func TestExecuteLogsCommandErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	root := newRootCmd()
	root.SetArgs([]string{"run"})
	root.SetOut(new(nopWriter))
	root.SetErr(new(nopWriter))

	code := execute(context.Background(), root, logger.FromZap(zap.New(core)))

	assert.Equal(t, 1, code)
	entries := logs.FilterMessage("command failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields, ok := entries[0].ContextMap()["cli_error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "jist-harvester run", fields["command"])
	assert.Contains(t, fields["error"], "accepts 1 arg")
}

func TestExecuteSucceedsQuietly(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	root := newRootCmd()
	root.SetArgs([]string{"--help"})
	root.SetOut(new(nopWriter))

	assert.Zero(t, execute(context.Background(), root, logger.FromZap(zap.New(core))))
	assert.Zero(t, logs.Len())
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }
