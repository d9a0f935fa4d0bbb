// Package config loads process settings from JIST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Adda-Baaj/jist-harvester/internal/amp"
)

const envPrefix = "JIST"

// Config holds every tunable of a harvester process.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	UserAgent   string        `mapstructure:"user_agent"`

	DedupURL       string `mapstructure:"dedup_url"`
	ExtractorURL   string `mapstructure:"extractor_url"`
	SummarizerURL  string `mapstructure:"summarizer_url"`
	PersistenceURL string `mapstructure:"persistence_url"`

	AmpEndpoint string `mapstructure:"amp_endpoint"`
	AmpAPIKey   string `mapstructure:"amp_api_key"`

	FetchMaxRetries   int           `mapstructure:"fetch_max_retries"`
	FetchRetryDelay   time.Duration `mapstructure:"fetch_retry_delay"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
	ParseMaxRetries   int           `mapstructure:"parse_max_retries"`

	AmpBatchConcurrency int           `mapstructure:"amp_batch_concurrency"`
	AmpQuotaCooldown    time.Duration `mapstructure:"amp_quota_cooldown"`
	AmpTransportRetries int           `mapstructure:"amp_transport_retries"`
	AmpTransportDelay   time.Duration `mapstructure:"amp_transport_delay"`

	FeedWorkers    int `mapstructure:"feed_workers"`
	ForwardWorkers int `mapstructure:"forward_workers"`

	SeenCachePath  string        `mapstructure:"seen_cache_path"`
	PublishersFile string        `mapstructure:"publishers_file"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	ListenAddr     string        `mapstructure:"listen_addr"`
}

// Load reads an optional dotenv file, then the environment. A missing dotenv
// file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// Every key needs a default so AutomaticEnv picks it up during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("http_timeout", 15*time.Second)
	v.SetDefault("user_agent", "")

	v.SetDefault("dedup_url", "")
	v.SetDefault("extractor_url", "")
	v.SetDefault("summarizer_url", "")
	v.SetDefault("persistence_url", "")

	v.SetDefault("amp_endpoint", amp.DefaultEndpoint)
	v.SetDefault("amp_api_key", "")

	v.SetDefault("fetch_max_retries", 20)
	v.SetDefault("fetch_retry_delay", 2*time.Second)
	v.SetDefault("rate_limit_cooldown", 10*time.Second)
	v.SetDefault("parse_max_retries", 20)

	v.SetDefault("amp_batch_concurrency", 2)
	v.SetDefault("amp_quota_cooldown", 30*time.Second)
	v.SetDefault("amp_transport_retries", 5)
	v.SetDefault("amp_transport_delay", 2*time.Second)

	v.SetDefault("feed_workers", 4)
	v.SetDefault("forward_workers", 4)

	v.SetDefault("seen_cache_path", "")
	v.SetDefault("publishers_file", "")
	v.SetDefault("publish_timeout", 10*time.Second)
	v.SetDefault("listen_addr", ":8080")
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	for _, s := range []*string{&c.DedupURL, &c.ExtractorURL, &c.SummarizerURL, &c.PersistenceURL, &c.AmpEndpoint} {
		*s = strings.TrimRight(strings.TrimSpace(*s), "/")
	}
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var errs []error

	services := []struct {
		name, value string
	}{
		{"JIST_DEDUP_URL", c.DedupURL},
		{"JIST_EXTRACTOR_URL", c.ExtractorURL},
		{"JIST_SUMMARIZER_URL", c.SummarizerURL},
		{"JIST_PERSISTENCE_URL", c.PersistenceURL},
		{"JIST_AMP_ENDPOINT", c.AmpEndpoint},
	}
	for _, s := range services {
		if s.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", s.name))
			continue
		}
		if u, err := url.Parse(s.value); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", s.name, s.value))
		}
	}

	if c.FetchMaxRetries < 0 || c.ParseMaxRetries < 0 || c.AmpTransportRetries < 0 {
		errs = append(errs, errors.New("retry counts must not be negative"))
	}
	if c.AmpBatchConcurrency < 1 || c.FeedWorkers < 1 || c.ForwardWorkers < 1 {
		errs = append(errs, errors.New("worker counts must be at least 1"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("JIST_LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}
