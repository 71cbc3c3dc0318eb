package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hackathon-harvester/internal/classify"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "https://devpost.com", cfg.Source.Origin)
	require.Equal(t, "is:winner", cfg.Source.Query)
	require.Equal(t, 100, cfg.Source.MaxPages)
	require.Equal(t, 8, cfg.Scrape.Workers)
	require.Equal(t, "headless", cfg.Scrape.Mode)
	require.Equal(t, 2048, cfg.Scrape.PromotionThreshold)
	require.Equal(t, 2*time.Second, cfg.Scrape.SettleDelay)
	require.Equal(t, 10, cfg.Classifier.CallsPerMinute)
	require.Equal(t, 10, cfg.Classifier.BatchSize)
	require.Equal(t, "gemini-2.5-flash", cfg.Classifier.Model)
	require.Equal(t, 60*time.Second, cfg.Classifier.MaxRetryElapsed)
	require.Equal(t, classify.DefaultCategories(), cfg.Classifier.Categories)
	require.Equal(t, "sqlite", cfg.Store.Driver)
	require.Equal(t, "none", cfg.Archive.Driver)
	require.Equal(t, "none", cfg.Events.Driver)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
  level: debug
source:
  origin: https://hackathons.example.com
  query: ai
  max_pages: 3
scrape:
  workers: 2
  mode: static
  nav_timeout: 5s
  settle_delay: 0s
  host_rps: 0.5
classifier:
  calls_per_minute: 30
  batch_size: 5
  backoff_base: 250ms
  max_retry_elapsed: 10s
  categories: ["Health", "Web"]
store:
  driver: postgres
  dsn: postgres://localhost/harvester
archive:
  driver: gcs
  bucket: raw-pages
events:
  driver: pubsub
  project_id: proj
  topic: harvest
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "ai", cfg.Source.Query)
	require.Equal(t, 3, cfg.Source.MaxPages)
	require.Equal(t, "static", cfg.Scrape.Mode)
	require.Equal(t, 5*time.Second, cfg.Scrape.NavTimeout)
	require.Zero(t, cfg.Scrape.SettleDelay)
	require.InDelta(t, 0.5, cfg.Scrape.HostRPS, 1e-9)
	require.Equal(t, 30, cfg.Classifier.CallsPerMinute)
	require.Equal(t, 250*time.Millisecond, cfg.Classifier.BackoffBase)
	require.Equal(t, []string{"Health", "Web"}, cfg.Classifier.Categories)
	require.Equal(t, "postgres", cfg.Store.Driver)
	require.Equal(t, "raw-pages", cfg.Archive.Bucket)
	require.Equal(t, "harvest", cfg.Events.Topic)
}

func TestLoadDotEnv(t *testing.T) {
	const key = "HARVESTER_DOTENV_PROBE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-dotenv\n"), 0o600))

	require.NoError(t, loadDotEnv(path))
	require.Equal(t, "from-dotenv", os.Getenv(key))

	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestRequireClassifierCredentials(t *testing.T) {
	t.Parallel()

	var cfg Config
	require.Error(t, cfg.RequireClassifierCredentials())
	cfg.Classifier.APIKey = "key"
	require.NoError(t, cfg.RequireClassifierCredentials())
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080, RequestTimeout: 30 * time.Second},
		Source: SourceConfig{Origin: "https://devpost.com", MaxPages: 1},
		Scrape: ScrapeConfig{Workers: 1, Mode: "headless", NavTimeout: time.Second},
		Classifier: ClassifierConfig{
			CallsPerMinute: 10,
			BatchSize:      10,
			Concurrency:    1,
			BackoffBase:    time.Second,
			Categories:     []string{"Other"},
		},
		Store:   StoreConfig{Driver: "memory"},
		Archive: ArchiveConfig{Driver: "none"},
		Events:  EventsConfig{Driver: "none"},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "relative origin", mutate: func(c *Config) { c.Source.Origin = "/software" }, want: "source.origin"},
		{name: "negative max pages", mutate: func(c *Config) { c.Source.MaxPages = -1 }, want: "source.max_pages"},
		{name: "no workers", mutate: func(c *Config) { c.Scrape.Workers = 0 }, want: "scrape.workers"},
		{name: "bad mode", mutate: func(c *Config) { c.Scrape.Mode = "selenium" }, want: "scrape.mode"},
		{name: "no nav timeout", mutate: func(c *Config) { c.Scrape.NavTimeout = 0 }, want: "scrape.nav_timeout"},
		{name: "no call budget", mutate: func(c *Config) { c.Classifier.CallsPerMinute = 0 }, want: "classifier.calls_per_minute"},
		{name: "no batch size", mutate: func(c *Config) { c.Classifier.BatchSize = 0 }, want: "classifier.batch_size"},
		{name: "no backoff", mutate: func(c *Config) { c.Classifier.BackoffBase = 0 }, want: "classifier.backoff_base"},
		{name: "no categories", mutate: func(c *Config) { c.Classifier.Categories = nil }, want: "classifier.categories"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Driver = "mongo" }, want: "store.driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = "postgres" }, want: "store.dsn"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Archive.Driver = "gcs" }, want: "archive.bucket"},
		{name: "pubsub without topic", mutate: func(c *Config) { c.Events.Driver = "pubsub" }, want: "events.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Classifier.Categories = append([]string(nil), base.Classifier.Categories...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
