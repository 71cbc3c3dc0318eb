// Package config loads and validates harvester configuration via Viper.
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

	"github.com/JakeFAU/hackathon-harvester/internal/classify"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    logging.Config   `mapstructure:"logging"`
	Source     SourceConfig     `mapstructure:"source"`
	Scrape     ScrapeConfig     `mapstructure:"scrape"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Store      StoreConfig      `mapstructure:"store"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Events     EventsConfig     `mapstructure:"events"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	// APIKey guards the /v1 routes when set.
	APIKey string `mapstructure:"api_key"`
}

// SourceConfig names the listing site and the discovery query.
type SourceConfig struct {
	Origin   string `mapstructure:"origin"`
	Query    string `mapstructure:"query"`
	MaxPages int    `mapstructure:"max_pages"`
}

// ScrapeConfig governs the worker pool and the page fetcher.
type ScrapeConfig struct {
	Workers     int           `mapstructure:"workers"`
	Mode        string        `mapstructure:"mode"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	UserAgent   string        `mapstructure:"user_agent"`
	HostRPS     float64       `mapstructure:"host_rps"`
	HostBurst   int           `mapstructure:"host_burst"`
	ExecPath    string        `mapstructure:"exec_path"`
	// PromotionThreshold is the body size under which script-heavy pages are
	// re-rendered headless in auto mode.
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// ClassifierConfig configures the generative-language client and its budget.
type ClassifierConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	CallsPerMinute  int           `mapstructure:"calls_per_minute"`
	BatchSize       int           `mapstructure:"batch_size"`
	Concurrency     int           `mapstructure:"concurrency"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed"`
	Categories      []string      `mapstructure:"categories"`
}

// StoreConfig selects the project store backend.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig controls optional raw-page persistence.
type ArchiveConfig struct {
	Driver  string `mapstructure:"driver"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// EventsConfig controls project event publication.
type EventsConfig struct {
	Driver    string `mapstructure:"driver"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from an optional .env file, an optional config file and
// HARVESTER_* environment variables.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadDotEnv populates the process environment from path; a missing file is not an error.
// Variables already present in the environment win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("source.origin", "https://devpost.com")
	v.SetDefault("source.query", "is:winner")
	v.SetDefault("source.max_pages", 100)
	v.SetDefault("scrape.workers", 8)
	v.SetDefault("scrape.mode", "headless")
	v.SetDefault("scrape.nav_timeout", "30s")
	v.SetDefault("scrape.settle_delay", "2s")
	v.SetDefault("scrape.user_agent", "hackathon-harvester/0.1")
	v.SetDefault("scrape.host_rps", 2.0)
	v.SetDefault("scrape.host_burst", 2)
	v.SetDefault("scrape.exec_path", "")
	v.SetDefault("scrape.promotion_threshold", 2048)
	v.SetDefault("classifier.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("classifier.api_key", "")
	v.SetDefault("classifier.model", "gemini-2.5-flash")
	v.SetDefault("classifier.calls_per_minute", 10)
	v.SetDefault("classifier.batch_size", 10)
	v.SetDefault("classifier.concurrency", 2)
	v.SetDefault("classifier.backoff_base", "1s")
	v.SetDefault("classifier.max_retry_elapsed", "60s")
	v.SetDefault("classifier.categories", classify.DefaultCategories())
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "file:harvester.db")
	v.SetDefault("store.table", "projects")
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.base_dir", "data/pages")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("events.driver", "none")
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic", "projects")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}
	origin, err := url.Parse(c.Source.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return fmt.Errorf("source.origin must be an absolute URL, got %q", c.Source.Origin)
	}
	if c.Source.MaxPages < 0 {
		return fmt.Errorf("source.max_pages must be >= 0")
	}
	if c.Scrape.Workers <= 0 {
		return fmt.Errorf("scrape.workers must be > 0")
	}
	switch c.Scrape.Mode {
	case "headless", "static", "auto":
	default:
		return fmt.Errorf("scrape.mode must be headless, static or auto, got %q", c.Scrape.Mode)
	}
	if c.Scrape.NavTimeout <= 0 {
		return fmt.Errorf("scrape.nav_timeout must be > 0")
	}
	if c.Scrape.SettleDelay < 0 {
		return fmt.Errorf("scrape.settle_delay must be >= 0")
	}
	if c.Classifier.CallsPerMinute <= 0 {
		return fmt.Errorf("classifier.calls_per_minute must be > 0")
	}
	if c.Classifier.BatchSize <= 0 {
		return fmt.Errorf("classifier.batch_size must be > 0")
	}
	if c.Classifier.Concurrency <= 0 {
		return fmt.Errorf("classifier.concurrency must be > 0")
	}
	if c.Classifier.BackoffBase <= 0 {
		return fmt.Errorf("classifier.backoff_base must be > 0")
	}
	if c.Classifier.MaxRetryElapsed < 0 {
		return fmt.Errorf("classifier.max_retry_elapsed must be >= 0")
	}
	if len(c.Classifier.Categories) == 0 {
		return fmt.Errorf("classifier.categories must not be empty")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for driver %s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be postgres, sqlite or memory, got %q", c.Store.Driver)
	}
	switch c.Archive.Driver {
	case "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local archive")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.driver must be none, local, gcs or memory, got %q", c.Archive.Driver)
	}
	switch c.Events.Driver {
	case "none", "memory":
	case "pubsub":
		if c.Events.ProjectID == "" || c.Events.Topic == "" {
			return fmt.Errorf("events.project_id and events.topic must be set for pubsub")
		}
	default:
		return fmt.Errorf("events.driver must be none, memory or pubsub, got %q", c.Events.Driver)
	}
	return nil
}

// RequireClassifierCredentials reports whether the classifier can authenticate.
func (c Config) RequireClassifierCredentials() error {
	if strings.TrimSpace(c.Classifier.APIKey) == "" {
		return fmt.Errorf("classifier.api_key must be set (HARVESTER_CLASSIFIER_API_KEY)")
	}
	return nil
}
