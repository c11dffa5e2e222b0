package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the scout daemon.
type Config struct {
	Source       SourceConfig
	Embedding    EmbeddingConfig
	Search       SearchConfig
	Store        StoreConfig
	Scheduler    SchedulerConfig
	Notification NotificationConfig
}

// SourceConfig describes the hiring.cafe source.
type SourceConfig struct {
	SiteURL           string
	APIURL            string
	PageSize          int
	MaxPages          int
	RequestsPerMinute int
	DetailConcurrency int
	MinDescriptionLen int
}

// EmbeddingConfig controls the optional Voyage embedding layer.
type EmbeddingConfig struct {
	Enabled           bool
	APIKey            string // expanded from env var by Load
	Model             string
	BaseURL           string // defaults to the public Voyage endpoint
	RequestsPerMinute int
	MaxBatchSize      int
	MaxConcurrent     int
	TextBudget        int
}

// SearchConfig tunes the hybrid ranker.
type SearchConfig struct {
	VectorWeight    float64
	KeywordWeight   float64
	FreshnessWeight float64
	CacheSize       int
	CacheTTL        time.Duration
}

// StoreConfig locates the database and sets retention.
type StoreConfig struct {
	Path       string
	StaleAfter time.Duration // jobs older than this are pruned, zero disables
	Retention  time.Duration // lifetime assigned to stored jobs, zero disables expiry
}

// SchedulerConfig sets cycle cadence.
type SchedulerConfig struct {
	Interval            time.Duration
	MaintenanceInterval time.Duration
	BatchSize           int
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

const defaultVoyageBaseURL = "https://api.voyageai.com/v1"

// rawConfig is used for YAML unmarshaling (snake_case fields and durations
// as strings).
type rawConfig struct {
	Source       rawSourceConfig    `yaml:"source"`
	Embedding    rawEmbeddingConfig `yaml:"embedding"`
	Search       rawSearchConfig    `yaml:"search"`
	Store        rawStoreConfig     `yaml:"store"`
	Scheduler    rawSchedulerConfig `yaml:"scheduler"`
	Notification NotificationConfig `yaml:"notification"`
}

type rawSourceConfig struct {
	SiteURL           string `yaml:"site_url"`
	APIURL            string `yaml:"api_url"`
	PageSize          int    `yaml:"page_size"`
	MaxPages          int    `yaml:"max_pages"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	DetailConcurrency int    `yaml:"detail_concurrency"`
	MinDescriptionLen int    `yaml:"min_description_len"`
}

type rawEmbeddingConfig struct {
	Enabled           bool   `yaml:"enabled"`
	APIKey            string `yaml:"api_key"`
	Model             string `yaml:"model"`
	BaseURL           string `yaml:"base_url"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	MaxBatchSize      int    `yaml:"max_batch_size"`
	MaxConcurrent     int    `yaml:"max_concurrent"`
	TextBudget        int    `yaml:"text_budget"`
}

type rawSearchConfig struct {
	VectorWeight    *float64 `yaml:"vector_weight"`
	KeywordWeight   *float64 `yaml:"keyword_weight"`
	FreshnessWeight *float64 `yaml:"freshness_weight"`
	CacheSize       int      `yaml:"cache_size"`
	CacheTTL        string   `yaml:"cache_ttl"`
}

type rawStoreConfig struct {
	Path       string `yaml:"path"`
	StaleAfter string `yaml:"stale_after"`
	Retention  string `yaml:"retention"`
}

type rawSchedulerConfig struct {
	Interval            string `yaml:"interval"`
	MaintenanceInterval string `yaml:"maintenance_interval"`
	BatchSize           int    `yaml:"batch_size"`
}

// Load reads and parses the YAML config file at path, validates it, and
// returns Config. Environment variables in the file are expanded first, so
// secrets can stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cacheTTL, err := durationOr(raw.Search.CacheTTL, "search.cache_ttl", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	staleAfter, err := durationOr(raw.Store.StaleAfter, "store.stale_after", 0)
	if err != nil {
		return nil, err
	}
	retention, err := durationOr(raw.Store.Retention, "store.retention", 0)
	if err != nil {
		return nil, err
	}
	interval, err := durationOr(raw.Scheduler.Interval, "scheduler.interval", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	maintenanceInterval, err := durationOr(raw.Scheduler.MaintenanceInterval, "scheduler.maintenance_interval", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	embeddingBaseURL := raw.Embedding.BaseURL
	if embeddingBaseURL == "" {
		embeddingBaseURL = defaultVoyageBaseURL
	}
	storePath := raw.Store.Path
	if storePath == "" {
		storePath = "scout.db"
	}
	siteURL := raw.Source.SiteURL
	if siteURL == "" {
		siteURL = "https://hiring.cafe"
	}
	apiURL := raw.Source.APIURL
	if apiURL == "" {
		apiURL = siteURL + "/api"
	}

	cfg := &Config{
		Source: SourceConfig{
			SiteURL:           siteURL,
			APIURL:            apiURL,
			PageSize:          raw.Source.PageSize,
			MaxPages:          raw.Source.MaxPages,
			RequestsPerMinute: raw.Source.RequestsPerMinute,
			DetailConcurrency: raw.Source.DetailConcurrency,
			MinDescriptionLen: raw.Source.MinDescriptionLen,
		},
		Embedding: EmbeddingConfig{
			Enabled:           raw.Embedding.Enabled,
			APIKey:            raw.Embedding.APIKey,
			Model:             raw.Embedding.Model,
			BaseURL:           embeddingBaseURL,
			RequestsPerMinute: raw.Embedding.RequestsPerMinute,
			MaxBatchSize:      raw.Embedding.MaxBatchSize,
			MaxConcurrent:     raw.Embedding.MaxConcurrent,
			TextBudget:        raw.Embedding.TextBudget,
		},
		Search: SearchConfig{
			VectorWeight:    floatOr(raw.Search.VectorWeight, 0.6),
			KeywordWeight:   floatOr(raw.Search.KeywordWeight, 0.3),
			FreshnessWeight: floatOr(raw.Search.FreshnessWeight, 0.1),
			CacheSize:       raw.Search.CacheSize,
			CacheTTL:        cacheTTL,
		},
		Store: StoreConfig{
			Path:       storePath,
			StaleAfter: staleAfter,
			Retention:  retention,
		},
		Scheduler: SchedulerConfig{
			Interval:            interval,
			MaintenanceInterval: maintenanceInterval,
			BatchSize:           raw.Scheduler.BatchSize,
		},
		Notification: raw.Notification,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func durationOr(raw, field string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func validate(cfg *Config) error {
	if cfg.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive, got %v", cfg.Scheduler.Interval)
	}

	if cfg.Search.VectorWeight < 0 || cfg.Search.KeywordWeight < 0 || cfg.Search.FreshnessWeight < 0 {
		return fmt.Errorf("search weights must not be negative")
	}
	if cfg.Search.VectorWeight+cfg.Search.KeywordWeight+cfg.Search.FreshnessWeight == 0 {
		return fmt.Errorf("at least one search weight must be positive")
	}

	if cfg.Notification.Type == "slack" {
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	}

	if cfg.Embedding.Enabled {
		if cfg.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required when embedding.enabled is true")
		}
		if cfg.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required when embedding.enabled is true")
		}
	}

	return nil
}
