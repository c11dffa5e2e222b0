package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/postly/scout/internal/config"
	"github.com/postly/scout/internal/dedup"
	"github.com/postly/scout/internal/embed"
	"github.com/postly/scout/internal/model"
	"github.com/postly/scout/internal/notifier"
	"github.com/postly/scout/internal/pipeline"
	"github.com/postly/scout/internal/scheduler"
	"github.com/postly/scout/internal/search"
	"github.com/postly/scout/internal/spider"
	"github.com/postly/scout/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "Job discovery daemon with hybrid search",
	Long:  "Scout crawls hiring.cafe, deduplicates and embeds postings, and serves hybrid vector+keyword search over them.",
	// Default to `start` so that `scout` with no args runs the daemon.
	// This preserves compatibility with systemd unit files that invoke the binary directly.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: SCOUT_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > SCOUT_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("SCOUT_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// setupEmbedClient builds the Voyage client, or returns nil when embedding
// is disabled. Callers treat a nil client as "skip vectors".
func setupEmbedClient(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) *embed.Client {
	if !cfg.Embedding.Enabled {
		logger.Info("embedding disabled, search falls back to keyword-only")
		return nil
	}
	provider := embed.NewVoyageProvider(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, httpClient)
	client := embed.NewClient(embed.ClientConfig{
		MaxBatchSize:      cfg.Embedding.MaxBatchSize,
		MaxConcurrent:     cfg.Embedding.MaxConcurrent,
		RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
		TextBudget:        cfg.Embedding.TextBudget,
	}, provider, logger)
	logger.Info("embedding enabled", "model", cfg.Embedding.Model)
	return client
}

func setupSpider(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) *spider.HiringCafe {
	return spider.NewHiringCafe(spider.Config{
		SiteURL:           cfg.Source.SiteURL,
		APIURL:            cfg.Source.APIURL,
		PageSize:          cfg.Source.PageSize,
		MaxPages:          cfg.Source.MaxPages,
		RequestsPerMinute: cfg.Source.RequestsPerMinute,
		DetailConcurrency: cfg.Source.DetailConcurrency,
		MinDescriptionLen: cfg.Source.MinDescriptionLen,
	}, httpClient, logger)
}

// buildScheduler wires the full discovery side: spider, deduper, pipeline,
// embedder, notifier. embedClient may be nil.
func buildScheduler(cfg *config.Config, sqlStore *store.SQLiteStore, embedClient *embed.Client,
	httpClient *http.Client, logger *slog.Logger) *scheduler.Scheduler {
	deduper := dedup.NewDeduper(sqlStore, logger)

	var embedder pipeline.Embedder
	if embedClient != nil {
		embedder = embedClient
	}

	pipe := pipeline.New(pipeline.Config{
		MinDescriptionLen: cfg.Source.MinDescriptionLen,
		Retention:         cfg.Store.Retention,
	}, deduper, embedder, sqlStore, logger)

	n := setupNotifier(cfg, httpClient, logger)

	return scheduler.New(scheduler.Config{
		Interval:            cfg.Scheduler.Interval,
		MaintenanceInterval: cfg.Scheduler.MaintenanceInterval,
		BatchSize:           cfg.Scheduler.BatchSize,
		StaleAfter:          cfg.Store.StaleAfter,
	}, spider.SourceName, setupSpider(cfg, httpClient, logger), deduper, pipe, sqlStore, embedder, n, logger)
}

// buildRanker wires the search side. embedClient may be nil; the ranker then
// serves keyword-only results.
func buildRanker(cfg *config.Config, sqlStore *store.SQLiteStore, embedClient *embed.Client, logger *slog.Logger) *search.Ranker {
	var queryEmbedder search.QueryEmbedder
	if embedClient != nil {
		queryEmbedder = embedClient
	}
	ranker := search.NewRanker(search.Config{
		CacheSize: cfg.Search.CacheSize,
		CacheTTL:  cfg.Search.CacheTTL,
	}, sqlStore, queryEmbedder, logger)
	ranker.SetWeights(search.Weights{
		Vector:    cfg.Search.VectorWeight,
		Keyword:   cfg.Search.KeywordWeight,
		Freshness: cfg.Search.FreshnessWeight,
	})
	return ranker
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
