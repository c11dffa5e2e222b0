package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/postly/scout/internal/store"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one discovery cycle, print counters, exit",
	Long:  "One-shot crawl: discovers postings, runs them through the pipeline, prints the cycle counters, exits.",
	RunE:  runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	sqlStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	httpClient := newHTTPClient()
	embedClient := setupEmbedClient(cfg, httpClient, logger)
	sched := buildScheduler(cfg, sqlStore, embedClient, httpClient, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := sched.RunDiscoveryCycle(ctx)
	if err != nil {
		logger.Error("discovery cycle failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("found      %d\n", m.Found)
	fmt.Printf("cleaned    %d\n", m.Cleaned)
	fmt.Printf("duplicates %d\n", m.Duplicates)
	fmt.Printf("embedded   %d\n", m.Embedded)
	fmt.Printf("stored     %d\n", m.Stored)
	fmt.Printf("errors     %d\n", m.Errors)
	fmt.Printf("elapsed    %s\n", m.Elapsed.Round(100*time.Millisecond))
	return nil
}
