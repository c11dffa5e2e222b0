package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/postly/scout/internal/store"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run one maintenance cycle, exit",
	Long:  "One-shot maintenance: prunes expired and stale jobs and backfills missing embeddings, then exits.",
	RunE:  runMaintain,
}

func init() {
	rootCmd.AddCommand(maintainCmd)
}

func runMaintain(cmd *cobra.Command, args []string) error {
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

	if err := sched.RunMaintenanceCycle(ctx); err != nil {
		logger.Error("maintenance cycle failed", "error", err)
		os.Exit(1)
	}

	logger.Info("maintenance complete")
	return nil
}
