package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/postly/scout/internal/model"
	"github.com/postly/scout/internal/store"
	"github.com/postly/scout/internal/tui"
)

var (
	searchLimit       int
	searchRemote      bool
	searchJobType     string
	searchSource      string
	searchInteractive bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored jobs",
	Long:  "Hybrid search over stored jobs: vector similarity plus keyword match plus a freshness boost. Use --interactive for a browsable view.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results")
	searchCmd.Flags().BoolVar(&searchRemote, "remote", false, "remote jobs only")
	searchCmd.Flags().StringVar(&searchJobType, "job-type", "", "filter by employment type, e.g. full_time")
	searchCmd.Flags().StringVar(&searchSource, "source", "", "filter by source name")
	searchCmd.Flags().BoolVarP(&searchInteractive, "interactive", "i", false, "browse results in a TUI")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
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
	ranker := buildRanker(cfg, sqlStore, embedClient, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	query := strings.Join(args, " ")
	filters := model.SearchFilters{
		RemoteOnly:     searchRemote,
		EmploymentType: searchJobType,
		Source:         searchSource,
	}

	results, err := ranker.Search(ctx, query, searchLimit, filters)
	if err != nil {
		logger.Error("search failed", "error", err)
		os.Exit(1)
	}

	if searchInteractive {
		return tui.Run(query, results, ranker.Weights())
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tTITLE\tCOMPANY\tLOCATION\tURL")
	for _, r := range results {
		fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\t%s\n",
			r.Combined, r.Job.Title, r.Job.Company, r.Job.Location, r.Job.ApplyURL)
	}
	return w.Flush()
}
