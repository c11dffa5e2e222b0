package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/postly/scout/internal/dedup"
	"github.com/postly/scout/internal/model"
	"github.com/postly/scout/internal/pipeline"
)

// Config controls cycle cadence and batch sizing.
type Config struct {
	Interval            time.Duration // between discovery cycles
	MaintenanceInterval time.Duration // between maintenance cycles
	BatchSize           int           // candidates per pipeline batch
	SweepLimit          int           // jobs per embedding sweep
	StaleAfter          time.Duration // zero disables stale deletion
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Minute
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = 24 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.SweepLimit <= 0 {
		c.SweepLimit = 200
	}
}

// Scheduler owns the main loop: discovery cycles on an interval and
// maintenance on a slower one. A failing cycle is logged and the loop
// continues; only context cancellation stops it.
type Scheduler struct {
	cfg      Config
	source   string
	spider   model.Spider
	deduper  *dedup.Deduper
	pipe     *pipeline.Pipeline
	store    model.Store
	embedder pipeline.Embedder
	notifier model.Notifier
	logger   *slog.Logger
}

// New creates a scheduler for one source. embedder may be nil; the
// embedding sweep is then skipped.
func New(cfg Config, source string, spider model.Spider, deduper *dedup.Deduper,
	pipe *pipeline.Pipeline, store model.Store, embedder pipeline.Embedder,
	notifier model.Notifier, logger *slog.Logger) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:      cfg,
		source:   source,
		spider:   spider,
		deduper:  deduper,
		pipe:     pipe,
		store:    store,
		embedder: embedder,
		notifier: notifier,
		logger:   logger,
	}
}

// Run starts the loop. It runs one immediate discovery cycle, then ticks
// discovery and maintenance on their intervals. It returns nil when ctx is
// cancelled (graceful shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler",
		"source", s.source,
		"interval", s.cfg.Interval.String(),
		"maintenance_interval", s.cfg.MaintenanceInterval.String(),
	)

	s.discover(ctx)

	discovery := time.NewTicker(s.cfg.Interval)
	defer discovery.Stop()
	maintenance := time.NewTicker(s.cfg.MaintenanceInterval)
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-discovery.C:
			s.discover(ctx)
		case <-maintenance.C:
			if err := s.RunMaintenanceCycle(ctx); err != nil {
				s.logger.Error("maintenance cycle failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) discover(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	m, err := s.RunDiscoveryCycle(ctx)
	if err != nil {
		s.logger.Error("discovery cycle failed", "source", s.source, "error", err)
		return
	}
	s.logger.Info("discovery cycle complete",
		"source", s.source,
		"found", m.Found,
		"stored", m.Stored,
		"duplicates", m.Duplicates,
		"embedded", m.Embedded,
		"errors", m.Errors,
		"elapsed", m.Elapsed.String(),
	)
}

// RunDiscoveryCycle loads the known-key snapshot, drains the spider, and
// feeds candidates through the pipeline in batches. Results are aggregated
// into one Metrics and handed to the notifier.
func (s *Scheduler) RunDiscoveryCycle(ctx context.Context) (model.Metrics, error) {
	start := time.Now()

	if err := s.deduper.LoadKnown(ctx, s.source); err != nil {
		return model.Metrics{}, fmt.Errorf("loading known keys: %w", err)
	}
	s.deduper.ResetBatch()

	var total model.Metrics
	batch := make([]model.CandidateJob, 0, s.cfg.BatchSize)

	for candidate := range s.spider.Discover(ctx, s.deduper.Known()) {
		batch = append(batch, candidate)
		if len(batch) >= s.cfg.BatchSize {
			total.Add(s.pipe.Process(ctx, batch))
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		total.Add(s.pipe.Process(ctx, batch))
	}
	// Fold in records the spider lost before they reached the pipeline
	// (failed detail fetches, rejected documents).
	total.Errors += s.spider.TakeErrors()
	total.Elapsed = time.Since(start)

	if s.notifier != nil {
		if err := s.notifier.NotifyCycle(s.source, total); err != nil {
			s.logger.Warn("cycle notification failed", "error", err)
		}
	}
	return total, nil
}

// RunMaintenanceCycle prunes expired and stale rows, then sweeps active
// jobs still missing an embedding.
func (s *Scheduler) RunMaintenanceCycle(ctx context.Context) error {
	expired, err := s.store.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("deleting expired jobs: %w", err)
	}

	stale := 0
	if s.cfg.StaleAfter > 0 {
		stale, err = s.store.DeleteStale(ctx, s.cfg.StaleAfter)
		if err != nil {
			return fmt.Errorf("deleting stale jobs: %w", err)
		}
	}

	swept, err := s.sweepEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("embedding sweep: %w", err)
	}

	s.logger.Info("maintenance cycle complete",
		"expired", expired, "stale", stale, "embedded", swept)
	return nil
}

// sweepEmbeddings embeds jobs that were stored without a vector, usually
// after a provider outage during their discovery cycle.
func (s *Scheduler) sweepEmbeddings(ctx context.Context) (int, error) {
	if s.embedder == nil {
		return 0, nil
	}

	jobs, err := s.store.JobsWithoutEmbedding(ctx, s.cfg.SweepLimit)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	s.embedder.EmbedJobs(ctx, jobs)

	updates := make(map[string][]float32)
	for _, j := range jobs {
		if j.Embedding != nil {
			updates[j.ID] = j.Embedding
		}
	}
	return s.store.UpdateEmbeddings(ctx, updates)
}
