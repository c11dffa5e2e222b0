package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/postly/scout/internal/dedup"
	"github.com/postly/scout/internal/model"
	"github.com/postly/scout/internal/textutil"
)

// Embedder attaches vectors to jobs in place and returns how many received
// one. A nil Embedder disables the embedding stage.
type Embedder interface {
	EmbedJobs(ctx context.Context, jobs []model.Job) int
}

// Config tunes the processing stages.
type Config struct {
	MinDescriptionLen int           // cleaned descriptions shorter than this are dropped
	Retention         time.Duration // lifetime of a stored job, zero disables expiry
}

func (c *Config) applyDefaults() {
	if c.MinDescriptionLen <= 0 {
		c.MinDescriptionLen = 100
	}
}

// Pipeline turns raw candidates into stored jobs: clean, deduplicate,
// embed, persist. Each batch is one logical embedding call; a candidate
// that fails a stage is dropped there and never reaches the store twice.
type Pipeline struct {
	cfg      Config
	deduper  *dedup.Deduper
	embedder Embedder
	store    model.Store
	logger   *slog.Logger
}

// New creates a pipeline. embedder may be nil when embedding is disabled;
// jobs are then stored without vectors and picked up by the background
// sweep once it is enabled.
func New(cfg Config, deduper *dedup.Deduper, embedder Embedder, store model.Store, logger *slog.Logger) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		cfg:      cfg,
		deduper:  deduper,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Process runs one batch of candidates through every stage and reports
// per-batch counters. Storage failure counts every surviving job as an
// error; earlier stages degrade per record.
func (p *Pipeline) Process(ctx context.Context, batch []model.CandidateJob) model.Metrics {
	start := time.Now()
	m := model.Metrics{Found: len(batch)}

	now := time.Now().UTC()
	jobs := make([]model.Job, 0, len(batch))
	for _, c := range batch {
		description := textutil.HTMLToText(c.RawDescription)
		if len(description) < p.cfg.MinDescriptionLen {
			p.logger.Debug("dropping candidate with short description",
				"title", c.Title, "company", c.Company, "length", len(description))
			m.Errors++
			continue
		}
		m.Cleaned++

		key := dedup.KeyFor(c)
		if p.deduper.CheckAndMark(key) {
			m.Duplicates++
			continue
		}

		jobs = append(jobs, p.buildJob(c, key, description, now))
	}

	if p.embedder != nil && len(jobs) > 0 {
		m.Embedded = p.embedder.EmbedJobs(ctx, jobs)
	}

	if len(jobs) > 0 {
		stored, err := p.store.UpsertBatch(ctx, jobs)
		m.Stored = stored
		if err != nil {
			p.logger.Error("storing batch failed", "jobs", len(jobs), "error", err)
			m.Errors += len(jobs) - stored
		}
	}

	m.Elapsed = time.Since(start)
	return m
}

func (p *Pipeline) buildJob(c model.CandidateJob, key, description string, now time.Time) model.Job {
	j := model.Job{
		ID:             uuid.NewString(),
		DedupKey:       key,
		Title:          c.Title,
		Company:        c.Company,
		Description:    description,
		Location:       c.Location,
		SalaryMin:      c.SalaryMin,
		SalaryMax:      c.SalaryMax,
		EmploymentType: c.EmploymentType,
		Workplace:      c.Workplace,
		Skills:         c.Skills,
		MinExperience:  c.MinExperience,
		ApplyURL:       c.ApplyURL,
		Source:         c.Source,
		Meta:           c.Meta,
		Active:         true,
		PostedAt:       c.PostedAt,
		FirstSeen:      now,
	}
	if p.cfg.Retention > 0 {
		expires := now.Add(p.cfg.Retention)
		j.ExpiresAt = &expires
	}
	return j
}
