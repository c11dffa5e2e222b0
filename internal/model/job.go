package model

import (
	"context"
	"time"
)

// Workplace classification parsed from the source.
const (
	WorkplaceRemote  = "remote"
	WorkplaceHybrid  = "hybrid"
	WorkplaceOnsite  = "onsite"
	WorkplaceUnknown = "unknown"
)

// CandidateJob is the raw output of one detail fetch, before cleaning,
// deduplication, and embedding. Immutable once yielded by the spider.
type CandidateJob struct {
	RequisitionID  string         // stable source identifier, may be empty
	Title          string         // job title
	Company        string         // company name
	RawDescription string         // HTML or plain text, as served
	Location       string         // location string
	SalaryMin      *float64       // nullable yearly lower bound
	SalaryMax      *float64       // nullable yearly upper bound
	EmploymentType string         // "Full Time", "Contract", ...
	Workplace      string         // remote/hybrid/onsite/unknown
	Skills         []string       // tool/skill list from the source
	MinExperience  *int           // nullable minimum years of experience
	ApplyURL       string         // direct apply link
	Source         string         // source name, e.g. "hiring_cafe"
	PostedAt       *time.Time     // nullable posting timestamp
	Meta           map[string]any // opaque source metadata, never interpreted here
}

// Job is a CandidateJob that survived the pipeline: validated, cleaned,
// deduplicated, and optionally embedded.
type Job struct {
	ID             string     // durable identifier, generated on first store
	DedupKey       string     // direct key or fingerprint, unique among active jobs
	Title          string
	Company        string
	Description    string // cleaned plain text
	Location       string
	SalaryMin      *float64
	SalaryMax      *float64
	EmploymentType string
	Workplace      string
	Skills         []string
	MinExperience  *int
	ApplyURL       string
	Source         string
	Meta           map[string]any
	Embedding      []float32 // nil if the embedding step was skipped or failed
	Active         bool
	PostedAt       *time.Time
	FirstSeen      time.Time // our clock, set when the record is built
	ExpiresAt      *time.Time
}

// SearchResult is a per-query projection of a Job plus its ranking scores.
// Never persisted.
type SearchResult struct {
	Job          Job
	VectorScore  float64 // normalized [0,1]
	KeywordScore float64 // normalized [0,1]
	Freshness    float64
	Combined     float64
}

// SearchFilters narrows store queries. Zero value matches everything.
type SearchFilters struct {
	RemoteOnly     bool
	EmploymentType string
	Source         string
}

// Metrics counts the outcome of one pipeline run. Reset at cycle start;
// the caller decides whether to aggregate across cycles.
type Metrics struct {
	Found      int
	Cleaned    int
	Duplicates int
	Embedded   int
	Stored     int
	Errors     int
	Elapsed    time.Duration
}

// Add accumulates another run's counters into m.
func (m *Metrics) Add(other Metrics) {
	m.Found += other.Found
	m.Cleaned += other.Cleaned
	m.Duplicates += other.Duplicates
	m.Embedded += other.Embedded
	m.Stored += other.Stored
	m.Errors += other.Errors
	m.Elapsed += other.Elapsed
}

// EmbedMode selects the provider-side input mode for an embedding call.
type EmbedMode string

const (
	EmbedModeDocument EmbedMode = "document"
	EmbedModeQuery    EmbedMode = "query"
)

// EmbeddingProvider wraps an external embedding API. A nil vector in the
// result slice marks a text the provider failed on. tokens is the usage the
// provider reported for the call, zero if it reports none.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string, mode EmbedMode) (vectors [][]float32, tokens int, err error)
}

// Spider discovers candidate jobs from one source. Implementations close
// the returned channel when discovery completes or ctx is cancelled.
// Identifiers present in known are discarded before detail fetch.
type Spider interface {
	Discover(ctx context.Context, known map[string]struct{}) <-chan CandidateJob
	// TakeErrors returns the number of discovery errors (failed fetches,
	// rejected records) since the last call and resets the counter, so
	// each cycle folds its own losses into its summary.
	TakeErrors() int
}

// ScoredJob pairs a job with a raw (un-normalized) relevance score.
type ScoredJob struct {
	Job   Job
	Score float64
}

// Store is the persistence boundary: relational rows, keyword index, and
// embedding vectors.
type Store interface {
	// UpsertBatch inserts jobs or, on a dedup-key conflict, updates the
	// mutable fields of the existing row. Returns rows written.
	UpsertBatch(ctx context.Context, jobs []Job) (int, error)
	// GetKnownKeys returns the dedup keys of all active jobs for a source.
	GetKnownKeys(ctx context.Context, source string) (map[string]struct{}, error)
	VectorSearch(ctx context.Context, embedding []float32, limit int, filters SearchFilters) ([]ScoredJob, error)
	KeywordSearch(ctx context.Context, query string, limit int, filters SearchFilters) ([]ScoredJob, error)
	MarkInactive(ctx context.Context, dedupKey string) error
	DeleteExpired(ctx context.Context) (int, error)
	DeleteStale(ctx context.Context, olderThan time.Duration) (int, error)
	// JobsWithoutEmbedding feeds the background embedding sweep.
	JobsWithoutEmbedding(ctx context.Context, limit int) ([]Job, error)
	UpdateEmbeddings(ctx context.Context, updates map[string][]float32) (int, error)
	Close() error
}

// Notifier delivers a cycle summary to a human-facing channel.
type Notifier interface {
	NotifyCycle(source string, m Metrics) error
}
