package embed

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/postly/scout/internal/model"
	"github.com/postly/scout/internal/ratelimit"
	"github.com/postly/scout/internal/retry"
)

// ClientConfig controls batching, throttling, and text budgets.
type ClientConfig struct {
	MaxBatchSize      int // texts per provider call
	MaxConcurrent     int // sub-batches in flight
	RequestsPerMinute int
	TextBudget        int // character cap on composed embedding text
	DescriptionCap    int // prefix of the description used in composition
}

func (c *ClientConfig) applyDefaults() {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 128
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	if c.TextBudget <= 0 {
		c.TextBudget = 8000
	}
	if c.DescriptionCap <= 0 {
		c.DescriptionCap = 3000
	}
}

// ClientMetrics is a snapshot of cumulative client counters.
type ClientMetrics struct {
	Requests   int
	Embeddings int
	Tokens     int
}

// Client batches jobs into provider-sized calls, throttles them through a
// shared minimum-interval gate, and retries transient failures. A sub-batch
// that exhausts its retries yields nil embeddings for its records only.
type Client struct {
	cfg      ClientConfig
	provider model.EmbeddingProvider
	limiter  *ratelimit.Limiter
	policy   retry.Policy
	logger   *slog.Logger

	mu      sync.Mutex
	metrics ClientMetrics
}

// NewClient creates an embedding client around the given provider.
func NewClient(cfg ClientConfig, provider model.EmbeddingProvider, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:      cfg,
		provider: provider,
		limiter:  ratelimit.PerMinute(cfg.RequestsPerMinute),
		policy:   retry.DefaultPolicy(),
		logger:   logger,
	}
}

// Metrics returns cumulative request, embedding, and token counts.
func (c *Client) Metrics() ClientMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// ComposeText builds the weighted embedding input for one job. Field
// repetition biases the vector: the title appears three times, the skill
// list twice, then a capped description prefix, industry, and company once.
// The relative ordering title >= skills >= description > industry > company
// is the contract; the counts are tunable.
func (c *Client) ComposeText(j model.Job) string {
	var parts []string

	if j.Title != "" {
		parts = append(parts, j.Title, j.Title, j.Title)
	}
	if len(j.Skills) > 0 {
		skills := strings.Join(j.Skills, ", ")
		parts = append(parts, skills, skills)
	}
	if j.Description != "" {
		parts = append(parts, truncate(j.Description, c.cfg.DescriptionCap))
	}
	if industry, ok := j.Meta["industry"].(string); ok && industry != "" {
		parts = append(parts, industry)
	}
	if j.Company != "" {
		parts = append(parts, j.Company)
	}

	return truncate(strings.Join(parts, "\n"), c.cfg.TextBudget)
}

// truncate cuts s to at most limit bytes without splitting a multi-byte
// rune, so the provider never receives invalid UTF-8.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// EmbedBatch embeds texts in document mode, splitting them into sub-batches
// of at most MaxBatchSize issued concurrently up to MaxConcurrent. The
// result always has one entry per input text; entries for failed
// sub-batches are nil.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrent)

	for start := 0; start < len(texts); start += c.cfg.MaxBatchSize {
		end := min(start+c.cfg.MaxBatchSize, len(texts))
		g.Go(func() error {
			c.embedSubBatch(gctx, texts[start:end], vectors[start:end])
			return nil
		})
	}
	_ = g.Wait()
	return vectors
}

// embedSubBatch fills dst with one provider call's vectors, or leaves it
// nil-filled when retries exhaust. Failure here never fails the batch.
func (c *Client) embedSubBatch(ctx context.Context, texts []string, dst [][]float32) {
	var result [][]float32
	var tokens int

	err := c.policy.Do(ctx, c.logger, "embed sub-batch", func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		result, tokens, err = c.provider.Embed(ctx, texts, model.EmbedModeDocument)
		return err
	})

	c.mu.Lock()
	c.metrics.Requests++
	c.metrics.Tokens += tokens
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("embedding sub-batch failed, records continue without vectors",
			"size", len(texts), "error", err)
		return
	}

	embedded := 0
	for i := range dst {
		if i < len(result) && result[i] != nil {
			dst[i] = result[i]
			embedded++
		}
	}

	c.mu.Lock()
	c.metrics.Embeddings += embedded
	c.mu.Unlock()
}

// EmbedJobs attaches embeddings to jobs in place. Jobs whose sub-batch
// failed keep a nil embedding and stay eligible for the background sweep.
// Returns the number of jobs that received a vector.
func (c *Client) EmbedJobs(ctx context.Context, jobs []model.Job) int {
	texts := make([]string, len(jobs))
	for i, j := range jobs {
		texts[i] = c.ComposeText(j)
	}

	vectors := c.EmbedBatch(ctx, texts)

	embedded := 0
	for i := range jobs {
		if vectors[i] != nil {
			jobs[i].Embedding = vectors[i]
			embedded++
		}
	}
	return embedded
}

// EmbedQuery embeds a search query in query mode, without sub-batching.
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	var result [][]float32
	var tokens int

	err := c.policy.Do(ctx, c.logger, "embed query", func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		result, tokens, err = c.provider.Embed(ctx, []string{query}, model.EmbedModeQuery)
		return err
	})

	c.mu.Lock()
	c.metrics.Requests++
	c.metrics.Tokens += tokens
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if len(result) == 0 || result[0] == nil {
		return nil, errors.New("provider returned no vector for query")
	}

	c.mu.Lock()
	c.metrics.Embeddings++
	c.mu.Unlock()
	return result[0], nil
}
