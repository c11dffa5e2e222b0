package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/postly/scout/internal/model"
)

// Weights blend the three ranking signals. They are not forced to sum to
// one; relative magnitude is what matters.
type Weights struct {
	Vector    float64
	Keyword   float64
	Freshness float64
}

// DefaultWeights favors semantic similarity, with keyword match and
// recency as tiebreakers.
func DefaultWeights() Weights {
	return Weights{Vector: 0.6, Keyword: 0.3, Freshness: 0.1}
}

// QueryEmbedder turns a search query into a vector. A nil embedder or a
// failed call degrades the ranker to keyword-only.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Config tunes the result cache.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

func (c *Config) applyDefaults() {
	if c.CacheSize <= 0 {
		c.CacheSize = 512
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
}

type cacheEntry struct {
	results   []model.SearchResult
	expiresAt time.Time
}

// Ranker runs hybrid search: vector and keyword retrieval in parallel,
// per-signal max normalization, then a weighted merge with a freshness
// boost. Results are cached per query+filters until the TTL passes or the
// weights change.
type Ranker struct {
	cfg      Config
	store    model.Store
	embedder QueryEmbedder
	logger   *slog.Logger

	mu      sync.RWMutex
	weights Weights
	cache   *lru.Cache[[32]byte, *cacheEntry]
}

// NewRanker creates a ranker with default weights. embedder may be nil
// when embedding is disabled.
func NewRanker(cfg Config, store model.Store, embedder QueryEmbedder, logger *slog.Logger) *Ranker {
	cfg.applyDefaults()
	cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
	if err != nil {
		// Only reachable with a non-positive size, which applyDefaults rules out.
		panic(fmt.Sprintf("creating search cache: %v", err))
	}
	return &Ranker{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		logger:   logger,
		weights:  DefaultWeights(),
		cache:    cache,
	}
}

// Weights returns the current blend.
func (r *Ranker) Weights() Weights {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.weights
}

// SetWeights replaces the blend and purges the cache, since every cached
// ordering was computed under the old weights.
func (r *Ranker) SetWeights(w Weights) {
	r.mu.Lock()
	r.weights = w
	r.mu.Unlock()
	r.cache.Purge()
}

// Search returns the top limit jobs for query, blending vector similarity,
// keyword rank, and freshness. Both retrievals overfetch at twice the
// limit so normalization sees enough of each signal.
func (r *Ranker) Search(ctx context.Context, query string, limit int, filters model.SearchFilters) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	key := cacheKey(query, filters)
	if entry, ok := r.cache.Get(key); ok && time.Now().Before(entry.expiresAt) {
		return entry.results, nil
	}

	var queryVec []float32
	if r.embedder != nil {
		vec, err := r.embedder.EmbedQuery(ctx, query)
		if err != nil {
			r.logger.Warn("query embedding failed, falling back to keyword-only",
				"query", query, "error", err)
		} else {
			queryVec = vec
		}
	}

	fetch := 2 * limit
	var vectorHits, keywordHits []model.ScoredJob

	g, gctx := errgroup.WithContext(ctx)
	if queryVec != nil {
		g.Go(func() error {
			var err error
			vectorHits, err = r.store.VectorSearch(gctx, queryVec, fetch, filters)
			return err
		})
	}
	g.Go(func() error {
		var err error
		keywordHits, err = r.store.KeywordSearch(gctx, query, fetch, filters)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hybrid retrieval: %w", err)
	}

	results := r.merge(vectorHits, keywordHits)
	if len(results) > limit {
		results = results[:limit]
	}

	r.cache.Add(key, &cacheEntry{
		results:   results,
		expiresAt: time.Now().Add(r.cfg.CacheTTL),
	})
	return results, nil
}

// merge normalizes each signal to [0,1] by its own maximum, joins hits by
// dedup key, applies the freshness step, and sorts by the combined score.
func (r *Ranker) merge(vectorHits, keywordHits []model.ScoredJob) []model.SearchResult {
	w := r.Weights()
	now := time.Now()

	merged := make(map[string]*model.SearchResult)
	order := make([]string, 0, len(vectorHits)+len(keywordHits))

	vectorMax := maxScore(vectorHits)
	for _, h := range vectorHits {
		sr := &model.SearchResult{Job: h.Job, VectorScore: h.Score / vectorMax}
		merged[h.Job.DedupKey] = sr
		order = append(order, h.Job.DedupKey)
	}

	keywordMax := maxScore(keywordHits)
	for _, h := range keywordHits {
		if sr, ok := merged[h.Job.DedupKey]; ok {
			sr.KeywordScore = h.Score / keywordMax
			continue
		}
		sr := &model.SearchResult{Job: h.Job, KeywordScore: h.Score / keywordMax}
		merged[h.Job.DedupKey] = sr
		order = append(order, h.Job.DedupKey)
	}

	results := make([]model.SearchResult, 0, len(order))
	for _, key := range order {
		sr := merged[key]
		sr.Freshness = freshness(sr.Job.PostedAt, now)
		sr.Combined = w.Vector*sr.VectorScore + w.Keyword*sr.KeywordScore + w.Freshness*sr.Freshness
		results = append(results, *sr)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Combined > results[j].Combined
	})
	return results
}

// freshness steps down with posting age. Unknown posting dates sit in the
// middle so they neither dominate nor vanish.
func freshness(postedAt *time.Time, now time.Time) float64 {
	if postedAt == nil {
		return 0.5
	}
	age := now.Sub(*postedAt)
	switch {
	case age <= 24*time.Hour:
		return 1.0
	case age <= 7*24*time.Hour:
		return 0.9
	case age <= 14*24*time.Hour:
		return 0.7
	case age <= 30*24*time.Hour:
		return 0.5
	default:
		return 0.3
	}
}

func maxScore(hits []model.ScoredJob) float64 {
	max := 0.0
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	if max == 0 {
		return 1 // avoid dividing by zero; all scores stay zero
	}
	return max
}

// cacheKey hashes the normalized query and the filter terms in a fixed
// order.
func cacheKey(query string, filters model.SearchFilters) [32]byte {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	return sha256.Sum256([]byte(fmt.Sprintf("%s|remote=%t|type=%s|source=%s",
		normalized, filters.RemoteOnly,
		strings.ToLower(filters.EmploymentType), filters.Source)))
}
