package spider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/postly/scout/internal/model"
	"github.com/postly/scout/internal/ratelimit"
	"github.com/postly/scout/internal/retry"
)

// SourceName identifies hiring.cafe rows in the store.
const SourceName = "hiring_cafe"

// buildIDRegex extracts the Next.js build identifier from the landing page.
// The identifier is required to construct detail URLs and rotates without
// notice on every site deploy.
var buildIDRegex = regexp.MustCompile(`"buildId":"([^"]+)"`)

// Config controls one HiringCafe spider instance.
type Config struct {
	SiteURL           string // landing page + detail documents, e.g. https://hiring.cafe
	APIURL            string // search endpoint base, e.g. https://hiring.cafe/api
	PageSize          int
	MaxPages          int // safety ceiling against unbounded discovery
	RequestsPerMinute int
	DetailConcurrency int // detail fetches in flight per page
	MinDescriptionLen int // shorter cleaned descriptions are rejected
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 40
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 100
	}
	if c.DetailConcurrency <= 0 {
		c.DetailConcurrency = 5
	}
	if c.MinDescriptionLen <= 0 {
		c.MinDescriptionLen = 100
	}
}

// Metrics is a snapshot of one spider's counters.
type Metrics struct {
	PagesFetched  int
	JobsFound     int
	DetailFetches int
	Errors        int
}

// HiringCafe discovers job postings from the hiring.cafe JSON API: a paged
// search endpoint yields requisition IDs, and per-record detail documents
// are served as Next.js data payloads keyed by the current build identifier.
type HiringCafe struct {
	cfg     Config
	client  *http.Client
	limiter *ratelimit.Limiter
	policy  retry.Policy
	logger  *slog.Logger

	mu      sync.Mutex
	buildID string
	metrics Metrics

	// refreshMu serializes landing-page fetches so detail workers that
	// 404 together trigger a single refresh.
	refreshMu sync.Mutex
}

var _ model.Spider = (*HiringCafe)(nil)

// NewHiringCafe creates a spider with its own rate limiter and retry policy.
func NewHiringCafe(cfg Config, client *http.Client, logger *slog.Logger) *HiringCafe {
	cfg.applyDefaults()
	return &HiringCafe{
		cfg:     cfg,
		client:  client,
		limiter: ratelimit.PerMinute(cfg.RequestsPerMinute),
		policy:  retry.DefaultPolicy(),
		logger:  logger,
	}
}

// Metrics returns a snapshot of the spider's counters.
func (s *HiringCafe) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// TakeErrors drains the error counter. The other counters stay cumulative;
// errors are handed over per cycle so they land in that cycle's summary.
func (s *HiringCafe) TakeErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.metrics.Errors
	s.metrics.Errors = 0
	return n
}

func (s *HiringCafe) countError() {
	s.mu.Lock()
	s.metrics.Errors++
	s.mu.Unlock()
}

// Discover paginates the search endpoint and fetches detail documents for
// every identifier not already in known. The channel is closed when
// discovery completes, pagination retries exhaust, or ctx is cancelled.
func (s *HiringCafe) Discover(ctx context.Context, known map[string]struct{}) <-chan model.CandidateJob {
	out := make(chan model.CandidateJob)
	go func() {
		defer close(out)
		s.run(ctx, known, out)
	}()
	return out
}

// searchPage mirrors the search endpoint response: lightweight result cards
// plus an optional running total.
type searchPage struct {
	Results []searchCard `json:"results"`
	Total   int          `json:"total"`
}

type searchCard struct {
	RequisitionID string `json:"requisition_id"`
	ObjectID      string `json:"objectID"`
}

func (c searchCard) id() string {
	if c.RequisitionID != "" {
		return c.RequisitionID
	}
	return c.ObjectID
}

func (s *HiringCafe) run(ctx context.Context, known map[string]struct{}, out chan<- model.CandidateJob) {
	offset := 0
	total := 0

	for page := 0; page < s.cfg.MaxPages; page++ {
		if ctx.Err() != nil {
			return
		}

		pageData, err := s.fetchSearchPage(ctx, offset)
		if err != nil {
			// Pagination retries exhausted: end discovery for this cycle
			// early. Already-yielded records proceed through the pipeline.
			s.logger.Error("pagination failed, ending discovery early",
				"offset", offset, "error", err)
			s.countError()
			return
		}

		s.mu.Lock()
		s.metrics.PagesFetched++
		s.mu.Unlock()

		if len(pageData.Results) == 0 {
			s.logger.Info("empty page, pagination complete", "pages", page+1)
			return
		}
		if pageData.Total > 0 {
			total = pageData.Total
		}

		ids := s.filterIDs(pageData.Results, known)
		s.fetchDetails(ctx, ids, out)

		offset += s.cfg.PageSize
		if total > 0 && offset >= total {
			s.logger.Info("reached reported total", "total", total)
			return
		}
	}
	s.logger.Warn("page ceiling reached, stopping discovery", "max_pages", s.cfg.MaxPages)
}

// filterIDs drops cards without an identifier and identifiers already known
// from the persistent dedup snapshot, so no detail fetch is wasted on them.
func (s *HiringCafe) filterIDs(cards []searchCard, known map[string]struct{}) []string {
	ids := make([]string, 0, len(cards))
	for _, card := range cards {
		id := card.id()
		if id == "" {
			continue
		}
		if _, ok := known[SourceName+":"+id]; ok {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// fetchDetails runs bounded-concurrency detail fetches for one page's
// surviving identifiers and sends parsed candidates to out. A failed or
// rejected detail loses only that record.
func (s *HiringCafe) fetchDetails(ctx context.Context, ids []string, out chan<- model.CandidateJob) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DetailConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			job, ok := s.fetchDetail(gctx, id)
			if !ok {
				return nil
			}
			select {
			case out <- job:
				s.mu.Lock()
				s.metrics.JobsFound++
				s.mu.Unlock()
			case <-gctx.Done():
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *HiringCafe) fetchSearchPage(ctx context.Context, offset int) (*searchPage, error) {
	url := fmt.Sprintf("%s/search-jobs?limit=%d&offset=%d", s.cfg.APIURL, s.cfg.PageSize, offset)

	var page searchPage
	err := s.policy.Do(ctx, s.logger, "search page", func(ctx context.Context) error {
		body, err := s.get(ctx, url)
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &page)
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// fetchDetail retrieves and parses one detail document. On a 404 it assumes
// the build identifier rotated, refreshes it once, and retries the fetch
// exactly once; a second 404 counts as an error and the record is skipped.
func (s *HiringCafe) fetchDetail(ctx context.Context, id string) (model.CandidateJob, bool) {
	s.mu.Lock()
	s.metrics.DetailFetches++
	s.mu.Unlock()

	body, err := s.detailRequest(ctx, id)

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		s.logger.Info("detail 404, assuming build identifier rotated", "id", id)
		s.invalidateBuildID()
		body, err = s.detailRequest(ctx, id)
	}
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("detail fetch failed, skipping record", "id", id, "error", err)
			s.countError()
		}
		return model.CandidateJob{}, false
	}

	return s.parseDetail(id, body)
}

func (s *HiringCafe) detailRequest(ctx context.Context, id string) ([]byte, error) {
	buildID, err := s.currentBuildID(ctx)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/_next/data/%s/viewjob/%s.json", s.cfg.SiteURL, buildID, id)

	var body []byte
	err = s.policy.Do(ctx, s.logger, "detail fetch", func(ctx context.Context) error {
		var err error
		body, err = s.get(ctx, url)
		return err
	})
	return body, err
}

// currentBuildID returns the cached build identifier, fetching the landing
// page lazily on first use or after invalidation. Concurrent callers that
// find the cache empty share one fetch.
func (s *HiringCafe) currentBuildID(ctx context.Context) (string, error) {
	s.mu.Lock()
	cached := s.buildID
	s.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	s.mu.Lock()
	cached = s.buildID
	s.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var body []byte
	err := s.policy.Do(ctx, s.logger, "landing page", func(ctx context.Context) error {
		var err error
		body, err = s.get(ctx, s.cfg.SiteURL)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("fetching landing page: %w", err)
	}

	match := buildIDRegex.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("build identifier not found in landing page")
	}
	id := string(match[1])

	s.mu.Lock()
	s.buildID = id
	s.mu.Unlock()

	s.logger.Debug("build identifier acquired", "build_id", id)
	return id, nil
}

func (s *HiringCafe) invalidateBuildID() {
	s.mu.Lock()
	s.buildID = ""
	s.mu.Unlock()
}

// get performs one rate-limited GET. Non-2xx statuses become HTTPError so
// retry logic can classify them; a 429 carries the server's Retry-After.
func (s *HiringCafe) get(ctx context.Context, url string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "scout/1.0 (+https://github.com/postly/scout)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewHTTPError(resp, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}
