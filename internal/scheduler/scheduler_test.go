package scheduler

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/postly/scout/internal/dedup"
	"github.com/postly/scout/internal/model"
	"github.com/postly/scout/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedSpider yields a fixed candidate list, minus known keys, and
// records the snapshot it was given.
type scriptedSpider struct {
	candidates  []model.CandidateJob
	lostRecords int // counted as errors during each Discover
	errors      atomic.Int32
	mu          sync.Mutex
	gotKnown    map[string]struct{}
	cycles      atomic.Int32
}

func (s *scriptedSpider) TakeErrors() int {
	return int(s.errors.Swap(0))
}

func (s *scriptedSpider) Discover(ctx context.Context, known map[string]struct{}) <-chan model.CandidateJob {
	s.mu.Lock()
	s.gotKnown = known
	s.mu.Unlock()
	s.cycles.Add(1)

	out := make(chan model.CandidateJob)
	go func() {
		defer close(out)
		s.errors.Add(int32(s.lostRecords))
		for _, c := range s.candidates {
			if _, ok := known[c.Source+":"+c.RequisitionID]; ok {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// trackingStore is an in-memory Store that counts maintenance calls.
type trackingStore struct {
	mu              sync.Mutex
	rows            map[string]model.Job
	upsertBatches   int
	expiredDeleted  int
	staleDeleted    int
	pendingJobs     []model.Job
	updatedVectors  map[string][]float32
	deleteStaleArgs []time.Duration
}

func newTrackingStore() *trackingStore {
	return &trackingStore{
		rows:           make(map[string]model.Job),
		updatedVectors: make(map[string][]float32),
	}
}

func (s *trackingStore) UpsertBatch(_ context.Context, jobs []model.Job) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertBatches++
	for _, j := range jobs {
		s.rows[j.DedupKey] = j
	}
	return len(jobs), nil
}

func (s *trackingStore) GetKnownKeys(_ context.Context, source string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[string]struct{})
	for k, j := range s.rows {
		if j.Source == source {
			known[k] = struct{}{}
		}
	}
	return known, nil
}

func (s *trackingStore) VectorSearch(context.Context, []float32, int, model.SearchFilters) ([]model.ScoredJob, error) {
	return nil, nil
}
func (s *trackingStore) KeywordSearch(context.Context, string, int, model.SearchFilters) ([]model.ScoredJob, error) {
	return nil, nil
}
func (s *trackingStore) MarkInactive(context.Context, string) error { return nil }

func (s *trackingStore) DeleteExpired(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiredDeleted, nil
}

func (s *trackingStore) DeleteStale(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteStaleArgs = append(s.deleteStaleArgs, olderThan)
	return s.staleDeleted, nil
}

func (s *trackingStore) JobsWithoutEmbedding(context.Context, int) ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingJobs, nil
}

func (s *trackingStore) UpdateEmbeddings(_ context.Context, updates map[string][]float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range updates {
		s.updatedVectors[id] = v
	}
	return len(updates), nil
}

func (s *trackingStore) Close() error { return nil }

type countingNotifier struct {
	mu      sync.Mutex
	cycles  int
	lastM   model.Metrics
	lastSrc string
}

func (n *countingNotifier) NotifyCycle(source string, m model.Metrics) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cycles++
	n.lastM = m
	n.lastSrc = source
	return nil
}

type vectorEmbedder struct{}

func (vectorEmbedder) EmbedJobs(_ context.Context, jobs []model.Job) int {
	for i := range jobs {
		jobs[i].Embedding = []float32{1}
	}
	return len(jobs)
}

func candidate(id string) model.CandidateJob {
	return model.CandidateJob{
		RequisitionID:  id,
		Title:          "Engineer " + id,
		Company:        "Acme",
		RawDescription: strings.Repeat("Operate production Go services. ", 5),
		Source:         "hiring_cafe",
	}
}

func newTestScheduler(cfg Config, spider model.Spider, store model.Store, notifier model.Notifier, embedder pipeline.Embedder) *Scheduler {
	logger := discardLogger()
	d := dedup.NewDeduper(store, logger)
	pipe := pipeline.New(pipeline.Config{}, d, embedder, store, logger)
	return New(cfg, "hiring_cafe", spider, d, pipe, store, embedder, notifier, logger)
}

func TestRunDiscoveryCycleBatchesAndAggregates(t *testing.T) {
	spider := &scriptedSpider{candidates: []model.CandidateJob{
		candidate("r1"), candidate("r2"), candidate("r3"), candidate("r4"), candidate("r5"),
	}}
	store := newTrackingStore()
	notifier := &countingNotifier{}
	s := newTestScheduler(Config{BatchSize: 2}, spider, store, notifier, nil)

	m, err := s.RunDiscoveryCycle(context.Background())
	if err != nil {
		t.Fatalf("RunDiscoveryCycle: %v", err)
	}
	if m.Found != 5 || m.Stored != 5 {
		t.Errorf("unexpected aggregated metrics: %+v", m)
	}
	if store.upsertBatches != 3 {
		t.Errorf("expected 5 candidates at batch size 2 to make 3 batches, got %d", store.upsertBatches)
	}
	if notifier.cycles != 1 {
		t.Errorf("expected one notification per cycle, got %d", notifier.cycles)
	}
	if notifier.lastSrc != "hiring_cafe" || notifier.lastM.Stored != 5 {
		t.Errorf("unexpected notification: %s %+v", notifier.lastSrc, notifier.lastM)
	}
}

func TestRunDiscoveryCycleCountsSpiderLosses(t *testing.T) {
	spider := &scriptedSpider{
		candidates:  []model.CandidateJob{candidate("r1"), candidate("r2")},
		lostRecords: 3,
	}
	store := newTrackingStore()
	notifier := &countingNotifier{}
	s := newTestScheduler(Config{}, spider, store, notifier, nil)

	m, err := s.RunDiscoveryCycle(context.Background())
	if err != nil {
		t.Fatalf("RunDiscoveryCycle: %v", err)
	}
	if m.Errors != 3 {
		t.Errorf("expected lost records in cycle errors, got %d", m.Errors)
	}
	if m.Stored != 2 {
		t.Errorf("expected surviving candidates stored, got %d", m.Stored)
	}
	if notifier.lastM.Errors != 3 {
		t.Errorf("expected losses in the notified summary, got %+v", notifier.lastM)
	}
}

func TestRunDiscoveryCyclePassesKnownKeysToSpider(t *testing.T) {
	store := newTrackingStore()
	store.rows["hiring_cafe:r1"] = model.Job{DedupKey: "hiring_cafe:r1", Source: "hiring_cafe"}

	spider := &scriptedSpider{candidates: []model.CandidateJob{candidate("r1"), candidate("r2")}}
	s := newTestScheduler(Config{}, spider, store, &countingNotifier{}, nil)

	m, err := s.RunDiscoveryCycle(context.Background())
	if err != nil {
		t.Fatalf("RunDiscoveryCycle: %v", err)
	}

	spider.mu.Lock()
	_, sawKnown := spider.gotKnown["hiring_cafe:r1"]
	spider.mu.Unlock()
	if !sawKnown {
		t.Error("expected stored key in the spider's known snapshot")
	}
	if m.Found != 1 || m.Stored != 1 {
		t.Errorf("expected only the new candidate processed, got %+v", m)
	}
}

func TestSecondCycleSkipsFirstCycleJobs(t *testing.T) {
	spider := &scriptedSpider{candidates: []model.CandidateJob{candidate("r1")}}
	store := newTrackingStore()
	s := newTestScheduler(Config{}, spider, store, &countingNotifier{}, nil)
	ctx := context.Background()

	if _, err := s.RunDiscoveryCycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	m, err := s.RunDiscoveryCycle(ctx)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if m.Found != 0 || m.Stored != 0 {
		t.Errorf("expected second cycle to skip the stored job, got %+v", m)
	}
}

func TestRunMaintenanceCycleSweepsEmbeddings(t *testing.T) {
	store := newTrackingStore()
	store.pendingJobs = []model.Job{
		{ID: "id-1", DedupKey: "k1"},
		{ID: "id-2", DedupKey: "k2"},
	}
	s := newTestScheduler(Config{StaleAfter: time.Hour}, &scriptedSpider{}, store, nil, vectorEmbedder{})

	if err := s.RunMaintenanceCycle(context.Background()); err != nil {
		t.Fatalf("RunMaintenanceCycle: %v", err)
	}
	if len(store.updatedVectors) != 2 {
		t.Errorf("expected 2 swept embeddings, got %d", len(store.updatedVectors))
	}
	if len(store.deleteStaleArgs) != 1 || store.deleteStaleArgs[0] != time.Hour {
		t.Errorf("expected stale deletion with configured cutoff, got %v", store.deleteStaleArgs)
	}
}

func TestRunMaintenanceCycleZeroStaleAfterSkipsDeletion(t *testing.T) {
	store := newTrackingStore()
	s := newTestScheduler(Config{}, &scriptedSpider{}, store, nil, nil)

	if err := s.RunMaintenanceCycle(context.Background()); err != nil {
		t.Fatalf("RunMaintenanceCycle: %v", err)
	}
	if len(store.deleteStaleArgs) != 0 {
		t.Errorf("expected no stale deletion without a cutoff, got %v", store.deleteStaleArgs)
	}
}

func TestRun_CancelReturnsPromptly(t *testing.T) {
	spider := &scriptedSpider{}
	s := newTestScheduler(Config{Interval: time.Hour}, spider, newTrackingStore(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not return within 2s after cancel")
	}
}

func TestRun_TicksMultipleCycles(t *testing.T) {
	spider := &scriptedSpider{}
	s := newTestScheduler(Config{Interval: 50 * time.Millisecond}, spider, newTrackingStore(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	// Allow the immediate cycle plus at least one tick.
	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	if got := spider.cycles.Load(); got < 2 {
		t.Errorf("discovery cycles = %d, want >= 2", got)
	}
}
